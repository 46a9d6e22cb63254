package risk

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is the root of every validation failure in this package.
var ErrInvalidInput = errors.New("invalid input")

// ValidationError names the offending field. It never accompanies a state change.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidInput, e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}
