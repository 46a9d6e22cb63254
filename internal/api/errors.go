package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/rustyeddy/riskguard/engine"
	"github.com/rustyeddy/riskguard/risk"
)

type errorResponse struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	resp := errorResponse{Error: err.Error(), RequestID: c.GetString("request_id")}

	var ve *risk.ValidationError
	var fe validator.ValidationErrors
	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
		resp.Field = ve.Field
	case errors.As(err, &fe):
		status = http.StatusBadRequest
		if len(fe) > 0 {
			resp.Field = fe[0].Field()
		}
	case errors.Is(err, risk.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrUnknownPortfolio):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, resp)
}

// bind decodes a JSON body. Malformed JSON is a 400 like any other bad input.
func (s *Server) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		var fe validator.ValidationErrors
		if errors.As(err, &fe) {
			s.fail(c, err)
			return false
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
			Error:     "malformed request body: " + err.Error(),
			RequestID: c.GetString("request_id"),
		})
		return false
	}
	return true
}
