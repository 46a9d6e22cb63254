package risk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizePosition_BTCExample(t *testing.T) {
	t.Parallel()

	got, err := SizePosition(SizingInput{
		Equity:        10000,
		EntryPrice:    50000,
		StopLossPrice: 48000,
		RiskPerTrade:  0.02,
	})
	require.NoError(t, err)

	assert.InDelta(t, 200.0, got.RiskAmount, 1e-9)
	assert.InDelta(t, 2000.0, got.PerUnitRisk, 1e-9)
	assert.InDelta(t, 0.1, got.Size, 1e-12)
	assert.InDelta(t, 5000.0, got.PositionValue, 1e-6)
}

func TestSizePosition_StopAboveEntry(t *testing.T) {
	t.Parallel()

	got, err := SizePosition(SizingInput{
		Equity:        2000,
		EntryPrice:    1.0000,
		StopLossPrice: 1.0100,
		RiskPerTrade:  0.005,
	})
	require.NoError(t, err)

	assert.InDelta(t, 10.0, got.RiskAmount, 1e-9)
	assert.InDelta(t, 1000.0, got.Size, 1e-6)
}

func TestSizePosition_InvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    SizingInput
		field string
	}{
		{"entry equals stop", SizingInput{Equity: 1000, EntryPrice: 10, StopLossPrice: 10, RiskPerTrade: 0.01}, "stop_loss_price"},
		{"zero entry", SizingInput{Equity: 1000, EntryPrice: 0, StopLossPrice: 10, RiskPerTrade: 0.01}, "entry_price"},
		{"negative stop", SizingInput{Equity: 1000, EntryPrice: 10, StopLossPrice: -1, RiskPerTrade: 0.01}, "stop_loss_price"},
		{"zero risk", SizingInput{Equity: 1000, EntryPrice: 10, StopLossPrice: 9, RiskPerTrade: 0}, "risk_per_trade"},
		{"risk above one", SizingInput{Equity: 1000, EntryPrice: 10, StopLossPrice: 9, RiskPerTrade: 1.5}, "risk_per_trade"},
		{"zero equity", SizingInput{Equity: 0, EntryPrice: 10, StopLossPrice: 9, RiskPerTrade: 0.01}, "equity"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := SizePosition(tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}
