package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeState(equity float64, open int) State {
	return State{
		Equity:           equity,
		PeakEquity:       equity,
		InitialEquity:    equity,
		DailyStartEquity: equity,
		OpenPositions:    open,
	}
}

func permissive() Limits {
	return Limits{
		MaxPortfolioDrawdown: 1,
		MaxSingleTradeRisk:   1,
		MaxDailyLoss:         1,
		MaxOpenPositions:     100,
		MaxPositionSizePct:   1,
		MaxCorrelation:       1,
		MaxLeverage:          100,
	}
}

func TestEvaluateApproves(t *testing.T) {
	t.Parallel()

	d := Evaluate(activeState(10000, 0), DefaultLimits(), TradeRequest{
		Symbol:        "BTC/USD",
		Side:          Buy,
		Size:          0.01,
		EntryPrice:    50000,
		StopLossPrice: ptr(48000.0),
	}, Exposure{})

	assert.True(t, d.Approved)
	assert.Equal(t, ReasonApproved, d.Reason)
	assert.Equal(t, RuleNone, d.Rule)
	assert.InDelta(t, 500.0, d.PositionValue, 1e-9)
	assert.InDelta(t, 20.0, d.RiskAmount, 1e-9)
}

func TestEvaluateHaltedAlwaysRejects(t *testing.T) {
	t.Parallel()

	s := activeState(10000, 0)
	s.Halted = true
	s.HaltReason = ReasonDrawdownExceeded

	reqs := []TradeRequest{
		{Symbol: "A", Side: Buy, Size: 0.0001, EntryPrice: 1},
		{Symbol: "B", Side: Sell, Size: 1000, EntryPrice: 1000},
		{Symbol: "C", Side: Buy, Size: 1, EntryPrice: 10, StopLossPrice: ptr(9.0), TakeProfitPrice: ptr(30.0)},
	}
	for _, req := range reqs {
		d := Evaluate(s, permissive(), req, Exposure{})
		assert.False(t, d.Approved)
		assert.Equal(t, RuleHalted, d.Rule)
		assert.Equal(t, "trading halted: drawdown_exceeded", d.Reason)
	}
}

func TestEvaluateMaxOpenPositions(t *testing.T) {
	t.Parallel()

	l := DefaultLimits()
	l.MaxOpenPositions = 10

	d := Evaluate(activeState(10000, 10), l, TradeRequest{
		Symbol: "ETH/USD", Side: Buy, Size: 0.01, EntryPrice: 3000, StopLossPrice: ptr(2900.0),
	}, Exposure{})

	assert.False(t, d.Approved)
	assert.Equal(t, "max open positions reached", d.Reason)
	assert.Equal(t, RuleOpenPositions, d.Rule)
}

func TestEvaluatePositionTooLarge(t *testing.T) {
	t.Parallel()

	l := permissive()
	l.MaxPositionSizePct = 0.20

	// 0.3 * 50000 = 15000 on 10000 equity
	d := Evaluate(activeState(10000, 0), l, TradeRequest{
		Symbol: "BTC/USD", Side: Buy, Size: 0.3, EntryPrice: 50000,
	}, Exposure{})

	require.False(t, d.Approved)
	assert.Equal(t, RulePositionSize, d.Rule)
	assert.Contains(t, d.Reason, "150.00%")
	assert.Contains(t, d.Reason, "20.00%")
	assert.Equal(t, "position too large: 150.00% > 20.00%", d.Reason)
}

func TestEvaluateRiskReward(t *testing.T) {
	t.Parallel()

	l := permissive()
	l.MinRiskReward = 2

	tests := []struct {
		name     string
		req      TradeRequest
		approved bool
	}{
		{
			name:     "buy below minimum",
			req:      TradeRequest{Symbol: "X", Side: Buy, Size: 1, EntryPrice: 100, StopLossPrice: ptr(95.0), TakeProfitPrice: ptr(105.0)},
			approved: false,
		},
		{
			name:     "buy meets minimum",
			req:      TradeRequest{Symbol: "X", Side: Buy, Size: 1, EntryPrice: 100, StopLossPrice: ptr(95.0), TakeProfitPrice: ptr(110.0)},
			approved: true,
		},
		{
			name:     "sell below minimum",
			req:      TradeRequest{Symbol: "X", Side: Sell, Size: 1, EntryPrice: 100, StopLossPrice: ptr(110.0), TakeProfitPrice: ptr(90.0)},
			approved: false,
		},
		{
			name:     "no target skips rule",
			req:      TradeRequest{Symbol: "X", Side: Buy, Size: 1, EntryPrice: 100, StopLossPrice: ptr(95.0)},
			approved: true,
		},
		{
			name:     "inconsistent geometry skips rule",
			req:      TradeRequest{Symbol: "X", Side: Buy, Size: 1, EntryPrice: 100, StopLossPrice: ptr(105.0), TakeProfitPrice: ptr(101.0)},
			approved: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := Evaluate(activeState(100000, 0), l, tt.req, Exposure{})
			assert.Equal(t, tt.approved, d.Approved, d.Reason)
			if !tt.approved {
				assert.Equal(t, "risk/reward below minimum", d.Reason)
			}
		})
	}
}

func TestEvaluateTradeRisk(t *testing.T) {
	t.Parallel()

	l := permissive()
	l.MaxSingleTradeRisk = 0.02

	// risk = 0.2 * 2000 = 400 on 10000 equity = 4%
	d := Evaluate(activeState(10000, 0), l, TradeRequest{
		Symbol: "BTC/USD", Side: Buy, Size: 0.2, EntryPrice: 50000, StopLossPrice: ptr(48000.0),
	}, Exposure{})

	assert.False(t, d.Approved)
	assert.Equal(t, "trade risk exceeds limit", d.Reason)

	// without a stop the full notional is at risk
	d = Evaluate(activeState(10000, 0), l, TradeRequest{
		Symbol: "BTC/USD", Side: Buy, Size: 0.01, EntryPrice: 50000,
	}, Exposure{})
	assert.False(t, d.Approved)
	assert.Equal(t, RuleTradeRisk, d.Rule)
}

func TestEvaluateLeverage(t *testing.T) {
	t.Parallel()

	l := permissive()
	l.MaxLeverage = 2

	d := Evaluate(activeState(10000, 3), l, TradeRequest{
		Symbol: "SOL/USD", Side: Buy, Size: 10, EntryPrice: 200, StopLossPrice: ptr(190.0),
	}, Exposure{Gross: 19000})

	assert.False(t, d.Approved)
	assert.Equal(t, RuleLeverage, d.Rule)
	assert.Equal(t, "leverage exceeds limit", d.Reason)
}

func TestEvaluateRuleOrder(t *testing.T) {
	t.Parallel()

	// Violates every rule; the open-position rule must win.
	l := Limits{MaxOpenPositions: 1, MinRiskReward: 5, MaxPositionSizePct: 0.01, MaxSingleTradeRisk: 0.001, MaxLeverage: 1}
	req := TradeRequest{Symbol: "X", Side: Buy, Size: 100, EntryPrice: 100, StopLossPrice: ptr(90.0), TakeProfitPrice: ptr(101.0)}

	d := Evaluate(activeState(1000, 1), l, req, Exposure{Gross: 5000})
	assert.Equal(t, RuleOpenPositions, d.Rule)

	d = Evaluate(activeState(1000, 0), l, req, Exposure{Gross: 5000})
	assert.Equal(t, RuleRiskReward, d.Rule)

	l.MinRiskReward = 0
	d = Evaluate(activeState(1000, 0), l, req, Exposure{Gross: 5000})
	assert.Equal(t, RulePositionSize, d.Rule)

	l.MaxPositionSizePct = 1
	req.Size = 1
	d = Evaluate(activeState(1000, 0), l, req, Exposure{Gross: 5000})
	assert.Equal(t, RuleTradeRisk, d.Rule)

	l.MaxSingleTradeRisk = 1
	d = Evaluate(activeState(1000, 0), l, req, Exposure{Gross: 5000})
	assert.Equal(t, RuleLeverage, d.Rule)
}

func TestTradeRequestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		req   TradeRequest
		field string
	}{
		{"missing symbol", TradeRequest{Side: Buy, Size: 1, EntryPrice: 1}, "symbol"},
		{"bad side", TradeRequest{Symbol: "X", Side: "hold", Size: 1, EntryPrice: 1}, "side"},
		{"negative size", TradeRequest{Symbol: "X", Side: Buy, Size: -1, EntryPrice: 1}, "size"},
		{"zero entry", TradeRequest{Symbol: "X", Side: Buy, Size: 1, EntryPrice: 0}, "entry_price"},
		{"stop equals entry", TradeRequest{Symbol: "X", Side: Buy, Size: 1, EntryPrice: 5, StopLossPrice: ptr(5.0)}, "stop_loss_price"},
		{"negative target", TradeRequest{Symbol: "X", Side: Buy, Size: 1, EntryPrice: 5, TakeProfitPrice: ptr(-5.0)}, "take_profit_price"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.req.Validate()
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestParseSide(t *testing.T) {
	t.Parallel()

	s, err := ParseSide(" BUY ")
	require.NoError(t, err)
	assert.Equal(t, Buy, s)

	_, err = ParseSide("long")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
