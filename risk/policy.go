package risk

import (
	"fmt"
	"math"
)

// Limits is the per-portfolio set of risk caps. Fractions are of current equity.
type Limits struct {
	MaxPortfolioDrawdown float64 `json:"max_portfolio_drawdown" yaml:"max_portfolio_drawdown"` // 0.20
	MaxSingleTradeRisk   float64 `json:"max_single_trade_risk" yaml:"max_single_trade_risk"`   // 0.02
	MaxDailyLoss         float64 `json:"max_daily_loss" yaml:"max_daily_loss"`                 // 0.05

	// Exposure limits
	MaxOpenPositions   int     `json:"max_open_positions" yaml:"max_open_positions"`       // 10
	MaxPositionSizePct float64 `json:"max_position_size_pct" yaml:"max_position_size_pct"` // 0.20
	MaxCorrelation     float64 `json:"max_correlation" yaml:"max_correlation"`             // 0.70
	MaxLeverage        float64 `json:"max_leverage" yaml:"max_leverage"`                   // 3

	// Trade constraints
	MinRiskReward float64 `json:"min_risk_reward" yaml:"min_risk_reward"` // 0 disables the rule
}

// DefaultLimits returns the limits a portfolio gets when it is first tracked.
func DefaultLimits() Limits {
	return Limits{
		MaxPortfolioDrawdown: 0.20,
		MaxSingleTradeRisk:   0.02,
		MaxDailyLoss:         0.05,
		MaxOpenPositions:     10,
		MaxPositionSizePct:   0.20,
		MaxCorrelation:       0.70,
		MaxLeverage:          3,
		MinRiskReward:        0,
	}
}

// Validate reports the first field that violates its range.
func (l Limits) Validate() error {
	fractions := []struct {
		name string
		v    float64
	}{
		{"max_portfolio_drawdown", l.MaxPortfolioDrawdown},
		{"max_single_trade_risk", l.MaxSingleTradeRisk},
		{"max_daily_loss", l.MaxDailyLoss},
		{"max_position_size_pct", l.MaxPositionSizePct},
		{"max_correlation", l.MaxCorrelation},
	}
	for _, f := range fractions {
		if !finite(f.v) || f.v < 0 || f.v > 1 {
			return invalid(f.name, fmt.Sprintf("must be between 0 and 1, got %v", f.v))
		}
	}
	if l.MaxOpenPositions < 0 {
		return invalid("max_open_positions", fmt.Sprintf("must be non-negative, got %d", l.MaxOpenPositions))
	}
	if !finite(l.MinRiskReward) || l.MinRiskReward < 0 {
		return invalid("min_risk_reward", fmt.Sprintf("must be >= 0, got %v", l.MinRiskReward))
	}
	if !finite(l.MaxLeverage) || l.MaxLeverage < 1 {
		return invalid("max_leverage", fmt.Sprintf("must be >= 1, got %v", l.MaxLeverage))
	}
	return nil
}

// LimitsUpdate is a partial update. Nil fields are left untouched.
type LimitsUpdate struct {
	MaxPortfolioDrawdown *float64 `json:"max_portfolio_drawdown,omitempty"`
	MaxSingleTradeRisk   *float64 `json:"max_single_trade_risk,omitempty"`
	MaxDailyLoss         *float64 `json:"max_daily_loss,omitempty"`
	MaxOpenPositions     *int     `json:"max_open_positions,omitempty"`
	MaxPositionSizePct   *float64 `json:"max_position_size_pct,omitempty"`
	MaxCorrelation       *float64 `json:"max_correlation,omitempty"`
	MaxLeverage          *float64 `json:"max_leverage,omitempty"`
	MinRiskReward        *float64 `json:"min_risk_reward,omitempty"`
}

// IsEmpty reports whether the update would change nothing.
func (u LimitsUpdate) IsEmpty() bool {
	return u.MaxPortfolioDrawdown == nil && u.MaxSingleTradeRisk == nil &&
		u.MaxDailyLoss == nil && u.MaxOpenPositions == nil &&
		u.MaxPositionSizePct == nil && u.MaxCorrelation == nil &&
		u.MaxLeverage == nil && u.MinRiskReward == nil
}

// Apply merges u into a copy of l and validates the result. On error the
// returned Limits is the original, unchanged.
func (l Limits) Apply(u LimitsUpdate) (Limits, error) {
	next := l
	if u.MaxPortfolioDrawdown != nil {
		next.MaxPortfolioDrawdown = *u.MaxPortfolioDrawdown
	}
	if u.MaxSingleTradeRisk != nil {
		next.MaxSingleTradeRisk = *u.MaxSingleTradeRisk
	}
	if u.MaxDailyLoss != nil {
		next.MaxDailyLoss = *u.MaxDailyLoss
	}
	if u.MaxOpenPositions != nil {
		next.MaxOpenPositions = *u.MaxOpenPositions
	}
	if u.MaxPositionSizePct != nil {
		next.MaxPositionSizePct = *u.MaxPositionSizePct
	}
	if u.MaxCorrelation != nil {
		next.MaxCorrelation = *u.MaxCorrelation
	}
	if u.MaxLeverage != nil {
		next.MaxLeverage = *u.MaxLeverage
	}
	if u.MinRiskReward != nil {
		next.MinRiskReward = *u.MinRiskReward
	}
	if err := next.Validate(); err != nil {
		return l, err
	}
	return next, nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
