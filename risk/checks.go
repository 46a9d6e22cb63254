package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// ParseSide accepts buy/sell in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	}
	return "", invalid("side", fmt.Sprintf("must be buy or sell, got %q", s))
}

// TradeRequest is a prospective trade submitted for a risk check.
type TradeRequest struct {
	Symbol          string   `json:"symbol"`
	Side            Side     `json:"side"`
	Size            float64  `json:"size"`
	EntryPrice      float64  `json:"entry_price"`
	StopLossPrice   *float64 `json:"stop_loss_price,omitempty"`
	TakeProfitPrice *float64 `json:"take_profit_price,omitempty"`
}

func (r TradeRequest) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return invalid("symbol", "is required")
	}
	if r.Side != Buy && r.Side != Sell {
		return invalid("side", fmt.Sprintf("must be buy or sell, got %q", r.Side))
	}
	if !finite(r.Size) || r.Size <= 0 {
		return invalid("size", fmt.Sprintf("must be positive, got %v", r.Size))
	}
	if !finite(r.EntryPrice) || r.EntryPrice <= 0 {
		return invalid("entry_price", fmt.Sprintf("must be positive, got %v", r.EntryPrice))
	}
	if r.StopLossPrice != nil {
		if !finite(*r.StopLossPrice) || *r.StopLossPrice <= 0 {
			return invalid("stop_loss_price", fmt.Sprintf("must be positive, got %v", *r.StopLossPrice))
		}
		if *r.StopLossPrice == r.EntryPrice {
			return invalid("stop_loss_price", "must differ from entry_price")
		}
	}
	if r.TakeProfitPrice != nil && (!finite(*r.TakeProfitPrice) || *r.TakeProfitPrice <= 0) {
		return invalid("take_profit_price", fmt.Sprintf("must be positive, got %v", *r.TakeProfitPrice))
	}
	return nil
}

// Rule identifies which check decided a trade.
type Rule string

const (
	RuleNone          Rule = ""
	RuleHalted        Rule = "halted"
	RuleOpenPositions Rule = "max_open_positions"
	RuleRiskReward    Rule = "min_risk_reward"
	RulePositionSize  Rule = "max_position_size"
	RuleTradeRisk     Rule = "max_single_trade_risk"
	RuleLeverage      Rule = "max_leverage"
)

const ReasonApproved = "approved"

type Decision struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
	Rule     Rule   `json:"rule,omitempty"`

	PositionValue float64 `json:"position_value"`
	RiskAmount    float64 `json:"risk_amount"`
	RiskReward    float64 `json:"risk_reward,omitempty"`
}

func (d *Decision) reject(rule Rule, reason string) Decision {
	d.Approved = false
	d.Rule = rule
	d.Reason = reason
	return *d
}

// Exposure is what the portfolio already holds.
type Exposure struct {
	Gross float64 // sum of open position notionals
}

// Evaluate runs the trade rules in a fixed order; the first failure decides.
// It never mutates state.
func Evaluate(s State, l Limits, req TradeRequest, exp Exposure) Decision {
	d := Decision{
		PositionValue: req.Size * req.EntryPrice,
		RiskAmount:    PlannedRisk(req.Size, req.EntryPrice, req.StopLossPrice),
	}

	if s.Halted {
		return d.reject(RuleHalted, "trading halted: "+s.HaltReason)
	}

	if s.OpenPositions+1 > l.MaxOpenPositions {
		return d.reject(RuleOpenPositions, "max open positions reached")
	}

	if req.StopLossPrice != nil && req.TakeProfitPrice != nil {
		if rr, ok := RR(req.Side, req.EntryPrice, *req.StopLossPrice, *req.TakeProfitPrice); ok {
			d.RiskReward = rr
			if rr < l.MinRiskReward {
				return d.reject(RuleRiskReward, "risk/reward below minimum")
			}
		}
	}

	sizePct := RiskPct(d.PositionValue, s.Equity)
	if sizePct > l.MaxPositionSizePct {
		return d.reject(RulePositionSize,
			fmt.Sprintf("position too large: %s > %s", Percent(sizePct), Percent(l.MaxPositionSizePct)))
	}

	if RiskPct(d.RiskAmount, s.Equity) > l.MaxSingleTradeRisk {
		return d.reject(RuleTradeRisk, "trade risk exceeds limit")
	}

	if RiskPct(exp.Gross+d.PositionValue, s.Equity) > l.MaxLeverage {
		return d.reject(RuleLeverage, "leverage exceeds limit")
	}

	d.Approved = true
	d.Reason = ReasonApproved
	return d
}

// Percent renders a fraction as a percentage with two fixed decimals
// ("1.5" -> "150.00%").
func Percent(frac float64) string {
	switch {
	case math.IsNaN(frac):
		return "NaN%"
	case math.IsInf(frac, 1):
		return "+Inf%"
	case math.IsInf(frac, -1):
		return "-Inf%"
	}
	return decimal.NewFromFloat(frac).Shift(2).StringFixed(2) + "%"
}
