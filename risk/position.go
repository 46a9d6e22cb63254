package risk

import "fmt"

type SizingInput struct {
	Equity        float64
	EntryPrice    float64
	StopLossPrice float64
	RiskPerTrade  float64 // 0.02
}

type Sizing struct {
	Size          float64 `json:"size"`
	RiskAmount    float64 `json:"risk_amount"`
	PositionValue float64 `json:"position_value"`
	PerUnitRisk   float64 `json:"per_unit_risk"`
}

// SizePosition returns the size that loses exactly RiskPerTrade of equity
// if the stop is hit.
func SizePosition(in SizingInput) (Sizing, error) {
	if !finite(in.Equity) || in.Equity <= 0 {
		return Sizing{}, invalid("equity", fmt.Sprintf("must be positive, got %v", in.Equity))
	}
	if !finite(in.EntryPrice) || in.EntryPrice <= 0 {
		return Sizing{}, invalid("entry_price", fmt.Sprintf("must be positive, got %v", in.EntryPrice))
	}
	if !finite(in.StopLossPrice) || in.StopLossPrice <= 0 {
		return Sizing{}, invalid("stop_loss_price", fmt.Sprintf("must be positive, got %v", in.StopLossPrice))
	}
	if in.EntryPrice == in.StopLossPrice {
		return Sizing{}, invalid("stop_loss_price", "must differ from entry_price")
	}
	if !finite(in.RiskPerTrade) || in.RiskPerTrade <= 0 || in.RiskPerTrade > 1 {
		return Sizing{}, invalid("risk_per_trade", fmt.Sprintf("must be in (0,1], got %v", in.RiskPerTrade))
	}

	riskAmt := in.Equity * in.RiskPerTrade
	perUnit := abs(in.EntryPrice - in.StopLossPrice)
	size := riskAmt / perUnit

	return Sizing{
		Size:          size,
		RiskAmount:    riskAmt,
		PositionValue: size * in.EntryPrice,
		PerUnitRisk:   perUnit,
	}, nil
}
