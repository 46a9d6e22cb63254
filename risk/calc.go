package risk

import "math"

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// PlannedRisk is the cash lost if the stop is hit. Without a stop the whole
// position value is treated as at risk.
func PlannedRisk(size, entry float64, stop *float64) float64 {
	if stop == nil {
		return size * entry
	}
	return size * abs(entry-*stop)
}

// RR returns reward/risk for a side-consistent stop and target, and false when
// the geometry does not describe a trade (stop or target on the wrong side).
func RR(side Side, entry, stop, takeProfit float64) (float64, bool) {
	var risk, reward float64
	switch side {
	case Buy:
		risk, reward = entry-stop, takeProfit-entry
	case Sell:
		risk, reward = stop-entry, entry-takeProfit
	default:
		return 0, false
	}
	if risk <= 0 || reward <= 0 {
		return 0, false
	}
	return reward / risk, true
}

// RiskPct is amount as a fraction of equity; +Inf when equity is not positive.
func RiskPct(amount, equity float64) float64 {
	if equity <= 0 {
		return math.Inf(1)
	}
	return amount / equity
}

// Drawdown is (peak-equity)/peak, zero when there is no positive peak.
func Drawdown(equity, peak float64) float64 {
	if peak <= 0 || equity >= peak {
		return 0
	}
	return (peak - equity) / peak
}
