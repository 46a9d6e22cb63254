package riskmodel

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rustyeddy/riskguard/risk"
)

type IssueKind string

const (
	IssueHalted           IssueKind = "halted"
	IssueDrawdownWarning  IssueKind = "drawdown_warning"
	IssueDailyLossWarning IssueKind = "daily_loss_warning"
	IssueConcentration    IssueKind = "concentration"
	IssueCorrelation      IssueKind = "correlation"
)

// Issue is one finding of a heat check. Subject is a symbol, a symbol pair
// ("BTC/ETH") or a halt reason depending on Kind.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Subject string    `json:"subject,omitempty"`
	Value   float64   `json:"value"`
	Limit   float64   `json:"limit"`
}

func (i Issue) String() string {
	switch i.Kind {
	case IssueHalted:
		return "trading halted: " + i.Subject
	case IssueDrawdownWarning:
		return fmt.Sprintf("drawdown %s approaching limit %s", risk.Percent(i.Value), risk.Percent(i.Limit))
	case IssueDailyLossWarning:
		return fmt.Sprintf("daily loss %s approaching limit %s", risk.Percent(i.Value), risk.Percent(i.Limit))
	case IssueConcentration:
		return fmt.Sprintf("position %s weight %s exceeds limit %s", i.Subject, risk.Percent(i.Value), risk.Percent(i.Limit))
	case IssueCorrelation:
		return fmt.Sprintf("high correlation %s: %.2f (limit %.2f)", i.Subject, i.Value, i.Limit)
	}
	return string(i.Kind)
}

// Messages renders issues for display.
func Messages(issues []Issue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.String()
	}
	return out
}

type HeatInput struct {
	Status  risk.Status
	Limits  risk.Limits
	Returns map[string][]float64 // per-symbol return history
	Weights map[string]float64
	VaR     VaRResult
}

type HeatCheckResult struct {
	Healthy          bool               `json:"healthy"`
	Issues           []Issue            `json:"issues"`
	Drawdown         float64            `json:"drawdown"`
	DailyPnL         float64            `json:"daily_pnl"`
	OpenPositions    int                `json:"open_positions"`
	MaxCorrelation   float64            `json:"max_correlation"`
	HighCorrPairs    []CorrPair         `json:"high_corr_pairs"`
	MaxConcentration float64            `json:"max_concentration"`
	PositionWeights  map[string]float64 `json:"position_weights"`
	VaR              VaRResult          `json:"var"`
	Halted           bool               `json:"is_halted"`
	HaltReason       string             `json:"halt_reason,omitempty"`
	CheckedAt        time.Time          `json:"checked_at"`
}

// HeatChecker scans a portfolio snapshot. Warn ratios are the fraction of a
// hard limit at which an early warning is raised.
type HeatChecker struct {
	DrawdownWarnRatio  float64
	DailyLossWarnRatio float64
	MinOverlap         int
	Now                func() time.Time
}

func DefaultHeatChecker() HeatChecker {
	return HeatChecker{
		DrawdownWarnRatio:  0.8,
		DailyLossWarnRatio: 0.8,
		MinOverlap:         10,
		Now:                time.Now,
	}
}

func (h HeatChecker) Check(in HeatInput) HeatCheckResult {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}

	st := in.Status
	res := HeatCheckResult{
		Issues:          []Issue{},
		HighCorrPairs:   []CorrPair{},
		Drawdown:        st.Drawdown,
		DailyPnL:        st.DailyPnL,
		OpenPositions:   st.OpenPositions,
		PositionWeights: map[string]float64{},
		VaR:             in.VaR,
		Halted:          st.Halted,
		HaltReason:      st.HaltReason,
		CheckedAt:       now(),
	}

	if st.Halted {
		res.Issues = append(res.Issues, Issue{Kind: IssueHalted, Subject: st.HaltReason})
	}

	if lim := in.Limits.MaxPortfolioDrawdown; lim > 0 && st.Drawdown >= h.DrawdownWarnRatio*lim {
		res.Issues = append(res.Issues, Issue{Kind: IssueDrawdownWarning, Value: st.Drawdown, Limit: lim})
	}

	if lim := in.Limits.MaxDailyLoss; lim > 0 && st.DailyStartEquity > 0 && st.DailyPnL < 0 {
		loss := -st.DailyPnL / st.DailyStartEquity
		if loss >= h.DailyLossWarnRatio*lim {
			res.Issues = append(res.Issues, Issue{Kind: IssueDailyLossWarning, Value: loss, Limit: lim})
		}
	}

	symbols := make([]string, 0, len(in.Weights))
	for s, w := range in.Weights {
		res.PositionWeights[s] = w
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	top := ""
	for _, s := range symbols {
		if w := in.Weights[s]; w > res.MaxConcentration {
			res.MaxConcentration = w
			top = s
		}
	}
	if top != "" && res.MaxConcentration > in.Limits.MaxPositionSizePct {
		res.Issues = append(res.Issues, Issue{
			Kind:    IssueConcentration,
			Subject: top,
			Value:   res.MaxConcentration,
			Limit:   in.Limits.MaxPositionSizePct,
		})
	}

	for _, p := range Correlations(in.Returns, h.MinOverlap) {
		c := math.Abs(p.Corr)
		if c > res.MaxCorrelation {
			res.MaxCorrelation = c
		}
		if c >= in.Limits.MaxCorrelation {
			res.HighCorrPairs = append(res.HighCorrPairs, p)
		}
	}
	sortByMagnitude(res.HighCorrPairs)
	for _, p := range res.HighCorrPairs {
		res.Issues = append(res.Issues, Issue{
			Kind:    IssueCorrelation,
			Subject: p.A + "/" + p.B,
			Value:   p.Corr,
			Limit:   in.Limits.MaxCorrelation,
		})
	}

	res.Healthy = len(res.Issues) == 0
	return res
}
