// Package riskmodel estimates portfolio Value-at-Risk and scans holdings for
// concentration and correlation risk. Everything here is read-only with
// respect to portfolio state.
package riskmodel

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

type Method string

const (
	MethodParametric Method = "parametric"
	MethodHistorical Method = "historical"
)

func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case MethodParametric:
		return MethodParametric, nil
	case MethodHistorical:
		return MethodHistorical, nil
	}
	return "", fmt.Errorf("unknown VaR method %q (want parametric or historical)", s)
}

const (
	z95 = 1.645
	z99 = 2.326

	// Below this many observations a result is flagged LowConfidence.
	LowConfidenceObservations = 20
)

// VaRResult holds loss magnitudes in account currency. WindowDays is the
// number of observations actually used, which can be less than requested.
type VaRResult struct {
	VaR95         float64 `json:"var_95"`
	VaR99         float64 `json:"var_99"`
	CVaR95        float64 `json:"cvar_95"`
	CVaR99        float64 `json:"cvar_99"`
	Method        Method  `json:"method"`
	WindowDays    int     `json:"window_days"`
	LowConfidence bool    `json:"low_confidence"`
	Mean          float64 `json:"mean"`
	StdDev        float64 `json:"std_dev"`
	Equity        float64 `json:"equity"`
}

// Estimator turns a window of returns into VaR/CVaR figures for equity.
type Estimator interface {
	Method() Method
	Estimate(window []float64, equity float64) VaRResult
}

// EstimatorFor is the single place a method identifier is resolved.
func EstimatorFor(m Method) (Estimator, error) {
	switch m {
	case MethodParametric:
		return Parametric{}, nil
	case MethodHistorical:
		return Historical{}, nil
	}
	return nil, fmt.Errorf("unknown VaR method %q", m)
}

// TailWindow returns the most recent days observations, or all of them when
// fewer are available or days <= 0.
func TailWindow(returns []float64, days int) []float64 {
	if days <= 0 || days >= len(returns) {
		return returns
	}
	return returns[len(returns)-days:]
}

func clean(window []float64) []float64 {
	out := make([]float64, 0, len(window))
	for _, r := range window {
		if !math.IsNaN(r) && !math.IsInf(r, 0) {
			out = append(out, r)
		}
	}
	return out
}

func newResult(m Method, n int, equity float64) VaRResult {
	return VaRResult{
		Method:        m,
		WindowDays:    n,
		LowConfidence: n < LowConfidenceObservations,
		Equity:        equity,
	}
}

// Parametric assumes normally distributed returns.
type Parametric struct{}

func (Parametric) Method() Method { return MethodParametric }

func (Parametric) Estimate(window []float64, equity float64) VaRResult {
	x := clean(window)
	res := newResult(MethodParametric, len(x), equity)
	if len(x) == 0 {
		return res
	}

	mu, sigma := meanStdDev(x)
	res.Mean, res.StdDev = mu, sigma

	res.VaR95 = equity * math.Max(0, -(mu - z95*sigma))
	res.VaR99 = equity * math.Max(0, -(mu - z99*sigma))
	res.CVaR95 = math.Max(res.VaR95, normalES(mu, sigma, z95, 0.95)*equity)
	res.CVaR99 = math.Max(res.VaR99, normalES(mu, sigma, z99, 0.99)*equity)
	return res
}

// normalES is the expected loss beyond the c quantile of N(mu, sigma).
func normalES(mu, sigma, z, c float64) float64 {
	return sigma*distuv.UnitNormal.Prob(z)/(1-c) - mu
}

func meanStdDev(x []float64) (float64, float64) {
	if len(x) < 2 {
		return stat.Mean(x, nil), 0
	}
	return stat.MeanStdDev(x, nil)
}

// Historical reads losses straight off the empirical distribution.
type Historical struct{}

func (Historical) Method() Method { return MethodHistorical }

func (Historical) Estimate(window []float64, equity float64) VaRResult {
	x := clean(window)
	res := newResult(MethodHistorical, len(x), equity)
	if len(x) == 0 {
		return res
	}
	res.Mean, res.StdDev = meanStdDev(x)

	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)

	res.VaR95, res.CVaR95 = empiricalTail(sorted, 0.95, equity)
	res.VaR99, res.CVaR99 = empiricalTail(sorted, 0.99, equity)
	return res
}

// empiricalTail takes the worst ceil((1-c)*n) returns of an ascending slice.
// VaR is the loss at the edge of that tail and CVaR the mean loss inside it.
func empiricalTail(sorted []float64, c, equity float64) (float64, float64) {
	n := len(sorted)
	m := int(math.Ceil(float64(n)*(1-c) - 1e-9))
	if m < 1 {
		m = 1
	}
	if m > n {
		m = n
	}

	tail := sorted[:m]
	varLoss := math.Max(0, -tail[m-1]) * equity
	cvarLoss := math.Max(0, -stat.Mean(tail, nil)) * equity
	return varLoss, math.Max(cvarLoss, varLoss)
}
