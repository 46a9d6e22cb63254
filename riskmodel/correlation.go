package riskmodel

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// CorrPair is the Pearson correlation between the return series of A and B.
type CorrPair struct {
	A    string  `json:"a"`
	B    string  `json:"b"`
	Corr float64 `json:"correlation"`
}

// Correlations computes every pair with at least minOverlap overlapping
// observations. Series are aligned on their most recent end. Pairs with a
// flat series are skipped. Output is ordered by symbol.
func Correlations(returns map[string][]float64, minOverlap int) []CorrPair {
	if minOverlap < 2 {
		minOverlap = 2
	}

	symbols := make([]string, 0, len(returns))
	for s := range returns {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	var out []CorrPair
	for i := 0; i < len(symbols); i++ {
		for j := i + 1; j < len(symbols); j++ {
			a, b := alignTail(returns[symbols[i]], returns[symbols[j]])
			if len(a) < minOverlap {
				continue
			}
			c := stat.Correlation(a, b, nil)
			if math.IsNaN(c) || math.IsInf(c, 0) {
				continue
			}
			out = append(out, CorrPair{A: symbols[i], B: symbols[j], Corr: c})
		}
	}
	return out
}

func alignTail(a, b []float64) ([]float64, []float64) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	return a[len(a)-n:], b[len(b)-n:]
}

// sortByMagnitude orders pairs by descending |corr|, then by names.
func sortByMagnitude(pairs []CorrPair) {
	sort.SliceStable(pairs, func(i, j int) bool {
		ai, aj := math.Abs(pairs[i].Corr), math.Abs(pairs[j].Corr)
		if ai != aj {
			return ai > aj
		}
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})
}

// Weights maps each holding to |notional| / equity, the ratio the position
// size rule applies to a single trade. Leveraged portfolios sum above one.
// Non-positive equity yields no weights.
func Weights(holdings map[string]float64, equity float64) map[string]float64 {
	out := make(map[string]float64, len(holdings))
	if equity <= 0 || math.IsNaN(equity) || math.IsInf(equity, 0) {
		return out
	}
	for s, v := range holdings {
		out[s] = math.Abs(v) / equity
	}
	return out
}
