// Package history supplies daily return series to the engine from CSV files
// and from the engine's own metric history.
package history

import (
	"context"
	"errors"
	"math"
)

// Provider matches engine.ReturnsProvider.
type Provider interface {
	PortfolioReturns(ctx context.Context, portfolioID string, days int) ([]float64, error)
	SymbolReturns(ctx context.Context, symbols []string, days int) (map[string][]float64, error)
}

// Chain asks each provider in turn. For portfolios the first non-empty
// series wins; for symbols earlier providers win per symbol.
type Chain []Provider

func (c Chain) PortfolioReturns(ctx context.Context, portfolioID string, days int) ([]float64, error) {
	var errs []error
	for _, p := range c {
		r, err := p.PortfolioReturns(ctx, portfolioID, days)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(r) > 0 {
			return r, nil
		}
	}
	return nil, errors.Join(errs...)
}

func (c Chain) SymbolReturns(ctx context.Context, symbols []string, days int) (map[string][]float64, error) {
	out := map[string][]float64{}
	var errs []error
	for _, p := range c {
		missing := make([]string, 0, len(symbols))
		for _, s := range symbols {
			if _, ok := out[s]; !ok {
				missing = append(missing, s)
			}
		}
		if len(missing) == 0 {
			break
		}
		r, err := p.SymbolReturns(ctx, missing, days)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for s, series := range r {
			if len(series) > 0 {
				out[s] = series
			}
		}
	}
	if len(out) == 0 {
		return out, errors.Join(errs...)
	}
	return out, nil
}

// pctChange converts a level series (prices or equity) into simple returns.
// Steps from a non-positive level are skipped.
func pctChange(levels []float64) []float64 {
	if len(levels) < 2 {
		return []float64{}
	}
	out := make([]float64, 0, len(levels)-1)
	for i := 1; i < len(levels); i++ {
		prev := levels[i-1]
		if prev <= 0 || math.IsNaN(prev) || math.IsNaN(levels[i]) {
			continue
		}
		out = append(out, levels[i]/prev-1)
	}
	return out
}

func tail(r []float64, days int) []float64 {
	if days <= 0 || days >= len(r) {
		return r
	}
	return r[len(r)-days:]
}
