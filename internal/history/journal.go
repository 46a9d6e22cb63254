package history

import (
	"context"
	"time"

	"github.com/rustyeddy/riskguard/journal"
)

// JournalProvider derives daily portfolio returns from the equity recorded in
// metric snapshots, keeping the last snapshot of each trading day.
type JournalProvider struct {
	Reader   journal.Reader
	Location *time.Location
	Now      func() time.Time
}

func (p JournalProvider) PortfolioReturns(ctx context.Context, portfolioID string, days int) ([]float64, error) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}

	q := journal.Query{}
	if days > 0 {
		q.Since = now().AddDate(0, 0, -(days + 1))
	}
	hist, err := p.Reader.ListMetricHistory(ctx, portfolioID, q)
	if err != nil {
		return nil, err
	}

	var (
		closes  []float64
		lastDay string
	)
	for _, m := range hist {
		d := m.Time.In(loc).Format("2006-01-02")
		if d == lastDay {
			closes[len(closes)-1] = m.Equity
			continue
		}
		closes = append(closes, m.Equity)
		lastDay = d
	}
	return tail(pctChange(closes), days), nil
}

// SymbolReturns has no per-symbol data to offer.
func (p JournalProvider) SymbolReturns(context.Context, []string, int) (map[string][]float64, error) {
	return map[string][]float64{}, nil
}
