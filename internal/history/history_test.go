package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/riskguard/journal"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestReadReturnsCSV(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want []float64
		err  bool
	}{
		{"returns column", "date,return\n2024-01-01,0.01\n2024-01-02,-0.02\n", []float64{0.01, -0.02}, false},
		{"close levels", "date,close\n2024-01-01,100\n2024-01-02,110\n2024-01-03,99\n", []float64{0.1, -0.1}, false},
		{"return preferred over close", "date,close,return\nd,100,0.5\nd,200,0.25\n", []float64{0.5, 0.25}, false},
		{"blank cells skipped", "date,return\nd,0.01\nd,\nd,0.03\n", []float64{0.01, 0.03}, false},
		{"empty file", "", []float64{}, false},
		{"no usable column", "date,volume\nd,5\n", nil, true},
		{"bad number", "date,return\nd,abc\n", nil, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ReadReturnsCSV(strings.NewReader(tt.body))
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], got[i], 1e-12)
			}
		})
	}
}

func TestCSVProvider(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "BTC_USD.csv", "date,return\n1,0.01\n2,0.02\n3,0.03\n")
	writeFile(t, dir, "portfolio_main.csv", "date,equity\n1,10000\n2,10100\n3,9999\n")

	p := CSVProvider{Dir: dir}
	ctx := context.Background()

	r, err := p.PortfolioReturns(ctx, "main", 0)
	require.NoError(t, err)
	require.Len(t, r, 2)
	assert.InDelta(t, 0.01, r[0], 1e-12)
	assert.InDelta(t, -0.01, r[1], 1e-12)

	syms, err := p.SymbolReturns(ctx, []string{"BTC/USD", "DOGE/USD"}, 2)
	require.NoError(t, err)
	assert.Equal(t, map[string][]float64{"BTC/USD": {0.02, 0.03}}, syms)

	missing, err := p.PortfolioReturns(ctx, "other", 10)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

type stubProvider struct {
	portfolio []float64
	symbols   map[string][]float64
	err       error
}

func (s stubProvider) PortfolioReturns(context.Context, string, int) ([]float64, error) {
	return s.portfolio, s.err
}

func (s stubProvider) SymbolReturns(_ context.Context, symbols []string, _ int) (map[string][]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := map[string][]float64{}
	for _, sym := range symbols {
		if r, ok := s.symbols[sym]; ok {
			out[sym] = r
		}
	}
	return out, nil
}

func TestChain(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	broken := stubProvider{err: errors.New("offline")}
	empty := stubProvider{}
	primary := stubProvider{portfolio: []float64{0.1}, symbols: map[string][]float64{"A": {1}}}
	fallback := stubProvider{portfolio: []float64{0.2}, symbols: map[string][]float64{"A": {9}, "B": {2}}}

	r, err := Chain{broken, empty, primary, fallback}.PortfolioReturns(ctx, "main", 5)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1}, r)

	syms, err := Chain{broken, primary, fallback}.SymbolReturns(ctx, []string{"A", "B", "C"}, 5)
	require.NoError(t, err)
	assert.Equal(t, map[string][]float64{"A": {1}, "B": {2}}, syms)

	_, err = Chain{broken}.PortfolioReturns(ctx, "main", 5)
	assert.Error(t, err)

	r, err = Chain{}.PortfolioReturns(ctx, "main", 5)
	assert.NoError(t, err)
	assert.Empty(t, r)
}

func TestJournalProviderKeepsLastSnapshotPerDay(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := journal.NewSQLite(filepath.Join(t.TempDir(), "h.db"))
	require.NoError(t, err)
	defer db.Close()

	day := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	snaps := []struct {
		at     time.Time
		equity float64
	}{
		{day.Add(9 * time.Hour), 9000},
		{day.Add(20 * time.Hour), 10000}, // close of day 1
		{day.Add(33 * time.Hour), 11000}, // close of day 2
		{day.Add(57 * time.Hour), 9900},  // close of day 3
	}
	for i, s := range snaps {
		require.NoError(t, db.RecordMetric(ctx, journal.MetricEntry{
			ID: string(rune('a' + i)), PortfolioID: "main", Time: s.at, Equity: s.equity, Method: "historical",
		}))
	}

	p := JournalProvider{Reader: db, Now: func() time.Time { return day.AddDate(0, 0, 3) }}
	r, err := p.PortfolioReturns(ctx, "main", 30)
	require.NoError(t, err)
	require.Len(t, r, 2)
	assert.InDelta(t, 0.1, r[0], 1e-12)
	assert.InDelta(t, -0.1, r[1], 1e-12)

	syms, err := p.SymbolReturns(ctx, []string{"BTC/USD"}, 30)
	require.NoError(t, err)
	assert.Empty(t, syms)
}
