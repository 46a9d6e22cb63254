package journal

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

var (
	tradeCheckHeader = []string{"id", "portfolio_id", "time", "symbol", "side", "size", "entry_price", "stop_loss_price", "take_profit_price", "approved", "reason", "rule", "equity_at_check", "drawdown_at_check", "open_positions_at_check"}
	metricHeader     = []string{"id", "portfolio_id", "time", "equity", "drawdown", "daily_pnl", "open_positions", "var_95", "var_99", "cvar_95", "cvar_99", "method", "window_days", "max_correlation", "max_concentration", "healthy"}
	eventHeader      = []string{"id", "portfolio_id", "time", "kind", "from", "to", "message", "equity"}
)

type csvFile struct {
	f *os.File
	w *csv.Writer
}

// CSVJournal appends audit records to trade_checks.csv, metric_history.csv
// and risk_events.csv inside a directory. Headers are written to new files only.
type CSVJournal struct {
	mu      sync.Mutex
	checks  csvFile
	metrics csvFile
	events  csvFile
}

func NewCSV(dir string) (*CSVJournal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	j := &CSVJournal{}
	var err error
	if j.checks, err = openCSV(filepath.Join(dir, "trade_checks.csv"), tradeCheckHeader); err != nil {
		return nil, err
	}
	if j.metrics, err = openCSV(filepath.Join(dir, "metric_history.csv"), metricHeader); err != nil {
		_ = j.checks.f.Close()
		return nil, err
	}
	if j.events, err = openCSV(filepath.Join(dir, "risk_events.csv"), eventHeader); err != nil {
		_ = j.checks.f.Close()
		_ = j.metrics.f.Close()
		return nil, err
	}
	return j, nil
}

func openCSV(path string, header []string) (csvFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return csvFile{}, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return csvFile{}, err
	}

	cf := csvFile{f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := cf.write(header); err != nil {
			_ = f.Close()
			return csvFile{}, fmt.Errorf("write header %s: %w", path, err)
		}
	}
	return cf, nil
}

func (c csvFile) write(rec []string) error {
	if err := c.w.Write(rec); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

func (j *CSVJournal) RecordTradeCheck(_ context.Context, e TradeCheckEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.checks.write([]string{
		e.ID,
		e.PortfolioID,
		e.Time.UTC().Format(time.RFC3339Nano),
		e.Symbol,
		e.Side,
		f(e.Size),
		f(e.EntryPrice),
		optional(e.StopLossPrice),
		optional(e.TakeProfitPrice),
		strconv.FormatBool(e.Approved),
		e.Reason,
		e.Rule,
		f(e.EquityAtCheck),
		f(e.DrawdownAtCheck),
		strconv.Itoa(e.OpenPositionsAtCheck),
	})
}

func (j *CSVJournal) RecordMetric(_ context.Context, m MetricEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.metrics.write([]string{
		m.ID,
		m.PortfolioID,
		m.Time.UTC().Format(time.RFC3339Nano),
		f(m.Equity),
		f(m.Drawdown),
		f(m.DailyPnL),
		strconv.Itoa(m.OpenPositions),
		f(m.VaR95),
		f(m.VaR99),
		f(m.CVaR95),
		f(m.CVaR99),
		m.Method,
		strconv.Itoa(m.WindowDays),
		f(m.MaxCorrelation),
		f(m.MaxConcentration),
		strconv.FormatBool(m.Healthy),
	})
}

func (j *CSVJournal) RecordEvent(_ context.Context, ev Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.events.write([]string{
		ev.ID,
		ev.PortfolioID,
		ev.Time.UTC().Format(time.RFC3339Nano),
		ev.Kind,
		ev.From,
		ev.To,
		ev.Message,
		f(ev.Equity),
	})
}

func (j *CSVJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var first error
	for _, c := range []csvFile{j.checks, j.metrics, j.events} {
		c.w.Flush()
		if err := c.w.Error(); err != nil && first == nil {
			first = err
		}
		if err := c.f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}

func optional(p *float64) string {
	if p == nil {
		return ""
	}
	return f(*p)
}
