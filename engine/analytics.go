package engine

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/rustyeddy/riskguard/journal"
	"github.com/rustyeddy/riskguard/pkg/id"
	"github.com/rustyeddy/riskguard/risk"
	"github.com/rustyeddy/riskguard/riskmodel"
)

type snapshot struct {
	status   risk.Status
	limits   risk.Limits
	holdings map[string]float64
}

// snapshot copies what read-only analytics need so the portfolio lock is not
// held while return series are fetched.
func (e *Engine) snapshot(ctx context.Context, pid string) (snapshot, error) {
	p, err := e.portfolio(ctx, pid)
	if err != nil {
		return snapshot{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return snapshot{status: p.state.Status(), limits: p.limits, holdings: p.holdings.Notionals()}, nil
}

// VaROptions overrides the engine's default method and window.
type VaROptions struct {
	Method riskmodel.Method
	Days   int
}

func (e *Engine) VaR(ctx context.Context, pid string, o VaROptions) (riskmodel.VaRResult, error) {
	snap, err := e.snapshot(ctx, pid)
	if err != nil {
		return riskmodel.VaRResult{}, err
	}
	return e.estimate(ctx, pid, snap.status.Equity, o)
}

func (e *Engine) estimate(ctx context.Context, pid string, equity float64, o VaROptions) (riskmodel.VaRResult, error) {
	est := e.estimator
	if o.Method != "" && o.Method != est.Method() {
		var err error
		if est, err = riskmodel.EstimatorFor(o.Method); err != nil {
			return riskmodel.VaRResult{}, &risk.ValidationError{Field: "method", Msg: err.Error()}
		}
	}
	days := o.Days
	if days <= 0 {
		days = e.opts.VaRWindowDays
	}

	returns := e.portfolioReturns(ctx, pid, days)
	if err := ctx.Err(); err != nil {
		return riskmodel.VaRResult{}, err
	}
	return est.Estimate(riskmodel.TailWindow(returns, days), equity), nil
}

func (e *Engine) portfolioReturns(ctx context.Context, pid string, days int) []float64 {
	if e.opts.Returns == nil {
		return nil
	}
	r, err := e.opts.Returns.PortfolioReturns(ctx, pid, days)
	if err != nil {
		e.log.Warn("portfolio returns unavailable", zap.String("portfolio", pid), zap.Error(err))
		return nil
	}
	return r
}

func (e *Engine) symbolReturns(ctx context.Context, symbols []string, days int) map[string][]float64 {
	if e.opts.Returns == nil || len(symbols) < 2 {
		return nil
	}
	r, err := e.opts.Returns.SymbolReturns(ctx, symbols, days)
	if err != nil {
		e.log.Warn("symbol returns unavailable", zap.Strings("symbols", symbols), zap.Error(err))
		return nil
	}
	return r
}

// HeatCheck scans the portfolio for concentration, correlation and
// approaching limits. It reads state but never mutates it.
func (e *Engine) HeatCheck(ctx context.Context, pid string) (riskmodel.HeatCheckResult, error) {
	snap, err := e.snapshot(ctx, pid)
	if err != nil {
		return riskmodel.HeatCheckResult{}, err
	}

	v, err := e.estimate(ctx, pid, snap.status.Equity, VaROptions{})
	if err != nil {
		return riskmodel.HeatCheckResult{}, err
	}

	symbols := make([]string, 0, len(snap.holdings))
	for s := range snap.holdings {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	return e.opts.HeatChecker.Check(riskmodel.HeatInput{
		Status:  snap.status,
		Limits:  snap.limits,
		Returns: e.symbolReturns(ctx, symbols, e.opts.VaRWindowDays),
		Weights: riskmodel.Weights(snap.holdings, snap.status.Equity),
		VaR:     v,
	}), nil
}

// RecordMetricsSnapshot runs a heat check and appends it to the metric
// history. A failed history write is logged, not returned.
func (e *Engine) RecordMetricsSnapshot(ctx context.Context, pid string) (journal.MetricEntry, error) {
	hc, err := e.HeatCheck(ctx, pid)
	if err != nil {
		return journal.MetricEntry{}, err
	}

	// every figure comes from the heat check's one snapshot
	now := e.now()
	m := journal.MetricEntry{
		ID:               id.NewAt(now),
		PortfolioID:      pid,
		Time:             now,
		Equity:           hc.VaR.Equity,
		Drawdown:         hc.Drawdown,
		DailyPnL:         hc.DailyPnL,
		OpenPositions:    hc.OpenPositions,
		VaR95:            hc.VaR.VaR95,
		VaR99:            hc.VaR.VaR99,
		CVaR95:           hc.VaR.CVaR95,
		CVaR99:           hc.VaR.CVaR99,
		Method:           string(hc.VaR.Method),
		WindowDays:       hc.VaR.WindowDays,
		MaxCorrelation:   hc.MaxCorrelation,
		MaxConcentration: hc.MaxConcentration,
		Healthy:          hc.Healthy,
	}
	e.metrics.VaR(pid, m.VaR95, m.CVaR95)
	if !hc.Healthy {
		e.log.Warn("heat check issues", zap.String("portfolio", pid), zap.Strings("issues", riskmodel.Messages(hc.Issues)))
	}

	if e.opts.Journal != nil {
		if err := e.opts.Journal.RecordMetric(ctx, m); err != nil {
			e.auditFailed("metric", pid, err)
		}
	}
	return m, nil
}

func (e *Engine) reader(ctx context.Context, pid string) (journal.Reader, error) {
	if _, err := e.portfolio(ctx, pid); err != nil {
		return nil, err
	}
	return e.opts.Reader, nil
}

// TradeLog returns audit entries newest first.
func (e *Engine) TradeLog(ctx context.Context, pid string, q journal.Query) ([]journal.TradeCheckEntry, error) {
	r, err := e.reader(ctx, pid)
	if err != nil || r == nil {
		return []journal.TradeCheckEntry{}, err
	}
	return r.ListTradeChecks(ctx, pid, q)
}

// MetricHistory returns snapshots oldest first.
func (e *Engine) MetricHistory(ctx context.Context, pid string, q journal.Query) ([]journal.MetricEntry, error) {
	r, err := e.reader(ctx, pid)
	if err != nil || r == nil {
		return []journal.MetricEntry{}, err
	}
	return r.ListMetricHistory(ctx, pid, q)
}

// Events returns state-change events newest first.
func (e *Engine) Events(ctx context.Context, pid string, q journal.Query) ([]journal.Event, error) {
	r, err := e.reader(ctx, pid)
	if err != nil || r == nil {
		return []journal.Event{}, err
	}
	return r.ListEvents(ctx, pid, q)
}
