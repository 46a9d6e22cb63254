// Package engine keeps a registry of portfolios and serializes every check,
// audit write and state mutation per portfolio. Different portfolios never
// contend on a lock.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/riskguard/internal/logging"
	"github.com/rustyeddy/riskguard/internal/telemetry"
	"github.com/rustyeddy/riskguard/journal"
	"github.com/rustyeddy/riskguard/risk"
	"github.com/rustyeddy/riskguard/riskmodel"
)

var ErrUnknownPortfolio = errors.New("engine: unknown portfolio")

// ReturnsProvider supplies daily return series. Missing data is an empty
// slice, not an error.
type ReturnsProvider interface {
	PortfolioReturns(ctx context.Context, portfolioID string, days int) ([]float64, error)
	SymbolReturns(ctx context.Context, symbols []string, days int) (map[string][]float64, error)
}

type Options struct {
	Logger  *zap.Logger
	Metrics *telemetry.Metrics

	Journal journal.Journal    // audit sink; nil discards
	Reader  journal.Reader     // backs TradeLog, MetricHistory and Events
	Store   journal.StateStore // nil keeps state in memory only
	Returns ReturnsProvider

	Now      func() time.Time
	Location *time.Location // trading-day boundary

	InitialEquity float64
	Limits        risk.Limits
	VaRMethod     riskmodel.Method
	VaRWindowDays int
	HeatChecker   riskmodel.HeatChecker
	AutoTrack     bool
}

type portfolio struct {
	mu       sync.Mutex
	id       string
	state    risk.State
	limits   risk.Limits
	holdings risk.Holdings
}

type Engine struct {
	opts      Options
	log       *zap.Logger
	metrics   *telemetry.Metrics
	estimator riskmodel.Estimator

	mu         sync.RWMutex
	portfolios map[string]*portfolio
}

func New(opts Options) (*Engine, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.InitialEquity == 0 {
		opts.InitialEquity = 10000
	}
	if err := risk.ValidateEquity(opts.InitialEquity); err != nil {
		return nil, fmt.Errorf("engine: initial equity: %w", err)
	}
	if opts.Limits == (risk.Limits{}) {
		opts.Limits = risk.DefaultLimits()
	}
	if err := opts.Limits.Validate(); err != nil {
		return nil, fmt.Errorf("engine: default limits: %w", err)
	}
	if opts.VaRMethod == "" {
		opts.VaRMethod = riskmodel.MethodHistorical
	}
	est, err := riskmodel.EstimatorFor(opts.VaRMethod)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if opts.VaRWindowDays <= 0 {
		opts.VaRWindowDays = 252
	}
	if hc := opts.HeatChecker; hc.DrawdownWarnRatio == 0 && hc.DailyLossWarnRatio == 0 && hc.MinOverlap == 0 {
		opts.HeatChecker = riskmodel.DefaultHeatChecker()
	}
	opts.HeatChecker.Now = opts.Now

	return &Engine{
		opts:       opts,
		log:        logging.OrNop(opts.Logger).Named("engine"),
		metrics:    opts.Metrics,
		estimator:  est,
		portfolios: map[string]*portfolio{},
	}, nil
}

func (e *Engine) now() time.Time { return e.opts.Now() }

// day is the trading-day key for t in the configured location.
func (e *Engine) day(t time.Time) string {
	return t.In(e.opts.Location).Format("2006-01-02")
}

func validID(id string) error {
	if strings.TrimSpace(id) == "" {
		return &risk.ValidationError{Field: "portfolio_id", Msg: "is required"}
	}
	return nil
}

// TrackOptions overrides engine defaults for a new portfolio.
type TrackOptions struct {
	InitialEquity float64
	Limits        *risk.Limits
}

// Track registers a portfolio. A portfolio already in memory or in the state
// store is returned as-is and the options are ignored.
func (e *Engine) Track(ctx context.Context, id string, o TrackOptions) (risk.Status, error) {
	if err := validID(id); err != nil {
		return risk.Status{}, err
	}
	p, err := e.lookup(ctx, id, &o)
	if err != nil {
		return risk.Status{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Status(), nil
}

// portfolio resolves id, creating it when AutoTrack is on.
func (e *Engine) portfolio(ctx context.Context, id string) (*portfolio, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	var create *TrackOptions
	if e.opts.AutoTrack {
		create = &TrackOptions{}
	}
	return e.lookup(ctx, id, create)
}

// lookup resolves id from memory, then the state store, then create. Store
// I/O runs outside the registry lock; when two callers race on the same id
// the first insert wins and the other adopts it.
func (e *Engine) lookup(ctx context.Context, id string, create *TrackOptions) (*portfolio, error) {
	e.mu.RLock()
	p, ok := e.portfolios[id]
	e.mu.RUnlock()
	if ok {
		return p, nil
	}

	restored := false
	if e.opts.Store != nil {
		saved, err := e.opts.Store.LoadPortfolio(ctx, id)
		switch {
		case err == nil:
			p = &portfolio{id: id, state: saved.State, limits: saved.Limits, holdings: saved.Holdings}
			if p.holdings == nil {
				p.holdings = risk.Holdings{}
			}
			restored = true
		case !errors.Is(err, journal.ErrNotFound):
			return nil, fmt.Errorf("engine: load portfolio %s: %w", id, err)
		}
	}

	if p == nil {
		if create == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPortfolio, id)
		}
		var err error
		if p, err = e.newPortfolio(id, create); err != nil {
			return nil, err
		}
	}

	// p is not shared until it is in the registry, so holding its lock
	// across the insert keeps the first persist ahead of any mutation.
	p.mu.Lock()
	defer p.mu.Unlock()

	e.mu.Lock()
	if existing, ok := e.portfolios[id]; ok {
		e.mu.Unlock()
		return existing, nil
	}
	e.portfolios[id] = p
	e.mu.Unlock()

	if restored {
		e.log.Info("portfolio restored", zap.String("portfolio", id), zap.Float64("equity", p.state.Equity), zap.Bool("halted", p.state.Halted))
		return p, nil
	}
	e.persist(ctx, p)
	e.log.Info("portfolio tracked", zap.String("portfolio", id), zap.Float64("equity", p.state.Equity))
	return p, nil
}

func (e *Engine) newPortfolio(id string, o *TrackOptions) (*portfolio, error) {
	seed := o.InitialEquity
	if seed == 0 {
		seed = e.opts.InitialEquity
	}
	limits := e.opts.Limits
	if o.Limits != nil {
		if err := o.Limits.Validate(); err != nil {
			return nil, err
		}
		limits = *o.Limits
	}
	now := e.now()
	st, err := risk.NewState(seed, e.day(now))
	if err != nil {
		return nil, err
	}
	st.UpdatedAt = now
	return &portfolio{id: id, state: st, limits: limits, holdings: risk.Holdings{}}, nil
}

// PortfolioIDs lists tracked portfolios in order.
func (e *Engine) PortfolioIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.portfolios))
	for id := range e.portfolios {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Restore loads every portfolio in the state store.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	if e.opts.Store == nil {
		return 0, nil
	}
	ids, err := e.opts.Store.ListPortfolios(ctx)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if _, err := e.lookup(ctx, id, nil); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

func (e *Engine) Status(ctx context.Context, id string) (risk.Status, error) {
	p, err := e.portfolio(ctx, id)
	if err != nil {
		return risk.Status{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Status(), nil
}

func (e *Engine) Limits(ctx context.Context, id string) (risk.Limits, error) {
	p, err := e.portfolio(ctx, id)
	if err != nil {
		return risk.Limits{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.limits, nil
}

// Holdings returns a copy of symbol → notional for open positions.
func (e *Engine) Holdings(ctx context.Context, id string) (map[string]float64, error) {
	p, err := e.portfolio(ctx, id)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.holdings.Notionals(), nil
}
