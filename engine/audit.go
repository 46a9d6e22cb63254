package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/rustyeddy/riskguard/journal"
	"github.com/rustyeddy/riskguard/pkg/id"
	"github.com/rustyeddy/riskguard/risk"
)

// Audit and persistence failures never fail the operation that caused them.
// They are logged and counted; an outbox journal retries them.

func (e *Engine) auditFailed(kind, portfolio string, err error) {
	e.metrics.AuditFailure(kind)
	if errors.Is(err, journal.ErrDeferred) {
		e.log.Warn("audit write deferred", zap.String("kind", kind), zap.String("portfolio", portfolio), zap.Error(err))
		return
	}
	e.log.Error("audit write failed", zap.String("kind", kind), zap.String("portfolio", portfolio), zap.Error(err))
}

// persist saves p; callers hold p.mu or own p exclusively.
func (e *Engine) persist(ctx context.Context, p *portfolio) {
	e.publish(p)
	if e.opts.Store == nil {
		return
	}
	err := e.opts.Store.SavePortfolio(ctx, journal.Portfolio{
		ID:       p.id,
		State:    p.state,
		Limits:   p.limits,
		Holdings: p.holdings.Clone(),
	})
	if err != nil {
		e.auditFailed("state", p.id, err)
	}
}

func (e *Engine) publish(p *portfolio) {
	s := p.state
	e.metrics.Portfolio(p.id, s.Equity, s.Drawdown(), s.OpenPositions, s.Halted)
}

// emit records tr as a risk event; callers hold p.mu.
func (e *Engine) emit(ctx context.Context, p *portfolio, tr risk.Transition) {
	if tr.Kind == risk.TransitionAutoHalt || (tr.Kind == risk.TransitionHalt && tr.Changed) {
		e.metrics.Halt(p.id, p.state.HaltReason)
	}
	if e.opts.Journal == nil {
		return
	}
	now := e.now()
	err := e.opts.Journal.RecordEvent(ctx, journal.Event{
		ID:          id.NewAt(now),
		PortfolioID: p.id,
		Time:        now,
		Kind:        string(tr.Kind),
		From:        tr.From,
		To:          tr.To,
		Message:     tr.Message,
		Equity:      p.state.Equity,
	})
	if err != nil {
		e.auditFailed("event", p.id, err)
	}
}
