package engine

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/rustyeddy/riskguard/risk"
)

// UpdateEquity marks the portfolio to equity and applies the automatic halt
// rules. Invalid values leave the state untouched.
func (e *Engine) UpdateEquity(ctx context.Context, id string, equity float64) (risk.Status, error) {
	if err := risk.ValidateEquity(equity); err != nil {
		return risk.Status{}, err
	}
	p, err := e.portfolio(ctx, id)
	if err != nil {
		return risk.Status{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tr, err := p.state.UpdateEquity(equity, p.limits, e.now())
	if err != nil {
		return risk.Status{}, err
	}
	if tr.Kind == risk.TransitionAutoHalt {
		e.log.Warn("trading halted",
			zap.String("portfolio", id),
			zap.String("reason", p.state.HaltReason),
			zap.Float64("equity", equity),
			zap.Float64("drawdown", p.state.Drawdown()),
			zap.Float64("daily_loss", p.state.DailyLossPct()),
		)
		e.emit(ctx, p, tr)
	}
	e.persist(ctx, p)
	return p.state.Status(), nil
}

// ResetResult reports both halves of a daily reset.
type ResetResult struct {
	Baseline risk.Transition `json:"baseline"`
	Halt     risk.Transition `json:"halt"`
	Status   risk.Status     `json:"status"`
}

// ResetDaily moves the daily baseline and, only when the baseline actually
// moved, clears a daily-loss halt. A second call on the same trading day is
// a no-op.
func (e *Engine) ResetDaily(ctx context.Context, id string) (ResetResult, error) {
	p, err := e.portfolio(ctx, id)
	if err != nil {
		return ResetResult{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	res := ResetResult{Baseline: e.resetBaseline(ctx, p)}
	if res.Baseline.Changed {
		res.Halt = e.clearDailyHalt(ctx, p)
	} else {
		res.Halt = risk.Transition{Kind: risk.TransitionResume, Message: "baseline unchanged, halt left as is"}
	}
	if res.Baseline.Changed || res.Halt.Changed {
		e.persist(ctx, p)
	}
	res.Status = p.state.Status()
	return res, nil
}

func (e *Engine) ResetDailyBaseline(ctx context.Context, id string) (risk.Transition, error) {
	p, err := e.portfolio(ctx, id)
	if err != nil {
		return risk.Transition{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	tr := e.resetBaseline(ctx, p)
	if tr.Changed {
		e.persist(ctx, p)
	}
	return tr, nil
}

func (e *Engine) ClearHaltIfDailyCaused(ctx context.Context, id string) (risk.Transition, error) {
	p, err := e.portfolio(ctx, id)
	if err != nil {
		return risk.Transition{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	tr := e.clearDailyHalt(ctx, p)
	if tr.Changed {
		e.persist(ctx, p)
	}
	return tr, nil
}

func (e *Engine) resetBaseline(ctx context.Context, p *portfolio) risk.Transition {
	now := e.now()
	tr := p.state.ResetDailyBaseline(e.day(now), now)
	if tr.Changed {
		e.log.Info("daily baseline reset", zap.String("portfolio", p.id), zap.String("day", p.state.DailyResetDay), zap.Float64("baseline", p.state.DailyStartEquity))
		e.emit(ctx, p, tr)
	}
	return tr
}

func (e *Engine) clearDailyHalt(ctx context.Context, p *portfolio) risk.Transition {
	tr := p.state.ClearHaltIfDailyCaused(e.now())
	if tr.Changed {
		e.log.Info("daily-loss halt cleared", zap.String("portfolio", p.id))
		e.emit(ctx, p, tr)
	}
	return tr
}

// Halt stops trading for the portfolio. It is always permitted and always
// recorded.
func (e *Engine) Halt(ctx context.Context, id, reason string) (risk.Transition, error) {
	p, err := e.portfolio(ctx, id)
	if err != nil {
		return risk.Transition{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	tr := p.state.Halt(strings.TrimSpace(reason), e.now())
	e.log.Warn("manual halt", zap.String("portfolio", id), zap.String("reason", p.state.HaltReason))
	e.emit(ctx, p, tr)
	e.persist(ctx, p)
	return tr, nil
}

// Resume clears any halt, including drawdown halts.
func (e *Engine) Resume(ctx context.Context, id string) (risk.Transition, error) {
	p, err := e.portfolio(ctx, id)
	if err != nil {
		return risk.Transition{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	tr := p.state.Resume(e.now())
	e.log.Info("resume requested", zap.String("portfolio", id), zap.Bool("changed", tr.Changed))
	e.emit(ctx, p, tr)
	if tr.Changed {
		e.persist(ctx, p)
	}
	return tr, nil
}

// RecordOpenPosition counts a new position and adds its notional to the
// symbol's holding.
func (e *Engine) RecordOpenPosition(ctx context.Context, id, symbol string, notional float64) (risk.Status, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return risk.Status{}, &risk.ValidationError{Field: "symbol", Msg: "is required"}
	}
	if math.IsNaN(notional) || math.IsInf(notional, 0) {
		return risk.Status{}, &risk.ValidationError{Field: "notional", Msg: "must be finite"}
	}
	p, err := e.portfolio(ctx, id)
	if err != nil {
		return risk.Status{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	tr := p.state.OpenPosition(e.now())
	tr.Message = fmt.Sprintf("position opened: %s", symbol)
	p.holdings.Open(symbol, notional)
	e.emit(ctx, p, tr)
	e.persist(ctx, p)
	return p.state.Status(), nil
}

// RecordClosePosition closes one position in symbol and releases its share
// of the symbol's notional. A symbol with nothing open is a validation error.
func (e *Engine) RecordClosePosition(ctx context.Context, id, symbol string) (risk.Status, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return risk.Status{}, &risk.ValidationError{Field: "symbol", Msg: "is required"}
	}
	p, err := e.portfolio(ctx, id)
	if err != nil {
		return risk.Status{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	closed, err := p.holdings.Close(symbol)
	if err != nil {
		return risk.Status{}, err
	}
	tr := p.state.ClosePosition(e.now())
	tr.Message = fmt.Sprintf("position closed: %s %.2f", symbol, closed.Notional)
	if tr.Changed {
		e.emit(ctx, p, tr)
	}
	e.persist(ctx, p)
	return p.state.Status(), nil
}

// UpdateLimits applies a partial update. Invalid updates change nothing.
func (e *Engine) UpdateLimits(ctx context.Context, id string, upd risk.LimitsUpdate) (risk.Limits, error) {
	p, err := e.portfolio(ctx, id)
	if err != nil {
		return risk.Limits{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if upd.IsEmpty() {
		return p.limits, nil
	}
	next, err := p.limits.Apply(upd)
	if err != nil {
		return p.limits, err
	}
	prev := p.limits
	p.limits = next

	e.log.Info("limits updated", zap.String("portfolio", id), zap.Any("limits", next))
	e.emit(ctx, p, risk.Transition{
		Kind:    risk.TransitionLimits,
		Changed: prev != next,
		From:    fmt.Sprintf("%+v", prev),
		To:      fmt.Sprintf("%+v", next),
		Message: "limits updated",
	})
	e.persist(ctx, p)
	return next, nil
}
