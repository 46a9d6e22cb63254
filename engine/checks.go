package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/rustyeddy/riskguard/journal"
	"github.com/rustyeddy/riskguard/pkg/id"
	"github.com/rustyeddy/riskguard/risk"
)

// CheckTrade evaluates req against the portfolio and writes exactly one
// audit entry. Invalid requests return an error and are not audited.
// Approval does not open a position.
func (e *Engine) CheckTrade(ctx context.Context, pid string, req risk.TradeRequest) (risk.Decision, error) {
	if err := req.Validate(); err != nil {
		return risk.Decision{}, err
	}
	p, err := e.portfolio(ctx, pid)
	if err != nil {
		return risk.Decision{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	d := risk.Evaluate(p.state, p.limits, req, risk.Exposure{Gross: p.holdings.Gross()})
	e.metrics.TradeCheck(pid, d.Approved, string(d.Rule))

	if !d.Approved {
		e.log.Info("trade rejected",
			zap.String("portfolio", pid),
			zap.String("symbol", req.Symbol),
			zap.String("rule", string(d.Rule)),
			zap.String("reason", d.Reason),
		)
	}

	if e.opts.Journal != nil {
		now := e.now()
		entry := journal.TradeCheckEntry{
			ID:                   id.NewAt(now),
			PortfolioID:          pid,
			Time:                 now,
			Symbol:               req.Symbol,
			Side:                 string(req.Side),
			Size:                 req.Size,
			EntryPrice:           req.EntryPrice,
			StopLossPrice:        req.StopLossPrice,
			TakeProfitPrice:      req.TakeProfitPrice,
			Approved:             d.Approved,
			Reason:               d.Reason,
			Rule:                 string(d.Rule),
			EquityAtCheck:        p.state.Equity,
			DrawdownAtCheck:      p.state.Drawdown(),
			OpenPositionsAtCheck: p.state.OpenPositions,
		}
		if err := e.opts.Journal.RecordTradeCheck(ctx, entry); err != nil {
			e.auditFailed("trade_check", pid, err)
		}
	}
	return d, nil
}

// PositionSize sizes a trade off the portfolio's current equity. riskPerTrade
// defaults to the portfolio's MaxSingleTradeRisk.
func (e *Engine) PositionSize(ctx context.Context, pid string, entry, stop float64, riskPerTrade *float64) (risk.Sizing, error) {
	p, err := e.portfolio(ctx, pid)
	if err != nil {
		return risk.Sizing{}, err
	}

	p.mu.Lock()
	in := risk.SizingInput{
		Equity:        p.state.Equity,
		EntryPrice:    entry,
		StopLossPrice: stop,
		RiskPerTrade:  p.limits.MaxSingleTradeRisk,
	}
	p.mu.Unlock()

	if riskPerTrade != nil {
		in.RiskPerTrade = *riskPerTrade
	}
	return risk.SizePosition(in)
}
