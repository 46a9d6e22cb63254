package journal

import (
	"context"
	"database/sql"
	"strings"
)

// where builds the shared portfolio/time filter for list queries.
func (q Query) where(portfolioID string) (string, []any) {
	clauses := []string{"portfolio_id = ?"}
	args := []any{portfolioID}
	if !q.Since.IsZero() {
		clauses = append(clauses, "time >= ?")
		args = append(args, q.Since.UTC())
	}
	if !q.Until.IsZero() {
		clauses = append(clauses, "time < ?")
		args = append(args, q.Until.UTC())
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (q Query) limit(args []any) (string, []any) {
	if q.Limit <= 0 {
		return "", args
	}
	return " LIMIT ?", append(args, q.Limit)
}

// ListTradeChecks returns audit entries newest first.
func (j *SQLite) ListTradeChecks(ctx context.Context, portfolioID string, q Query) ([]TradeCheckEntry, error) {
	where, args := q.where(portfolioID)
	lim, args := q.limit(args)

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, portfolio_id, time, symbol, side, size, entry_price, stop_loss_price, take_profit_price,
		       approved, reason, rule, equity_at_check, drawdown_at_check, open_positions_at_check
		FROM trade_checks`+where+`
		ORDER BY time DESC, id DESC`+lim, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []TradeCheckEntry{}
	for rows.Next() {
		var (
			e        TradeCheckEntry
			stop, tp sql.NullFloat64
		)
		if err := rows.Scan(
			&e.ID, &e.PortfolioID, &e.Time, &e.Symbol, &e.Side, &e.Size, &e.EntryPrice, &stop, &tp,
			&e.Approved, &e.Reason, &e.Rule, &e.EquityAtCheck, &e.DrawdownAtCheck, &e.OpenPositionsAtCheck,
		); err != nil {
			return nil, err
		}
		e.StopLossPrice = fromNullable(stop)
		e.TakeProfitPrice = fromNullable(tp)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListMetricHistory returns snapshots in chronological order. With a limit
// the most recent Limit snapshots are returned, still oldest first.
func (j *SQLite) ListMetricHistory(ctx context.Context, portfolioID string, q Query) ([]MetricEntry, error) {
	where, args := q.where(portfolioID)
	lim, args := q.limit(args)

	rows, err := j.db.QueryContext(ctx, `
		SELECT * FROM (
			SELECT id, portfolio_id, time, equity, drawdown, daily_pnl, open_positions,
			       var_95, var_99, cvar_95, cvar_99, method, window_days,
			       max_correlation, max_concentration, healthy
			FROM metric_history`+where+`
			ORDER BY time DESC, id DESC`+lim+`
		) ORDER BY time ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []MetricEntry{}
	for rows.Next() {
		var m MetricEntry
		if err := rows.Scan(
			&m.ID, &m.PortfolioID, &m.Time, &m.Equity, &m.Drawdown, &m.DailyPnL, &m.OpenPositions,
			&m.VaR95, &m.VaR99, &m.CVaR95, &m.CVaR99, &m.Method, &m.WindowDays,
			&m.MaxCorrelation, &m.MaxConcentration, &m.Healthy,
		); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEvents returns state-change events newest first.
func (j *SQLite) ListEvents(ctx context.Context, portfolioID string, q Query) ([]Event, error) {
	where, args := q.where(portfolioID)
	lim, args := q.limit(args)

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, portfolio_id, time, kind, from_state, to_state, message, equity
		FROM risk_events`+where+`
		ORDER BY time DESC, id DESC`+lim, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.PortfolioID, &ev.Time, &ev.Kind, &ev.From, &ev.To, &ev.Message, &ev.Equity); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func fromNullable(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
