package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/riskguard/risk"
)

// SQLite is the primary store: portfolio state and limits are upserted, the
// audit, metric and event tables are append-only.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTradeCheck(ctx context.Context, e TradeCheckEntry) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO trade_checks
		(id, portfolio_id, time, symbol, side, size, entry_price, stop_loss_price, take_profit_price,
		 approved, reason, rule, equity_at_check, drawdown_at_check, open_positions_at_check)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PortfolioID, e.Time.UTC(), e.Symbol, e.Side, e.Size, e.EntryPrice,
		nullable(e.StopLossPrice), nullable(e.TakeProfitPrice),
		e.Approved, e.Reason, e.Rule, e.EquityAtCheck, e.DrawdownAtCheck, e.OpenPositionsAtCheck,
	)
	return err
}

func (j *SQLite) RecordMetric(ctx context.Context, m MetricEntry) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO metric_history
		(id, portfolio_id, time, equity, drawdown, daily_pnl, open_positions,
		 var_95, var_99, cvar_95, cvar_99, method, window_days, max_correlation, max_concentration, healthy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.PortfolioID, m.Time.UTC(), m.Equity, m.Drawdown, m.DailyPnL, m.OpenPositions,
		m.VaR95, m.VaR99, m.CVaR95, m.CVaR99, m.Method, m.WindowDays,
		m.MaxCorrelation, m.MaxConcentration, m.Healthy,
	)
	return err
}

func (j *SQLite) RecordEvent(ctx context.Context, ev Event) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO risk_events
		(id, portfolio_id, time, kind, from_state, to_state, message, equity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.PortfolioID, ev.Time.UTC(), ev.Kind, ev.From, ev.To, ev.Message, ev.Equity,
	)
	return err
}

// SavePortfolio upserts state and limits in one transaction.
func (j *SQLite) SavePortfolio(ctx context.Context, p Portfolio) error {
	holdings := p.Holdings
	if holdings == nil {
		holdings = risk.Holdings{}
	}
	hj, err := json.Marshal(holdings)
	if err != nil {
		return fmt.Errorf("journal: encode holdings: %w", err)
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	s := p.State
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO portfolio_state
		(portfolio_id, equity, peak_equity, initial_equity, daily_start_equity, open_positions,
		 halted, halt_reason, daily_reset_day, holdings, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(portfolio_id) DO UPDATE SET
			equity = excluded.equity,
			peak_equity = excluded.peak_equity,
			initial_equity = excluded.initial_equity,
			daily_start_equity = excluded.daily_start_equity,
			open_positions = excluded.open_positions,
			halted = excluded.halted,
			halt_reason = excluded.halt_reason,
			daily_reset_day = excluded.daily_reset_day,
			holdings = excluded.holdings,
			updated_at = excluded.updated_at`,
		p.ID, s.Equity, s.PeakEquity, s.InitialEquity, s.DailyStartEquity, s.OpenPositions,
		s.Halted, s.HaltReason, s.DailyResetDay, string(hj), s.UpdatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("journal: save state %s: %w", p.ID, err)
	}

	l := p.Limits
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO portfolio_limits
		(portfolio_id, max_portfolio_drawdown, max_single_trade_risk, max_daily_loss, max_open_positions,
		 max_position_size_pct, max_correlation, max_leverage, min_risk_reward)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(portfolio_id) DO UPDATE SET
			max_portfolio_drawdown = excluded.max_portfolio_drawdown,
			max_single_trade_risk = excluded.max_single_trade_risk,
			max_daily_loss = excluded.max_daily_loss,
			max_open_positions = excluded.max_open_positions,
			max_position_size_pct = excluded.max_position_size_pct,
			max_correlation = excluded.max_correlation,
			max_leverage = excluded.max_leverage,
			min_risk_reward = excluded.min_risk_reward`,
		p.ID, l.MaxPortfolioDrawdown, l.MaxSingleTradeRisk, l.MaxDailyLoss, l.MaxOpenPositions,
		l.MaxPositionSizePct, l.MaxCorrelation, l.MaxLeverage, l.MinRiskReward,
	); err != nil {
		return fmt.Errorf("journal: save limits %s: %w", p.ID, err)
	}

	return tx.Commit()
}

func (j *SQLite) LoadPortfolio(ctx context.Context, id string) (Portfolio, error) {
	p := Portfolio{ID: id}
	var hj string

	row := j.db.QueryRowContext(ctx, `
		SELECT s.equity, s.peak_equity, s.initial_equity, s.daily_start_equity, s.open_positions,
		       s.halted, s.halt_reason, s.daily_reset_day, s.holdings, s.updated_at,
		       l.max_portfolio_drawdown, l.max_single_trade_risk, l.max_daily_loss, l.max_open_positions,
		       l.max_position_size_pct, l.max_correlation, l.max_leverage, l.min_risk_reward
		FROM portfolio_state s
		JOIN portfolio_limits l ON l.portfolio_id = s.portfolio_id
		WHERE s.portfolio_id = ?`, id)

	s, l := &p.State, &p.Limits
	err := row.Scan(
		&s.Equity, &s.PeakEquity, &s.InitialEquity, &s.DailyStartEquity, &s.OpenPositions,
		&s.Halted, &s.HaltReason, &s.DailyResetDay, &hj, &s.UpdatedAt,
		&l.MaxPortfolioDrawdown, &l.MaxSingleTradeRisk, &l.MaxDailyLoss, &l.MaxOpenPositions,
		&l.MaxPositionSizePct, &l.MaxCorrelation, &l.MaxLeverage, &l.MinRiskReward,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Portfolio{}, fmt.Errorf("portfolio %q: %w", id, ErrNotFound)
		}
		return Portfolio{}, err
	}

	p.Holdings = risk.Holdings{}
	if err := json.Unmarshal([]byte(hj), &p.Holdings); err != nil {
		return Portfolio{}, fmt.Errorf("journal: decode holdings %s: %w", id, err)
	}
	return p, nil
}

func (j *SQLite) ListPortfolios(ctx context.Context) ([]string, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT portfolio_id FROM portfolio_state ORDER BY portfolio_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

func nullable(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}
