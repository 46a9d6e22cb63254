// journal/schema.go
package journal

const Schema = `
CREATE TABLE IF NOT EXISTS portfolio_state (
	portfolio_id TEXT PRIMARY KEY,
	equity REAL NOT NULL,
	peak_equity REAL NOT NULL,
	initial_equity REAL NOT NULL,
	daily_start_equity REAL NOT NULL,
	open_positions INTEGER NOT NULL,
	halted INTEGER NOT NULL,
	halt_reason TEXT NOT NULL,
	daily_reset_day TEXT NOT NULL,
	holdings TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS portfolio_limits (
	portfolio_id TEXT PRIMARY KEY,
	max_portfolio_drawdown REAL NOT NULL,
	max_single_trade_risk REAL NOT NULL,
	max_daily_loss REAL NOT NULL,
	max_open_positions INTEGER NOT NULL,
	max_position_size_pct REAL NOT NULL,
	max_correlation REAL NOT NULL,
	max_leverage REAL NOT NULL,
	min_risk_reward REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS trade_checks (
	id TEXT PRIMARY KEY,
	portfolio_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	size REAL NOT NULL,
	entry_price REAL NOT NULL,
	stop_loss_price REAL,
	take_profit_price REAL,
	approved INTEGER NOT NULL,
	reason TEXT NOT NULL,
	rule TEXT NOT NULL,
	equity_at_check REAL NOT NULL,
	drawdown_at_check REAL NOT NULL,
	open_positions_at_check INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS metric_history (
	id TEXT PRIMARY KEY,
	portfolio_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	equity REAL NOT NULL,
	drawdown REAL NOT NULL,
	daily_pnl REAL NOT NULL,
	open_positions INTEGER NOT NULL,
	var_95 REAL NOT NULL,
	var_99 REAL NOT NULL,
	cvar_95 REAL NOT NULL,
	cvar_99 REAL NOT NULL,
	method TEXT NOT NULL,
	window_days INTEGER NOT NULL,
	max_correlation REAL NOT NULL,
	max_concentration REAL NOT NULL,
	healthy INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS risk_events (
	id TEXT PRIMARY KEY,
	portfolio_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	kind TEXT NOT NULL,
	from_state TEXT NOT NULL,
	to_state TEXT NOT NULL,
	message TEXT NOT NULL,
	equity REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trade_checks_portfolio_time ON trade_checks(portfolio_id, time);
CREATE INDEX IF NOT EXISTS idx_metric_history_portfolio_time ON metric_history(portfolio_id, time);
CREATE INDEX IF NOT EXISTS idx_risk_events_portfolio_time ON risk_events(portfolio_id, time);
`
