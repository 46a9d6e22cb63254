// journal/journal.go
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/riskguard/risk"
)

// ErrNotFound is returned by loads of portfolios that were never saved.
var ErrNotFound = errors.New("journal: not found")

// TradeCheckEntry is one immutable audit record of a pre-trade check.
type TradeCheckEntry struct {
	ID                   string    `json:"id"`
	PortfolioID          string    `json:"portfolio_id"`
	Time                 time.Time `json:"time"`
	Symbol               string    `json:"symbol"`
	Side                 string    `json:"side"`
	Size                 float64   `json:"size"`
	EntryPrice           float64   `json:"entry_price"`
	StopLossPrice        *float64  `json:"stop_loss_price,omitempty"`
	TakeProfitPrice      *float64  `json:"take_profit_price,omitempty"`
	Approved             bool      `json:"approved"`
	Reason               string    `json:"reason"`
	Rule                 string    `json:"rule,omitempty"`
	EquityAtCheck        float64   `json:"equity_at_check"`
	DrawdownAtCheck      float64   `json:"drawdown_at_check"`
	OpenPositionsAtCheck int       `json:"open_positions_at_check"`
}

// MetricEntry is a point-in-time risk snapshot.
type MetricEntry struct {
	ID               string    `json:"id"`
	PortfolioID      string    `json:"portfolio_id"`
	Time             time.Time `json:"time"`
	Equity           float64   `json:"equity"`
	Drawdown         float64   `json:"drawdown"`
	DailyPnL         float64   `json:"daily_pnl"`
	OpenPositions    int       `json:"open_positions"`
	VaR95            float64   `json:"var_95"`
	VaR99            float64   `json:"var_99"`
	CVaR95           float64   `json:"cvar_95"`
	CVaR99           float64   `json:"cvar_99"`
	Method           string    `json:"method"`
	WindowDays       int       `json:"window_days"`
	MaxCorrelation   float64   `json:"max_correlation"`
	MaxConcentration float64   `json:"max_concentration"`
	Healthy          bool      `json:"healthy"`
}

// Event records a state change such as a halt, resume or limits update.
type Event struct {
	ID          string    `json:"id"`
	PortfolioID string    `json:"portfolio_id"`
	Time        time.Time `json:"time"`
	Kind        string    `json:"kind"`
	From        string    `json:"from,omitempty"`
	To          string    `json:"to,omitempty"`
	Message     string    `json:"message"`
	Equity      float64   `json:"equity"`
}

// Portfolio is the persisted form of one tracked portfolio.
type Portfolio struct {
	ID       string
	State    risk.State
	Limits   risk.Limits
	Holdings risk.Holdings
}

// Query narrows list operations. Zero values mean unbounded.
type Query struct {
	Since time.Time
	Until time.Time
	Limit int
}

type Journal interface {
	RecordTradeCheck(ctx context.Context, e TradeCheckEntry) error
	RecordMetric(ctx context.Context, m MetricEntry) error
	RecordEvent(ctx context.Context, ev Event) error
	Close() error
}

type Reader interface {
	ListTradeChecks(ctx context.Context, portfolioID string, q Query) ([]TradeCheckEntry, error)
	ListMetricHistory(ctx context.Context, portfolioID string, q Query) ([]MetricEntry, error)
	ListEvents(ctx context.Context, portfolioID string, q Query) ([]Event, error)
}

type StateStore interface {
	SavePortfolio(ctx context.Context, p Portfolio) error
	LoadPortfolio(ctx context.Context, id string) (Portfolio, error)
	ListPortfolios(ctx context.Context) ([]string, error)
}
