package risk

import (
	"fmt"
	"time"
)

// Halt reasons set by the engine itself. Manual halts carry free-form text.
const (
	ReasonDrawdownExceeded  = "drawdown_exceeded"
	ReasonDailyLossExceeded = "daily_loss_exceeded"
)

type TransitionKind string

const (
	TransitionEquity        TransitionKind = "equity_update"
	TransitionAutoHalt      TransitionKind = "auto_halt"
	TransitionHalt          TransitionKind = "halt"
	TransitionResume        TransitionKind = "resume"
	TransitionResetDaily    TransitionKind = "reset_daily"
	TransitionPositionOpen  TransitionKind = "position_open"
	TransitionPositionClose TransitionKind = "position_close"
	TransitionLimits        TransitionKind = "limits_update"
)

// Transition is the outcome of a state mutation. Changed is false for
// idempotent no-ops, in which case Message says why.
type Transition struct {
	Kind    TransitionKind `json:"kind"`
	Changed bool           `json:"changed"`
	From    string         `json:"from,omitempty"`
	To      string         `json:"to,omitempty"`
	Message string         `json:"message"`
}

// State is the authoritative equity ledger of one portfolio.
// It is not safe for concurrent use; the engine serializes access.
type State struct {
	Equity           float64
	PeakEquity       float64
	InitialEquity    float64
	DailyStartEquity float64
	OpenPositions    int
	Halted           bool
	HaltReason       string
	DailyResetDay    string // YYYY-MM-DD of the last baseline reset
	UpdatedAt        time.Time
}

// NewState seeds a ledger with equity, peak, daily baseline and initial equity all at seed.
func NewState(seed float64, day string) (State, error) {
	if err := ValidateEquity(seed); err != nil {
		return State{}, err
	}
	return State{
		Equity:           seed,
		PeakEquity:       seed,
		InitialEquity:    seed,
		DailyStartEquity: seed,
		DailyResetDay:    day,
	}, nil
}

// ValidateEquity rejects NaN, infinities and negative values.
func ValidateEquity(v float64) error {
	if !finite(v) {
		return invalid("equity", "must be finite")
	}
	if v < 0 {
		return invalid("equity", fmt.Sprintf("must be non-negative, got %v", v))
	}
	return nil
}

func (s State) DailyPnL() float64 { return s.Equity - s.DailyStartEquity }
func (s State) TotalPnL() float64 { return s.Equity - s.InitialEquity }

// Drawdown is the fractional decline from peak.
func (s State) Drawdown() float64 {
	return Drawdown(s.Equity, s.PeakEquity)
}

// DailyLossPct is the day's loss as a positive fraction of the baseline,
// zero when the day is flat or up.
func (s State) DailyLossPct() float64 {
	pnl := s.DailyPnL()
	if pnl >= 0 || s.DailyStartEquity <= 0 {
		return 0
	}
	return -pnl / s.DailyStartEquity
}

func (s State) mode() string {
	if s.Halted {
		return "halted:" + s.HaltReason
	}
	return "active"
}

// UpdateEquity marks the portfolio to v, raises the peak and re-evaluates the
// automatic halt conditions against limits.
func (s *State) UpdateEquity(v float64, limits Limits, now time.Time) (Transition, error) {
	if err := ValidateEquity(v); err != nil {
		return Transition{Kind: TransitionEquity}, err
	}

	prev := s.Equity
	s.Equity = v
	if v > s.PeakEquity {
		s.PeakEquity = v
	}
	s.UpdatedAt = now

	tr := Transition{
		Kind:    TransitionEquity,
		Changed: prev != v,
		From:    fmt.Sprintf("%v", prev),
		To:      fmt.Sprintf("%v", v),
		Message: "equity updated",
	}

	reason := s.breach(limits)
	if reason == "" {
		return tr, nil
	}

	switch {
	case !s.Halted:
	case s.HaltReason == ReasonDailyLossExceeded && reason == ReasonDrawdownExceeded:
		// escalate so a daily reset cannot clear a standing drawdown breach
	default:
		return tr, nil
	}

	from := s.mode()
	s.Halted = true
	s.HaltReason = reason
	return Transition{
		Kind:    TransitionAutoHalt,
		Changed: true,
		From:    from,
		To:      s.mode(),
		Message: fmt.Sprintf("trading halted: %s (drawdown %.4f, daily loss %.4f)", reason, s.Drawdown(), s.DailyLossPct()),
	}, nil
}

func (s State) breach(limits Limits) string {
	if s.Drawdown() > limits.MaxPortfolioDrawdown {
		return ReasonDrawdownExceeded
	}
	if s.DailyLossPct() > limits.MaxDailyLoss {
		return ReasonDailyLossExceeded
	}
	return ""
}

// ResetDailyBaseline moves the daily baseline to current equity once per day.
func (s *State) ResetDailyBaseline(day string, now time.Time) Transition {
	if s.DailyResetDay == day {
		return Transition{
			Kind:    TransitionResetDaily,
			Message: fmt.Sprintf("daily baseline already reset for %s", day),
		}
	}
	prev := s.DailyStartEquity
	s.DailyStartEquity = s.Equity
	s.DailyResetDay = day
	s.UpdatedAt = now
	return Transition{
		Kind:    TransitionResetDaily,
		Changed: true,
		From:    fmt.Sprintf("%v", prev),
		To:      fmt.Sprintf("%v", s.Equity),
		Message: fmt.Sprintf("daily baseline reset for %s", day),
	}
}

// ClearHaltIfDailyCaused resumes trading only when the halt came from the
// daily loss limit. Drawdown and manual halts need an explicit Resume.
func (s *State) ClearHaltIfDailyCaused(now time.Time) Transition {
	if !s.Halted || s.HaltReason != ReasonDailyLossExceeded {
		return Transition{
			Kind:    TransitionResume,
			From:    s.mode(),
			To:      s.mode(),
			Message: "no daily-loss halt to clear",
		}
	}
	return s.resume(now, "daily-loss halt cleared by daily reset")
}

// Halt stops trading with reason. Halting an already halted portfolio
// replaces the reason.
func (s *State) Halt(reason string, now time.Time) Transition {
	if reason == "" {
		reason = "manual"
	}
	from := s.mode()
	s.Halted = true
	s.HaltReason = reason
	s.UpdatedAt = now
	return Transition{
		Kind:    TransitionHalt,
		Changed: from != s.mode(),
		From:    from,
		To:      s.mode(),
		Message: "trading halted: " + reason,
	}
}

// Resume clears any halt. Resuming an active portfolio is a no-op.
func (s *State) Resume(now time.Time) Transition {
	if !s.Halted {
		return Transition{
			Kind:    TransitionResume,
			From:    s.mode(),
			To:      s.mode(),
			Message: "not halted",
		}
	}
	return s.resume(now, "trading resumed")
}

func (s *State) resume(now time.Time, msg string) Transition {
	from := s.mode()
	s.Halted = false
	s.HaltReason = ""
	s.UpdatedAt = now
	return Transition{
		Kind:    TransitionResume,
		Changed: true,
		From:    from,
		To:      s.mode(),
		Message: msg,
	}
}

func (s *State) OpenPosition(now time.Time) Transition {
	s.OpenPositions++
	s.UpdatedAt = now
	return Transition{
		Kind:    TransitionPositionOpen,
		Changed: true,
		From:    fmt.Sprintf("%d", s.OpenPositions-1),
		To:      fmt.Sprintf("%d", s.OpenPositions),
		Message: "position opened",
	}
}

func (s *State) ClosePosition(now time.Time) Transition {
	if s.OpenPositions == 0 {
		return Transition{
			Kind:    TransitionPositionClose,
			From:    "0",
			To:      "0",
			Message: "no open positions to close",
		}
	}
	s.OpenPositions--
	s.UpdatedAt = now
	return Transition{
		Kind:    TransitionPositionClose,
		Changed: true,
		From:    fmt.Sprintf("%d", s.OpenPositions+1),
		To:      fmt.Sprintf("%d", s.OpenPositions),
		Message: "position closed",
	}
}

// Status is a read-only copy of State plus derived figures.
type Status struct {
	Equity           float64   `json:"equity"`
	PeakEquity       float64   `json:"peak_equity"`
	InitialEquity    float64   `json:"initial_equity"`
	DailyStartEquity float64   `json:"daily_start_equity"`
	DailyPnL         float64   `json:"daily_pnl"`
	TotalPnL         float64   `json:"total_pnl"`
	Drawdown         float64   `json:"drawdown"`
	OpenPositions    int       `json:"open_positions"`
	Halted           bool      `json:"is_halted"`
	HaltReason       string    `json:"halt_reason"`
	DailyResetDay    string    `json:"daily_reset_day"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (s State) Status() Status {
	return Status{
		Equity:           s.Equity,
		PeakEquity:       s.PeakEquity,
		InitialEquity:    s.InitialEquity,
		DailyStartEquity: s.DailyStartEquity,
		DailyPnL:         s.DailyPnL(),
		TotalPnL:         s.TotalPnL(),
		Drawdown:         s.Drawdown(),
		OpenPositions:    s.OpenPositions,
		Halted:           s.Halted,
		HaltReason:       s.HaltReason,
		DailyResetDay:    s.DailyResetDay,
		UpdatedAt:        s.UpdatedAt,
	}
}
