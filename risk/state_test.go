package risk

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestState(t *testing.T, seed float64) State {
	t.Helper()
	s, err := NewState(seed, "2024-03-01")
	require.NoError(t, err)
	return s
}

func TestDrawdownFromPeak(t *testing.T) {
	t.Parallel()

	s := newTestState(t, 10000)
	_, err := s.UpdateEquity(10500, DefaultLimits(), t0)
	require.NoError(t, err)
	_, err = s.UpdateEquity(10000, DefaultLimits(), t0)
	require.NoError(t, err)

	assert.InDelta(t, 10500.0, s.PeakEquity, 1e-9)
	assert.InDelta(t, 0.0476, s.Drawdown(), 1e-4)
	assert.InDelta(t, 500.0/10500.0, s.Drawdown(), 1e-12)
}

func TestPeakNeverBelowEquity(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(7))
	s := newTestState(t, 1000)
	limits := DefaultLimits()
	limits.MaxPortfolioDrawdown = 1
	limits.MaxDailyLoss = 1

	for i := 0; i < 500; i++ {
		v := r.Float64() * 5000
		_, err := s.UpdateEquity(v, limits, t0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, s.PeakEquity, s.Equity)
	}
}

func TestUpdateEquityRejectsBadValues(t *testing.T) {
	t.Parallel()

	for _, v := range []float64{-1, math.NaN(), math.Inf(1)} {
		s := newTestState(t, 1000)
		before := s
		_, err := s.UpdateEquity(v, DefaultLimits(), t0)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Equal(t, before, s)
	}
}

func TestDrawdownHaltSurvivesDailyReset(t *testing.T) {
	t.Parallel()

	limits := DefaultLimits()
	limits.MaxPortfolioDrawdown = 0.10
	limits.MaxDailyLoss = 0.50

	s := newTestState(t, 10000)
	tr, err := s.UpdateEquity(8900, limits, t0)
	require.NoError(t, err)

	assert.Equal(t, TransitionAutoHalt, tr.Kind)
	assert.True(t, s.Halted)
	assert.Equal(t, ReasonDrawdownExceeded, s.HaltReason)

	rs := s.ResetDailyBaseline("2024-03-02", t0.Add(24*time.Hour))
	assert.True(t, rs.Changed)
	cl := s.ClearHaltIfDailyCaused(t0.Add(24 * time.Hour))
	assert.False(t, cl.Changed)

	assert.True(t, s.Halted)
	assert.Equal(t, ReasonDrawdownExceeded, s.HaltReason)
}

func TestDailyLossHaltClearedByReset(t *testing.T) {
	t.Parallel()

	limits := DefaultLimits()
	limits.MaxPortfolioDrawdown = 0.50
	limits.MaxDailyLoss = 0.05

	s := newTestState(t, 10000)
	_, err := s.UpdateEquity(9400, limits, t0)
	require.NoError(t, err)
	require.True(t, s.Halted)
	assert.Equal(t, ReasonDailyLossExceeded, s.HaltReason)

	s.ResetDailyBaseline("2024-03-02", t0)
	tr := s.ClearHaltIfDailyCaused(t0)
	assert.True(t, tr.Changed)
	assert.False(t, s.Halted)
	assert.Empty(t, s.HaltReason)
	assert.InDelta(t, 9400.0, s.DailyStartEquity, 1e-9)
}

func TestDailyLossHaltEscalatesToDrawdown(t *testing.T) {
	t.Parallel()

	limits := DefaultLimits()
	limits.MaxPortfolioDrawdown = 0.10
	limits.MaxDailyLoss = 0.05

	s := newTestState(t, 10000)
	_, err := s.UpdateEquity(9450, limits, t0)
	require.NoError(t, err)
	require.Equal(t, ReasonDailyLossExceeded, s.HaltReason)

	_, err = s.UpdateEquity(8800, limits, t0)
	require.NoError(t, err)
	assert.Equal(t, ReasonDrawdownExceeded, s.HaltReason)
}

func TestManualHaltNotOverwritten(t *testing.T) {
	t.Parallel()

	limits := DefaultLimits()
	limits.MaxPortfolioDrawdown = 0.10

	s := newTestState(t, 10000)
	s.Halt("maintenance", t0)
	_, err := s.UpdateEquity(5000, limits, t0)
	require.NoError(t, err)
	assert.Equal(t, "maintenance", s.HaltReason)
}

func TestResetDailyIdempotentWithinDay(t *testing.T) {
	t.Parallel()

	s := newTestState(t, 10000)
	_, err := s.UpdateEquity(10200, DefaultLimits(), t0)
	require.NoError(t, err)

	first := s.ResetDailyBaseline("2024-03-02", t0)
	assert.True(t, first.Changed)
	assert.InDelta(t, 10200.0, s.DailyStartEquity, 1e-9)

	_, err = s.UpdateEquity(10300, DefaultLimits(), t0)
	require.NoError(t, err)

	second := s.ResetDailyBaseline("2024-03-02", t0)
	assert.False(t, second.Changed)
	assert.InDelta(t, 10200.0, s.DailyStartEquity, 1e-9)
	assert.InDelta(t, 100.0, s.DailyPnL(), 1e-9)
}

func TestResumeWhenActiveIsNoop(t *testing.T) {
	t.Parallel()

	s := newTestState(t, 1000)
	tr := s.Resume(t0)
	assert.False(t, tr.Changed)
	assert.Equal(t, "not halted", tr.Message)

	s.Halt("", t0)
	assert.Equal(t, "manual", s.HaltReason)
	tr = s.Resume(t0)
	assert.True(t, tr.Changed)
	assert.False(t, s.Halted)
	assert.Empty(t, s.HaltReason)
}

func TestClosePositionAtZero(t *testing.T) {
	t.Parallel()

	s := newTestState(t, 1000)
	assert.False(t, s.ClosePosition(t0).Changed)
	assert.Equal(t, 0, s.OpenPositions)

	s.OpenPosition(t0)
	s.OpenPosition(t0)
	assert.True(t, s.ClosePosition(t0).Changed)
	assert.Equal(t, 1, s.OpenPositions)
}

func TestStatusDerivedFields(t *testing.T) {
	t.Parallel()

	s := newTestState(t, 10000)
	_, err := s.UpdateEquity(10250, DefaultLimits(), t0)
	require.NoError(t, err)

	st := s.Status()
	assert.InDelta(t, 250.0, st.DailyPnL, 1e-9)
	assert.InDelta(t, 250.0, st.TotalPnL, 1e-9)
	assert.Zero(t, st.Drawdown)
	assert.False(t, st.Halted)
}
