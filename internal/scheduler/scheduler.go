// Package scheduler runs periodic and once-per-trading-day jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/riskguard/internal/logging"
	"github.com/rustyeddy/riskguard/internal/telemetry"
)

type JobFunc func(ctx context.Context) error

// IDFunc is one unit of a job that fans out over ids.
type IDFunc func(ctx context.Context, id string) error

type job struct {
	name    string
	fn      JobFunc
	timeout time.Duration
}

type Options struct {
	Logger   *zap.Logger
	Metrics  *telemetry.Metrics
	Location *time.Location
	Interval time.Duration // periodic jobs; zero disables them
	Timeout  time.Duration // per job run, or per id for fan-out jobs; zero means none
}

type Scheduler struct {
	opts     Options
	log      *zap.Logger
	periodic []job
	daily    []job
}

func New(opts Options) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Scheduler{opts: opts, log: logging.OrNop(opts.Logger).Named("scheduler")}
}

// Every registers a job run on each interval tick.
func (s *Scheduler) Every(name string, fn JobFunc) {
	s.periodic = append(s.periodic, job{name, fn, s.opts.Timeout})
}

// Daily registers a job run at each local midnight.
func (s *Scheduler) Daily(name string, fn JobFunc) {
	s.daily = append(s.daily, job{name, fn, s.opts.Timeout})
}

// EveryEach is Every over each id, with the timeout applied per id so a
// slow id cannot starve the ones after it.
func (s *Scheduler) EveryEach(name string, ids func() []string, fn IDFunc) {
	s.periodic = append(s.periodic, job{name, ForEach(ids, s.opts.Timeout, fn), 0})
}

// DailyEach is Daily over each id, with the timeout applied per id.
func (s *Scheduler) DailyEach(name string, ids func() []string, fn IDFunc) {
	s.daily = append(s.daily, job{name, ForEach(ids, s.opts.Timeout, fn), 0})
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if s.opts.Interval > 0 && len(s.periodic) > 0 {
		t := time.NewTicker(s.opts.Interval)
		defer t.Stop()
		tick = t.C
	}

	midnight := time.NewTimer(time.Until(NextMidnight(time.Now(), s.opts.Location)))
	defer midnight.Stop()

	s.log.Info("scheduler started",
		zap.Duration("interval", s.opts.Interval),
		zap.Int("periodic_jobs", len(s.periodic)),
		zap.Int("daily_jobs", len(s.daily)),
	)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return nil
		case <-tick:
			s.runAll(ctx, s.periodic)
		case now := <-midnight.C:
			s.runAll(ctx, s.daily)
			midnight.Reset(time.Until(NextMidnight(now, s.opts.Location)))
		}
	}
}

// RunDaily runs the daily jobs immediately, e.g. on startup.
func (s *Scheduler) RunDaily(ctx context.Context) { s.runAll(ctx, s.daily) }

// RunPeriodic runs the periodic jobs immediately.
func (s *Scheduler) RunPeriodic(ctx context.Context) { s.runAll(ctx, s.periodic) }

func (s *Scheduler) runAll(ctx context.Context, jobs []job) {
	for _, j := range jobs {
		if ctx.Err() != nil {
			return
		}
		s.run(ctx, j)
	}
}

func (s *Scheduler) run(ctx context.Context, j job) {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	start := time.Now()
	err := j.fn(ctx)
	s.opts.Metrics.SchedulerRun(j.name, err)
	if err != nil {
		s.log.Error("job failed", zap.String("job", j.name), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return
	}
	s.log.Debug("job done", zap.String("job", j.name), zap.Duration("elapsed", time.Since(start)))
}

// NextMidnight is the first local midnight strictly after now.
func NextMidnight(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

// ForEach adapts a per-id operation into a job over every id that ids
// returns. Each id gets its own timeout when timeout is positive. Every id is
// attempted until the job's context ends; failures are joined.
func ForEach(ids func() []string, timeout time.Duration, fn IDFunc) JobFunc {
	return func(ctx context.Context) error {
		var errs []error
		for _, id := range ids() {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)
				break
			}
			if err := runID(ctx, id, timeout, fn); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
			}
		}
		return errors.Join(errs...)
	}
}

func runID(ctx context.Context, id string, timeout time.Duration, fn IDFunc) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx, id)
}
