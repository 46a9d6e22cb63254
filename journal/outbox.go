package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// ErrDeferred reports that a write failed against the wrapped journal and was
// queued for retry. The entry is not lost.
var ErrDeferred = errors.New("journal: write deferred")

const (
	kindTradeCheck = "trade_check"
	kindMetric     = "metric"
	kindEvent      = "event"
)

type OutboxConfig struct {
	MaxPending    int
	RetryInterval time.Duration
	MaxBackoff    time.Duration
	// SpillPath receives still-pending entries as JSON lines on Close and is
	// replayed by NewOutbox. Empty disables spilling.
	SpillPath    string
	CloseTimeout time.Duration
}

func DefaultOutboxConfig() OutboxConfig {
	return OutboxConfig{
		MaxPending:    10000,
		RetryInterval: 500 * time.Millisecond,
		MaxBackoff:    30 * time.Second,
		CloseTimeout:  5 * time.Second,
	}
}

type pendingWrite struct {
	Kind       string           `json:"kind"`
	TradeCheck *TradeCheckEntry `json:"trade_check,omitempty"`
	Metric     *MetricEntry     `json:"metric,omitempty"`
	Event      *Event           `json:"event,omitempty"`
}

// Outbox wraps a Journal with at-least-once delivery: failed writes are
// queued in order and retried with exponential backoff.
type Outbox struct {
	next Journal
	cfg  OutboxConfig

	mu    sync.Mutex
	queue []pendingWrite

	wake      chan struct{}
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func NewOutbox(next Journal, cfg OutboxConfig) (*Outbox, error) {
	def := DefaultOutboxConfig()
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = def.MaxPending
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	if cfg.MaxBackoff < cfg.RetryInterval {
		cfg.MaxBackoff = cfg.RetryInterval
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = def.CloseTimeout
	}

	o := &Outbox{
		next:    next,
		cfg:     cfg,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	if err := o.replaySpill(); err != nil {
		return nil, err
	}
	go o.loop()
	if o.Pending() > 0 {
		o.signal()
	}
	return o, nil
}

func (o *Outbox) RecordTradeCheck(ctx context.Context, e TradeCheckEntry) error {
	return o.write(ctx, pendingWrite{Kind: kindTradeCheck, TradeCheck: &e})
}

func (o *Outbox) RecordMetric(ctx context.Context, m MetricEntry) error {
	return o.write(ctx, pendingWrite{Kind: kindMetric, Metric: &m})
}

func (o *Outbox) RecordEvent(ctx context.Context, ev Event) error {
	return o.write(ctx, pendingWrite{Kind: kindEvent, Event: &ev})
}

// Pending is the number of queued writes.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

func (o *Outbox) write(ctx context.Context, p pendingWrite) error {
	select {
	case <-o.done:
		return errors.New("journal: outbox closed")
	default:
	}

	// Entries queue behind any backlog so they reach the journal in order.
	if o.Pending() == 0 {
		err := o.apply(ctx, p)
		if err == nil {
			return nil
		}
		return o.enqueue(p, err)
	}
	return o.enqueue(p, errors.New("backlog"))
}

func (o *Outbox) enqueue(p pendingWrite, cause error) error {
	o.mu.Lock()
	if len(o.queue) >= o.cfg.MaxPending {
		n := len(o.queue)
		o.mu.Unlock()
		return fmt.Errorf("journal: outbox full (%d pending), %s dropped: %w", n, p.Kind, cause)
	}
	o.queue = append(o.queue, p)
	o.mu.Unlock()

	o.signal()
	return fmt.Errorf("%w: %s: %v", ErrDeferred, p.Kind, cause)
}

func (o *Outbox) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *Outbox) apply(ctx context.Context, p pendingWrite) error {
	switch p.Kind {
	case kindTradeCheck:
		return o.next.RecordTradeCheck(ctx, *p.TradeCheck)
	case kindMetric:
		return o.next.RecordMetric(ctx, *p.Metric)
	case kindEvent:
		return o.next.RecordEvent(ctx, *p.Event)
	}
	return fmt.Errorf("journal: unknown pending kind %q", p.Kind)
}

// Flush retries queued writes in order and stops at the first failure.
func (o *Outbox) Flush(ctx context.Context) error {
	for {
		o.mu.Lock()
		if len(o.queue) == 0 {
			o.mu.Unlock()
			return nil
		}
		head := o.queue[0]
		o.mu.Unlock()

		if err := o.apply(ctx, head); err != nil {
			return err
		}

		o.mu.Lock()
		o.queue = o.queue[1:]
		o.mu.Unlock()
	}
}

func (o *Outbox) loop() {
	defer close(o.stopped)

	for {
		select {
		case <-o.done:
			return
		case <-o.wake:
		}

		delay := o.cfg.RetryInterval
		for o.Pending() > 0 {
			t := time.NewTimer(delay)
			select {
			case <-o.done:
				t.Stop()
				return
			case <-t.C:
			}

			if err := o.Flush(context.Background()); err != nil {
				delay *= 2
				if delay > o.cfg.MaxBackoff {
					delay = o.cfg.MaxBackoff
				}
				continue
			}
			delay = o.cfg.RetryInterval
		}
	}
}

// Close stops retrying, makes one last delivery attempt, spills whatever is
// still pending and closes the wrapped journal.
func (o *Outbox) Close() error {
	o.closeOnce.Do(func() {
		close(o.done)
		<-o.stopped

		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.CloseTimeout)
		defer cancel()

		var errs []error
		if err := o.Flush(ctx); err != nil {
			if spillErr := o.spill(); spillErr != nil {
				errs = append(errs, fmt.Errorf("journal: %d entries lost: %w", o.Pending(), spillErr))
			}
		}
		if err := o.next.Close(); err != nil {
			errs = append(errs, err)
		}
		o.closeErr = errors.Join(errs...)
	})
	return o.closeErr
}

func (o *Outbox) spill() error {
	if o.cfg.SpillPath == "" {
		return errors.New("no spill path configured")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	f, err := os.OpenFile(o.cfg.SpillPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	for _, p := range o.queue {
		if err := enc.Encode(p); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	o.queue = nil
	return nil
}

func (o *Outbox) replaySpill() error {
	if o.cfg.SpillPath == "" {
		return nil
	}
	f, err := os.Open(o.cfg.SpillPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var loaded []pendingWrite
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var p pendingWrite
		if err := json.Unmarshal(sc.Bytes(), &p); err != nil {
			_ = f.Close()
			return fmt.Errorf("journal: replay %s: %w", o.cfg.SpillPath, err)
		}
		loaded = append(loaded, p)
	}
	if err := sc.Err(); err != nil {
		_ = f.Close()
		return err
	}
	_ = f.Close()

	o.mu.Lock()
	o.queue = append(loaded, o.queue...)
	o.mu.Unlock()
	return os.Remove(o.cfg.SpillPath)
}
