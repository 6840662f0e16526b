package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rileyhilliard/rdpmon/internal/logger"
)

// DefaultInterval is how often the fleet is refreshed when no interval is set.
const DefaultInterval = 60 * time.Second

// Refresher starts a fleet-wide refresh. *Aggregator satisfies it.
type Refresher interface {
	RefreshAll(ctx context.Context) int
}

// Scheduler fires RefreshAll immediately and then on a fixed interval.
// Each fire is timed from an absolute deadline, so slow refreshes and
// timer latency don't accumulate into drift.
type Scheduler struct {
	refresher Refresher
	interval  time.Duration
	log       logger.Logger
	now       func() time.Time

	trigger chan struct{}

	beforeFire func()

	mu    sync.RWMutex
	last  time.Time
	next  time.Time
	hooks []func(last, next time.Time)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(l logger.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithBeforeFire runs fn on the scheduler goroutine right before every
// RefreshAll, e.g. to pick up roster edits first.
func WithBeforeFire(fn func()) SchedulerOption {
	return func(s *Scheduler) {
		s.beforeFire = fn
	}
}

// NewScheduler creates a scheduler. A non-positive interval uses
// DefaultInterval.
func NewScheduler(r Refresher, interval time.Duration, opts ...SchedulerOption) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Scheduler{
		refresher: r,
		interval:  interval,
		log:       logger.Noop(),
		now:       time.Now,
		trigger:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Interval returns the refresh interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// OnTick registers fn to run after every fire with the new last and next
// refresh times. fn runs on the scheduler goroutine and must not block.
func (s *Scheduler) OnTick(fn func(last, next time.Time)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// LastRefresh is when the scheduler last fired. Zero before the first fire.
func (s *Scheduler) LastRefresh() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// NextRefresh is when the scheduler will fire next.
func (s *Scheduler) NextRefresh() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.next
}

// TriggerNow asks the running scheduler for an immediate refresh and
// restarts the interval from now. Triggers that arrive while one is
// already pending are absorbed.
func (s *Scheduler) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.fire(ctx, s.now(), "start")

	timer := time.NewTimer(s.untilNext())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-s.trigger:
			s.fire(ctx, s.now(), "manual")

		case <-timer.C:
			at := s.NextRefresh()
			now := s.now()
			// After a long stall (suspend, blocked clock) restart from now
			// rather than firing a burst of catch-up refreshes.
			if now.Sub(at) > s.interval {
				at = now
			}
			s.fire(ctx, at, "interval")
		}

		timer.Reset(s.untilNext())
	}
}

func (s *Scheduler) untilNext() time.Duration {
	d := s.NextRefresh().Sub(s.now())
	if d < 0 {
		return 0
	}
	return d
}

func (s *Scheduler) fire(ctx context.Context, at time.Time, reason string) {
	s.mu.Lock()
	s.last = at
	s.next = at.Add(s.interval)
	last, next := s.last, s.next
	hooks := append([]func(last, next time.Time){}, s.hooks...)
	s.mu.Unlock()

	if s.beforeFire != nil {
		s.beforeFire()
	}
	n := s.refresher.RefreshAll(ctx)
	s.log.Debug("scheduler fired (%s): %d refreshes started, next at %s", reason, n, next.Format("15:04:05"))

	for _, fn := range hooks {
		fn(last, next)
	}
}
