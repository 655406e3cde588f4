// Package scheduler drives the periodic work of a fulfill deployment: the
// recurring billing run followed by the overdue sweep, once per tick.
//
// Overlapping runs are already safe at the storage level. A Locker only
// keeps replicas from repeating each other's work.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/xraph/fulfill"
)

// Defaults applied by New.
const (
	DefaultInterval = time.Hour
	DefaultLockKey  = "fulfill:scheduler"
	DefaultLockTTL  = 10 * time.Minute
)

// Runner is the part of the engine the scheduler drives. *fulfill.Engine
// implements it.
type Runner interface {
	RunRecurringBilling(ctx context.Context, now time.Time) (*fulfill.BillingResult, error)
	RunOverdueSweep(ctx context.Context, now time.Time) (int64, error)
}

// Locker elects a single holder for a key across processes. Acquire
// reports false without error when someone else holds the key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// TickResult summarizes one scheduled pass.
type TickResult struct {
	At      time.Time
	Skipped bool
	Billing *fulfill.BillingResult
	Overdue int64
}

// Scheduler runs billing and the overdue sweep on a fixed interval.
type Scheduler struct {
	runner     Runner
	locker     Locker
	logger     *slog.Logger
	clock      func() time.Time
	interval   time.Duration
	lockKey    string
	lockTTL    time.Duration
	runOnStart bool
}

// New creates a Scheduler for r.
func New(r Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:   r,
		logger:   slog.Default(),
		clock:    time.Now,
		interval: DefaultInterval,
		lockKey:  DefaultLockKey,
		lockTTL:  DefaultLockTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the tick interval.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// WithLocker enables leader election per tick.
func WithLocker(l Locker) Option {
	return func(s *Scheduler) { s.locker = l }
}

// WithLockKey sets the key passed to the Locker.
func WithLockKey(key string) Option {
	return func(s *Scheduler) { s.lockKey = key }
}

// WithLockTTL bounds how long a crashed holder blocks other replicas.
func WithLockTTL(d time.Duration) Option {
	return func(s *Scheduler) { s.lockTTL = d }
}

// WithClock sets the time source handed to the engine.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithRunOnStart makes Run tick once immediately instead of waiting a full
// interval.
func WithRunOnStart() Option {
	return func(s *Scheduler) { s.runOnStart = true }
}

// Run ticks until ctx is cancelled. Tick errors are logged and do not stop
// the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("scheduler: interval must be positive")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", s.interval, "locking", s.locker != nil)

	if s.runOnStart {
		s.tickAndLog(ctx)
	}

	for {
		select {
		case <-ticker.C:
			s.tickAndLog(ctx)
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		}
	}
}

func (s *Scheduler) tickAndLog(ctx context.Context) {
	if _, err := s.Tick(ctx); err != nil {
		s.logger.Error("scheduled run failed", "error", err)
	}
}

// Tick performs one pass: billing first, then the overdue sweep, both at
// the same instant. A sweep still runs when billing fails outright.
func (s *Scheduler) Tick(ctx context.Context) (*TickResult, error) {
	res := &TickResult{At: s.clock()}

	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, s.lockKey, s.lockTTL)
		if err != nil {
			return nil, err
		}
		if !ok {
			res.Skipped = true
			s.logger.Debug("scheduled run skipped, lock held elsewhere", "key", s.lockKey)
			return res, nil
		}
		defer func() {
			if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
				s.logger.Warn("scheduler: failed to release lock", "key", s.lockKey, "error", rerr)
			}
		}()
	}

	billing, billErr := s.runner.RunRecurringBilling(ctx, res.At)
	res.Billing = billing

	overdue, sweepErr := s.runner.RunOverdueSweep(ctx, res.At)
	res.Overdue = overdue

	if err := errors.Join(billErr, sweepErr); err != nil {
		return res, err
	}

	if billing != nil {
		if err := billing.Err(); err != nil {
			s.logger.Warn("scheduled billing had failures",
				"generated", billing.Generated,
				"failed", len(billing.Errors),
				"error", err,
			)
		}
	}
	return res, nil
}
