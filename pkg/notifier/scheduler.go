package notifier

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/meterkit/pkg/clock"
	"github.com/dmitrymomot/meterkit/pkg/logger"
	"github.com/dmitrymomot/meterkit/pkg/subscription"
)

// Config carries the scheduler's tunables.
type Config struct {
	// SweepInterval is how often the scheduler scans for due subscriptions.
	SweepInterval time.Duration `env:"NOTIFIER_SWEEP_INTERVAL" envDefault:"1m"`

	// MaxRetries bounds delivery retries per notification. A notification
	// is attempted at most MaxRetries+1 times before it is abandoned.
	MaxRetries int `env:"NOTIFIER_MAX_RETRIES" envDefault:"3"`
}

// Locker serializes per-subscription work. Sharing the meter's lock
// registry guarantees the status a sweep acts on cannot be mutated by a
// metering commit or renewal mid-dispatch.
type Locker interface {
	Lock(key uuid.UUID) func()
}

// Refresher brings a subscription record up to date before thresholds are
// evaluated. The session meter implements this by reaping idle sessions
// and committing an abandoned metering window.
type Refresher interface {
	Refresh(ctx context.Context, sub *subscription.Subscription) (*subscription.Subscription, error)
}

type noopLocker struct{}

func (noopLocker) Lock(uuid.UUID) func() { return func() {} }

// Scheduler periodically sweeps subscriptions approaching their deadline
// and dispatches threshold notifications exactly once per
// (user, threshold, deadline) key.
//
// The sweep is resilient per item: one subscription failing to process is
// logged and skipped, never aborting the pass. Missing the exact crossing
// instant is harmless because thresholds are judged by distance to the
// deadline, so a late sweep still fires everything that came due while it
// was not looking.
type Scheduler struct {
	subs       subscription.Store
	ledger     Ledger
	transport  Transport
	locks      Locker
	refresher  Refresher
	clk        clock.Clock
	lc         subscription.Lifecycle
	thresholds []Threshold
	interval   time.Duration
	maxRetries int
	log        *slog.Logger
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithClock sets the time source.
func WithClock(clk clock.Clock) SchedulerOption {
	return func(s *Scheduler) {
		if clk != nil {
			s.clk = clk
		}
	}
}

// WithLogger sets the scheduler's logger.
func WithLogger(log *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// WithLocker shares an external per-subscription lock registry.
func WithLocker(locks Locker) SchedulerOption {
	return func(s *Scheduler) {
		if locks != nil {
			s.locks = locks
		}
	}
}

// WithRefresher sets the pre-sweep record refresher.
func WithRefresher(r Refresher) SchedulerOption {
	return func(s *Scheduler) {
		s.refresher = r
	}
}

// WithLifecycle overrides the warning configuration.
func WithLifecycle(lc subscription.Lifecycle) SchedulerOption {
	return func(s *Scheduler) {
		s.lc = lc
	}
}

// WithThresholds replaces the default warning ladder.
func WithThresholds(thresholds []Threshold) SchedulerOption {
	return func(s *Scheduler) {
		if len(thresholds) > 0 {
			s.thresholds = thresholds
		}
	}
}

// WithSweepInterval overrides the sweep cadence.
func WithSweepInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithMaxRetries overrides the delivery retry budget.
func WithMaxRetries(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// NewScheduler creates a notification scheduler. Panics on nil required
// dependencies.
func NewScheduler(subs subscription.Store, ledger Ledger, transport Transport, opts ...SchedulerOption) *Scheduler {
	if subs == nil {
		panic("notifier: subscription store is required")
	}
	if ledger == nil {
		panic("notifier: dispatch ledger is required")
	}
	if transport == nil {
		panic("notifier: transport is required")
	}

	s := &Scheduler{
		subs:       subs,
		ledger:     ledger,
		transport:  transport,
		locks:      noopLocker{},
		clk:        clock.System(),
		lc:         subscription.DefaultLifecycle(),
		thresholds: DefaultThresholds(),
		interval:   time.Minute,
		maxRetries: 3,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps immediately, then on every tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Sweep(ctx); err != nil {
		s.log.LogAttrs(ctx, slog.LevelError, "notification sweep failed",
			logger.Component("notifier"),
			logger.Error(err),
		)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.log.LogAttrs(ctx, slog.LevelError, "notification sweep failed",
					logger.Component("notifier"),
					logger.Error(err),
				)
			}
		}
	}
}

// Sweep performs one pass over due subscriptions. Item-level failures are
// logged and skipped; only a failure to list aborts the pass.
func (s *Scheduler) Sweep(ctx context.Context) error {
	now := s.clk.Now()

	due, err := s.subs.ListDue(ctx, now)
	if err != nil {
		return errors.Join(subscription.ErrFailedToList, err)
	}

	for _, sub := range due {
		if err := s.sweepOne(ctx, sub); err != nil {
			s.log.LogAttrs(ctx, slog.LevelWarn, "subscription sweep item failed",
				logger.Component("notifier"),
				logger.SubscriptionID(sub.ID),
				logger.Error(err),
			)
		}
	}
	return nil
}

func (s *Scheduler) sweepOne(ctx context.Context, sub *subscription.Subscription) error {
	if s.refresher != nil {
		fresh, err := s.refresher.Refresh(ctx, sub)
		if err != nil {
			return err
		}
		sub = fresh
	}

	unlock := s.locks.Lock(sub.ID)
	defer unlock()

	// Re-read under the lock so a renewal that landed after listing moves
	// the deadline before any key is reserved against the stale one.
	sub, err := s.subs.Get(ctx, sub.ID)
	if err != nil {
		return err
	}

	now := s.clk.Now()

	if sub.IsCancelled() {
		return nil
	}

	deadline, ok := sub.Deadline(now)
	if !ok {
		return nil
	}

	status := s.lc.Resolve(sub, now)

	var errs []error
	for _, th := range Due(s.thresholds, deadline.Sub(now)) {
		key := Key{UserID: sub.UserID, Label: th.Label, Deadline: deadline}
		if err := s.dispatch(ctx, sub, status, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) dispatch(ctx context.Context, sub *subscription.Subscription, status subscription.Status, key Key) error {
	now := s.clk.Now()

	entry, err := s.ledger.Reserve(ctx, key, now)
	if err != nil {
		return err
	}

	if entry.Status == StatusSent {
		return nil
	}
	if entry.Attempts > s.maxRetries {
		return nil
	}

	n := Notification{
		UserID:   sub.UserID,
		PlanID:   sub.PlanID,
		Label:    key.Label,
		Deadline: key.Deadline,
		Status:   status,
	}

	if sendErr := s.transport.Send(ctx, n); sendErr != nil {
		if err := s.ledger.MarkFailed(ctx, key, now, sendErr); err != nil {
			return errors.Join(sendErr, err)
		}
		s.log.LogAttrs(ctx, slog.LevelWarn, "notification delivery failed",
			logger.Component("notifier"),
			logger.UserID(key.UserID),
			logger.Threshold(key.Label),
			logger.Attempts(entry.Attempts+1),
			logger.Error(sendErr),
		)
		return nil
	}

	if err := s.ledger.MarkSent(ctx, key, now); err != nil {
		return err
	}

	s.log.LogAttrs(ctx, slog.LevelInfo, "notification sent",
		logger.Component("notifier"),
		logger.UserID(key.UserID),
		logger.Threshold(key.Label),
	)
	return nil
}
