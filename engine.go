package meterkit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/meterkit/pkg/clock"
	"github.com/dmitrymomot/meterkit/pkg/notifier"
	"github.com/dmitrymomot/meterkit/pkg/renewal"
	"github.com/dmitrymomot/meterkit/pkg/sessions"
	"github.com/dmitrymomot/meterkit/pkg/subscription"
)

// Engine wires the lifecycle, metering, renewal and notification components
// behind one facade. All components share a single per-subscription lock
// registry, so a metering commit, a renewal and a notification dispatch for
// the same subscription never interleave.
type Engine struct {
	subs      subscription.Store
	meter     *sessions.Meter
	renewals  *renewal.Processor
	scheduler *notifier.Scheduler
	lc        subscription.Lifecycle
	clk       clock.Clock
	log       *slog.Logger
	closers   []io.Closer
}

type settings struct {
	subs              subscription.Store
	sessionStore      sessions.Store
	ledger            notifier.Ledger
	transport         notifier.Transport
	sink              sessions.Sink
	clk               clock.Clock
	log               *slog.Logger
	lc                subscription.Lifecycle
	thresholds        []notifier.Threshold
	inactivityTimeout time.Duration
	sweepInterval     time.Duration
	maxRetries        int
}

// Option configures the Engine.
type Option func(*settings)

// WithSubscriptionStore sets the durable subscription store. Defaults to an
// in-memory store.
func WithSubscriptionStore(store subscription.Store) Option {
	return func(s *settings) {
		if store != nil {
			s.subs = store
		}
	}
}

// WithSessionStore sets the live-session registry. Defaults to an
// in-memory store with background eviction.
func WithSessionStore(store sessions.Store) Option {
	return func(s *settings) {
		if store != nil {
			s.sessionStore = store
		}
	}
}

// WithLedger sets the notification dispatch ledger. Defaults to an
// in-memory ledger.
func WithLedger(ledger notifier.Ledger) Option {
	return func(s *settings) {
		if ledger != nil {
			s.ledger = ledger
		}
	}
}

// WithTransport sets the notification delivery channel. Defaults to a
// log-only transport.
func WithTransport(transport notifier.Transport) Option {
	return func(s *settings) {
		if transport != nil {
			s.transport = transport
		}
	}
}

// WithSink sets the soft-failure sink for best-effort operations.
func WithSink(sink sessions.Sink) Option {
	return func(s *settings) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithClock sets the time source for every component.
func WithClock(clk clock.Clock) Option {
	return func(s *settings) {
		if clk != nil {
			s.clk = clk
		}
	}
}

// WithLogger sets the logger for every component.
func WithLogger(log *slog.Logger) Option {
	return func(s *settings) {
		if log != nil {
			s.log = log
		}
	}
}

// WithLifecycle overrides the warning window configuration.
func WithLifecycle(lc subscription.Lifecycle) Option {
	return func(s *settings) {
		s.lc = lc
	}
}

// WithThresholds replaces the default notification ladder.
func WithThresholds(thresholds []notifier.Threshold) Option {
	return func(s *settings) {
		if len(thresholds) > 0 {
			s.thresholds = thresholds
		}
	}
}

// WithInactivityTimeout overrides the idle-session timeout.
func WithInactivityTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.inactivityTimeout = d
		}
	}
}

// WithSweepInterval overrides the notification sweep cadence.
func WithSweepInterval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithMaxRetries overrides the notification delivery retry budget.
func WithMaxRetries(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// New assembles an Engine around the given plan catalog. The catalog is
// loaded once at construction; invalid plans fail fast.
func New(ctx context.Context, catalog subscription.Catalog, opts ...Option) (*Engine, error) {
	if catalog == nil {
		panic("meterkit: plan catalog is required")
	}

	s := &settings{
		clk:               clock.System(),
		log:               slog.Default(),
		lc:                subscription.DefaultLifecycle(),
		thresholds:        notifier.DefaultThresholds(),
		inactivityTimeout: 15 * time.Minute,
		sweepInterval:     time.Minute,
		maxRetries:        3,
	}
	for _, opt := range opts {
		opt(s)
	}

	e := &Engine{
		lc:  s.lc,
		clk: s.clk,
		log: s.log,
	}

	if s.subs == nil {
		s.subs = subscription.NewMemoryStore()
	}
	if s.sessionStore == nil {
		store := sessions.NewMemoryStore(s.inactivityTimeout, time.Minute)
		e.closers = append(e.closers, store)
		s.sessionStore = store
	}
	if s.ledger == nil {
		s.ledger = notifier.NewMemoryLedger()
	}
	if s.transport == nil {
		s.transport = notifier.NewLogTransport(s.log)
	}
	e.subs = s.subs

	locks := sessions.NewKeyedMutex()

	meterOpts := []sessions.Option{
		sessions.WithClock(s.clk),
		sessions.WithLogger(s.log),
		sessions.WithLifecycle(s.lc),
		sessions.WithInactivityTimeout(s.inactivityTimeout),
		sessions.WithLocks(locks),
	}
	if s.sink != nil {
		meterOpts = append(meterOpts, sessions.WithSink(s.sink))
	}

	meter, err := sessions.NewMeter(ctx, s.subs, s.sessionStore, catalog, meterOpts...)
	if err != nil {
		return nil, err
	}
	e.meter = meter

	processor, err := renewal.NewProcessor(ctx, s.subs, catalog,
		renewal.WithClock(s.clk),
		renewal.WithLogger(s.log),
		renewal.WithLocker(locks),
	)
	if err != nil {
		return nil, err
	}
	e.renewals = processor

	e.scheduler = notifier.NewScheduler(s.subs, s.ledger, s.transport,
		notifier.WithClock(s.clk),
		notifier.WithLogger(s.log),
		notifier.WithLocker(locks),
		notifier.WithRefresher(meter),
		notifier.WithLifecycle(s.lc),
		notifier.WithThresholds(s.thresholds),
		notifier.WithSweepInterval(s.sweepInterval),
		notifier.WithMaxRetries(s.maxRetries),
	)

	return e, nil
}

// Subscription returns the user's current subscription record.
func (e *Engine) Subscription(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	return e.subs.GetByUser(ctx, userID)
}

// Status derives the user's current lifecycle status. The derivation is
// pure: in-flight metering windows count toward usage without being
// committed, so asking never mutates state.
func (e *Engine) Status(ctx context.Context, userID uuid.UUID) (subscription.Status, error) {
	sub, err := e.subs.GetByUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return e.lc.Resolve(sub, e.clk.Now()), nil
}

// StartSession admits a new session for the user from the given key.
func (e *Engine) StartSession(ctx context.Context, userID uuid.UUID, key string) error {
	return e.meter.Start(ctx, userID, key)
}

// RecordActivity refreshes the session's presence. Best-effort: failures
// are swallowed into the sink, never returned.
func (e *Engine) RecordActivity(ctx context.Context, userID uuid.UUID, key string) {
	e.meter.Touch(ctx, userID, key)
}

// CloseSession ends the session and commits any metered time it was the
// last holder of.
func (e *Engine) CloseSession(ctx context.Context, userID uuid.UUID, key string) error {
	return e.meter.Close(ctx, userID, key)
}

// Renew applies a paid extension to the subscription.
func (e *Engine) Renew(ctx context.Context, id uuid.UUID, payment renewal.Payment) (*subscription.Subscription, error) {
	return e.renewals.Renew(ctx, id, payment)
}

// Cancel cancels the subscription, committing any open metering window.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID) error {
	return e.meter.Cancel(ctx, id)
}

// Sweep runs one notification pass. Run does this on a ticker; Sweep is
// exposed for tests and one-shot jobs.
func (e *Engine) Sweep(ctx context.Context) error {
	return e.scheduler.Sweep(ctx)
}

// Run drives the notification sweeper until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	return e.scheduler.Run(ctx)
}

// Close releases resources owned by the engine, such as the default
// in-memory session store's eviction loop. Stores passed in via options
// are the caller's to close.
func (e *Engine) Close() error {
	var errs []error
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
