package sessions

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

// Config carries the meter's tunables.
type Config struct {
	// InactivityTimeout is how long a session may be silent before it is
	// treated as implicitly closed.
	InactivityTimeout time.Duration `env:"SESSION_INACTIVITY_TIMEOUT" envDefault:"15m"`

	// CleanupInterval drives the memory store's eviction loop.
	CleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1m"`
}

// Meter admits or denies session starts against the plan's concurrency cap
// and converts wall-clock presence into committed hour usage.
//
// The metering window is shared per subscription: the first admitted
// session opens it, the last session closing (or going idle, or the
// subscription being cancelled) commits it. Two devices connected at once
// therefore consume budget once, not twice.
//
// All mutation of Used and the window is serialized per subscription
// through a KeyedMutex; two sessions closing near-simultaneously cannot
// double-count elapsed time.
type Meter struct {
	subs    subscription.Store
	store   Store
	plans   map[string]subscription.Plan
	locks   *KeyedMutex
	clk     clock.Clock
	sink    Sink
	lc      subscription.Lifecycle
	log     *slog.Logger
	timeout time.Duration
}

// Option configures a Meter.
type Option func(*Meter)

// WithLogger sets the meter's logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Meter) {
		if log != nil {
			m.log = log
		}
	}
}

// WithSink sets the soft-failure sink.
func WithSink(sink Sink) Option {
	return func(m *Meter) {
		if sink != nil {
			m.sink = sink
		}
	}
}

// WithClock sets the time source.
func WithClock(clk clock.Clock) Option {
	return func(m *Meter) {
		if clk != nil {
			m.clk = clk
		}
	}
}

// WithLifecycle overrides the warning configuration used for admission checks.
func WithLifecycle(lc subscription.Lifecycle) Option {
	return func(m *Meter) {
		m.lc = lc
	}
}

// WithInactivityTimeout overrides the idle-session timeout.
func WithInactivityTimeout(d time.Duration) Option {
	return func(m *Meter) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLocks shares an external lock registry, so the notification sweeper
// and the meter serialize against the same per-subscription mutex.
func WithLocks(locks *KeyedMutex) Option {
	return func(m *Meter) {
		if locks != nil {
			m.locks = locks
		}
	}
}

// NewMeter creates a session meter. Panics if a required dependency is nil
// to fail fast during initialization; returns an error only when the plan
// catalog cannot be loaded or is invalid.
func NewMeter(ctx context.Context, subs subscription.Store, store Store, catalog subscription.Catalog, opts ...Option) (*Meter, error) {
	if subs == nil {
		panic("sessions: subscription store is required")
	}
	if store == nil {
		panic("sessions: session store is required")
	}
	if catalog == nil {
		panic("sessions: plan catalog is required")
	}

	plans, err := catalog.Load(ctx)
	if err != nil {
		return nil, errors.Join(subscription.ErrFailedToLoadPlans, err)
	}
	if err := subscription.ValidatePlans(plans); err != nil {
		return nil, err
	}

	m := &Meter{
		subs:    subs,
		store:   store,
		plans:   plans,
		locks:   NewKeyedMutex(),
		clk:     clock.System(),
		lc:      subscription.DefaultLifecycle(),
		log:     slog.Default(),
		timeout: 15 * time.Minute,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.sink == nil {
		m.sink = NewLogSink(m.log)
	}

	return m, nil
}

// Locks exposes the per-subscription lock registry so other components
// (the notification sweeper, the renewal processor) can serialize with
// metering commits.
func (m *Meter) Locks() *KeyedMutex {
	return m.locks
}

// Start admits a session for userID from the given key.
//
// Counting distinct live keys and registering the new one happen under the
// subscription's lock, so two near-simultaneous starts cannot both pass
// the cap check. A start that would exceed the cap is rejected with
// ErrSessionLimitExceeded, never queued.
func (m *Meter) Start(ctx context.Context, userID uuid.UUID, key string) error {
	if key == "" {
		return ErrInvalidSession
	}

	sub, err := m.subs.GetByUser(ctx, userID)
	if err != nil {
		return err
	}

	plan, ok := m.plans[sub.PlanID]
	if !ok {
		return subscription.ErrPlanNotFound
	}

	unlock := m.locks.Lock(sub.ID)
	defer unlock()

	now := m.clk.Now()

	live, changed, err := m.syncSessions(ctx, sub, now)
	if err != nil {
		return err
	}

	if status := m.lc.Resolve(sub, now); status.Terminal() {
		if changed {
			_ = m.save(ctx, sub, now)
		}
		return ErrSubscriptionInactive
	}

	existing, known := live[key]
	if !known && len(live) >= plan.MaxSessions {
		if changed {
			_ = m.save(ctx, sub, now)
		}
		return ErrSessionLimitExceeded
	}

	session := &Session{UserID: userID, Key: key, StartedAt: now, LastSeenAt: now}
	if known {
		session.StartedAt = existing.StartedAt
	}
	if err := m.store.Put(ctx, session); err != nil {
		return err
	}

	if sub.Model == subscription.ModelHours && !sub.MeterOpen() {
		opened := now
		sub.MeterOpenedAt = &opened
		changed = true
	}

	seen := now
	sub.LastSeenAt = &seen

	return m.save(ctx, sub, now)
}

// Touch refreshes presence for an existing session. It is called on every
// authenticated request and never returns an error: failures are reported
// to the sink and logged, per the best-effort presence contract.
func (m *Meter) Touch(ctx context.Context, userID uuid.UUID, key string) {
	if err := m.touch(ctx, userID, key); err != nil {
		m.sink.Report(ctx, "record_activity", err)
	}
}

func (m *Meter) touch(ctx context.Context, userID uuid.UUID, key string) error {
	if key == "" {
		return ErrInvalidSession
	}

	sub, err := m.subs.GetByUser(ctx, userID)
	if err != nil {
		return err
	}

	unlock := m.locks.Lock(sub.ID)
	defer unlock()

	now := m.clk.Now()

	live, _, err := m.syncSessions(ctx, sub, now)
	if err != nil {
		return err
	}

	session, ok := live[key]
	if !ok {
		// Admission happens in Start; an unknown key here is a stale
		// client, not a new session.
		return ErrSessionNotFound
	}

	session.LastSeenAt = now
	if err := m.store.Put(ctx, session); err != nil {
		return err
	}

	seen := now
	sub.LastSeenAt = &seen
	return m.save(ctx, sub, now)
}

// Close removes the session and, if it was the user's last live session on
// an hours-model subscription, commits the open metering window.
func (m *Meter) Close(ctx context.Context, userID uuid.UUID, key string) error {
	sub, err := m.subs.GetByUser(ctx, userID)
	if err != nil {
		return err
	}

	unlock := m.locks.Lock(sub.ID)
	defer unlock()

	now := m.clk.Now()

	if err := m.store.Delete(ctx, userID, key); err != nil {
		return err
	}

	_, changed, err := m.syncSessions(ctx, sub, now)
	if err != nil {
		return err
	}

	if changed {
		return m.save(ctx, sub, now)
	}
	return nil
}

// Cancel marks the subscription cancelled. Any open metering window is
// committed, not discarded, and all live sessions are dropped so no
// further admission or accrual happens. Already-committed usage is never
// rolled back. Idempotent.
func (m *Meter) Cancel(ctx context.Context, id uuid.UUID) error {
	sub, err := m.subs.Get(ctx, id)
	if err != nil {
		return err
	}

	unlock := m.locks.Lock(sub.ID)
	defer unlock()

	now := m.clk.Now()

	if sub.IsCancelled() {
		return nil
	}

	if sub.MeterOpen() {
		m.commitWindow(ctx, sub, now)
	}
	if err := m.store.DeleteByUser(ctx, sub.UserID); err != nil {
		return err
	}

	cancelled := now
	sub.CancelledAt = &cancelled
	return m.save(ctx, sub, now)
}

// Refresh reaps idle sessions for the subscription's user, committing the
// metering window if the last one went idle, and returns the up-to-date
// record. The notification sweeper calls this before deriving distances so
// an abandoned session cannot keep a budget draining forever.
func (m *Meter) Refresh(ctx context.Context, sub *subscription.Subscription) (*subscription.Subscription, error) {
	fresh, err := m.subs.Get(ctx, sub.ID)
	if err != nil {
		return nil, err
	}

	unlock := m.locks.Lock(fresh.ID)
	defer unlock()

	now := m.clk.Now()

	_, changed, err := m.syncSessions(ctx, fresh, now)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := m.save(ctx, fresh, now); err != nil {
			return nil, err
		}
	}
	return fresh, nil
}

// LiveSessions returns the user's currently live sessions.
func (m *Meter) LiveSessions(ctx context.Context, userID uuid.UUID) ([]*Session, error) {
	stored, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := m.clk.Now()
	live := make([]*Session, 0, len(stored))
	for _, s := range stored {
		if s.IsLive(now, m.timeout) {
			live = append(live, s)
		}
	}
	return live, nil
}

// syncSessions partitions the user's stored sessions into live and idle,
// evicts the idle ones, and commits the metering window when no live
// session remains. Must be called with the subscription's lock held.
// Reports whether the subscription record was mutated.
func (m *Meter) syncSessions(ctx context.Context, sub *subscription.Subscription, now time.Time) (map[string]*Session, bool, error) {
	stored, err := m.store.ListByUser(ctx, sub.UserID)
	if err != nil {
		return nil, false, err
	}

	live := make(map[string]*Session, len(stored))
	for _, s := range stored {
		if s.IsLive(now, m.timeout) {
			live[s.Key] = s
			continue
		}
		if err := m.store.Delete(ctx, sub.UserID, s.Key); err != nil {
			return nil, false, err
		}
	}

	changed := false
	if len(live) == 0 && sub.Model == subscription.ModelHours && sub.MeterOpen() {
		m.commitWindow(ctx, sub, now)
		changed = true
	}
	return live, changed, nil
}

// commitWindow folds the open metering window into committed usage and
// closes it. The commit is clamped so Used never exceeds Budget even when
// a session overran due to a delayed sweep; the clamp is reported via the
// sink so operators see the overrun. Must be called with the
// subscription's lock held and an open window.
func (m *Meter) commitWindow(ctx context.Context, sub *subscription.Subscription, now time.Time) {
	opened := *sub.MeterOpenedAt

	elapsed := now.Sub(opened)
	if elapsed < 0 {
		elapsed = 0
	}

	remaining := sub.Budget - sub.Used
	if remaining < 0 {
		remaining = 0
	}

	if elapsed > remaining {
		m.sink.Report(ctx, "commit_window", ErrBudgetExceeded)
		m.log.LogAttrs(ctx, slog.LevelWarn, "metering window overran hour budget",
			logger.SubscriptionID(sub.ID),
			logger.UserID(sub.UserID),
			logger.Duration(elapsed-remaining),
		)
		elapsed = remaining
	}

	sub.Used += elapsed
	sub.MeterOpenedAt = nil

	if sub.Used >= sub.Budget {
		// Materialize the instant the budget ran out so post-expiry
		// notifications have a stable deadline to deduplicate against.
		sub.ExpiresAt = opened.Add(remaining)
	}
}

func (m *Meter) save(ctx context.Context, sub *subscription.Subscription, now time.Time) error {
	sub.UpdatedAt = now
	return m.subs.Save(ctx, sub)
}
