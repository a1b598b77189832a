package renewal

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

// Locker serializes access per subscription. Sharing the meter's lock
// registry here means a renewal cannot interleave with a metering commit
// or a notification dispatch for the same record.
type Locker interface {
	Lock(key uuid.UUID) func()
}

// Payment describes the settled payment backing a renewal. The processor
// trusts it: charging happened upstream.
type Payment struct {
	Amount subscription.Money
	Method string
}

// Processor applies renewals.
type Processor struct {
	subs  subscription.Store
	plans map[string]subscription.Plan
	locks Locker
	clk   clock.Clock
	log   *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithClock sets the time source.
func WithClock(clk clock.Clock) Option {
	return func(p *Processor) {
		if clk != nil {
			p.clk = clk
		}
	}
}

// WithLogger sets the processor's logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Processor) {
		if log != nil {
			p.log = log
		}
	}
}

// WithLocker shares an external per-subscription lock registry.
func WithLocker(locks Locker) Option {
	return func(p *Processor) {
		if locks != nil {
			p.locks = locks
		}
	}
}

type noopLocker struct{}

func (noopLocker) Lock(uuid.UUID) func() { return func() {} }

// NewProcessor creates a renewal processor. Panics on nil required
// dependencies; returns an error when the plan catalog cannot be loaded.
func NewProcessor(ctx context.Context, subs subscription.Store, catalog subscription.Catalog, opts ...Option) (*Processor, error) {
	if subs == nil {
		panic("renewal: subscription store is required")
	}
	if catalog == nil {
		panic("renewal: plan catalog is required")
	}

	plans, err := catalog.Load(ctx)
	if err != nil {
		return nil, errors.Join(subscription.ErrFailedToLoadPlans, err)
	}
	if err := subscription.ValidatePlans(plans); err != nil {
		return nil, err
	}

	p := &Processor{
		subs:  subs,
		plans: plans,
		locks: noopLocker{},
		clk:   clock.System(),
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Renew extends the subscription by one plan period and records the payment
// in the renewal history.
//
// Days model: the calendar window is extended from the later of the current
// expiry and now, so renewing early keeps the remaining days and renewing
// after a lapse starts from the present instead of back-dating access.
// Hours model: the plan's hour grant is added to the budget; committed
// usage is untouched.
//
// A renewal clears a cancellation mark: paying again reactivates the
// subscription. The whole mutation is persisted in one Save call.
func (p *Processor) Renew(ctx context.Context, id uuid.UUID, payment Payment) (*subscription.Subscription, error) {
	if payment.Amount.Amount < 0 {
		return nil, ErrInvalidRenewal
	}

	sub, err := p.subs.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	plan, ok := p.plans[sub.PlanID]
	if !ok {
		return nil, subscription.ErrPlanNotFound
	}
	if plan.Model != sub.Model {
		return nil, ErrModelMismatch
	}

	unlock := p.locks.Lock(sub.ID)
	defer unlock()

	// Re-read under the lock: a metering commit may have landed between
	// the optimistic read and lock acquisition.
	sub, err = p.subs.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := p.clk.Now()

	record := subscription.RenewalRecord{
		AppliedAt:     now,
		Amount:        payment.Amount,
		PaymentMethod: payment.Method,
	}

	switch sub.Model {
	case subscription.ModelDays:
		extension := time.Duration(plan.Days) * 24 * time.Hour
		if extension <= 0 {
			return nil, ErrInvalidRenewal
		}

		base := sub.ExpiresAt
		if base.Before(now) {
			base = now
		}

		record.Extension = extension
		record.PrevExpiresAt = sub.ExpiresAt
		record.NewExpiresAt = base.Add(extension)
		sub.ExpiresAt = record.NewExpiresAt

	case subscription.ModelHours:
		if plan.Hours <= 0 {
			return nil, ErrInvalidRenewal
		}

		record.Extension = plan.Hours
		record.PrevBudget = sub.Budget
		record.NewBudget = sub.Budget + plan.Hours
		sub.Budget = record.NewBudget

		// The budget has headroom again; the materialized exhaustion
		// instant no longer applies.
		if sub.Used < sub.Budget {
			sub.ExpiresAt = time.Time{}
		}

	default:
		return nil, ErrInvalidRenewal
	}

	sub.CancelledAt = nil
	sub.History = append(sub.History, record)
	sub.UpdatedAt = now

	if err := p.subs.Save(ctx, sub); err != nil {
		return nil, err
	}

	p.log.LogAttrs(ctx, slog.LevelInfo, "renewal applied",
		logger.SubscriptionID(sub.ID),
		logger.UserID(sub.UserID),
		slog.String("plan_id", sub.PlanID),
		logger.Duration(record.Extension),
	)

	return sub, nil
}
