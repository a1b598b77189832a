package subscription

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Subscription is the durable record of a user's access grant.
// Status is intentionally absent: it is derived by Lifecycle.Resolve from
// these fields and the current time, so display and enforcement can never
// drift apart.
type Subscription struct {
	ID     uuid.UUID
	UserID uuid.UUID
	PlanID string
	Model  BillingModel

	StartedAt time.Time

	// ExpiresAt ends the calendar window for the days model. For the hours
	// model it stays zero until the budget is exhausted, at which point the
	// metering commit materializes the exhaustion instant here so sweeps
	// have a stable deadline to deduplicate against.
	ExpiresAt time.Time

	// Budget and Used carry the hours model's finite connected-time budget.
	// Invariant: 0 <= Used <= Budget; a violating record reads as expired.
	Budget time.Duration
	Used   time.Duration

	// MeterOpenedAt is non-nil iff a metering window is currently open.
	// The window is shared: the first admitted session opens it, the last
	// session closing commits it.
	MeterOpenedAt *time.Time

	// CancelledAt marks manual cancellation. Terminal until a renewal clears it.
	CancelledAt *time.Time

	// LastSeenAt is advisory presence information, updated best-effort.
	LastSeenAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	// History is the append-only renewal log in chronological order.
	History []RenewalRecord
}

// RenewalRecord captures one applied renewal. Records are appended, never
// rewritten.
type RenewalRecord struct {
	AppliedAt     time.Time
	Amount        Money
	PaymentMethod string
	Extension     time.Duration

	// Days model snapshot.
	PrevExpiresAt time.Time
	NewExpiresAt  time.Time

	// Hours model snapshot.
	PrevBudget time.Duration
	NewBudget  time.Duration
}

// IsCancelled reports whether the subscription was manually cancelled.
func (s *Subscription) IsCancelled() bool {
	return s.CancelledAt != nil
}

// MeterOpen reports whether a metering window is currently open.
func (s *Subscription) MeterOpen() bool {
	return s.MeterOpenedAt != nil
}

// EffectiveUsed returns committed usage plus the elapsed time of the open
// metering window, if any. The open window's time is not yet committed to
// Used; it is counted here so status derivation sees in-flight consumption.
func (s *Subscription) EffectiveUsed(now time.Time) time.Duration {
	used := s.Used
	if s.MeterOpenedAt != nil {
		if elapsed := now.Sub(*s.MeterOpenedAt); elapsed > 0 {
			used += elapsed
		}
	}
	return used
}

// RemainingBudget returns the unconsumed part of the hour budget at now.
// May be negative when an open window has overrun the budget.
func (s *Subscription) RemainingBudget(now time.Time) time.Duration {
	return s.Budget - s.EffectiveUsed(now)
}

// Deadline projects the instant the subscription expires, when one is known.
//
// Days model: ExpiresAt. Hours model: the open metering window projected
// forward by the remaining budget, or the materialized exhaustion instant
// once the budget is spent. A healthy hours subscription with no session
// connected has no deadline: it does not consume and cannot expire.
func (s *Subscription) Deadline(now time.Time) (time.Time, bool) {
	switch s.Model {
	case ModelDays:
		if s.ExpiresAt.IsZero() {
			return time.Time{}, false
		}
		return s.ExpiresAt, true
	case ModelHours:
		if s.MeterOpenedAt != nil {
			return s.MeterOpenedAt.Add(s.Budget - s.Used), true
		}
		if !s.ExpiresAt.IsZero() && s.Used >= s.Budget {
			return s.ExpiresAt, true
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// Clone returns a deep copy, including the renewal history.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	dup := *s
	dup.MeterOpenedAt = cloneTime(s.MeterOpenedAt)
	dup.CancelledAt = cloneTime(s.CancelledAt)
	dup.LastSeenAt = cloneTime(s.LastSeenAt)
	dup.History = slices.Clone(s.History)
	return &dup
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	dup := *t
	return &dup
}
