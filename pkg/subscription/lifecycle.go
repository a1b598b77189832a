package subscription

import "time"

// Lifecycle derives a subscription's status from its stored fields and the
// current time. Resolve is a pure function: same record and instant always
// produce the same status, with no hidden state.
type Lifecycle struct {
	// WarningWindow is how long before calendar expiry a days-model
	// subscription reads as expiring_soon.
	WarningWindow time.Duration

	// WarningBudget is how much remaining connected time makes an
	// hours-model subscription read as expiring_soon.
	WarningBudget time.Duration
}

// DefaultLifecycle returns the standard warning configuration.
func DefaultLifecycle() Lifecycle {
	return Lifecycle{
		WarningWindow: 24 * time.Hour,
		WarningBudget: 6 * time.Hour,
	}
}

// Resolve maps the record and now to a status.
//
// Manual cancellation is terminal and checked first. Otherwise exactly one
// rule applies, selected by the billing model. The progression
// active -> expiring_soon -> expired is forward-only; only an explicit
// renewal (a distinct operation that rewrites the record) moves a
// subscription back.
func (l Lifecycle) Resolve(s *Subscription, now time.Time) Status {
	if s.IsCancelled() {
		return StatusCancelled
	}

	switch s.Model {
	case ModelHours:
		// A corrupt counter must never read as access granted.
		if s.Used < 0 || s.Used > s.Budget {
			return StatusExpired
		}
		remaining := s.RemainingBudget(now)
		switch {
		case remaining <= 0:
			return StatusExpired
		case remaining <= l.WarningBudget:
			return StatusExpiringSoon
		default:
			return StatusActive
		}
	default:
		remaining := s.ExpiresAt.Sub(now)
		switch {
		case remaining <= 0:
			return StatusExpired
		case remaining <= l.WarningWindow:
			return StatusExpiringSoon
		default:
			return StatusActive
		}
	}
}

// Distance returns how far the subscription is from expiry at now.
// The second return is false when no deadline is known (hours model with no
// open window and budget left). Negative distances mean already expired.
func (l Lifecycle) Distance(s *Subscription, now time.Time) (time.Duration, bool) {
	deadline, ok := s.Deadline(now)
	if !ok {
		return 0, false
	}
	return deadline.Sub(now), true
}
