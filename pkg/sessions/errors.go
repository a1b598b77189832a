package sessions

import "errors"

var (
	// ErrSessionLimitExceeded is returned when a session start from a new
	// key would exceed the plan's concurrent-session cap. Recoverable: the
	// caller may retry after closing another session.
	ErrSessionLimitExceeded = errors.New("concurrent session limit exceeded")

	// ErrSubscriptionInactive is returned when a session start is attempted
	// against a cancelled or expired subscription.
	ErrSubscriptionInactive = errors.New("subscription is not active")

	// ErrBudgetExceeded signals a metering commit had to clamp usage to the
	// budget. It is logged and reported, never surfaced to the caller.
	ErrBudgetExceeded = errors.New("hour budget exceeded, usage clamped")

	ErrInvalidSession   = errors.New("invalid session record")
	ErrSessionNotFound  = errors.New("session not found")
	ErrStoreUnavailable = errors.New("session store unavailable")
)
