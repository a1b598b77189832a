package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store defines the persistence contract for subscription records.
//
// Save persists the entire record, including any appended renewal history,
// in a single atomic call. This is the contract that lets the renewal
// processor be all-or-nothing without a cross-store transaction: callers
// mutate a copy and hand it to Save once.
type Store interface {
	// Get retrieves a subscription by its ID, history included.
	// Returns ErrNotFound if no record exists.
	Get(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// GetByUser retrieves a user's subscription, history included.
	// Each user has at most one subscription.
	GetByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// Save creates or updates a subscription atomically.
	Save(ctx context.Context, sub *Subscription) error

	// ListDue returns the non-cancelled subscriptions a notification sweep
	// should examine at now. Implementations may over-approximate (extra
	// records are harmless, the sweeper re-derives status) but must never
	// omit a subscription within the notification horizon. History is not
	// loaded.
	ListDue(ctx context.Context, now time.Time) ([]*Subscription, error)
}
