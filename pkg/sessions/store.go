package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store holds live session records. Implementations only need point
// lookups per user; liveness filtering happens in the meter so stores can
// garbage-collect lazily.
type Store interface {
	// Put creates or refreshes a session record.
	Put(ctx context.Context, session *Session) error

	// ListByUser returns all stored sessions for a user, live or not.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Session, error)

	// Delete removes one session record. Deleting a missing record is not
	// an error.
	Delete(ctx context.Context, userID uuid.UUID, key string) error

	// DeleteByUser removes every session record for a user.
	DeleteByUser(ctx context.Context, userID uuid.UUID) error

	// DeleteExpired garbage-collects sessions whose last activity is
	// before cutoff. Stores with native TTL eviction may no-op.
	DeleteExpired(ctx context.Context, cutoff time.Time) error
}
