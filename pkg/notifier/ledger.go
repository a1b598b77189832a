package notifier

import (
	"context"
	"time"
)

// Status of a ledger entry.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Entry is the durable record of one notification attempt chain.
type Entry struct {
	Key       Key
	Status    Status
	Attempts  int
	LastError string
	UpdatedAt time.Time
}

// Ledger is the dispatch ledger backing exactly-once delivery. Reserving a
// key before sending and marking the outcome after is what keeps repeated
// sweeps over the same subscription from re-notifying: the second sweep
// finds the key already sent and skips it.
type Ledger interface {
	// Reserve returns the entry for key, creating a pending one if none
	// exists. Creation is atomic per key: two concurrent reservations
	// yield one entry.
	Reserve(ctx context.Context, key Key, now time.Time) (*Entry, error)

	// MarkSent finalizes the entry as delivered.
	MarkSent(ctx context.Context, key Key, now time.Time) error

	// MarkFailed records a delivery failure and increments the attempt
	// counter. The entry stays eligible for retry until the scheduler's
	// attempt budget is spent.
	MarkFailed(ctx context.Context, key Key, now time.Time, sendErr error) error
}
