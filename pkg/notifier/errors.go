package notifier

import "errors"

var (
	// ErrLedgerUnavailable wraps storage failures from ledger backends.
	ErrLedgerUnavailable = errors.New("dispatch ledger unavailable")

	// ErrEntryNotFound is returned when marking an entry that was never
	// reserved.
	ErrEntryNotFound = errors.New("ledger entry not found")
)
