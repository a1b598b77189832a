package notifier

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger implements Ledger in memory. Suitable for single-instance
// deployments and tests.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[Key]*Entry
}

// NewMemoryLedger creates an empty in-memory dispatch ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[Key]*Entry)}
}

func (m *MemoryLedger) Reserve(ctx context.Context, key Key, now time.Time) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.entries[key]; ok {
		dup := *entry
		return &dup, nil
	}

	entry := &Entry{Key: key, Status: StatusPending, UpdatedAt: now}
	m.entries[key] = entry

	dup := *entry
	return &dup, nil
}

func (m *MemoryLedger) MarkSent(ctx context.Context, key Key, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return ErrEntryNotFound
	}
	entry.Status = StatusSent
	entry.Attempts++
	entry.LastError = ""
	entry.UpdatedAt = now
	return nil
}

func (m *MemoryLedger) MarkFailed(ctx context.Context, key Key, now time.Time, sendErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return ErrEntryNotFound
	}
	entry.Status = StatusFailed
	entry.Attempts++
	if sendErr != nil {
		entry.LastError = sendErr.Error()
	}
	entry.UpdatedAt = now
	return nil
}

// Entries returns a snapshot of the ledger, for inspection in tests.
func (m *MemoryLedger) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, 0, len(m.entries))
	for _, entry := range m.entries {
		out = append(out, *entry)
	}
	return out
}
