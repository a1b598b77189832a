package sessions

import (
	"sync"

	"github.com/google/uuid"
)

// KeyedMutex provides per-subscription mutual exclusion. Metering commits,
// renewals and pre-dispatch status checks all serialize through the same
// key so a shared usage counter is only ever mutated by one goroutine at a
// time. Entries are reference-counted and removed when idle, so the
// registry does not grow with the total number of subscriptions ever seen.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty lock registry.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[uuid.UUID]*lockEntry)}
}

// Lock acquires the mutex for key and returns its unlock function.
func (k *KeyedMutex) Lock(key uuid.UUID) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Do runs fn while holding the mutex for key.
func (k *KeyedMutex) Do(key uuid.UUID, fn func()) {
	unlock := k.Lock(key)
	defer unlock()
	fn()
}
