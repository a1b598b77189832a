package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store with in-memory storage.
// Suitable for development and testing.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*Subscription
	byUser map[uuid.UUID]uuid.UUID
}

// NewMemoryStore creates an empty in-memory subscription store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[uuid.UUID]*Subscription),
		byUser: make(map[uuid.UUID]uuid.UUID),
	}
}

func (m *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sub.Clone(), nil
}

func (m *MemoryStore) GetByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byUser[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return m.byID[id].Clone(), nil
}

func (m *MemoryStore) Save(ctx context.Context, sub *Subscription) error {
	if sub == nil || sub.ID == uuid.Nil {
		return ErrFailedToSave
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.byID[sub.ID] = sub.Clone()
	m.byUser[sub.UserID] = sub.ID
	return nil
}

// ListDue returns every non-cancelled subscription. The memory store does
// not pre-filter by deadline; the sweeper re-derives distances anyway and
// development datasets are small.
func (m *MemoryStore) ListDue(ctx context.Context, now time.Time) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	due := make([]*Subscription, 0, len(m.byID))
	for _, sub := range m.byID {
		if sub.IsCancelled() {
			continue
		}
		due = append(due, sub.Clone())
	}
	return due, nil
}
