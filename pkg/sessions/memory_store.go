package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store with in-memory storage and an optional
// periodic cleanup loop. Suitable for single-instance deployments and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]map[string]*Session
	ttl      time.Duration
	ticker   *time.Ticker
	done     chan struct{}
	once     sync.Once
}

// NewMemoryStore creates an in-memory session store. When cleanupInterval
// is positive a background loop evicts sessions idle longer than ttl.
func NewMemoryStore(ttl, cleanupInterval time.Duration) *MemoryStore {
	store := &MemoryStore{
		sessions: make(map[uuid.UUID]map[string]*Session),
		ttl:      ttl,
		done:     make(chan struct{}),
	}

	if cleanupInterval > 0 {
		store.ticker = time.NewTicker(cleanupInterval)
		go store.cleanupLoop()
	}

	return store
}

func (m *MemoryStore) Put(ctx context.Context, session *Session) error {
	if session == nil || session.UserID == uuid.Nil || session.Key == "" {
		return ErrInvalidSession
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	byKey, ok := m.sessions[session.UserID]
	if !ok {
		byKey = make(map[string]*Session)
		m.sessions[session.UserID] = byKey
	}

	dup := *session
	byKey[session.Key] = &dup
	return nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byKey := m.sessions[userID]
	out := make([]*Session, 0, len(byKey))
	for _, s := range byKey {
		dup := *s
		out = append(out, &dup)
	}
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, userID uuid.UUID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if byKey, ok := m.sessions[userID]; ok {
		delete(byKey, key)
		if len(byKey) == 0 {
			delete(m.sessions, userID)
		}
	}
	return nil
}

func (m *MemoryStore) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, userID)
	return nil
}

func (m *MemoryStore) DeleteExpired(ctx context.Context, cutoff time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for userID, byKey := range m.sessions {
		for key, s := range byKey {
			if s.LastSeenAt.Before(cutoff) {
				delete(byKey, key)
			}
		}
		if len(byKey) == 0 {
			delete(m.sessions, userID)
		}
	}
	return nil
}

// Stats returns the number of users with sessions and the total session count.
func (m *MemoryStore) Stats() (users, total int) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users = len(m.sessions)
	for _, byKey := range m.sessions {
		total += len(byKey)
	}
	return users, total
}

// Close stops the cleanup goroutine.
func (m *MemoryStore) Close() error {
	m.once.Do(func() {
		if m.ticker != nil {
			m.ticker.Stop()
		}
		close(m.done)
	})
	return nil
}

func (m *MemoryStore) cleanupLoop() {
	for {
		select {
		case <-m.ticker.C:
			_ = m.DeleteExpired(context.Background(), time.Now().Add(-m.ttl))
		case <-m.done:
			return
		}
	}
}
