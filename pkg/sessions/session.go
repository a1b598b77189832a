package sessions

import (
	"time"

	"github.com/google/uuid"
)

// Session is a transient record of live presence from one session key
// (an IP address or device fingerprint). It is created on first activity,
// refreshed on every subsequent request, and evicted after the inactivity
// timeout. Sessions are never persisted durably.
type Session struct {
	UserID     uuid.UUID `json:"user_id"`
	Key        string    `json:"key"`
	StartedAt  time.Time `json:"started_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// IsLive reports whether the session has seen activity within the timeout.
// Sessions past the timeout are treated as implicitly closed.
func (s *Session) IsLive(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastSeenAt) < timeout
}
