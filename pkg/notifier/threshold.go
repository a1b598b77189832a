package notifier

import (
	"time"

	"github.com/google/uuid"
)

// Threshold is a point on the approach to a deadline at which the user is
// warned. Offset is how long before the deadline the threshold arms; an
// offset of zero fires at and after expiry.
type Threshold struct {
	Label  string
	Offset time.Duration
}

// Default threshold labels.
const (
	LabelExpiry6h = "expiry_6h"
	LabelExpiry1h = "expiry_1h"
	LabelExpired  = "expired"
)

// DefaultThresholds returns the standard warning ladder: six hours out,
// one hour out, and expiry itself. Ordered from farthest to nearest.
func DefaultThresholds() []Threshold {
	return []Threshold{
		{Label: LabelExpiry6h, Offset: 6 * time.Hour},
		{Label: LabelExpiry1h, Offset: time.Hour},
		{Label: LabelExpired, Offset: 0},
	}
}

// Due returns the thresholds already crossed at distance d from the
// deadline. A sweep that was down during the 6h mark still emits that
// notification on the next pass because crossing is judged by distance,
// not by the sweep observing the exact instant.
func Due(thresholds []Threshold, d time.Duration) []Threshold {
	out := make([]Threshold, 0, len(thresholds))
	for _, th := range thresholds {
		if d <= th.Offset {
			out = append(out, th)
		}
	}
	return out
}

// Key identifies one notification for deduplication. Deadline is part of
// the identity: a renewal moves the deadline, and warnings for the new
// deadline are legitimately new notifications.
type Key struct {
	UserID   uuid.UUID
	Label    string
	Deadline time.Time
}
