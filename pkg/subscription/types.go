package subscription

// BillingModel selects which rule governs a subscription's expiry.
// Exactly one model governs any given subscription.
type BillingModel string

const (
	// ModelDays grants access for a calendar window ending at ExpiresAt.
	ModelDays BillingModel = "days"
	// ModelHours grants a finite budget of connected time, metered while
	// the user has at least one live session.
	ModelHours BillingModel = "hours"
)

// Status represents the derived lifecycle state of a subscription.
// It is never stored; it is always computed from the record and "now".
type Status string

const (
	StatusActive       Status = "active"
	StatusExpiringSoon Status = "expiring_soon"
	StatusExpired      Status = "expired"
	StatusCancelled    Status = "cancelled"
)

// Terminal reports whether no further automatic forward transition occurs
// from this status absent an explicit renewal.
func (s Status) Terminal() bool {
	return s == StatusExpired || s == StatusCancelled
}

// Money represents a monetary amount in the smallest currency unit.
// For example, $10.99 USD would be Amount: 1099, Currency: "USD".
type Money struct {
	Amount   int64  `yaml:"amount"`
	Currency string `yaml:"currency"`
}
