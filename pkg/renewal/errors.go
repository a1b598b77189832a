package renewal

import "errors"

var (
	// ErrInvalidRenewal is returned when a renewal would not extend access:
	// a non-positive extension or a negative payment amount.
	ErrInvalidRenewal = errors.New("invalid renewal")

	// ErrModelMismatch is returned when the subscription's billing model
	// does not match its plan's model. The record is left untouched.
	ErrModelMismatch = errors.New("billing model does not match plan")
)
