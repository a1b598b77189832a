package subscription

import "errors"

var (
	ErrNotFound      = errors.New("subscription not found")
	ErrAlreadyExists = errors.New("subscription already exists")

	ErrPlanNotFound             = errors.New("subscription plan not found")
	ErrInvalidPlanConfiguration = errors.New("invalid subscription plan configuration")
	ErrFailedToLoadPlans        = errors.New("failed to load subscription plans")

	ErrFailedToSave = errors.New("failed to save subscription")
	ErrFailedToList = errors.New("failed to list subscriptions due for sweep")
)
