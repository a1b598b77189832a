package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Plan describes an access grant shape: which billing model applies, how
// many simultaneous sessions it allows, and the nominal price. Plans are
// read-only reference data consulted on session admission and renewal.
type Plan struct {
	ID          string
	Name        string
	Description string
	Model       BillingModel

	// MaxSessions caps distinct live session keys (IPs or device
	// fingerprints) per user. Always >= 1.
	MaxSessions int

	// Hours is the nominal connected-time budget one purchase grants.
	// Zero for days-model plans.
	Hours time.Duration

	// Days is the nominal calendar extension one purchase grants.
	// Zero for hours-model plans.
	Days int

	Price  Money
	Public bool
}

// Catalog loads the plan set consulted by the engine.
type Catalog interface {
	Load(ctx context.Context) (map[string]Plan, error)
}

// ValidatePlans ensures plan configurations are internally consistent.
// Catches configuration errors at load time rather than at admission time.
func ValidatePlans(plans map[string]Plan) error {
	for planID, plan := range plans {
		if plan.ID != planID {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan ID mismatch: map key %s != plan.ID %s", planID, plan.ID))
		}

		if plan.MaxSessions < 1 {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s allows %d concurrent sessions, minimum is 1", planID, plan.MaxSessions))
		}

		switch plan.Model {
		case ModelDays:
			if plan.Days <= 0 {
				return errors.Join(ErrInvalidPlanConfiguration,
					fmt.Errorf("days plan %s has no duration", planID))
			}
		case ModelHours:
			if plan.Hours <= 0 {
				return errors.Join(ErrInvalidPlanConfiguration,
					fmt.Errorf("hours plan %s has no hour budget", planID))
			}
		default:
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has unknown billing model %q", planID, plan.Model))
		}
	}
	return nil
}
