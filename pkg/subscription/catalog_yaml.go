package subscription

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// yamlCatalog loads plans from an ops-editable YAML file:
//
//	plans:
//	  - id: monthly
//	    name: Monthly
//	    model: days
//	    max_sessions: 2
//	    days: 30
//	    price: {amount: 1500, currency: USD}
//	  - id: pack-50h
//	    name: 50 hour pack
//	    model: hours
//	    max_sessions: 1
//	    hours: 50h
//	    price: {amount: 2500, currency: USD}
//
// The file is re-read on every Load so plan edits take effect on the next
// engine restart or catalog reload without a deploy.
type yamlCatalog struct {
	path string
}

// NewYAMLCatalog returns a Catalog backed by the YAML file at path.
func NewYAMLCatalog(path string) Catalog {
	return &yamlCatalog{path: path}
}

type yamlPlanFile struct {
	Plans []yamlPlan `yaml:"plans"`
}

type yamlPlan struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Model       string `yaml:"model"`
	MaxSessions int    `yaml:"max_sessions"`
	Hours       string `yaml:"hours"`
	Days        int    `yaml:"days"`
	Price       Money  `yaml:"price"`
	Public      bool   `yaml:"public"`
}

func (c *yamlCatalog) Load(ctx context.Context) (map[string]Plan, error) {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	var file yamlPlanFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	plans := make(map[string]Plan, len(file.Plans))
	for _, yp := range file.Plans {
		plan := Plan{
			ID:          yp.ID,
			Name:        yp.Name,
			Description: yp.Description,
			Model:       BillingModel(yp.Model),
			MaxSessions: yp.MaxSessions,
			Days:        yp.Days,
			Price:       yp.Price,
			Public:      yp.Public,
		}

		if yp.Hours != "" {
			hours, err := time.ParseDuration(yp.Hours)
			if err != nil {
				return nil, errors.Join(ErrFailedToLoadPlans,
					fmt.Errorf("plan %s: invalid hours %q: %w", yp.ID, yp.Hours, err))
			}
			plan.Hours = hours
		}

		plans[plan.ID] = plan
	}

	if err := ValidatePlans(plans); err != nil {
		return nil, err
	}

	return plans, nil
}
