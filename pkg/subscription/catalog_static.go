package subscription

import (
	"context"
	"maps"
	"sync"
)

// staticCatalog implements Catalog over a fixed in-memory plan map.
type staticCatalog struct {
	mu    sync.RWMutex
	plans map[string]Plan
}

// NewStaticCatalog returns a Catalog holding a copy of the given plans.
func NewStaticCatalog(plans map[string]Plan) Catalog {
	return &staticCatalog{plans: maps.Clone(plans)}
}

// Load returns a copy of all plans so callers cannot mutate shared state.
func (c *staticCatalog) Load(ctx context.Context) (map[string]Plan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.plans), nil
}
