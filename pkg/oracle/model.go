package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ModelStore is the persistence contract for models; the active-flip must
// be atomic (§5: "writers use an exclusive-write transaction that flips
// status atomically from training -> active and the prior active ->
// archived").
type ModelStore interface {
	GetActiveModel(ctx context.Context, t ModelType) (*Model, error)
	InsertModel(ctx context.Context, m *Model) error
	ActivateModel(ctx context.Context, m *Model) error // atomic flip, see above
}

// ActiveModelCache is the only global mutable state in the system (design
// note "Shared mutable pipeline state"): a reader-preferring cache of the
// active model pointer per type, re-queried on miss or on an explicit
// version-mismatch signal from MTS after it flips activation.
type ActiveModelCache struct {
	mu     sync.RWMutex
	byType map[ModelType]*Model
	store  ModelStore
}

func NewActiveModelCache(store ModelStore) *ActiveModelCache {
	return &ActiveModelCache{byType: make(map[ModelType]*Model), store: store}
}

// Get returns the cached active model, re-querying the store on a miss.
func (c *ActiveModelCache) Get(ctx context.Context, t ModelType) (*Model, error) {
	c.mu.RLock()
	m, ok := c.byType[t]
	c.mu.RUnlock()
	if ok {
		return m, nil
	}

	fresh, err := c.store.GetActiveModel(ctx, t)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.byType[t] = fresh
	c.mu.Unlock()
	return fresh, nil
}

// Invalidate forces the next Get to re-query the store; called after MTS
// flips activation for a type.
func (c *ActiveModelCache) Invalidate(t ModelType) {
	c.mu.Lock()
	delete(c.byType, t)
	c.mu.Unlock()
}

// Activate trains-then-flips: inserts the new model row with status
// training, then atomically activates it (archiving the prior active row
// of the same type), per §5. Two concurrent activations of the same type
// race on the store's transaction; the later one observes
// ConflictActivation from the store and this wraps that into the §7 code.
func (c *ActiveModelCache) Activate(ctx context.Context, m *Model) error {
	m.Status = ModelTraining
	if err := c.store.InsertModel(ctx, m); err != nil {
		return err
	}
	m.Status = ModelActive
	if err := c.store.ActivateModel(ctx, m); err != nil {
		return NewError(CodeConflictActivation, "activating %s model %s: %v", m.Type, m.ID, err)
	}
	c.Invalidate(m.Type)
	return nil
}

// NewModelVersion is the timestamped version string convention used
// across MTS's four model types.
func NewModelVersion(t ModelType, at time.Time) string {
	return fmt.Sprintf("%s-%s", t, at.UTC().Format("20060102T150405Z"))
}
