package registry

import (
	"context"
	"sync"

	"github.com/cafebazaar/thumbsup/pkg/thumbsup"
)

// Registry is an in-memory thumbsup.Directory for hosts that keep no entity
// store of their own.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]map[string]struct{}
}

func New(entities ...thumbsup.Entity) *Registry {
	result := &Registry{entities: make(map[string]map[string]struct{})}
	result.Register(entities...)

	return result
}

func (r *Registry) Register(entities ...thumbsup.Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entity := range entities {
		ref := thumbsup.RefOf(entity)

		ids, ok := r.entities[ref.Type]
		if !ok {
			ids = make(map[string]struct{})
			r.entities[ref.Type] = ids
		}
		ids[ref.ID] = struct{}{}
	}
}

// Unregister forgets entity; the caller still owns deleting its votes.
func (r *Registry) Unregister(entity thumbsup.Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ref := thumbsup.RefOf(entity)
	delete(r.entities[ref.Type], ref.ID)
}

func (r *Registry) Exists(ctx context.Context, ref thumbsup.Ref) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entities[ref.Type][ref.ID]
	return ok, nil
}

func (r *Registry) Existing(ctx context.Context, entityType string, ids []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	known := r.entities[entityType]
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := known[id]; ok {
			result = append(result, id)
		}
	}

	return result, nil
}

var _ thumbsup.Directory = (*Registry)(nil)
