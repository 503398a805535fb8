package metadata

import (
	"context"
	"sync"

	"planadmin-backend/internal/store"
)

// Registry caches one TableDescriptor per table name. Descriptors are
// introspected on first lookup and held until Invalidate is called for
// that table (or Reset for all of them).
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*TableDescriptor
}

func NewRegistry() *Registry {
	return &Registry{
		tables: make(map[string]*TableDescriptor),
	}
}

// Descriptor returns the cached descriptor for the table, introspecting it
// on a miss.
func (r *Registry) Descriptor(ctx context.Context, q store.Querier, table string) (*TableDescriptor, error) {
	r.mu.RLock()
	td, ok := r.tables[table]
	r.mu.RUnlock()
	if ok {
		return td, nil
	}

	td, err := LoadTableDescriptor(ctx, q, table)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.tables[table] = td
	r.mu.Unlock()
	return td, nil
}

// Invalidate drops the cached descriptor for one table.
func (r *Registry) Invalidate(table string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tables, table)
}

// Reset drops every cached descriptor.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables = make(map[string]*TableDescriptor)
}
