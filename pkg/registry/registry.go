// Package registry pools graph stores per tenant. Each logical user gets
// its own database target, created lazily on first use. Entries are never
// evicted; under very many tenants the pool grows unboundedly, accepted for
// now since tenant counts are small and stores are cheap handles over a
// shared connection pool.
package registry

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mnemon-dev/mnemon/pkg/driver"
	"github.com/mnemon-dev/mnemon/pkg/logger"
)

// Factory builds the store for a tenant id.
type Factory func(ctx context.Context, tenant string) (driver.GraphStore, error)

// Registry is a lazy per-tenant store pool. Safe for concurrent use.
type Registry struct {
	factory Factory

	mu     sync.Mutex
	stores map[string]driver.GraphStore
	inits  map[string]*sync.Mutex
}

// New builds a registry around factory.
func New(factory Factory) *Registry {
	return &Registry{
		factory: factory,
		stores:  make(map[string]driver.GraphStore),
		inits:   make(map[string]*sync.Mutex),
	}
}

// Get returns the tenant's store, creating it on first use. Concurrent
// first calls for the same tenant are serialized; only one store is built.
// The factory runs under a per-tenant lock, so a slow connection for one
// tenant never blocks the others.
func (r *Registry) Get(ctx context.Context, tenant string) (driver.GraphStore, error) {
	r.mu.Lock()
	if store, ok := r.stores[tenant]; ok {
		r.mu.Unlock()
		return store, nil
	}
	init, ok := r.inits[tenant]
	if !ok {
		init = &sync.Mutex{}
		r.inits[tenant] = init
	}
	r.mu.Unlock()

	init.Lock()
	defer init.Unlock()

	r.mu.Lock()
	if store, ok := r.stores[tenant]; ok {
		r.mu.Unlock()
		return store, nil
	}
	r.mu.Unlock()

	store, err := r.factory(ctx, tenant)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.stores[tenant] = store
	r.mu.Unlock()
	logger.Get().Info("graph store created", zap.String("tenant", tenant))
	return store, nil
}

// Tenants lists the tenants with live stores.
func (r *Registry) Tenants() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.stores))
	for tenant := range r.stores {
		out = append(out, tenant)
	}
	return out
}

// Close closes every pooled store. The registry must not be used after.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for tenant, store := range r.stores {
		if err := store.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.stores, tenant)
	}
	return firstErr
}
