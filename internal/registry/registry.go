// Package registry maps runtime kinds to the adapter that serves them
// (spec.md §4.2). Adding an adapter never touches the Lifecycle Manager —
// registry lookups hand out shared references that the manager borrows.
package registry

import (
	"context"
	"strings"
	"sync"

	"github.com/codervisor/clawden/internal/adapter"
	"github.com/codervisor/clawden/internal/runtimekind"
)

// Registry is a concurrency-safe runtime_kind -> Adapter lookup table.
type Registry struct {
	mu       sync.RWMutex
	adapters map[runtimekind.Kind]adapter.Adapter
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{adapters: make(map[runtimekind.Kind]adapter.Adapter)}
}

// Register binds an adapter to a runtime kind, replacing any prior binding.
func (r *Registry) Register(kind runtimekind.Kind, a adapter.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[kind] = a
}

// Get returns the adapter bound to kind, if any.
func (r *Registry) Get(kind runtimekind.Kind) (adapter.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[kind]
	return a, ok
}

// Has reports whether kind has a registered adapter.
func (r *Registry) Has(kind runtimekind.Kind) bool {
	_, ok := r.Get(kind)
	return ok
}

// List returns every registered kind, sorted by canonical dashed form for
// deterministic output.
func (r *Registry) List() []runtimekind.Kind {
	r.mu.RLock()
	kinds := make([]runtimekind.Kind, 0, len(r.adapters))
	for k := range r.adapters {
		kinds = append(kinds, k)
	}
	r.mu.RUnlock()
	return runtimekind.Sorted(kinds)
}

// DetectRuntimeForCapability returns the first registered runtime (in List
// order) whose adapter metadata advertises a capability equal to cap,
// ignoring ASCII case.
func (r *Registry) DetectRuntimeForCapability(ctx context.Context, cap string) (runtimekind.Kind, bool) {
	for _, kind := range r.List() {
		a, ok := r.Get(kind)
		if !ok {
			continue
		}
		meta, err := a.Metadata(ctx)
		if err != nil {
			continue
		}
		for _, c := range meta.Capabilities {
			if strings.EqualFold(c, cap) {
				return kind, true
			}
		}
	}
	return runtimekind.Kind(0), false
}
