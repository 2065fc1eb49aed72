package registry

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/autopeer-io/drivermgr/internal/drivermgr/core"
)

// Registry holds every installed adapter factory, keyed by description.
// Factories are installed at process start and removed at shutdown; all
// queries are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]core.AdapterFactory
}

// New creates a registry containing the given factories.
func New(factories ...core.AdapterFactory) (*Registry, error) {
	r := &Registry{factories: make(map[string]core.AdapterFactory)}
	for _, f := range factories {
		if err := r.Register(f); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register installs a factory. Descriptions must be unique and non-empty.
func (r *Registry) Register(f core.AdapterFactory) error {
	if f == nil {
		return fmt.Errorf("nil adapter factory")
	}

	desc := f.Description()
	if strings.TrimSpace(desc) == "" {
		return fmt.Errorf("adapter factory %T has an empty description", f)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[desc]; exists {
		return fmt.Errorf("duplicate adapter factory: %s", desc)
	}
	r.factories[desc] = f
	return nil
}

// Unregister removes a factory. Adapters it already created stay bound.
func (r *Registry) Unregister(description string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.factories, description)
}

// GetFactories returns all installed factories sorted by description.
// The returned slice is owned by the caller.
func (r *Registry) GetFactories() []core.AdapterFactory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.AdapterFactory, 0, len(r.factories))
	for _, f := range r.factories {
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b core.AdapterFactory) int {
		return strings.Compare(a.Description(), b.Description())
	})
	return out
}

// FindFactoriesFor returns the factories that support v, in GetFactories order.
// A vehicle no factory supports yields an empty slice.
func (r *Registry) FindFactoriesFor(v core.VehicleDescriptor) []core.AdapterFactory {
	return r.filter(func(f core.AdapterFactory) bool { return f.Supports(v) })
}

// FindFactoriesForAll returns the factories that support every vehicle in vs.
// With no vehicles every factory qualifies.
func (r *Registry) FindFactoriesForAll(vs []core.VehicleDescriptor) []core.AdapterFactory {
	return r.filter(func(f core.AdapterFactory) bool {
		for _, v := range vs {
			if !f.Supports(v) {
				return false
			}
		}
		return true
	})
}

// FindFactory looks a factory up by its description.
func (r *Registry) FindFactory(description string) (core.AdapterFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[description]
	return f, ok
}

// Len returns the number of installed factories.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}

func (r *Registry) filter(keep func(core.AdapterFactory) bool) []core.AdapterFactory {
	all := r.GetFactories()
	out := make([]core.AdapterFactory, 0, len(all))
	for _, f := range all {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}
