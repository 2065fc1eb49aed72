package pool

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/autopeer-io/drivermgr/internal/drivermgr/core"
	"github.com/autopeer-io/drivermgr/internal/pkg/metrics"
)

// Pool holds one entry per known vehicle. Its key set is fixed by Initialize.
type Pool struct {
	mu          sync.RWMutex
	entries     map[string]*Entry
	initialized bool
}

// New creates an empty, uninitialised pool.
func New() *Pool {
	return &Pool{}
}

// Initialize creates a detached entry for every vehicle. It may only be called once.
func (p *Pool) Initialize(vehicles []core.VehicleDescriptor) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return core.ErrAlreadyInitialized
	}

	entries := make(map[string]*Entry, len(vehicles))
	for _, v := range vehicles {
		if strings.TrimSpace(v.Name) == "" {
			return fmt.Errorf("vehicle with empty name")
		}
		if _, dup := entries[v.Name]; dup {
			return fmt.Errorf("duplicate vehicle name: %s", v.Name)
		}
		entries[v.Name] = newEntry(v)
	}

	p.entries = entries
	p.initialized = true
	metrics.EntryPhases.WithLabelValues(PhaseDetached).Add(float64(len(entries)))
	return nil
}

// Initialized reports whether Initialize has completed.
func (p *Pool) Initialized() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.initialized
}

// GetEntries returns a copy of the name to entry map.
func (p *Pool) GetEntries() (map[string]*Entry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.initialized {
		return nil, core.ErrNotInitialized
	}
	out := make(map[string]*Entry, len(p.entries))
	for name, e := range p.entries {
		out[name] = e
	}
	return out, nil
}

// SortedEntries returns every entry ordered by vehicle name.
func (p *Pool) SortedEntries() ([]*Entry, error) {
	entries, err := p.GetEntries()
	if err != nil {
		return nil, err
	}
	out := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *Entry) int { return strings.Compare(a.Name(), b.Name()) })
	return out, nil
}

// GetEntryFor returns the entry of the named vehicle.
func (p *Pool) GetEntryFor(name string) (*Entry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.initialized {
		return nil, core.ErrNotInitialized
	}
	e, ok := p.entries[name]
	if !ok {
		return nil, fmt.Errorf("vehicle %q: %w", name, core.ErrNotFound)
	}
	return e, nil
}

// Names returns the sorted vehicle names. It is empty before initialisation.
func (p *Pool) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.entries))
	for name := range p.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
