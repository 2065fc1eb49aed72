package pool

import (
	"fmt"
	"sync"

	"github.com/autopeer-io/drivermgr/internal/drivermgr/core"
)

// EntryState is a point-in-time copy of an entry, safe to hand to other goroutines.
type EntryState struct {
	Vehicle  string `json:"vehicle"`
	Factory  string `json:"factory,omitempty"`
	Attached bool   `json:"attached"`
	Enabled  bool   `json:"enabled"`
	Phase    string `json:"phase"`
	Seq      uint64 `json:"seq"`
}

// Entry is the per-vehicle binding of a vehicle to at most one driver.
//
// Two locks guard it. The operation lock (Lock/Unlock) serializes state transitions
// for this vehicle and is held across driver calls. The state lock guards the fields
// so readers never wait for a slow driver. adapter and factory are either both set
// or both nil.
type Entry struct {
	op sync.Mutex

	mu        sync.RWMutex
	vehicle   core.VehicleDescriptor
	adapter   core.CommAdapter
	factory   core.AdapterFactory
	seq       uint64
	lifecycle *lifecycle
}

func newEntry(v core.VehicleDescriptor) *Entry {
	return &Entry{
		vehicle:   v.Clone(),
		lifecycle: newLifecycle(),
	}
}

// Lock acquires the operation lock. Mutating methods require it to be held.
func (e *Entry) Lock() { e.op.Lock() }

// Unlock releases the operation lock.
func (e *Entry) Unlock() { e.op.Unlock() }

// Vehicle returns the vehicle descriptor. It never changes.
func (e *Entry) Vehicle() core.VehicleDescriptor { return e.vehicle }

// Name returns the vehicle name.
func (e *Entry) Name() string { return e.vehicle.Name }

// Adapter returns the bound driver, or nil.
func (e *Entry) Adapter() core.CommAdapter {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.adapter
}

// Factory returns the factory that produced the bound driver, or nil.
func (e *Entry) Factory() core.AdapterFactory {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.factory
}

// Seq returns the number of accepted mutations so far.
func (e *Entry) Seq() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.seq
}

// Phase returns the lifecycle phase recorded for the entry.
func (e *Entry) Phase() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lifecycle.Current()
}

// Snapshot copies the entry. Enabled is asked of the driver itself, outside the state lock.
func (e *Entry) Snapshot() EntryState {
	e.mu.RLock()
	st := e.stateLocked()
	adapter := e.adapter
	e.mu.RUnlock()

	if adapter != nil {
		st.Enabled = adapter.IsEnabled()
	}
	return st
}

func (e *Entry) stateLocked() EntryState {
	st := EntryState{
		Vehicle:  e.vehicle.Name,
		Attached: e.adapter != nil,
		Enabled:  e.lifecycle.Current() == PhaseEnabled,
		Phase:    e.lifecycle.Current(),
		Seq:      e.seq,
	}
	if e.factory != nil {
		st.Factory = e.factory.Description()
	}
	return st
}

// Bind records a new driver and its factory, replacing any previous binding, and
// bumps the sequence. The new driver must be disabled and the caller must hold the
// operation lock and have already disabled the old driver.
func (e *Entry) Bind(adapter core.CommAdapter, factory core.AdapterFactory) (EntryState, error) {
	if adapter == nil || factory == nil {
		return EntryState{}, fmt.Errorf("bind %s: adapter and factory must both be set", e.vehicle.Name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	events := []string{EventAttach}
	if e.lifecycle.Current() == PhaseEnabled {
		events = []string{EventDisable, EventAttach}
	}
	if err := e.lifecycle.fire(events...); err != nil {
		return EntryState{}, fmt.Errorf("bind %s: %w", e.vehicle.Name, err)
	}

	e.adapter = adapter
	e.factory = factory
	e.seq++
	return e.stateLocked(), nil
}

// Unbind clears the binding and bumps the sequence. The caller must hold the
// operation lock and have already disabled the driver.
func (e *Entry) Unbind() (EntryState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var events []string
	switch e.lifecycle.Current() {
	case PhaseEnabled:
		events = []string{EventDisable, EventDetach}
	case PhaseDisabled:
		events = []string{EventDetach}
	}
	if err := e.lifecycle.fire(events...); err != nil {
		return EntryState{}, fmt.Errorf("unbind %s: %w", e.vehicle.Name, err)
	}

	e.adapter = nil
	e.factory = nil
	e.seq++
	return e.stateLocked(), nil
}

// MarkEnabled records that the bound driver was enabled or disabled and bumps the
// sequence. The caller must hold the operation lock.
func (e *Entry) MarkEnabled(enabled bool) (EntryState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.adapter == nil {
		return EntryState{}, fmt.Errorf("%s: %w", e.vehicle.Name, core.ErrNoAdapter)
	}

	event, target := EventDisable, PhaseDisabled
	if enabled {
		event, target = EventEnable, PhaseEnabled
	}
	// The driver may have changed state on its own; only fire when the phase differs.
	if e.lifecycle.Current() != target {
		if err := e.lifecycle.fire(event); err != nil {
			return EntryState{}, fmt.Errorf("%s %s: %w", event, e.vehicle.Name, err)
		}
	}

	e.seq++
	return e.stateLocked(), nil
}
