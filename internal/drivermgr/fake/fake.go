// Package fake provides scriptable adapter factories and drivers for tests.
package fake

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/autopeer-io/drivermgr/internal/drivermgr/core"
)

// ErrInjected is returned by fakes configured to fail.
var ErrInjected = errors.New("injected failure")

// Factory creates Adapters. Supported nil means every vehicle is supported.
type Factory struct {
	Desc       string
	Supported  func(core.VehicleDescriptor) bool
	FailCreate bool

	// Simulating makes created adapters implement core.PositionSimulator.
	Simulating bool

	// FailEnable and FailDisable are copied into every created adapter.
	FailEnable  bool
	FailDisable bool

	created atomic.Int32
}

var _ core.AdapterFactory = (*Factory)(nil)

func (f *Factory) Description() string { return f.Desc }

func (f *Factory) Supports(v core.VehicleDescriptor) bool {
	return f.Supported == nil || f.Supported(v)
}

func (f *Factory) Create(v core.VehicleDescriptor) (core.CommAdapter, error) {
	if f.FailCreate {
		return nil, ErrInjected
	}
	f.created.Add(1)
	a := &Adapter{
		Vehicle:     v.Name,
		FailEnable:  f.FailEnable,
		FailDisable: f.FailDisable,
		model:       core.NewProcessModel(v.Name),
	}
	if f.Simulating {
		return &SimulatingAdapter{Adapter: a}, nil
	}
	return a, nil
}

// Created returns how many adapters the factory has built.
func (f *Factory) Created() int { return int(f.created.Load()) }

// Adapter is a passive fake driver that counts lifecycle calls.
type Adapter struct {
	Vehicle     string
	FailEnable  bool
	FailDisable bool

	mu       sync.Mutex
	enabled  bool
	enables  int
	disables int
	model    *core.ProcessModel
}

var _ core.CommAdapter = (*Adapter)(nil)

func (a *Adapter) Enable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enables++
	if a.FailEnable {
		return ErrInjected
	}
	a.enabled = true
	return nil
}

func (a *Adapter) Disable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disables++
	if a.FailDisable {
		return ErrInjected
	}
	a.enabled = false
	return nil
}

func (a *Adapter) IsEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

func (a *Adapter) ProcessModel() *core.ProcessModel { return a.model }

// Calls returns the number of Enable and Disable calls so far.
func (a *Adapter) Calls() (enables, disables int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enables, a.disables
}

// SetFailDisable changes whether Disable fails.
func (a *Adapter) SetFailDisable(fail bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.FailDisable = fail
}

// SimulatingAdapter is an Adapter that also simulates its vehicle's position.
type SimulatingAdapter struct {
	*Adapter

	initMu    sync.Mutex
	positions []string
}

var _ core.PositionSimulator = (*SimulatingAdapter)(nil)

func (s *SimulatingAdapter) InitVehiclePosition(position string) error {
	s.initMu.Lock()
	s.positions = append(s.positions, position)
	s.initMu.Unlock()
	s.model.SetVehiclePosition(position)
	return nil
}

// Initialised returns every position passed to InitVehiclePosition.
func (s *SimulatingAdapter) Initialised() []string {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	return append([]string(nil), s.positions...)
}

// Unwrap returns the underlying fake adapter.
func Unwrap(a core.CommAdapter) *Adapter {
	switch t := a.(type) {
	case *Adapter:
		return t
	case *SimulatingAdapter:
		return t.Adapter
	}
	return nil
}

// Vehicles builds bare descriptors for the given names.
func Vehicles(names ...string) []core.VehicleDescriptor {
	out := make([]core.VehicleDescriptor, 0, len(names))
	for _, n := range names {
		out = append(out, core.VehicleDescriptor{Name: n})
	}
	return out
}

// Operational is a settable core.OperationalState.
type Operational struct {
	down atomic.Bool
}

func (o *Operational) IsOperational() bool { return !o.down.Load() }

func (o *Operational) State() string {
	if o.down.Load() {
		return "MODELLING"
	}
	return "OPERATING"
}

// SetOperational flips the reported readiness.
func (o *Operational) SetOperational(up bool) { o.down.Store(!up) }

// Positions is a static core.PositionSource that counts reads.
type Positions struct {
	mu    sync.Mutex
	List  []string
	Err   error
	reads int
}

func (p *Positions) Positions(_ context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reads++
	if p.Err != nil {
		return nil, p.Err
	}
	return append([]string(nil), p.List...), nil
}

// Set replaces the position list.
func (p *Positions) Set(list ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.List = list
}

// Reads returns how often Positions was called.
func (p *Positions) Reads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reads
}
