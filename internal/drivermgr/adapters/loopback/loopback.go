// Package loopback provides a virtual-vehicle driver that simulates position and
// energy without talking to hardware.
package loopback

import (
	"context"
	"sync"
	"time"

	"github.com/autopeer-io/drivermgr/internal/drivermgr/core"
	"github.com/autopeer-io/drivermgr/pkg/log"
)

// Description identifies the loopback factory.
const Description = "Loopback adapter (virtual vehicle)"

const (
	defaultTickInterval = time.Second
	defaultDrainPerTick = 1
	chargePerTick       = 10
)

// Option configures loopback adapters.
type Option func(*Factory)

// WithTickInterval sets how often the simulation advances while enabled.
func WithTickInterval(d time.Duration) Option {
	return func(f *Factory) {
		if d > 0 {
			f.tick = d
		}
	}
}

// WithDrainPerTick sets how many energy percent points are used per tick.
func WithDrainPerTick(n int) Option {
	return func(f *Factory) { f.drain = n }
}

// Factory creates loopback adapters. It supports every vehicle.
type Factory struct {
	tick  time.Duration
	drain int
}

var _ core.AdapterFactory = (*Factory)(nil)

func NewFactory(opts ...Option) *Factory {
	f := &Factory{tick: defaultTickInterval, drain: defaultDrainPerTick}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Factory) Description() string { return Description }

func (f *Factory) Supports(core.VehicleDescriptor) bool { return true }

func (f *Factory) Create(v core.VehicleDescriptor) (core.CommAdapter, error) {
	return &Adapter{
		vehicle: v,
		tick:    f.tick,
		drain:   f.drain,
		model:   core.NewProcessModel(v.Name),
		logger:  log.WithValues("vehicle", v.Name, "adapter", "loopback"),
	}, nil
}

// Adapter simulates one vehicle. While enabled, a background loop drains the
// energy level and charges the vehicle once it reaches the critical level.
type Adapter struct {
	vehicle core.VehicleDescriptor
	tick    time.Duration
	drain   int
	model   *core.ProcessModel
	logger  log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var (
	_ core.CommAdapter       = (*Adapter)(nil)
	_ core.PositionSimulator = (*Adapter)(nil)
)

// Enable starts the simulation loop.
func (a *Adapter) Enable() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.simulate(ctx, a.done)

	a.model.SetState(core.VehicleStateIdle)
	a.logger.Info("Loopback adapter enabled")
	return nil
}

// Disable stops the simulation loop and waits for it to exit.
func (a *Adapter) Disable() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel == nil {
		return nil
	}
	a.cancel()
	<-a.done
	a.cancel = nil
	a.done = nil

	a.model.SetState(core.VehicleStateUnknown)
	a.logger.Info("Loopback adapter disabled")
	return nil
}

func (a *Adapter) IsEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}

func (a *Adapter) ProcessModel() *core.ProcessModel { return a.model }

// InitVehiclePosition places the vehicle at position and resets the simulation:
// precise position and orientation are cleared and the battery is refilled.
func (a *Adapter) InitVehiclePosition(position string) error {
	a.model.SetVehiclePosition(position)
	a.model.SetPrecisePosition(nil)
	a.model.SetOrientationAngle(0)
	a.model.SetEnergyLevel(100)
	a.logger.Debug("Simulated position initialized", "position", position)
	return nil
}

func (a *Adapter) simulate(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.tick)
	defer ticker.Stop()

	charging := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			charging = a.step(charging)
		}
	}
}

// step advances the simulation by one tick and returns whether the vehicle is charging.
// Energy drains to the critical level, then recharges to the good level.
func (a *Adapter) step(charging bool) bool {
	level := a.model.EnergyLevel()
	good := a.vehicle.EnergyLevelGood
	if good <= a.vehicle.EnergyLevelCritical {
		good = 100
	}

	switch {
	case charging && level >= good:
		charging = false
	case !charging && level-a.drain <= a.vehicle.EnergyLevelCritical:
		charging = true
	}

	if charging {
		a.model.SetEnergyLevel(level + chargePerTick)
		a.model.SetState(core.VehicleStateCharging)
	} else {
		a.model.SetEnergyLevel(level - a.drain)
		a.model.SetState(core.VehicleStateIdle)
	}
	return charging
}
