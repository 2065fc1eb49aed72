// Package passive provides a driver that only holds telemetry pushed into its
// process model by an external source.
package passive

import (
	"sync/atomic"

	"github.com/autopeer-io/drivermgr/internal/drivermgr/core"
)

const (
	// Description identifies the passive factory.
	Description = "Passive telemetry adapter"

	// PropertyTelemetry marks vehicles whose telemetry is delivered passively.
	PropertyTelemetry = "drivermgr.io/telemetry"
	// TelemetryPassive is the PropertyTelemetry value the factory supports.
	TelemetryPassive = "passive"
)

type Factory struct{}

var _ core.AdapterFactory = Factory{}

func NewFactory() Factory { return Factory{} }

func (Factory) Description() string { return Description }

func (Factory) Supports(v core.VehicleDescriptor) bool {
	return v.HasProperty(PropertyTelemetry, TelemetryPassive)
}

func (Factory) Create(v core.VehicleDescriptor) (core.CommAdapter, error) {
	return &Adapter{model: core.NewProcessModel(v.Name)}, nil
}

// Adapter has no position simulation; enabling it only marks it as accepting telemetry.
type Adapter struct {
	enabled atomic.Bool
	model   *core.ProcessModel
}

var _ core.CommAdapter = (*Adapter)(nil)

func (a *Adapter) Enable() error {
	a.enabled.Store(true)
	a.model.SetState(core.VehicleStateIdle)
	return nil
}

func (a *Adapter) Disable() error {
	a.enabled.Store(false)
	a.model.SetState(core.VehicleStateUnavailable)
	return nil
}

func (a *Adapter) IsEnabled() bool { return a.enabled.Load() }

func (a *Adapter) ProcessModel() *core.ProcessModel { return a.model }
