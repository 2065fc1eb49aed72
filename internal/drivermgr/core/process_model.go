package core

import (
	"sync"
	"time"
)

// Vehicle states reported through the process model.
const (
	VehicleStateUnknown     = "UNKNOWN"
	VehicleStateUnavailable = "UNAVAILABLE"
	VehicleStateIdle        = "IDLE"
	VehicleStateExecuting   = "EXECUTING"
	VehicleStateCharging    = "CHARGING"
	VehicleStateError       = "ERROR"
)

// Triple is a precise position in millimetres.
type Triple struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
	Z int64 `json:"z"`
}

// ProcessModelState is a point-in-time copy of a ProcessModel.
type ProcessModelState struct {
	Vehicle          string    `json:"vehicle"`
	Position         string    `json:"position,omitempty"`
	PrecisePosition  *Triple   `json:"precisePosition,omitempty"`
	OrientationAngle float64   `json:"orientationAngle"`
	EnergyLevel      int       `json:"energyLevel"`
	State            string    `json:"state"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// ProcessModel is the mutable telemetry container owned by one adapter.
// It is safe for concurrent use; the adapter's background work and callers
// initialising positions write to it concurrently.
type ProcessModel struct {
	mu    sync.RWMutex
	state ProcessModelState
	now   func() time.Time
}

// NewProcessModel creates a process model for vehicle with full energy and unknown state.
func NewProcessModel(vehicle string) *ProcessModel {
	pm := &ProcessModel{now: time.Now}
	pm.state = ProcessModelState{
		Vehicle:     vehicle,
		EnergyLevel: 100,
		State:       VehicleStateUnknown,
		UpdatedAt:   pm.now(),
	}
	return pm
}

func (p *ProcessModel) update(fn func(s *ProcessModelState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.state)
	p.state.UpdatedAt = p.now()
}

// SetVehiclePosition stores the logical position without any validation.
func (p *ProcessModel) SetVehiclePosition(position string) {
	p.update(func(s *ProcessModelState) { s.Position = position })
}

// VehiclePosition returns the last known logical position.
func (p *ProcessModel) VehiclePosition() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.Position
}

// SetPrecisePosition stores the precise position; nil clears it.
func (p *ProcessModel) SetPrecisePosition(t *Triple) {
	p.update(func(s *ProcessModelState) {
		if t == nil {
			s.PrecisePosition = nil
			return
		}
		c := *t
		s.PrecisePosition = &c
	})
}

// SetOrientationAngle stores the orientation in degrees.
func (p *ProcessModel) SetOrientationAngle(angle float64) {
	p.update(func(s *ProcessModelState) { s.OrientationAngle = angle })
}

// SetEnergyLevel stores the energy level, clamped to [0, 100].
func (p *ProcessModel) SetEnergyLevel(level int) {
	p.update(func(s *ProcessModelState) { s.EnergyLevel = min(max(level, 0), 100) })
}

// EnergyLevel returns the last known energy level.
func (p *ProcessModel) EnergyLevel() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.EnergyLevel
}

// SetState stores the vehicle state.
func (p *ProcessModel) SetState(state string) {
	p.update(func(s *ProcessModelState) { s.State = state })
}

// Snapshot returns a copy of the current telemetry.
func (p *ProcessModel) Snapshot() ProcessModelState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := p.state
	if s.PrecisePosition != nil {
		c := *s.PrecisePosition
		s.PrecisePosition = &c
	}
	return s
}
