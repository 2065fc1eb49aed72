package core

// AdapterFactory provides communication adapters (drivers) for vehicles.
// Factories are registered once at process start and identified by their description.
type AdapterFactory interface {
	// Description is the unique, human-readable name of the factory.
	Description() string

	// Supports reports whether the factory can create an adapter for v.
	Supports(v VehicleDescriptor) bool

	// Create builds a new adapter bound to v. The adapter must start disabled.
	Create(v VehicleDescriptor) (CommAdapter, error)
}

// CommAdapter is a driver instance bound to exactly one vehicle for its lifetime.
// Enable and Disable may block while the driver starts or stops background I/O.
type CommAdapter interface {
	Enable() error
	Disable() error
	IsEnabled() bool

	// ProcessModel is the live telemetry of the vehicle as seen by this driver.
	ProcessModel() *ProcessModel
}

// PositionSimulator is implemented by adapters that simulate their vehicle's position.
// Such adapters may reset internal simulation state when the position is initialised.
type PositionSimulator interface {
	InitVehiclePosition(position string) error
}

// Capability describes how an adapter accepts an initial vehicle position.
type Capability int

const (
	// CapabilityPassive adapters receive the position as a plain process model write.
	CapabilityPassive Capability = iota
	// CapabilitySimulatesPosition adapters handle the position themselves.
	CapabilitySimulatesPosition
)

func (c Capability) String() string {
	switch c {
	case CapabilitySimulatesPosition:
		return "simulates-position"
	default:
		return "passive"
	}
}

// PositionCapability resolves the position capability of an adapter.
func PositionCapability(a CommAdapter) Capability {
	if _, ok := a.(PositionSimulator); ok {
		return CapabilitySimulatesPosition
	}
	return CapabilityPassive
}
