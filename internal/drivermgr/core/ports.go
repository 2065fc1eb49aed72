package core

import "context"

// OperationalState is the controlling system's readiness signal.
// The attachment manager refuses requests while it reports false.
type OperationalState interface {
	IsOperational() bool

	// State names the current state for error messages and logs.
	State() string
}

// Directory enumerates the known vehicles. It is read once when the entry pool is initialised.
type Directory interface {
	Vehicles(ctx context.Context) ([]VehicleDescriptor, error)
}

// PositionSource lists the positions a vehicle may be initialised to.
// It is consulted on every position request and never cached.
type PositionSource interface {
	Positions(ctx context.Context) ([]string, error)
}
