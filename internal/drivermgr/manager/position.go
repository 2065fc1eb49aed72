package manager

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/autopeer-io/drivermgr/internal/drivermgr/core"
)

const opInitPosition = "init_position"

// Positions returns the candidate initial positions, sorted by name.
// The position source is read on every call.
func (m *Manager) Positions(ctx context.Context) ([]string, error) {
	if m.positions == nil {
		return nil, errors.New("no position source configured")
	}
	positions, err := m.positions.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}
	positions = slices.Clone(positions)
	slices.Sort(positions)
	return slices.Compact(positions), nil
}

// InitPosition sets the initial position of a vehicle through its bound driver.
// Drivers that simulate their position handle it themselves; for all others the
// position is written into the process model.
func (m *Manager) InitPosition(ctx context.Context, vehicle, position string) (err error) {
	defer func() { observe(opInitPosition, err, false) }()

	e, err := m.entryFor(vehicle)
	if err != nil {
		return err
	}

	positions, err := m.Positions(ctx)
	if err != nil {
		return err
	}
	if _, found := slices.BinarySearch(positions, position); !found {
		return fmt.Errorf("%q: %w", position, core.ErrUnknownPosition)
	}

	e.Lock()
	defer e.Unlock()

	adapter := e.Adapter()
	if adapter == nil {
		return fmt.Errorf("init position of %s: %w", vehicle, core.ErrNoAdapter)
	}

	capability := core.PositionCapability(adapter)
	switch capability {
	case core.CapabilitySimulatesPosition:
		if err := adapter.(core.PositionSimulator).InitVehiclePosition(position); err != nil {
			return fmt.Errorf("init position of %s: %w: %w", vehicle, core.ErrAdapterOperation, err)
		}
	default:
		adapter.ProcessModel().SetVehiclePosition(position)
	}

	m.logger.Info("Initialized vehicle position", "vehicle", vehicle, "position", position, "capability", capability)
	return nil
}
