package directory

import (
	"context"
	"slices"

	"github.com/autopeer-io/drivermgr/internal/drivermgr/core"
)

// Static is an in-memory vehicle directory.
type Static struct {
	vehicles  []core.VehicleDescriptor
	positions []string
}

var (
	_ core.Directory      = (*Static)(nil)
	_ core.PositionSource = (*Static)(nil)
)

// NewStatic creates a directory holding vehicles and positions.
func NewStatic(vehicles []core.VehicleDescriptor, positions ...string) (*Static, error) {
	if err := Validate(vehicles); err != nil {
		return nil, err
	}
	s := &Static{positions: slices.Clone(positions)}
	for _, v := range vehicles {
		s.vehicles = append(s.vehicles, v.Clone())
	}
	return s, nil
}

func (s *Static) Vehicles(context.Context) ([]core.VehicleDescriptor, error) {
	out := make([]core.VehicleDescriptor, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		out = append(out, v.Clone())
	}
	return out, nil
}

func (s *Static) Positions(context.Context) ([]string, error) {
	return slices.Clone(s.positions), nil
}
