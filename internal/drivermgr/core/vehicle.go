package core

import "maps"

// VehicleDescriptor is the immutable identity and static properties of a vehicle.
// It is owned by the vehicle directory; the driver manager only reads it.
type VehicleDescriptor struct {
	// Name uniquely identifies the vehicle.
	Name string `json:"name" mapstructure:"name"`

	// Length of the vehicle in millimetres.
	Length int `json:"length,omitempty" mapstructure:"length"`

	// EnergyLevelCritical and EnergyLevelGood are percentages used by drivers
	// that report energy levels.
	EnergyLevelCritical int `json:"energyLevelCritical,omitempty" mapstructure:"energy-level-critical"`
	EnergyLevelGood     int `json:"energyLevelGood,omitempty" mapstructure:"energy-level-good"`

	// Properties carries free-form capabilities, e.g. which drivers may serve the vehicle.
	Properties map[string]string `json:"properties,omitempty" mapstructure:"properties"`
}

// Property returns the value of a property and whether it is set.
func (v VehicleDescriptor) Property(key string) (string, bool) {
	val, ok := v.Properties[key]
	return val, ok
}

// HasProperty reports whether key is set to value.
func (v VehicleDescriptor) HasProperty(key, value string) bool {
	val, ok := v.Properties[key]
	return ok && val == value
}

// Clone returns a copy that shares no mutable state with v.
func (v VehicleDescriptor) Clone() VehicleDescriptor {
	v.Properties = maps.Clone(v.Properties)
	return v
}
