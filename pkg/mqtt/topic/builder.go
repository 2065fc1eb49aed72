package topic

import (
	"fmt"
	"strings"
)

// MQTT wildcards. Neither may appear in a published topic.
const (
	Wildcard      = "+"
	MultiWildcard = "#"
)

// Topic segments published by the driver manager.
// Subscribers outside this process depend on them; treat changes as breaking.
const (
	// SegmentDriverState carries one message per accepted driver state change.
	// Pattern: {root}/driver/state/{vehicle}
	SegmentDriverState = "driver/state"

	// SegmentManagerOnline is the retained liveness flag of the manager (last-will target).
	// Pattern: {root}/driver/online/{instance}
	SegmentManagerOnline = "driver/online"
)

// Builder encapsulates the logic for constructing MQTT topic strings.
type Builder struct {
	// root is the base namespace for all topics (e.g., "iov/v1", "fleet/prod").
	root string
}

// NewBuilder creates a Builder with the specified root namespace.
// Trailing slashes on root are ignored.
func NewBuilder(root string) *Builder {
	return &Builder{root: strings.TrimRight(root, "/")}
}

// Build returns {root}/{segment}/{id}.
// Vehicle names may contain characters that are wildcards in MQTT; they are escaped.
func (b *Builder) Build(segment, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, segment, escape(id))
}

// DriverState returns the state topic for one vehicle.
func (b *Builder) DriverState(vehicle string) string {
	return b.Build(SegmentDriverState, vehicle)
}

// DriverStateWildcard matches the state topics of every vehicle.
func (b *Builder) DriverStateWildcard() string {
	return fmt.Sprintf("%s/%s/%s", b.root, SegmentDriverState, Wildcard)
}

// ManagerOnline returns the liveness topic of one manager instance.
func (b *Builder) ManagerOnline(instance string) string {
	return b.Build(SegmentManagerOnline, instance)
}

var replacer = strings.NewReplacer("/", "_", Wildcard, "_", MultiWildcard, "_")

func escape(id string) string {
	return replacer.Replace(id)
}
