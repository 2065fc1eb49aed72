package directory

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/autopeer-io/drivermgr/internal/drivermgr/core"
)

// Document is the vehicle directory as stored in a file or object.
//
//	vehicles:
//	  - name: Vehicle-01
//	    length: 1000
//	    energy-level-critical: 20
//	    energy-level-good: 80
//	    properties:
//	      drivermgr.io/telemetry: passive
//	positions: [Point-1, Point-2]
//
// Property keys are case-insensitive and read in lower case.
type Document struct {
	Vehicles  []Vehicle `mapstructure:"vehicles"`
	Positions []string  `mapstructure:"positions"`
}

// Vehicle is one vehicle entry of a Document.
type Vehicle struct {
	Name                string            `mapstructure:"name"`
	Length              int               `mapstructure:"length"`
	EnergyLevelCritical int               `mapstructure:"energy-level-critical"`
	EnergyLevelGood     int               `mapstructure:"energy-level-good"`
	Properties          map[string]string `mapstructure:"properties"`
}

// Parse reads a document in the given format ("yaml", "json" or "toml").
func Parse(r io.Reader, format string) (*Document, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("parse vehicle document: %w", err)
	}

	var doc Document
	if err := v.Unmarshal(&doc); err != nil {
		return nil, fmt.Errorf("decode vehicle document: %w", err)
	}
	return &doc, nil
}

// FormatOf derives the document format from a file name or object key.
func FormatOf(name string) string {
	switch ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")); ext {
	case "yml", "":
		return "yaml"
	default:
		return ext
	}
}

// Descriptors converts and validates the vehicles of the document.
func (d *Document) Descriptors() ([]core.VehicleDescriptor, error) {
	out := make([]core.VehicleDescriptor, 0, len(d.Vehicles))
	for _, v := range d.Vehicles {
		out = append(out, core.VehicleDescriptor{
			Name:                strings.TrimSpace(v.Name),
			Length:              v.Length,
			EnergyLevelCritical: v.EnergyLevelCritical,
			EnergyLevelGood:     v.EnergyLevelGood,
			Properties:          v.Properties,
		})
	}
	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Validate rejects empty and duplicate vehicle names.
func Validate(vehicles []core.VehicleDescriptor) error {
	seen := make(map[string]struct{}, len(vehicles))
	for i, v := range vehicles {
		if v.Name == "" {
			return fmt.Errorf("vehicle #%d has no name", i)
		}
		if _, dup := seen[v.Name]; dup {
			return fmt.Errorf("duplicate vehicle name %q", v.Name)
		}
		seen[v.Name] = struct{}{}
	}
	return nil
}
