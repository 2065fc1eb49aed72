// Copyright 2025 The Autopeer Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"fmt"
	"slices"

	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
)

var formats = []string{"console", "json"}

// Options configures the process-wide logger.
type Options struct {
	// Name is added to every record as the logger name.
	Name string `json:"name,omitempty" mapstructure:"name"`

	Level         string `json:"level,omitempty" mapstructure:"level"`
	Format        string `json:"format,omitempty" mapstructure:"format"`
	EnableColor   bool   `json:"enable-color,omitempty" mapstructure:"enable-color"`
	DisableCaller bool   `json:"disable-caller,omitempty" mapstructure:"disable-caller"`

	// CallerSkip is 2 for calls through the package-level functions.
	CallerSkip int `json:"caller-skip,omitempty" mapstructure:"caller-skip"`

	// OutputPaths accepts file paths and the names "stdout" and "stderr".
	OutputPaths []string `json:"output-paths,omitempty" mapstructure:"output-paths"`

	// Rotation tees JSON records into a size-rotated file.
	Rotation RotationOptions `json:"rotation,omitempty" mapstructure:"rotation"`
}

// RotationOptions configures the lumberjack file sink.
type RotationOptions struct {
	Filename   string `json:"filename,omitempty" mapstructure:"filename"`
	MaxSize    int    `json:"max-size,omitempty" mapstructure:"max-size"` // megabytes
	MaxBackups int    `json:"max-backups,omitempty" mapstructure:"max-backups"`
	MaxAge     int    `json:"max-age,omitempty" mapstructure:"max-age"` // days
	Compress   bool   `json:"compress,omitempty" mapstructure:"compress"`
}

func (r RotationOptions) Enabled() bool {
	return r.Filename != ""
}

func NewOptions() *Options {
	return &Options{
		Level:       "info",
		Format:      "console",
		EnableColor: true,
		CallerSkip:  2,
		OutputPaths: []string{"stdout"},
		Rotation: RotationOptions{
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     14,
		},
	}
}

// Validate reports every invalid option.
func (o *Options) Validate() []error {
	var errs []error

	if !slices.Contains(formats, o.Format) {
		errs = append(errs, fmt.Errorf("--log.format must be one of %v, got %q", formats, o.Format))
	}
	if _, err := zapcore.ParseLevel(o.Level); err != nil {
		errs = append(errs, fmt.Errorf("--log.level: %w", err))
	}
	if o.CallerSkip < 0 {
		errs = append(errs, fmt.Errorf("--log.caller-skip must not be negative"))
	}
	if o.Rotation.Enabled() && o.Rotation.MaxSize <= 0 {
		errs = append(errs, fmt.Errorf("--log.rotation.max-size must be positive when rotation is enabled"))
	}

	return errs
}

func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Name, "log.name", o.Name, "Logger name added to every record.")
	fs.StringVar(&o.Level, "log.level", o.Level, "Minimum level: debug, info, warn or error.")
	fs.StringVar(&o.Format, "log.format", o.Format, "Record format: console or json.")
	fs.BoolVar(&o.EnableColor, "log.enable-color", o.EnableColor, "Color the level in console output.")
	fs.BoolVar(&o.DisableCaller, "log.disable-caller", o.DisableCaller, "Omit file and line of the call site.")
	fs.IntVar(&o.CallerSkip, "log.caller-skip", o.CallerSkip, "Stack frames skipped when resolving the call site.")
	fs.StringSliceVar(&o.OutputPaths, "log.output-paths", o.OutputPaths, "Where records go: stdout, stderr or file paths.")

	fs.StringVar(&o.Rotation.Filename, "log.rotation.filename", o.Rotation.Filename, "Also write JSON records to this size-rotated file.")
	fs.IntVar(&o.Rotation.MaxSize, "log.rotation.max-size", o.Rotation.MaxSize, "Megabytes before the file is rotated.")
	fs.IntVar(&o.Rotation.MaxBackups, "log.rotation.max-backups", o.Rotation.MaxBackups, "Rotated files kept.")
	fs.IntVar(&o.Rotation.MaxAge, "log.rotation.max-age", o.Rotation.MaxAge, "Days rotated files are kept.")
	fs.BoolVar(&o.Rotation.Compress, "log.rotation.compress", o.Rotation.Compress, "Gzip rotated files.")
}
