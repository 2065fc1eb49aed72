package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*DirectoryOptions)(nil)

const (
	DirectorySourceFile   = "file"
	DirectorySourceObject = "object-store"
)

// DirectoryOptions selects where the vehicle directory is read from at startup.
type DirectoryOptions struct {
	// Source is either "file" or "object-store".
	Source string `json:"source" mapstructure:"source"`

	// File is the local vehicle document (YAML, JSON or TOML).
	File string `json:"file" mapstructure:"file"`

	// ObjectKey is the key of the vehicle document inside the S3 bucket.
	ObjectKey string `json:"object-key" mapstructure:"object-key"`

	// Watch logs a warning whenever the local file changes after startup.
	Watch bool `json:"watch" mapstructure:"watch"`
}

// NewDirectoryOptions creates a DirectoryOptions object with default parameters.
func NewDirectoryOptions() *DirectoryOptions {
	return &DirectoryOptions{
		Source:    DirectorySourceFile,
		File:      "/etc/autopeer/vehicles.yaml",
		ObjectKey: "fleet/vehicles.yaml",
		Watch:     true,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *DirectoryOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errors []error

	switch o.Source {
	case DirectorySourceFile:
		if o.File == "" {
			errors = append(errors, fmt.Errorf("--directory.file is required for source %q", o.Source))
		}
	case DirectorySourceObject:
		if o.ObjectKey == "" {
			errors = append(errors, fmt.Errorf("--directory.object-key is required for source %q", o.Source))
		}
	default:
		errors = append(errors, fmt.Errorf("--directory.source must be %q or %q", DirectorySourceFile, DirectorySourceObject))
	}

	return errors
}

// AddFlags adds flags for DirectoryOptions to the specified FlagSet.
func (o *DirectoryOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Source, "directory.source", o.Source, "Where the vehicle directory is loaded from ('file' or 'object-store').")
	fs.StringVar(&o.File, "directory.file", o.File, "Path of the local vehicle document.")
	fs.StringVar(&o.ObjectKey, "directory.object-key", o.ObjectKey, "Object key of the vehicle document in the S3 bucket.")
	fs.BoolVar(&o.Watch, "directory.watch", o.Watch, "Warn when the local vehicle document changes after startup.")
}
