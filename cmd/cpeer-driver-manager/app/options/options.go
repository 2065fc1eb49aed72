package options

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/drivermgr/internal/drivermgr"
	"github.com/autopeer-io/drivermgr/pkg/log"
	"github.com/autopeer-io/drivermgr/pkg/options"
)

// EnvPrefix prefixes environment variables that override flags and the config file.
const EnvPrefix = "CPEER"

type DriverManagerOptions struct {
	DirectoryOptions *options.DirectoryOptions `json:"directory" mapstructure:"directory"`
	ManagerOptions   *options.ManagerOptions   `json:"manager" mapstructure:"manager"`
	HttpOptions      *options.HttpOptions      `json:"http" mapstructure:"http"`
	GrpcOptions      *options.GrpcOptions      `json:"grpc" mapstructure:"grpc"`
	MqttOptions      *options.MqttOptions      `json:"mqtt" mapstructure:"mqtt"`
	S3Options        *options.S3Options        `json:"s3" mapstructure:"s3"`
	Log              *log.Options              `json:"log" mapstructure:"log"`

	// ConfigFile is an optional YAML or JSON file holding the same keys as the flags.
	ConfigFile string `json:"-" mapstructure:"-"`
}

func NewDriverManagerOptions() *DriverManagerOptions {
	return &DriverManagerOptions{
		DirectoryOptions: options.NewDirectoryOptions(),
		ManagerOptions:   options.NewManagerOptions(),
		HttpOptions:      options.NewHttpOptions(),
		GrpcOptions:      options.NewGrpcOptions(),
		MqttOptions:      options.NewMqttOptions(),
		S3Options:        options.NewS3Options(),
		Log:              log.NewOptions(),
	}
}

func (o *DriverManagerOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	fss.FlagSet("generic").StringVar(&o.ConfigFile, "config", o.ConfigFile, "Read options from this YAML or JSON file. Flags and CPEER_* environment variables take precedence.")
	o.DirectoryOptions.AddFlags(fss.FlagSet("directory"))
	o.ManagerOptions.AddFlags(fss.FlagSet("manager"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.GrpcOptions.AddFlags(fss.FlagSet("grpc"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

// Complete merges the config file and the environment into o. Flags set on
// the command line win over the environment, which wins over the file.
func (o *DriverManagerOptions) Complete(fs *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return err
	}
	if o.ConfigFile != "" {
		v.SetConfigFile(o.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", o.ConfigFile, err)
		}
	}

	if err := v.Unmarshal(o); err != nil {
		return fmt.Errorf("decode options: %w", err)
	}
	return nil
}

func (o *DriverManagerOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.DirectoryOptions.Validate()...)
	errs = append(errs, o.ManagerOptions.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.GrpcOptions.Validate()...)
	if o.ManagerOptions.ForwardToMQTT {
		errs = append(errs, o.MqttOptions.Validate()...)
	}
	if o.DirectoryOptions.Source == options.DirectorySourceObject {
		errs = append(errs, o.S3Options.Validate()...)
	}
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *DriverManagerOptions) Config() (*drivermgr.Config, error) {
	return &drivermgr.Config{
		DirectoryOptions: o.DirectoryOptions,
		ManagerOptions:   o.ManagerOptions,
		HttpOptions:      o.HttpOptions,
		GrpcOptions:      o.GrpcOptions,
		MqttOptions:      o.MqttOptions,
		S3Options:        o.S3Options,
	}, nil
}
