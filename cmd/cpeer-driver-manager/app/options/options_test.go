package options

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/drivermgr/pkg/options"
)

func flagSet(o *DriverManagerOptions) *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	for _, f := range o.Flags().FlagSets {
		fs.AddFlagSet(f)
	}
	return fs
}

func TestCompleteDefaults(t *testing.T) {
	o := NewDriverManagerOptions()
	fs := flagSet(o)
	require.NoError(t, fs.Parse(nil))
	require.NoError(t, o.Complete(fs))

	assert.Equal(t, options.NewHttpOptions(), o.HttpOptions)
	assert.Equal(t, options.NewMqttOptions(), o.MqttOptions)
	assert.Equal(t, []string{"stdout"}, o.Log.OutputPaths)
	assert.NoError(t, o.Validate())
}

func TestCompletePrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drivermgr.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: 127.0.0.1:18080
  timeout: 10s
manager:
  batch-concurrency: 2
  auto-attach: true
log:
  level: debug
`), 0o600))
	t.Setenv("CPEER_HTTP_TIMEOUT", "45s")
	t.Setenv("CPEER_GRPC_ADDR", "127.0.0.1:18091")

	o := NewDriverManagerOptions()
	fs := flagSet(o)
	require.NoError(t, fs.Parse([]string{"--config=" + path, "--manager.batch-concurrency=9"}))
	require.NoError(t, o.Complete(fs))

	assert.Equal(t, "127.0.0.1:18080", o.HttpOptions.Addr)
	assert.Equal(t, 45*time.Second, o.HttpOptions.Timeout)
	assert.Equal(t, "127.0.0.1:18091", o.GrpcOptions.Addr)
	assert.Equal(t, 9, o.ManagerOptions.BatchConcurrency)
	assert.True(t, o.ManagerOptions.AutoAttach)
	assert.Equal(t, "debug", o.Log.Level)
	assert.Equal(t, path, o.ConfigFile)
}

func TestCompleteMissingConfig(t *testing.T) {
	o := NewDriverManagerOptions()
	fs := flagSet(o)
	require.NoError(t, fs.Parse([]string{"--config=" + filepath.Join(t.TempDir(), "absent.yaml")}))
	assert.Error(t, o.Complete(fs))
}

func TestValidateOnlyChecksUsedGroups(t *testing.T) {
	o := NewDriverManagerOptions()
	o.MqttOptions.Broker = ""
	o.S3Options.BucketName = ""
	assert.NoError(t, o.Validate())

	o.ManagerOptions.ForwardToMQTT = true
	o.DirectoryOptions.Source = options.DirectorySourceObject
	err := o.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--mqtt.broker")
	assert.Contains(t, err.Error(), "--s3.bucket-name")
}

func TestConfig(t *testing.T) {
	o := NewDriverManagerOptions()
	cfg, err := o.Config()
	require.NoError(t, err)
	assert.Same(t, o.DirectoryOptions, cfg.DirectoryOptions)
	assert.Same(t, o.ManagerOptions, cfg.ManagerOptions)
	assert.Same(t, o.S3Options, cfg.S3Options)
}
