package drivermgr

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/autopeer-io/drivermgr/internal/drivermgr/adapters/loopback"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/adapters/passive"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/core"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/directory"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/kernel"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/manager"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/notify"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/pool"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/registry"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/server"
	"github.com/autopeer-io/drivermgr/pkg/log"
	pkgmqtt "github.com/autopeer-io/drivermgr/pkg/mqtt"
	"github.com/autopeer-io/drivermgr/pkg/mqtt/topic"
	"github.com/autopeer-io/drivermgr/pkg/options"
)

type Config struct {
	DirectoryOptions *options.DirectoryOptions
	ManagerOptions   *options.ManagerOptions
	HttpOptions      *options.HttpOptions
	GrpcOptions      *options.GrpcOptions
	MqttOptions      *options.MqttOptions
	S3Options        *options.S3Options
}

// NewDirectory creates the configured vehicle directory and position source.
func (cfg *Config) NewDirectory() (core.Directory, core.PositionSource, error) {
	switch cfg.DirectoryOptions.Source {
	case options.DirectorySourceObject:
		store, err := directory.NewObjectStore(cfg.S3Options, cfg.DirectoryOptions.ObjectKey)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case options.DirectorySourceFile:
		return directory.NewFile(cfg.DirectoryOptions.File), directory.NewFilePositions(cfg.DirectoryOptions.File), nil
	default:
		return nil, nil, fmt.Errorf("unknown directory source %q", cfg.DirectoryOptions.Source)
	}
}

// NewRegistry installs the built-in adapter factories.
func NewRegistry() (*registry.Registry, error) {
	return registry.New(loopback.NewFactory(), passive.NewFactory())
}

// NewDriverManager wires every component of the daemon.
func (cfg *Config) NewDriverManager() (*DriverManager, error) {
	dir, positions, err := cfg.NewDirectory()
	if err != nil {
		return nil, err
	}

	reg, err := NewRegistry()
	if err != nil {
		return nil, err
	}

	channel := notify.NewChannel(
		notify.WithBufferSize(cfg.ManagerOptions.NotificationBuffer),
		notify.WithDropSlow(cfg.ManagerOptions.DropSlowSubscribers),
	)

	state := kernel.New()
	mgr, err := manager.New(manager.Config{
		Pool:             pool.New(),
		Registry:         reg,
		Operational:      state,
		Channel:          channel,
		Positions:        positions,
		Directory:        dir,
		Logger:           log.Std(),
		BatchConcurrency: cfg.ManagerOptions.BatchConcurrency,
	})
	if err != nil {
		return nil, err
	}

	servers := server.NewManager(&server.Config{
		HttpOptions: cfg.HttpOptions,
		GrpcOptions: cfg.GrpcOptions,
	}, mgr, state)
	state.OnChange(func(_, to string) { servers.SetServing(to == kernel.StateOperating) })

	d := &DriverManager{
		kernel:     state,
		registry:   reg,
		manager:    mgr,
		servers:    servers,
		autoAttach: cfg.ManagerOptions.AutoAttach,
		autoEnable: cfg.ManagerOptions.AutoEnable,
	}

	if f, ok := dir.(*directory.File); ok && cfg.DirectoryOptions.Watch {
		d.watcher = f
	}

	if cfg.ManagerOptions.ForwardToMQTT {
		if err := cfg.withMQTT(d); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// withMQTT creates the MQTT client and the notification forwarder. The manager's
// retained liveness flag is set on every connect and cleared by the will.
func (cfg *Config) withMQTT(d *DriverManager) error {
	clientCfg := cfg.MqttOptions.ToClientConfig()
	if clientCfg.ClientID == "" {
		clientCfg.ClientID = "cpeer-driver-manager-" + uuid.NewString()[:8]
	}

	topics := topic.NewBuilder(cfg.MqttOptions.TopicRoot)
	onlineTopic := topics.ManagerOnline(clientCfg.ClientID)
	online, offline := pkgmqtt.Retained(onlineTopic, []byte("true")), pkgmqtt.Retained(onlineTopic, []byte("false"))
	clientCfg.Birth = &online
	clientCfg.Will = &offline

	client, err := pkgmqtt.NewClient(clientCfg)
	if err != nil {
		return err
	}
	d.mqtt = client
	d.forwarder = notify.NewMQTTForwarder(client, topics)
	return nil
}
