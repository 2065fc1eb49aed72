package drivermgr

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/drivermgr/internal/drivermgr/directory"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/kernel"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/manager"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/notify"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/registry"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/server"
	"github.com/autopeer-io/drivermgr/pkg/log"
	pkgmqtt "github.com/autopeer-io/drivermgr/pkg/mqtt"
)

const shutdownTimeout = 10 * time.Second

// DriverManager is the cpeer-driver-manager daemon.
type DriverManager struct {
	kernel   *kernel.State
	registry *registry.Registry
	manager  *manager.Manager
	servers  *server.Manager
	watcher  *directory.File

	mqtt      pkgmqtt.Client
	forwarder *notify.MQTTForwarder

	autoAttach bool
	autoEnable bool
}

// Manager returns the attachment manager.
func (d *DriverManager) Manager() *manager.Manager { return d.manager }

// Run brings the kernel to OPERATING, initializes the attachment manager and serves
// until ctx ends. On the way out every driver is disabled.
func (d *DriverManager) Run(ctx context.Context) error {
	if d.mqtt != nil {
		if err := d.startMQTT(ctx); err != nil {
			return err
		}
		defer d.stopMQTT()
	}

	if err := d.kernel.Start(ctx); err != nil {
		return err
	}
	if err := d.manager.Initialize(ctx); err != nil {
		return err
	}

	// Subscribe before bootstrap so the broker sees the startup attachments.
	var forwarded *notify.Subscription
	if d.forwarder != nil {
		sub, err := d.manager.Subscribe(notify.Filter{})
		if err != nil {
			return err
		}
		forwarded = sub
	}

	g, gctx := errgroup.WithContext(ctx)
	if forwarded != nil {
		g.Go(func() error { return d.forwarder.Run(gctx, forwarded) })
	}
	if err := d.bootstrap(ctx); err != nil {
		d.shutdown()
		_ = g.Wait()
		return err
	}
	g.Go(func() error { return d.servers.Start(gctx) })
	if d.watcher != nil {
		g.Go(func() error { return d.watcher.Watch(gctx) })
	}

	log.Info("Driver manager running", "vehicles", len(d.names()))
	err := g.Wait()

	d.shutdown()
	return err
}

// bootstrap attaches the first supporting factory to every detached vehicle and
// optionally enables the drivers.
func (d *DriverManager) bootstrap(ctx context.Context) error {
	if !d.autoAttach {
		return nil
	}

	var errs []error
	for _, name := range d.names() {
		factories, err := d.manager.FindFactoriesFor(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(factories) == 0 {
			log.Warn("No driver supports vehicle", "vehicle", name)
			continue
		}
		if err := d.manager.Attach(ctx, name, factories[0]); err != nil {
			errs = append(errs, err)
		}
	}

	if d.autoEnable {
		res, err := d.manager.EnableAll(ctx)
		if err != nil {
			return err
		}
		errs = append(errs, res.Err())
	}

	if err := errors.Join(errs...); err != nil {
		log.Error(err, "Startup attachment finished with failures")
	}
	return nil
}

func (d *DriverManager) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if res, err := d.manager.DisableAll(ctx); err != nil {
		log.Error(err, "Failed to disable drivers on shutdown")
	} else if err := res.Err(); err != nil {
		log.Error(err, "Some drivers failed to disable on shutdown")
	}

	d.manager.Terminate()
	for _, f := range d.registry.GetFactories() {
		d.registry.Unregister(f.Description())
		log.Debug("Adapter factory removed", "factory", f.Description())
	}
	if err := d.kernel.Shutdown(ctx); err != nil {
		log.Error(err, "Failed to shut down kernel")
	}
	d.manager.Channel().Close()
	log.Info("Driver manager stopped")
}

func (d *DriverManager) startMQTT(ctx context.Context) error {
	if err := d.mqtt.Start(ctx); err != nil {
		return err
	}

	connectCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := d.mqtt.AwaitConnection(connectCtx); err != nil {
		log.Warn("MQTT broker not reachable yet, continuing", "err", err)
	}
	return nil
}

func (d *DriverManager) stopMQTT() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := d.mqtt.Disconnect(ctx); err != nil {
		log.Error(err, "Failed to disconnect from MQTT broker cleanly")
	}
}

func (d *DriverManager) names() []string {
	entries, err := d.manager.SortedEntries()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
