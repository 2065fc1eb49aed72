package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/autopeer-io/drivermgr/internal/drivermgr/core"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/notify"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/pool"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/registry"
	"github.com/autopeer-io/drivermgr/internal/pkg/metrics"
	"github.com/autopeer-io/drivermgr/pkg/log"
)

const defaultBatchConcurrency = 4

// Config carries every collaborator of the attachment manager.
type Config struct {
	Pool        *pool.Pool
	Registry    *registry.Registry
	Operational core.OperationalState

	// Channel receives one notification per accepted mutation. A default channel
	// is created when nil.
	Channel *notify.Channel

	// Positions lists valid initial positions. Position requests fail without it.
	Positions core.PositionSource

	// Directory populates the pool on Initialize when the pool is still empty.
	Directory core.Directory

	Logger log.Logger

	// BatchConcurrency bounds how many entries of one batch are processed at once.
	BatchConcurrency int
}

// Manager attaches, detaches, enables and disables vehicle drivers.
// Calls for the same vehicle serialize on the vehicle's entry; calls for different
// vehicles run in parallel.
type Manager struct {
	pool        *pool.Pool
	registry    *registry.Registry
	operational core.OperationalState
	channel     *notify.Channel
	positions   core.PositionSource
	directory   core.Directory
	logger      log.Logger
	concurrency int

	mu          sync.Mutex
	initialized bool
}

// New validates cfg and creates a manager.
func New(cfg Config) (*Manager, error) {
	var errs []error
	if cfg.Pool == nil {
		errs = append(errs, errors.New("vehicle entry pool is required"))
	}
	if cfg.Registry == nil {
		errs = append(errs, errors.New("adapter factory registry is required"))
	}
	if cfg.Operational == nil {
		errs = append(errs, errors.New("operational state is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	m := &Manager{
		pool:        cfg.Pool,
		registry:    cfg.Registry,
		operational: cfg.Operational,
		channel:     cfg.Channel,
		positions:   cfg.Positions,
		directory:   cfg.Directory,
		logger:      cfg.Logger,
		concurrency: cfg.BatchConcurrency,
	}
	if m.logger == nil {
		m.logger = log.Std()
	}
	m.logger = m.logger.WithName("attachment-manager")
	if m.channel == nil {
		m.channel = notify.NewChannel(notify.WithLogger(m.logger))
	}
	if m.concurrency <= 0 {
		m.concurrency = defaultBatchConcurrency
	}
	return m, nil
}

// Initialize prepares the manager for requests. The controlling system must be
// operational. If the pool is still empty it is filled from the directory.
// Calling it again is a no-op.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		m.logger.Debug("Already initialized")
		return nil
	}
	if !m.operational.IsOperational() {
		return fmt.Errorf("cannot work in state %s: %w", m.operational.State(), core.ErrNotOperational)
	}

	if !m.pool.Initialized() {
		if m.directory == nil {
			return fmt.Errorf("no vehicle directory configured: %w", core.ErrNotInitialized)
		}
		vehicles, err := m.directory.Vehicles(ctx)
		if err != nil {
			return fmt.Errorf("read vehicle directory: %w", err)
		}
		if err := m.pool.Initialize(vehicles); err != nil {
			return err
		}
		m.logger.Info("Vehicle entry pool initialized", "vehicles", len(vehicles))
	}

	m.initialized = true
	return nil
}

// Terminate marks the manager as no longer initialized. Bound drivers stay as they are.
func (m *Manager) Terminate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		m.logger.Debug("Not initialized")
		return
	}
	m.initialized = false
}

// Initialized reports whether Initialize has succeeded and Terminate has not been called since.
func (m *Manager) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// Channel returns the notification channel.
func (m *Manager) Channel() *notify.Channel { return m.channel }

// Subscribe is a shortcut for Channel().Subscribe.
func (m *Manager) Subscribe(filter notify.Filter) (*notify.Subscription, error) {
	return m.channel.Subscribe(filter)
}

// GetFactories returns all installed factories.
func (m *Manager) GetFactories() []core.AdapterFactory {
	return m.registry.GetFactories()
}

// FindFactory looks an installed factory up by description.
func (m *Manager) FindFactory(description string) (core.AdapterFactory, error) {
	f, ok := m.registry.FindFactory(description)
	if !ok {
		return nil, fmt.Errorf("factory %q: %w", description, core.ErrNotFound)
	}
	return f, nil
}

// registered resolves factory to the installed factory of the same description.
func (m *Manager) registered(factory core.AdapterFactory) (core.AdapterFactory, error) {
	f, ok := m.registry.FindFactory(factory.Description())
	if !ok {
		return nil, fmt.Errorf("factory %q is not installed: %w: %w", factory.Description(), core.ErrAttachmentFailed, core.ErrNotFound)
	}
	return f, nil
}

// FindFactoriesForAll returns the factories supporting every named vehicle, as
// offered for a multi-vehicle selection. An empty selection matches every factory.
func (m *Manager) FindFactoriesForAll(vehicles []string) ([]core.AdapterFactory, error) {
	descs := make([]core.VehicleDescriptor, 0, len(vehicles))
	for _, name := range vehicles {
		e, err := m.pool.GetEntryFor(name)
		if err != nil {
			return nil, err
		}
		descs = append(descs, e.Vehicle())
	}
	return m.registry.FindFactoriesForAll(descs), nil
}

// FindFactoriesFor returns the factories supporting the named vehicle.
func (m *Manager) FindFactoriesFor(vehicle string) ([]core.AdapterFactory, error) {
	e, err := m.pool.GetEntryFor(vehicle)
	if err != nil {
		return nil, err
	}
	return m.registry.FindFactoriesFor(e.Vehicle()), nil
}

// GetEntries returns every vehicle entry.
func (m *Manager) GetEntries() (map[string]*pool.Entry, error) {
	return m.pool.GetEntries()
}

// SortedEntries returns every vehicle entry ordered by name.
func (m *Manager) SortedEntries() ([]*pool.Entry, error) {
	return m.pool.SortedEntries()
}

// GetEntryFor returns the entry of one vehicle.
func (m *Manager) GetEntryFor(vehicle string) (*pool.Entry, error) {
	return m.pool.GetEntryFor(vehicle)
}

// ready fails fast unless the manager is initialized and the system is operational.
func (m *Manager) ready() error {
	if !m.Initialized() || !m.pool.Initialized() {
		return core.ErrNotInitialized
	}
	if !m.operational.IsOperational() {
		return fmt.Errorf("state %s: %w", m.operational.State(), core.ErrNotOperational)
	}
	return nil
}

// entryFor checks preconditions and resolves a vehicle entry.
func (m *Manager) entryFor(vehicle string) (*pool.Entry, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	return m.pool.GetEntryFor(vehicle)
}

// publish hands the notification for st to the channel. It does not wait for subscribers.
func (m *Manager) publish(ctx context.Context, op string, st pool.EntryState) {
	n := notify.FromState(op, st)
	if err := m.channel.Publish(ctx, n); err != nil {
		m.logger.Error(err, "Failed to publish notification", "vehicle", n.Vehicle, "seq", n.Seq, "operation", op)
	}
}

// timed runs an adapter call and records its latency.
func timed(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.AdapterCallSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
	return err
}

// observe records the outcome of an operation.
func observe(op string, err error, noop bool) {
	result := metrics.ResultSuccess
	switch {
	case errors.Is(err, core.ErrPrecondition):
		result = metrics.ResultDenied
	case err != nil:
		result = metrics.ResultFailed
	case noop:
		result = metrics.ResultNoop
	}
	metrics.OperationsTotal.WithLabelValues(op, result).Inc()
}
