package manager

import (
	"context"
	"fmt"

	"github.com/autopeer-io/drivermgr/internal/drivermgr/core"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/notify"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/pool"
)

// Attach binds a new driver from factory to the vehicle. A nil factory detaches.
//
// Attaching the factory that is already bound does nothing. Otherwise the new driver
// is created first, then the old one is disabled (if enabled) and released, and the
// new one is bound disabled. A failure at any step leaves the entry as it was.
func (m *Manager) Attach(ctx context.Context, vehicle string, factory core.AdapterFactory) (err error) {
	if factory == nil {
		return m.Detach(ctx, vehicle)
	}

	var noop bool
	defer func() { observe(notify.OpAttach, err, noop) }()

	e, err := m.entryFor(vehicle)
	if err != nil {
		return err
	}
	if factory, err = m.registered(factory); err != nil {
		return fmt.Errorf("attach to %s: %w", vehicle, err)
	}

	v := e.Vehicle()
	if !factory.Supports(v) {
		return fmt.Errorf("attach %s to %s: %w: %w", factory.Description(), vehicle, core.ErrAttachmentFailed, core.ErrUnsupported)
	}

	st, changed, err := m.attachLocked(e, factory)
	if err != nil {
		return err
	}
	if !changed {
		noop = true
		m.logger.Debug("Factory already attached", "vehicle", vehicle, "factory", factory.Description())
		return nil
	}

	m.logger.Info("Attached driver", "vehicle", vehicle, "factory", factory.Description(), "seq", st.Seq)
	m.publish(ctx, notify.OpAttach, st)
	return nil
}

func (m *Manager) attachLocked(e *pool.Entry, factory core.AdapterFactory) (pool.EntryState, bool, error) {
	e.Lock()
	defer e.Unlock()

	if bound := e.Factory(); bound != nil && bound.Description() == factory.Description() {
		return pool.EntryState{}, false, nil
	}

	var adapter core.CommAdapter
	err := timed("create", func() error {
		var cerr error
		adapter, cerr = factory.Create(e.Vehicle())
		return cerr
	})
	if err != nil {
		return pool.EntryState{}, false, fmt.Errorf("attach %s to %s: %w: %w", factory.Description(), e.Name(), core.ErrAttachmentFailed, err)
	}
	if adapter == nil {
		return pool.EntryState{}, false, fmt.Errorf("attach %s to %s: %w: factory returned no adapter", factory.Description(), e.Name(), core.ErrAttachmentFailed)
	}

	// A driver must start disabled.
	if adapter.IsEnabled() {
		if err := adapter.Disable(); err != nil {
			return pool.EntryState{}, false, fmt.Errorf("attach %s to %s: %w: new adapter could not be disabled: %w",
				factory.Description(), e.Name(), core.ErrAttachmentFailed, err)
		}
	}

	if err := m.releaseLocked(e); err != nil {
		m.discard(e.Name(), adapter)
		return pool.EntryState{}, false, err
	}

	st, err := e.Bind(adapter, factory)
	if err != nil {
		return pool.EntryState{}, false, err
	}
	return st, true, nil
}

// releaseLocked disables the bound driver if it is enabled. Caller holds the entry lock.
func (m *Manager) releaseLocked(e *pool.Entry) error {
	old := e.Adapter()
	if old == nil || !old.IsEnabled() {
		return nil
	}
	if err := timed(notify.OpDisable, old.Disable); err != nil {
		return fmt.Errorf("disable current adapter of %s: %w: %w", e.Name(), core.ErrAdapterOperation, err)
	}
	return nil
}

// discard drops an adapter that was created but never bound.
func (m *Manager) discard(vehicle string, adapter core.CommAdapter) {
	if !adapter.IsEnabled() {
		return
	}
	if err := adapter.Disable(); err != nil {
		m.logger.Error(err, "Failed to disable discarded adapter", "vehicle", vehicle)
	}
}

// Detach disables and releases the vehicle's driver. Detaching a detached vehicle does nothing.
func (m *Manager) Detach(ctx context.Context, vehicle string) (err error) {
	var noop bool
	defer func() { observe(notify.OpDetach, err, noop) }()

	e, err := m.entryFor(vehicle)
	if err != nil {
		return err
	}

	st, changed, err := func() (pool.EntryState, bool, error) {
		e.Lock()
		defer e.Unlock()

		if e.Adapter() == nil {
			return pool.EntryState{}, false, nil
		}
		if err := m.releaseLocked(e); err != nil {
			return pool.EntryState{}, false, err
		}
		st, err := e.Unbind()
		return st, err == nil, err
	}()
	if err != nil {
		return err
	}
	if !changed {
		noop = true
		m.logger.Debug("Vehicle already detached", "vehicle", vehicle)
		return nil
	}

	m.logger.Info("Detached driver", "vehicle", vehicle, "seq", st.Seq)
	m.publish(ctx, notify.OpDetach, st)
	return nil
}

// Enable enables the vehicle's driver. It does nothing if no driver is bound or it is already enabled.
func (m *Manager) Enable(ctx context.Context, vehicle string) error {
	return m.setEnabled(ctx, vehicle, true)
}

// Disable disables the vehicle's driver. It does nothing if no driver is bound or it is already disabled.
func (m *Manager) Disable(ctx context.Context, vehicle string) error {
	return m.setEnabled(ctx, vehicle, false)
}

func (m *Manager) setEnabled(ctx context.Context, vehicle string, enabled bool) (err error) {
	op := notify.OpDisable
	if enabled {
		op = notify.OpEnable
	}

	var noop bool
	defer func() { observe(op, err, noop) }()

	e, err := m.entryFor(vehicle)
	if err != nil {
		return err
	}

	st, changed, err := func() (pool.EntryState, bool, error) {
		e.Lock()
		defer e.Unlock()

		adapter := e.Adapter()
		if adapter == nil {
			return pool.EntryState{}, false, nil
		}
		if adapter.IsEnabled() == enabled {
			if (e.Phase() == pool.PhaseEnabled) == enabled {
				return pool.EntryState{}, false, nil
			}
			// The driver changed state on its own; record what it reports.
			st, err := e.MarkEnabled(enabled)
			return st, err == nil, err
		}

		call := adapter.Disable
		if enabled {
			call = adapter.Enable
		}
		if err := timed(op, call); err != nil {
			return pool.EntryState{}, false, fmt.Errorf("%s %s: %w: %w", op, vehicle, core.ErrAdapterOperation, err)
		}

		st, err := e.MarkEnabled(enabled)
		return st, err == nil, err
	}()
	if err != nil {
		m.logger.Error(err, "Adapter operation failed", "vehicle", vehicle, "operation", op)
		return err
	}
	if !changed {
		noop = true
		return nil
	}

	m.logger.Info("Changed driver state", "vehicle", vehicle, "operation", op, "seq", st.Seq)
	m.publish(ctx, op, st)
	return nil
}
