package manager

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/autopeer-io/drivermgr/internal/drivermgr/core"
)

// ItemResult is the outcome of one member of a batch.
type ItemResult struct {
	Vehicle string `json:"vehicle"`
	Err     error  `json:"-"`
}

// BatchResult holds one ItemResult per requested vehicle, in request order.
type BatchResult struct {
	Items []ItemResult `json:"items"`
}

// Succeeded returns the vehicles whose operation succeeded (including no-ops).
func (r BatchResult) Succeeded() []string {
	var out []string
	for _, it := range r.Items {
		if it.Err == nil {
			out = append(out, it.Vehicle)
		}
	}
	return out
}

// Failed returns the vehicles whose operation failed.
func (r BatchResult) Failed() []string {
	var out []string
	for _, it := range r.Items {
		if it.Err != nil {
			out = append(out, it.Vehicle)
		}
	}
	return out
}

// Err aggregates all member failures, or returns nil.
func (r BatchResult) Err() error {
	var errs []error
	for _, it := range r.Items {
		if it.Err != nil {
			errs = append(errs, it.Err)
		}
	}
	return utilerrors.NewAggregate(errs)
}

// EnableBatch enables the drivers of the named vehicles. Each member is attempted
// regardless of the others' failures.
func (m *Manager) EnableBatch(ctx context.Context, vehicles []string) BatchResult {
	return m.batch(ctx, vehicles, m.Enable)
}

// DisableBatch disables the drivers of the named vehicles. Each member is attempted
// regardless of the others' failures.
func (m *Manager) DisableBatch(ctx context.Context, vehicles []string) BatchResult {
	return m.batch(ctx, vehicles, m.Disable)
}

// EnableAll enables every bound driver in the pool.
func (m *Manager) EnableAll(ctx context.Context) (BatchResult, error) {
	names, err := m.allNames()
	if err != nil {
		return BatchResult{}, err
	}
	return m.EnableBatch(ctx, names), nil
}

// DisableAll disables every bound driver in the pool.
func (m *Manager) DisableAll(ctx context.Context) (BatchResult, error) {
	names, err := m.allNames()
	if err != nil {
		return BatchResult{}, err
	}
	return m.DisableBatch(ctx, names), nil
}

// AttachBatch attaches factory to every named vehicle. The request is rejected as a
// whole unless the factory supports all of them; after that, members are isolated.
func (m *Manager) AttachBatch(ctx context.Context, vehicles []string, factory core.AdapterFactory) (BatchResult, error) {
	if err := m.ready(); err != nil {
		return BatchResult{}, err
	}
	if factory != nil {
		var err error
		if factory, err = m.registered(factory); err != nil {
			return BatchResult{}, err
		}

		// Unknown vehicles fail as members, not as a whole.
		known := make([]string, 0, len(vehicles))
		for _, name := range vehicles {
			if _, err := m.pool.GetEntryFor(name); err == nil {
				known = append(known, name)
			}
		}
		candidates, err := m.FindFactoriesForAll(known)
		if err != nil {
			return BatchResult{}, err
		}
		if !slices.ContainsFunc(candidates, func(f core.AdapterFactory) bool { return f.Description() == factory.Description() }) {
			return BatchResult{}, fmt.Errorf("attach %s to %v: %w", factory.Description(), known, core.ErrUnsupported)
		}
	}
	return m.batch(ctx, vehicles, func(ctx context.Context, vehicle string) error {
		return m.Attach(ctx, vehicle, factory)
	}), nil
}

func (m *Manager) allNames() ([]string, error) {
	entries, err := m.pool.SortedEntries()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// batch runs op for every vehicle with bounded parallelism. Members never take
// more than their own entry lock, and a panicking driver fails only its member.
func (m *Manager) batch(ctx context.Context, vehicles []string, op func(context.Context, string) error) BatchResult {
	result := BatchResult{Items: make([]ItemResult, len(vehicles))}

	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for i, name := range vehicles {
		result.Items[i].Vehicle = name
		g.Go(func() error {
			result.Items[i].Err = m.isolate(ctx, name, op)
			return nil
		})
	}
	_ = g.Wait()

	if failed := result.Failed(); len(failed) > 0 {
		m.logger.Warn("Batch finished with failures", "requested", len(vehicles), "failed", failed)
	}
	return result
}

func (m *Manager) isolate(ctx context.Context, vehicle string, op func(context.Context, string) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: %w: panic: %v", vehicle, core.ErrAdapterOperation, r)
		}
	}()
	return op(ctx, vehicle)
}
