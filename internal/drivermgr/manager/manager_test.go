package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/autopeer-io/drivermgr/internal/drivermgr/core"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/fake"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/notify"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/pool"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/registry"
	"github.com/autopeer-io/drivermgr/pkg/log"
)

type fixture struct {
	m         *Manager
	reg       *registry.Registry
	sim       *fake.Factory
	hw        *fake.Factory
	op        *fake.Operational
	positions *fake.Positions
	sub       *notify.Subscription
}

// newFixture builds a manager over vehicles A and B with factories Sim (supports all)
// and Real (supports only A).
func newFixture(t require.TestingT) *fixture {
	f := &fixture{
		sim:       &fake.Factory{Desc: "Sim", Simulating: true},
		hw:        &fake.Factory{Desc: "Real", Supported: func(v core.VehicleDescriptor) bool { return v.Name == "A" }},
		op:        &fake.Operational{},
		positions: &fake.Positions{List: []string{"Point-2", "Point-1"}},
	}

	reg, err := registry.New(f.sim, f.hw)
	require.NoError(t, err)
	f.reg = reg

	// Dropping slow deliveries makes them synchronous, so notifications() sees them at once.
	ch := notify.NewChannel(notify.WithLogger(log.NewNopLogger()), notify.WithBufferSize(1024), notify.WithDropSlow(true))
	f.m, err = New(Config{
		Pool:        pool.New(),
		Registry:    reg,
		Operational: f.op,
		Channel:     ch,
		Positions:   f.positions,
		Directory:   staticDirectory(fake.Vehicles("A", "B")),
		Logger:      log.NewNopLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, f.m.Initialize(context.Background()))

	f.sub, err = ch.Subscribe(notify.Filter{})
	require.NoError(t, err)
	return f
}

type staticDirectory []core.VehicleDescriptor

func (d staticDirectory) Vehicles(context.Context) ([]core.VehicleDescriptor, error) { return d, nil }

func (f *fixture) notifications() []notify.Notification {
	var out []notify.Notification
	for {
		select {
		case n := <-f.sub.Events():
			out = append(out, n)
		default:
			return out
		}
	}
}

func (f *fixture) entry(t require.TestingT, name string) pool.EntryState {
	e, err := f.m.GetEntryFor(name)
	require.NoError(t, err)
	return e.Snapshot()
}

func (f *fixture) adapter(t require.TestingT, name string) *fake.Adapter {
	e, err := f.m.GetEntryFor(name)
	require.NoError(t, err)
	return fake.Unwrap(e.Adapter())
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestInitializeRequiresOperational(t *testing.T) {
	reg, _ := registry.New()
	op := &fake.Operational{}
	op.SetOperational(false)

	m, err := New(Config{Pool: pool.New(), Registry: reg, Operational: op, Directory: staticDirectory(nil), Logger: log.NewNopLogger()})
	require.NoError(t, err)

	err = m.Initialize(context.Background())
	assert.ErrorIs(t, err, core.ErrNotOperational)
	assert.False(t, m.Initialized())

	op.SetOperational(true)
	require.NoError(t, m.Initialize(context.Background()))
	require.NoError(t, m.Initialize(context.Background()))
	assert.True(t, m.Initialized())

	m.Terminate()
	m.Terminate()
	assert.False(t, m.Initialized())
}

func TestInitializeWithoutDirectory(t *testing.T) {
	reg, _ := registry.New()
	m, err := New(Config{Pool: pool.New(), Registry: reg, Operational: &fake.Operational{}, Logger: log.NewNopLogger()})
	require.NoError(t, err)
	assert.ErrorIs(t, m.Initialize(context.Background()), core.ErrNotInitialized)
}

func TestPreconditions(t *testing.T) {
	reg, _ := registry.New(&fake.Factory{Desc: "Sim"})
	op := &fake.Operational{}
	m, err := New(Config{Pool: pool.New(), Registry: reg, Operational: op, Logger: log.NewNopLogger()})
	require.NoError(t, err)

	ctx := context.Background()
	sim, _ := reg.FindFactory("Sim")
	assert.ErrorIs(t, m.Attach(ctx, "A", sim), core.ErrNotInitialized)
	assert.ErrorIs(t, m.Enable(ctx, "A"), core.ErrPrecondition)

	f := newFixture(t)
	f.op.SetOperational(false)
	assert.ErrorIs(t, f.m.Attach(ctx, "A", f.sim), core.ErrNotOperational)
	assert.ErrorIs(t, f.m.Detach(ctx, "A"), core.ErrNotOperational)
	assert.ErrorIs(t, f.m.Disable(ctx, "A"), core.ErrPrecondition)
	assert.Zero(t, f.sim.Created())
	assert.Empty(t, f.notifications())
}

func TestTerminateRejectsRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.m.Attach(ctx, "A", f.sim))
	f.notifications()

	f.m.Terminate()

	assert.ErrorIs(t, f.m.Attach(ctx, "B", f.sim), core.ErrNotInitialized)
	assert.ErrorIs(t, f.m.Enable(ctx, "A"), core.ErrPrecondition)
	assert.ErrorIs(t, f.m.Detach(ctx, "A"), core.ErrPrecondition)
	assert.ErrorIs(t, f.m.InitPosition(ctx, "A", "Point-1"), core.ErrPrecondition)
	res := f.m.EnableBatch(ctx, []string{"A", "B"})
	assert.Equal(t, []string{"A", "B"}, res.Failed())
	_, err := f.m.AttachBatch(ctx, []string{"A"}, f.sim)
	assert.ErrorIs(t, err, core.ErrNotInitialized)

	assert.False(t, f.adapter(t, "A").IsEnabled())
	assert.False(t, f.entry(t, "B").Attached)
	assert.Empty(t, f.notifications())

	require.NoError(t, f.m.Initialize(ctx))
	require.NoError(t, f.m.Enable(ctx, "A"))
}

func TestUnknownVehicle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.m.Attach(ctx, "Z", f.sim), core.ErrNotFound)
	assert.ErrorIs(t, f.m.Enable(ctx, "Z"), core.ErrNotFound)
	_, err := f.m.FindFactoriesFor("Z")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Empty(t, f.notifications())
}

func TestFindFactoriesFor(t *testing.T) {
	f := newFixture(t)

	got, err := f.m.FindFactoriesFor("B")
	require.NoError(t, err)
	assert.Equal(t, []core.AdapterFactory{f.sim}, got)

	got, err = f.m.FindFactoriesFor("A")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Len(t, f.m.GetFactories(), 2)
}

func TestFindFactoriesForAll(t *testing.T) {
	f := newFixture(t)

	got, err := f.m.FindFactoriesForAll([]string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, []core.AdapterFactory{f.sim}, got)

	got, err = f.m.FindFactoriesForAll([]string{"A"})
	require.NoError(t, err)
	assert.Equal(t, []core.AdapterFactory{f.hw, f.sim}, got)

	got, err = f.m.FindFactoriesForAll(nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = f.m.FindFactoriesForAll([]string{"A", "Z"})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestAttachRejectsFactoryNotInstalled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stray := &fake.Factory{Desc: "Stray"}

	err := f.m.Attach(ctx, "A", stray)
	assert.ErrorIs(t, err, core.ErrAttachmentFailed)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = f.m.AttachBatch(ctx, []string{"A"}, stray)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Zero(t, stray.Created())
	assert.False(t, f.entry(t, "A").Attached)

	// A removed factory can no longer be attached; its drivers stay bound.
	require.NoError(t, f.m.Attach(ctx, "A", f.hw))
	f.reg.Unregister(f.hw.Description())
	assert.ErrorIs(t, f.m.Attach(ctx, "B", f.hw), core.ErrNotFound)
	assert.Equal(t, "Real", f.entry(t, "A").Factory)
	assert.Equal(t, 1, f.hw.Created())
}

func TestAttachUnsupportedIsRejected(t *testing.T) {
	f := newFixture(t)

	err := f.m.Attach(context.Background(), "B", f.hw)
	assert.ErrorIs(t, err, core.ErrAttachmentFailed)
	assert.ErrorIs(t, err, core.ErrUnsupported)
	assert.Zero(t, f.hw.Created())
	assert.Equal(t, pool.EntryState{Vehicle: "B", Phase: pool.PhaseDetached}, f.entry(t, "B"))
	assert.Empty(t, f.notifications())
}

func TestAttachIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.m.Attach(ctx, "A", f.sim))
	require.NoError(t, f.m.Enable(ctx, "A"))
	before := f.adapter(t, "A")
	f.notifications()

	require.NoError(t, f.m.Attach(ctx, "A", f.sim))

	assert.Equal(t, 1, f.sim.Created())
	assert.Same(t, before, f.adapter(t, "A"))
	assert.True(t, before.IsEnabled())
	assert.Empty(t, f.notifications())
}

func TestAttachRebindsEnabledAdapter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.m.Attach(ctx, "A", f.sim))
	require.NoError(t, f.m.Enable(ctx, "A"))
	old := f.adapter(t, "A")
	f.notifications()

	require.NoError(t, f.m.Attach(ctx, "A", f.hw))

	assert.Equal(t, 1, f.hw.Created())
	_, disables := old.Calls()
	assert.Equal(t, 1, disables)
	assert.False(t, old.IsEnabled())

	st := f.entry(t, "A")
	assert.Equal(t, "Real", st.Factory)
	assert.True(t, st.Attached)
	assert.False(t, st.Enabled)

	ns := f.notifications()
	require.Len(t, ns, 1)
	assert.Equal(t, "Real", ns[0].Factory)
	assert.False(t, ns[0].Enabled)
	assert.Equal(t, notify.OpAttach, ns[0].Operation)
}

func TestAttachCreateFailureLeavesEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.m.Attach(ctx, "A", f.sim))
	before := f.entry(t, "A")
	f.notifications()

	f.hw.FailCreate = true
	err := f.m.Attach(ctx, "A", f.hw)
	assert.ErrorIs(t, err, core.ErrAttachmentFailed)
	assert.ErrorIs(t, err, fake.ErrInjected)
	assert.Equal(t, before, f.entry(t, "A"))
	assert.Empty(t, f.notifications())
}

func TestAttachKeepsOldBindingWhenDisableFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.m.Attach(ctx, "A", f.sim))
	require.NoError(t, f.m.Enable(ctx, "A"))
	old := f.adapter(t, "A")
	old.SetFailDisable(true)
	before := f.entry(t, "A")
	f.notifications()

	err := f.m.Attach(ctx, "A", f.hw)
	assert.ErrorIs(t, err, core.ErrAdapterOperation)
	assert.Equal(t, before, f.entry(t, "A"))
	assert.Same(t, old, f.adapter(t, "A"))
	assert.True(t, old.IsEnabled())
	assert.Empty(t, f.notifications())
}

func TestLifecycleProducesFourOrderedNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.m.Attach(ctx, "A", f.sim))
	require.NoError(t, f.m.Enable(ctx, "A"))
	require.NoError(t, f.m.Disable(ctx, "A"))
	require.NoError(t, f.m.Detach(ctx, "A"))

	e, err := f.m.GetEntryFor("A")
	require.NoError(t, err)
	assert.Nil(t, e.Adapter())
	assert.Nil(t, e.Factory())

	ns := f.notifications()
	require.Len(t, ns, 4)
	ops := []string{notify.OpAttach, notify.OpEnable, notify.OpDisable, notify.OpDetach}
	for i, n := range ns {
		assert.Equal(t, ops[i], n.Operation)
		assert.Equal(t, uint64(i+1), n.Seq)
		assert.Equal(t, "A", n.Vehicle)
	}
	assert.Equal(t, "Sim", ns[0].Factory)
	assert.True(t, ns[1].Enabled)
	assert.False(t, ns[2].Enabled)
	assert.Equal(t, "", ns[3].Factory)
	assert.False(t, ns[3].Attached)
}

func TestDetachDisablesEnabledAdapter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.m.Attach(ctx, "A", f.sim))
	require.NoError(t, f.m.Enable(ctx, "A"))
	a := f.adapter(t, "A")

	require.NoError(t, f.m.Attach(ctx, "A", nil))
	assert.False(t, a.IsEnabled())
	assert.False(t, f.entry(t, "A").Attached)

	f.notifications()
	require.NoError(t, f.m.Detach(ctx, "A"))
	assert.Empty(t, f.notifications())
}

func TestEnableDisableNoops(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.m.Enable(ctx, "A"))
	require.NoError(t, f.m.Disable(ctx, "A"))
	assert.Empty(t, f.notifications())

	require.NoError(t, f.m.Attach(ctx, "A", f.sim))
	require.NoError(t, f.m.Disable(ctx, "A"))
	require.NoError(t, f.m.Enable(ctx, "A"))
	require.NoError(t, f.m.Enable(ctx, "A"))

	enables, disables := f.adapter(t, "A").Calls()
	assert.Equal(t, 1, enables)
	assert.Equal(t, 0, disables)
	assert.Len(t, f.notifications(), 2)
}

func TestDisableRecordsDriverThatStoppedItself(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.m.Attach(ctx, "A", f.sim))
	require.NoError(t, f.m.Enable(ctx, "A"))
	a := f.adapter(t, "A")
	f.notifications()

	// The driver drops out without going through the manager.
	require.NoError(t, a.Disable())
	assert.Equal(t, pool.PhaseEnabled, f.entry(t, "A").Phase)

	require.NoError(t, f.m.Disable(ctx, "A"))

	_, disables := a.Calls()
	assert.Equal(t, 1, disables)
	st := f.entry(t, "A")
	assert.Equal(t, pool.PhaseDisabled, st.Phase)
	assert.False(t, st.Enabled)
	counts, err := f.m.CountsAll()
	require.NoError(t, err)
	assert.Equal(t, StateCounts{Attached: 1, Detached: 1, Disabled: 1}, counts)

	ns := f.notifications()
	require.Len(t, ns, 1)
	assert.Equal(t, notify.OpDisable, ns[0].Operation)
	assert.False(t, ns[0].Enabled)
	assert.Equal(t, st.Seq, ns[0].Seq)

	// The driver comes back by itself; Enable only records it.
	require.NoError(t, a.Enable())
	require.NoError(t, f.m.Enable(ctx, "A"))
	enables, _ := a.Calls()
	assert.Equal(t, 2, enables)
	assert.Equal(t, pool.PhaseEnabled, f.entry(t, "A").Phase)
	require.NoError(t, f.m.Enable(ctx, "A"))
	assert.Len(t, f.notifications(), 1)
}

func TestEnableFailureLeavesState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sim.FailEnable = true
	require.NoError(t, f.m.Attach(ctx, "A", f.sim))
	before := f.entry(t, "A")
	f.notifications()

	err := f.m.Enable(ctx, "A")
	assert.ErrorIs(t, err, core.ErrAdapterOperation)
	assert.Equal(t, before, f.entry(t, "A"))
	assert.Empty(t, f.notifications())
}

func TestEnableBatchIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	failing := &fake.Factory{Desc: "Broken", FailEnable: true}
	require.NoError(t, f.reg.Register(failing))
	require.NoError(t, f.m.Attach(ctx, "A", f.sim))
	require.NoError(t, f.m.Attach(ctx, "B", failing))

	res := f.m.EnableBatch(ctx, []string{"A", "B"})

	assert.True(t, f.adapter(t, "A").IsEnabled())
	assert.Equal(t, []string{"A"}, res.Succeeded())
	assert.Equal(t, []string{"B"}, res.Failed())
	require.Len(t, res.Items, 2)
	assert.Equal(t, "A", res.Items[0].Vehicle)
	assert.NoError(t, res.Items[0].Err)
	assert.ErrorIs(t, res.Items[1].Err, core.ErrAdapterOperation)
	assert.Error(t, res.Err())
}

func TestBatchReportsUnknownVehicles(t *testing.T) {
	f := newFixture(t)
	res := f.m.DisableBatch(context.Background(), []string{"Z", "A"})

	assert.Equal(t, []string{"A"}, res.Succeeded())
	assert.ErrorIs(t, res.Items[0].Err, core.ErrNotFound)
}

type panickingFactory struct{ fake.Factory }

type panickingAdapter struct{ *fake.Adapter }

func (panickingAdapter) Enable() error { panic("driver bug") }

func (p *panickingFactory) Create(v core.VehicleDescriptor) (core.CommAdapter, error) {
	a, err := p.Factory.Create(v)
	if err != nil {
		return nil, err
	}
	return panickingAdapter{fake.Unwrap(a)}, nil
}

func TestBatchRecoversFromPanickingDriver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	panics := &panickingFactory{fake.Factory{Desc: "Panics"}}
	require.NoError(t, f.reg.Register(panics))
	require.NoError(t, f.m.Attach(ctx, "A", f.sim))
	require.NoError(t, f.m.Attach(ctx, "B", panics))

	res := f.m.EnableBatch(ctx, []string{"A", "B"})
	assert.Equal(t, []string{"A"}, res.Succeeded())
	assert.ErrorIs(t, res.Items[1].Err, core.ErrAdapterOperation)

	// The entry lock was released.
	require.NoError(t, f.m.Detach(ctx, "B"))
}

func TestEnableAllDisableAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.m.Attach(ctx, "A", f.sim))
	require.NoError(t, f.m.Attach(ctx, "B", f.sim))

	res, err := f.m.EnableAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, res.Succeeded())
	assert.NoError(t, res.Err())

	counts, err := f.m.CountsAll()
	require.NoError(t, err)
	assert.Equal(t, StateCounts{Attached: 2, Enabled: 2}, counts)

	_, err = f.m.DisableAll(ctx)
	require.NoError(t, err)
	counts, _ = f.m.CountsAll()
	assert.Equal(t, StateCounts{Attached: 2, Disabled: 2}, counts)
}

func TestAttachBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.m.AttachBatch(ctx, []string{"A", "B"}, f.hw)
	assert.ErrorIs(t, err, core.ErrUnsupported)
	assert.Zero(t, f.hw.Created())

	res, err := f.m.AttachBatch(ctx, []string{"A", "B"}, f.sim)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, res.Succeeded())
	assert.Equal(t, 2, f.sim.Created())

	res, err = f.m.AttachBatch(ctx, []string{"A", "B"}, nil)
	require.NoError(t, err)
	assert.NoError(t, res.Err())
	counts, _ := f.m.CountsAll()
	assert.Equal(t, 2, counts.Detached)
}

func TestInitPosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.m.InitPosition(ctx, "A", "Point-1"), core.ErrNoAdapter)

	passive := &fake.Factory{Desc: "Passive"}
	require.NoError(t, f.reg.Register(passive))
	require.NoError(t, f.m.Attach(ctx, "A", f.sim))
	require.NoError(t, f.m.Attach(ctx, "B", passive))

	assert.ErrorIs(t, f.m.InitPosition(ctx, "A", "Point-9"), core.ErrUnknownPosition)
	assert.ErrorIs(t, f.m.InitPosition(ctx, "A", "Point-9"), core.ErrNotFound)

	// Simulating drivers handle the position themselves.
	require.NoError(t, f.m.InitPosition(ctx, "A", "Point-1"))
	e, _ := f.m.GetEntryFor("A")
	assert.Equal(t, []string{"Point-1"}, e.Adapter().(*fake.SimulatingAdapter).Initialised())

	// Passive drivers get a plain process model write.
	require.NoError(t, f.m.InitPosition(ctx, "B", "Point-2"))
	e, _ = f.m.GetEntryFor("B")
	assert.Equal(t, "Point-2", e.Adapter().ProcessModel().VehiclePosition())

	// The source is consulted on every request.
	f.positions.Set("Point-3")
	assert.ErrorIs(t, f.m.InitPosition(ctx, "B", "Point-2"), core.ErrUnknownPosition)
	require.NoError(t, f.m.InitPosition(ctx, "B", "Point-3"))
	assert.Equal(t, 7, f.positions.Reads())
}

func TestPositionsSorted(t *testing.T) {
	f := newFixture(t)
	f.positions.Set("b", "a", "c", "a")

	got, err := f.m.Positions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got)

	f.positions.Err = errors.New("store down")
	_, err = f.m.Positions(context.Background())
	assert.Error(t, err)
}

func TestStateCountsEmpty(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, StateCounts{}, f.m.StateCounts(nil))

	counts, err := f.m.CountsFor([]string{"A"})
	require.NoError(t, err)
	assert.Equal(t, StateCounts{Detached: 1}, counts)

	_, err = f.m.CountsFor([]string{"Z"})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestStateInvariantsHoldUnderRandomOperations(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.sim.FailEnable = rapid.Bool().Draw(t, "failEnable")

		ops := rapid.SliceOfN(rapid.SampledFrom([]string{"attachSim", "attachReal", "detach", "enable", "disable"}), 0, 25).Draw(t, "ops")
		for i, op := range ops {
			vehicle := rapid.SampledFrom([]string{"A", "B"}).Draw(t, "vehicle")
			switch op {
			case "attachSim":
				_ = f.m.Attach(ctx, vehicle, f.sim)
			case "attachReal":
				_ = f.m.Attach(ctx, vehicle, f.hw)
			case "detach":
				_ = f.m.Detach(ctx, vehicle)
			case "enable":
				_ = f.m.Enable(ctx, vehicle)
			case "disable":
				_ = f.m.Disable(ctx, vehicle)
			}

			entries, _ := f.m.SortedEntries()
			for _, e := range entries {
				if (e.Adapter() == nil) != (e.Factory() == nil) {
					t.Fatalf("step %d: adapter/factory mismatch on %s", i, e.Name())
				}
			}

			subset := entries[:rapid.IntRange(0, len(entries)).Draw(t, "subset")]
			c := f.m.StateCounts(subset)
			if c.Attached+c.Detached != len(subset) || c.Enabled+c.Disabled != c.Attached {
				t.Fatalf("step %d: inconsistent counts %+v over %d entries", i, c, len(subset))
			}
		}

		// Every accepted mutation produced exactly one notification, per vehicle in order.
		last := map[string]uint64{}
		for _, n := range f.notifications() {
			if n.Seq != last[n.Vehicle]+1 {
				t.Fatalf("vehicle %s: seq %d after %d", n.Vehicle, n.Seq, last[n.Vehicle])
			}
			last[n.Vehicle] = n.Seq
		}
		for name, seq := range last {
			e, _ := f.m.GetEntryFor(name)
			if e.Seq() != seq {
				t.Fatalf("vehicle %s: %d notifications for %d mutations", name, seq, e.Seq())
			}
		}
	})
}

func TestConcurrentCallsOnOneVehicleSerialize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.m.Attach(ctx, "A", f.sim))

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = f.m.Enable(ctx, "A")
			} else {
				_ = f.m.Disable(ctx, "A")
			}
		}(i)
	}
	wg.Wait()

	e, _ := f.m.GetEntryFor("A")
	ns := f.notifications()
	require.NotEmpty(t, ns)
	assert.Equal(t, e.Seq(), ns[len(ns)-1].Seq)
	assert.Equal(t, e.Adapter().IsEnabled(), ns[len(ns)-1].Enabled)
}

type blockingAdapter struct {
	*fake.Adapter
	release chan struct{}
}

func (b blockingAdapter) Enable() error {
	<-b.release
	return b.Adapter.Enable()
}

type blockingFactory struct {
	fake.Factory
	release chan struct{}
}

func (b *blockingFactory) Create(v core.VehicleDescriptor) (core.CommAdapter, error) {
	a, _ := b.Factory.Create(v)
	return blockingAdapter{fake.Unwrap(a), b.release}, nil
}

func TestSlowDriverDoesNotBlockOtherVehiclesOrReaders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	slow := &blockingFactory{Factory: fake.Factory{Desc: "Slow"}, release: make(chan struct{})}
	require.NoError(t, f.reg.Register(slow))
	require.NoError(t, f.m.Attach(ctx, "A", slow))
	require.NoError(t, f.m.Attach(ctx, "B", f.sim))

	done := make(chan error)
	go func() { done <- f.m.Enable(ctx, "A") }()

	require.Eventually(t, func() bool {
		return f.m.Enable(ctx, "B") == nil && f.adapter(t, "B").IsEnabled()
	}, time.Second, 5*time.Millisecond)

	counts, err := f.m.CountsAll()
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Attached)

	close(slow.release)
	require.NoError(t, <-done)
}

// Subscribers that never read must not hold up mutations of any vehicle.
func TestStalledSubscribersDoNotBlockMutations(t *testing.T) {
	sim := &fake.Factory{Desc: "Sim"}
	reg, err := registry.New(sim)
	require.NoError(t, err)

	ch := notify.NewChannel(notify.WithLogger(log.NewNopLogger()), notify.WithBufferSize(1))
	defer ch.Close()
	m, err := New(Config{
		Pool:        pool.New(),
		Registry:    reg,
		Operational: &fake.Operational{},
		Channel:     ch,
		Directory:   staticDirectory(fake.Vehicles("A", "B")),
		Logger:      log.NewNopLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, m.Initialize(context.Background()))

	all, err := m.Subscribe(notify.Filter{})
	require.NoError(t, err)
	_, err = m.Subscribe(notify.Filter{Vehicles: []string{"A"}})
	require.NoError(t, err)

	require.NoError(t, m.Attach(context.Background(), "A", sim))
	detached := make(chan error, 1)
	go func() { detached <- m.Detach(context.Background(), "A") }()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, m.Attach(ctx, "B", sim))
	require.NoError(t, m.Enable(ctx, "B"))
	require.NoError(t, ctx.Err())

	select {
	case err := <-detached:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("detach blocked on a stalled subscriber")
	}

	// Nothing was lost for the subscriber that eventually reads.
	got := map[string][]uint64{}
	timeout := time.After(time.Second)
	for len(got["A"])+len(got["B"]) < 4 {
		select {
		case n := <-all.Events():
			got[n.Vehicle] = append(got[n.Vehicle], n.Seq)
		case <-timeout:
			t.Fatalf("received %v", got)
		}
	}
	assert.Equal(t, []uint64{1, 2}, got["A"])
	assert.Equal(t, []uint64{1, 2}, got["B"])
}
