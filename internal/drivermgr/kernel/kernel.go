package kernel

import (
	"context"
	"fmt"
	"sync"

	"github.com/looplab/fsm"

	"github.com/autopeer-io/drivermgr/internal/pkg/metrics"
	fsmutil "github.com/autopeer-io/drivermgr/internal/pkg/util/fsm"
	"github.com/autopeer-io/drivermgr/pkg/log"
)

// Kernel states.
const (
	StateModelling = "MODELLING"
	StateOperating = "OPERATING"
	StateShutdown  = "SHUTDOWN"
)

const (
	// EventStart moves from modelling to operating.
	EventStart = "start"
	// EventStop moves from operating back to modelling.
	EventStop = "stop"
	// EventShutdown ends the kernel; there is no way back.
	EventShutdown = "shutdown"
	// EventReload re-enters modelling, e.g. after the plant model changed.
	EventReload = "reload"
)

// Listener is called after every state change.
type Listener func(from, to string)

// State is the controlling system's state machine. Driver requests are only
// accepted while it is OPERATING.
type State struct {
	fsm    *fsm.FSM
	logger log.Logger

	mu        sync.RWMutex
	listeners []Listener
}

// New creates a kernel state machine in MODELLING.
func New() *State {
	s := &State{logger: log.WithName("kernel")}

	events := fsm.Events{
		{Name: EventStart, Src: []string{StateModelling}, Dst: StateOperating},
		{Name: EventStop, Src: []string{StateOperating}, Dst: StateModelling},
		{Name: EventReload, Src: []string{StateModelling}, Dst: StateModelling},
		{Name: EventShutdown, Src: []string{StateModelling, StateOperating}, Dst: StateShutdown},
	}

	callbacks := fsm.Callbacks{
		"enter_state": fsmutil.WrapEvent(s.actionEnterState),
	}

	s.fsm = fsm.NewFSM(StateModelling, events, callbacks)
	return s
}

func (s *State) actionEnterState(_ context.Context, e *fsm.Event) error {
	operational := 0.0
	if e.Dst == StateOperating {
		operational = 1
	}
	metrics.Operational.Set(operational)
	s.logger.Info("Kernel state changed", "from", e.Src, "to", e.Dst)

	s.mu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.RUnlock()
	for _, l := range listeners {
		l(e.Src, e.Dst)
	}
	return nil
}

// IsOperational reports whether the kernel is OPERATING.
func (s *State) IsOperational() bool {
	return s.fsm.Current() == StateOperating
}

// State returns the current state name.
func (s *State) State() string {
	return s.fsm.Current()
}

// OnChange registers a listener for state changes.
func (s *State) OnChange(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Start moves the kernel to OPERATING. Starting an operating kernel is a no-op.
func (s *State) Start(ctx context.Context) error {
	if s.IsOperational() {
		return nil
	}
	return s.fire(ctx, EventStart)
}

// Stop moves the kernel back to MODELLING.
func (s *State) Stop(ctx context.Context) error {
	if s.fsm.Current() == StateModelling {
		return nil
	}
	return s.fire(ctx, EventStop)
}

// Reload re-enters MODELLING. It is only allowed while modelling.
func (s *State) Reload(ctx context.Context) error {
	return s.fire(ctx, EventReload)
}

// Shutdown terminates the kernel.
func (s *State) Shutdown(ctx context.Context) error {
	if s.fsm.Current() == StateShutdown {
		return nil
	}
	return s.fire(ctx, EventShutdown)
}

func (s *State) fire(ctx context.Context, event string) error {
	if err := s.fsm.Event(ctx, event); fsmutil.IsRealError(err) {
		return fmt.Errorf("kernel %s in state %s: %w", event, s.fsm.Current(), err)
	}
	return nil
}
