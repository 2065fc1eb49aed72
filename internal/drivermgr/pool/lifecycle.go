package pool

import (
	"context"

	"github.com/looplab/fsm"

	"github.com/autopeer-io/drivermgr/internal/pkg/metrics"
	fsmutil "github.com/autopeer-io/drivermgr/internal/pkg/util/fsm"
)

// Entry lifecycle phases.
const (
	PhaseDetached = "detached"
	PhaseDisabled = "disabled"
	PhaseEnabled  = "enabled"
)

// Entry lifecycle events.
const (
	EventAttach  = "attach"
	EventDetach  = "detach"
	EventEnable  = "enable"
	EventDisable = "disable"
)

// lifecycle tracks which phase an entry is in. Rebinding a disabled entry is
// a self-transition on "disabled"; rebinding an enabled one goes through "disable" first.
type lifecycle struct {
	*fsm.FSM
}

func newLifecycle() *lifecycle {
	l := &lifecycle{}

	events := fsm.Events{
		{Name: EventAttach, Src: []string{PhaseDetached, PhaseDisabled}, Dst: PhaseDisabled},
		{Name: EventDetach, Src: []string{PhaseDisabled}, Dst: PhaseDetached},
		{Name: EventEnable, Src: []string{PhaseDisabled}, Dst: PhaseEnabled},
		{Name: EventDisable, Src: []string{PhaseEnabled}, Dst: PhaseDisabled},
	}

	callbacks := fsm.Callbacks{
		"enter_state": fsmutil.WrapEvent(l.actionEnterState),
	}

	l.FSM = fsm.NewFSM(PhaseDetached, events, callbacks)
	return l
}

func (l *lifecycle) actionEnterState(_ context.Context, e *fsm.Event) error {
	metrics.MovePhase(e.Src, e.Dst)
	return nil
}

// fire runs the given events in order. Self-transitions are not errors.
func (l *lifecycle) fire(events ...string) error {
	for _, event := range events {
		if err := l.Event(context.Background(), event); fsmutil.IsRealError(err) {
			return err
		}
	}
	return nil
}
