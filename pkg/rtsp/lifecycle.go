package rtsp

import (
	"context"

	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"
)

// Session lifecycle states.
const (
	StateIdle      = "idle"
	StateAnnounced = "announced"
	StateReady     = "ready"
	StateRecording = "recording"
	StateClosed    = "closed"
)

// Lifecycle events, fired after the matching command succeeds.
const (
	eventAnnounce = "announce"
	eventSetup    = "setup"
	eventRecord   = "record"
	eventTeardown = "teardown"
)

// lifecycle tracks how far session negotiation has progressed. It only
// observes; it never rejects a command.
type lifecycle struct {
	machine *fsm.FSM
	logger  *logrus.Logger
}

func newLifecycle(logger *logrus.Logger) *lifecycle {
	l := &lifecycle{logger: logger}
	l.machine = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventAnnounce, Src: []string{StateIdle, StateAnnounced}, Dst: StateAnnounced},
			{Name: eventSetup, Src: []string{StateAnnounced, StateReady}, Dst: StateReady},
			{Name: eventRecord, Src: []string{StateReady, StateRecording}, Dst: StateRecording},
			{Name: eventTeardown, Src: []string{StateIdle, StateAnnounced, StateReady, StateRecording}, Dst: StateClosed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				l.logger.WithFields(logrus.Fields{
					"from": e.Src,
					"to":   e.Dst,
				}).Debug("session state changed")
			},
		},
	)
	return l
}

func (l *lifecycle) fire(ctx context.Context, event string) {
	err := l.machine.Event(ctx, event)
	switch err.(type) {
	case nil, fsm.NoTransitionError:
	default:
		l.logger.WithField("state", l.machine.Current()).Debug("ignoring out of order ", event, ": ", err)
	}
}

func (l *lifecycle) current() string {
	return l.machine.Current()
}
