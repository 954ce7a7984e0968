package daemon

import (
	"fmt"

	"github.com/bnema/gesturesd/internal/gesture"
)

// EventKind identifies what happened in the loop
type EventKind int

const (
	EventAttached EventKind = iota + 1
	EventDetached
	EventLost
	EventClassified
	EventDispatched
)

func (k EventKind) String() string {
	switch k {
	case EventAttached:
		return "attached"
	case EventDetached:
		return "detached"
	case EventLost:
		return "lost"
	case EventClassified:
		return "classified"
	case EventDispatched:
		return "dispatched"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is reported to the observer of a Loop
type Event struct {
	Kind           EventKind
	Device         string
	Classification gesture.Classification
	Dispatch       gesture.Dispatch
	Err            error
}

func (e Event) String() string {
	switch e.Kind {
	case EventClassified:
		return fmt.Sprintf("%s %s", e.Device, e.Classification)
	case EventDispatched:
		if e.Err != nil {
			return fmt.Sprintf("%s (failed: %v)", e.Dispatch, e.Err)
		}
		return e.Dispatch.String()
	case EventLost:
		return fmt.Sprintf("%s lost: %v", e.Device, e.Err)
	default:
		return fmt.Sprintf("%s %s", e.Device, e.Kind)
	}
}

// Observer receives loop events
type Observer func(Event)
