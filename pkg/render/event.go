// ABOUTME: Renderer states and status events
// ABOUTME: Event kinds mirror the render session lifecycle
package render

import "time"

// State is the lifecycle state of the current render session
type State int32

const (
	Idle State = iota
	Loaded
	Playing
	Stopped
	Ended
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loaded:
		return "loaded"
	case Playing:
		return "playing"
	case Stopped:
		return "stopped"
	case Ended:
		return "ended"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// EventKind identifies a status event
type EventKind int

const (
	EventReady EventKind = iota
	EventPlaying
	EventStopped
	EventEnded
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventPlaying:
		return "playing"
	case EventStopped:
		return "stopped"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a status report from the audio thread
type Event struct {
	Kind    EventKind
	Session uint64

	// Duration is set on EventReady
	Duration time.Duration

	// Frame is the cursor position at which playback stopped
	Frame int

	// Err is set on EventError and is always an *audio.RenderError
	Err error
}

// Terminal reports whether the event resolves its session
func (e Event) Terminal() bool {
	return e.Kind == EventStopped || e.Kind == EventEnded || e.Kind == EventError
}
