// ABOUTME: Real-time PCM renderer driven by an audio device callback
// ABOUTME: Applies queued commands at callback boundaries and reports status events
package render

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/BuffMcBigHuge/audio-chat/pkg/audio"
)

const (
	// DefaultFramesPerCallback matches the usual render quantum of audio graphs
	DefaultFramesPerCallback = 128

	DefaultCommandQueue = 16
	DefaultEventQueue   = 64
)

// Config holds renderer configuration
type Config struct {
	// SampleRate and Channels describe the output device. Buffers are
	// rendered frame for frame, so callers resample to SampleRate first.
	SampleRate int
	Channels   int

	// FramesPerCallback is the cadence clock-driven sinks pull at
	FramesPerCallback int

	CommandQueue int
	EventQueue   int
}

// Stats is an observer snapshot of renderer counters
type Stats struct {
	Callbacks      uint64
	FramesRendered uint64
	DroppedEvents  uint64
	Session        uint64
}

type commandKind int

const (
	cmdLoad commandKind = iota
	cmdPlay
	cmdStop
)

type command struct {
	kind    commandKind
	session uint64
	buf     *audio.Buffer
}

// Renderer turns a loaded buffer into float32 frames one callback at a time.
// Render must only be called from a single audio thread; every other method
// is safe to call from any goroutine.
type Renderer struct {
	config Config
	cmds   chan command
	events chan Event

	// Owned by the audio thread
	buf     *audio.Buffer
	session uint64
	cursor  int
	state   State

	// Snapshots for observers
	stateSnap   atomic.Int32
	cursorSnap  atomic.Int64
	sessionSnap atomic.Uint64
	callbacks   atomic.Uint64
	rendered    atomic.Uint64
	dropped     atomic.Uint64
}

// New creates a renderer in the Idle state
func New(config Config) *Renderer {
	if config.SampleRate <= 0 {
		config.SampleRate = audio.DefaultFormat.SampleRate
	}
	if config.Channels <= 0 {
		config.Channels = 2
	}
	if config.FramesPerCallback <= 0 {
		config.FramesPerCallback = DefaultFramesPerCallback
	}
	if config.CommandQueue <= 0 {
		config.CommandQueue = DefaultCommandQueue
	}
	if config.EventQueue <= 0 {
		config.EventQueue = DefaultEventQueue
	}

	return &Renderer{
		config: config,
		cmds:   make(chan command, config.CommandQueue),
		events: make(chan Event, config.EventQueue),
		state:  Idle,
	}
}

// Config returns the effective configuration
func (r *Renderer) Config() Config {
	return r.config
}

// Events returns the ordered status event stream
func (r *Renderer) Events() <-chan Event {
	return r.events
}

// Load queues a buffer for session. The buffer must not be modified afterwards.
func (r *Renderer) Load(ctx context.Context, session uint64, buf *audio.Buffer) error {
	return r.send(ctx, command{kind: cmdLoad, session: session, buf: buf})
}

// Play queues a start-from-zero of the loaded buffer
func (r *Renderer) Play(ctx context.Context) error {
	return r.send(ctx, command{kind: cmdPlay})
}

// Stop queues a stop of the playing buffer
func (r *Renderer) Stop(ctx context.Context) error {
	return r.send(ctx, command{kind: cmdStop})
}

func (r *Renderer) send(ctx context.Context, cmd command) error {
	select {
	case r.cmds <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the state as of the last callback
func (r *Renderer) State() State {
	return State(r.stateSnap.Load())
}

// Cursor returns the next frame index as of the last callback
func (r *Renderer) Cursor() int {
	return int(r.cursorSnap.Load())
}

// Stats returns renderer counters
func (r *Renderer) Stats() Stats {
	return Stats{
		Callbacks:      r.callbacks.Load(),
		FramesRendered: r.rendered.Load(),
		DroppedEvents:  r.dropped.Load(),
		Session:        r.sessionSnap.Load(),
	}
}

// Render fills out with interleaved frames for the configured channel count.
// It never blocks, allocates, or performs I/O on the normal path.
func (r *Renderer) Render(out []float32) {
	defer func() {
		if p := recover(); p != nil {
			clear(out)
			r.state = Error
			r.emit(Event{Kind: EventError, Session: r.session, Err: &audio.RenderError{
				Session: r.session,
				Reason:  "render step panicked",
				Err:     fmt.Errorf("%v", p),
			}})
			r.publish()
		}
	}()

	r.callbacks.Add(1)
	r.drain()

	if r.state != Playing {
		clear(out)
		r.publish()
		return
	}

	channels := r.config.Channels
	srcChannels := r.buf.Format.Channels
	total := r.buf.Frames()
	frames := len(out) / channels

	i := 0
	for ; i < frames && r.cursor < total; i++ {
		base := r.cursor * srcChannels
		for c := 0; c < channels; c++ {
			out[i*channels+c] = audio.SampleToFloat32(r.buf.Samples[base+c%srcChannels])
		}
		r.cursor++
	}
	clear(out[i*channels:])
	r.rendered.Add(uint64(i))

	if r.cursor >= total {
		r.state = Ended
		r.emit(Event{Kind: EventEnded, Session: r.session})
	}
	r.publish()
}

// drain applies every pending command in order
func (r *Renderer) drain() {
	for {
		select {
		case cmd := <-r.cmds:
			r.apply(cmd)
		default:
			return
		}
	}
}

func (r *Renderer) apply(cmd command) {
	switch cmd.kind {
	case cmdLoad:
		if r.state == Playing {
			r.emit(Event{Kind: EventStopped, Session: r.session, Frame: r.cursor})
		}

		r.session = cmd.session
		r.cursor = 0
		if cmd.buf == nil {
			r.buf = nil
			r.state = Error
			r.emit(Event{Kind: EventError, Session: cmd.session, Err: &audio.RenderError{Session: cmd.session, Reason: "no buffer loaded"}})
			return
		}
		if err := cmd.buf.Format.Validate(); err != nil {
			r.buf = nil
			r.state = Error
			r.emit(Event{Kind: EventError, Session: cmd.session, Err: &audio.RenderError{Session: cmd.session, Reason: "invalid buffer format", Err: err}})
			return
		}

		r.buf = cmd.buf
		r.state = Loaded
		r.emit(Event{Kind: EventReady, Session: r.session, Duration: r.buf.Duration()})

	case cmdPlay:
		if r.state != Loaded && r.state != Stopped {
			return
		}
		r.cursor = 0
		r.state = Playing
		r.emit(Event{Kind: EventPlaying, Session: r.session})

	case cmdStop:
		if r.state != Playing {
			return
		}
		frame := r.cursor
		r.cursor = 0
		r.state = Stopped
		r.emit(Event{Kind: EventStopped, Session: r.session, Frame: frame})
	}
}

// emit never blocks the audio thread; overflow is counted
func (r *Renderer) emit(e Event) {
	select {
	case r.events <- e:
	default:
		r.dropped.Add(1)
	}
}

func (r *Renderer) publish() {
	r.stateSnap.Store(int32(r.state))
	r.cursorSnap.Store(int64(r.cursor))
	r.sessionSnap.Store(r.session)
}
