// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for callback-driven playback backends
package output

// Source fills interleaved float32 frames when the device asks for them.
// Render is called from the backend's audio thread and must not block.
type Source interface {
	Render(out []float32)
}

// Output represents an audio output device that pulls from a Source
type Output interface {
	// Open initializes the output device and starts pulling from src
	Open(sampleRate, channels int, src Source) error

	// Close stops pulling and releases output resources
	Close() error
}

// VolumeControl is implemented by outputs with software gain
type VolumeControl interface {
	SetVolume(volume int)
	SetMuted(muted bool)
	GetVolume() int
	IsMuted() bool
}

// New returns the output for a backend name: "oto", "malgo" or "null"
func New(backend string, framesPerCallback int) Output {
	switch backend {
	case "malgo":
		return NewMalgo()
	case "null":
		return NewClock(ClockConfig{FramesPerCallback: framesPerCallback})
	default:
		return NewOto()
	}
}
