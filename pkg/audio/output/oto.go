// ABOUTME: Oto-based audio output implementation
// ABOUTME: Oto's player goroutine pulls float32 frames from the source
package output

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/ebitengine/oto/v3"
)

const (
	bytesPerFloat = 4

	// otoScratchFrames bounds the per-read render size
	otoScratchFrames = 4096
)

// Oto output implementation using oto library
type Oto struct {
	*gain

	otoCtx     *oto.Context
	player     *oto.Player
	reader     *sourceReader
	sampleRate int
	channels   int
	mu         sync.Mutex
}

// NewOto creates a new Oto output
func NewOto() *Oto {
	return &Oto{gain: newGain()}
}

// Open initializes the output device
func (o *Oto) Open(sampleRate, channels int, src Source) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	// oto allows one context per process, so the device format is fixed by the first Open
	if o.otoCtx != nil && (o.sampleRate != sampleRate || o.channels != channels) {
		return fmt.Errorf("oto output already running at %dHz %dch, cannot reopen at %dHz %dch",
			o.sampleRate, o.channels, sampleRate, channels)
	}

	if o.otoCtx == nil {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatFloat32LE,
		}

		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			return fmt.Errorf("failed to create oto context: %w", err)
		}

		<-readyChan

		o.otoCtx = ctx
		o.sampleRate = sampleRate
		o.channels = channels
	}

	if o.player != nil {
		o.player.Close()
	}

	o.reader = newSourceReader(src, channels, o.gain)
	o.player = o.otoCtx.NewPlayer(o.reader)
	o.player.Play()

	log.Printf("Audio output initialized: %dHz, %d channels (oto/f32)", sampleRate, channels)

	return nil
}

// Close releases output resources
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player != nil {
		if err := o.player.Close(); err != nil {
			log.Printf("Warning: oto player close error: %v", err)
		}
		o.player = nil
	}
	if o.otoCtx != nil {
		if err := o.otoCtx.Suspend(); err != nil {
			log.Printf("Warning: oto suspend error: %v", err)
		}
	}
	return nil
}

// sourceReader adapts a Source to the io.Reader oto pulls from
type sourceReader struct {
	src      Source
	channels int
	gain     *gain
	scratch  []float32
}

func newSourceReader(src Source, channels int, g *gain) *sourceReader {
	return &sourceReader{
		src:      src,
		channels: channels,
		gain:     g,
		scratch:  make([]float32, otoScratchFrames*channels),
	}
}

// Read renders whole frames into p as little-endian float32
func (r *sourceReader) Read(p []byte) (int, error) {
	frameBytes := r.channels * bytesPerFloat
	frames := len(p) / frameBytes
	written := 0

	for frames > 0 {
		n := min(frames, len(r.scratch)/r.channels)
		chunk := r.scratch[:n*r.channels]

		r.src.Render(chunk)
		r.gain.apply(chunk)
		putFloats(p[written:], chunk)

		written += n * frameBytes
		frames -= n
	}

	return written, nil
}

func putFloats(dst []byte, samples []float32) {
	for i, s := range samples {
		binary.LittleEndian.PutUint32(dst[i*bytesPerFloat:], math.Float32bits(s))
	}
}
