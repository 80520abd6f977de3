// ABOUTME: Test tone generator
// ABOUTME: Generates sine wave clips for exercising sinks without a server
package tone

import (
	"math"
	"sync"
	"time"

	"github.com/BuffMcBigHuge/audio-chat/pkg/audio"
)

// DefaultFrequency is A4
const DefaultFrequency = 440.0

// Source generates a continuous sine wave at half scale
type Source struct {
	format      audio.Format
	frequency   float64
	sampleIndex uint64
	mu          sync.Mutex
}

// NewSource creates a tone generator for format
func NewSource(format audio.Format, frequency float64) *Source {
	if frequency <= 0 {
		frequency = DefaultFrequency
	}
	return &Source{
		format:    format.OrDefault(),
		frequency: frequency,
	}
}

// Read fills samples with interleaved frames, duplicating the tone across channels
func (s *Source) Read(samples []int32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	channels := s.format.Channels
	numFrames := len(samples) / channels

	for i := 0; i < numFrames; i++ {
		t := float64(s.sampleIndex+uint64(i)) / float64(s.format.SampleRate)
		sample := math.Sin(2 * math.Pi * s.frequency * t)

		// 50% volume, held in 24-bit range
		value := int32(sample * float64(audio.Max24Bit) * 0.5)
		for ch := 0; ch < channels; ch++ {
			samples[i*channels+ch] = value
		}
	}

	s.sampleIndex += uint64(numFrames)

	return numFrames * channels, nil
}

// Format returns the generated format
func (s *Source) Format() audio.Format { return s.format }

// Generate returns a clip of the given duration
func Generate(format audio.Format, frequency float64, d time.Duration) *audio.Buffer {
	src := NewSource(format, frequency)
	frames := int(d * time.Duration(src.format.SampleRate) / time.Second)
	samples := make([]int32, frames*src.format.Channels)
	src.Read(samples)
	return &audio.Buffer{Samples: samples, Format: src.format}
}
