// ABOUTME: PCM audio decoder
// ABOUTME: Decodes 8, 16, 24 and 32-bit little-endian PCM to int32 samples
package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/BuffMcBigHuge/audio-chat/pkg/audio"
)

// PCMDecoder decodes PCM audio
type PCMDecoder struct {
	bitDepth int
}

// NewPCM creates a new PCM decoder
func NewPCM(format audio.Format) (Decoder, error) {
	switch format.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 8, 16, 24, 32)", format.BitDepth)
	}

	return &PCMDecoder{
		bitDepth: format.BitDepth,
	}, nil
}

// Decode converts PCM bytes to int32 samples.
// A trailing partial sample is ignored.
func (d *PCMDecoder) Decode(data []byte) ([]int32, error) {
	switch d.bitDepth {
	case 8:
		// 8-bit PCM is unsigned with a 128 offset
		samples := make([]int32, len(data))
		for i, b := range data {
			samples[i] = audio.SampleFromUint8(b)
		}
		return samples, nil
	case 24:
		// 24-bit PCM: 3 bytes per sample
		numSamples := len(data) / 3
		samples := make([]int32, numSamples)
		for i := 0; i < numSamples; i++ {
			b := [3]byte{data[i*3], data[i*3+1], data[i*3+2]}
			samples[i] = audio.SampleFrom24Bit(b)
		}
		return samples, nil
	case 32:
		numSamples := len(data) / 4
		samples := make([]int32, numSamples)
		for i := 0; i < numSamples; i++ {
			samples[i] = audio.SampleFromInt32(int32(binary.LittleEndian.Uint32(data[i*4:])))
		}
		return samples, nil
	default:
		// 16-bit PCM: 2 bytes per sample (default)
		numSamples := len(data) / 2
		samples := make([]int32, numSamples)
		for i := 0; i < numSamples; i++ {
			sample16 := int16(binary.LittleEndian.Uint16(data[i*2:]))
			samples[i] = audio.SampleFromInt16(sample16)
		}
		return samples, nil
	}
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}

// Payload validates a frame-aligned payload and decodes it into a Buffer.
// A zero format is treated as audio.DefaultFormat.
func Payload(format audio.Format, payload []byte) (*audio.Buffer, error) {
	format = format.OrDefault()
	if err := audio.ValidatePayload(format, payload); err != nil {
		return nil, err
	}

	dec, err := NewPCM(format)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	samples, err := dec.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}

	return &audio.Buffer{Samples: samples, Format: format}, nil
}
