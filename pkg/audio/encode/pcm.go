// ABOUTME: PCM audio encoder
// ABOUTME: Encodes int32 samples to 8, 16, 24 or 32-bit PCM bytes
package encode

import (
	"encoding/binary"
	"fmt"

	"github.com/BuffMcBigHuge/audio-chat/pkg/audio"
)

// PCMEncoder encodes PCM audio
type PCMEncoder struct {
	bitDepth int
}

// NewPCM creates a new PCM encoder
func NewPCM(format audio.Format) (Encoder, error) {
	switch format.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 8, 16, 24, 32)", format.BitDepth)
	}

	return &PCMEncoder{
		bitDepth: format.BitDepth,
	}, nil
}

// Encode converts int32 samples to PCM bytes
func (e *PCMEncoder) Encode(samples []int32) ([]byte, error) {
	switch e.bitDepth {
	case 8:
		output := make([]byte, len(samples))
		for i, sample := range samples {
			output[i] = audio.SampleToUint8(sample)
		}
		return output, nil
	case 24:
		// 24-bit PCM: 3 bytes per sample
		output := make([]byte, len(samples)*3)
		for i, sample := range samples {
			bytes := audio.SampleTo24Bit(sample)
			output[i*3] = bytes[0]
			output[i*3+1] = bytes[1]
			output[i*3+2] = bytes[2]
		}
		return output, nil
	case 32:
		output := make([]byte, len(samples)*4)
		for i, sample := range samples {
			binary.LittleEndian.PutUint32(output[i*4:], uint32(audio.SampleToInt32(sample)))
		}
		return output, nil
	default:
		// 16-bit PCM: 2 bytes per sample
		output := make([]byte, len(samples)*2)
		for i, sample := range samples {
			sample16 := audio.SampleToInt16(sample)
			binary.LittleEndian.PutUint16(output[i*2:], uint16(sample16))
		}
		return output, nil
	}
}

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}

// Buffer encodes a whole buffer in its own format
func Buffer(buf *audio.Buffer) ([]byte, error) {
	if buf == nil {
		return nil, fmt.Errorf("nil buffer")
	}
	enc, err := NewPCM(buf.Format)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.Encode(buf.Samples)
}
