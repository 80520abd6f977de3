// ABOUTME: Canonical RIFF/WAVE container synthesis for raw PCM payloads
// ABOUTME: Builds the 44-byte header, streams containers and parses them back
package wav

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/BuffMcBigHuge/audio-chat/pkg/audio"
)

// HeaderSize is the length of the canonical PCM header
const HeaderSize = 44

// MaxPayload is the largest payload whose sizes fit the 32-bit RIFF fields
const MaxPayload = math.MaxUint32 - (HeaderSize - 8)

// header mirrors the canonical on-disk layout, field by field
type header struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // 36 + data length
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // data length
}

func newHeader(format audio.Format, dataLength int) (header, error) {
	if err := format.Validate(); err != nil {
		return header{}, err
	}
	if format.Channels > math.MaxUint16 {
		return header{}, &audio.MalformedInputError{Op: "wav", Reason: fmt.Sprintf("too many channels: %d", format.Channels)}
	}
	if int64(dataLength) > MaxPayload || dataLength < 0 {
		return header{}, &audio.MalformedInputError{Op: "wav", Reason: fmt.Sprintf("payload of %d bytes does not fit a RIFF container", dataLength)}
	}

	return header{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(HeaderSize - 8 + dataLength),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(format.Channels),
		SampleRate:    uint32(format.SampleRate),
		ByteRate:      uint32(format.ByteRate()),
		BlockAlign:    uint16(format.FrameSize()),
		BitsPerSample: uint16(format.BitDepth),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(dataLength),
	}, nil
}

// Header returns the canonical header for a payload of dataLength bytes
func Header(format audio.Format, dataLength int) ([HeaderSize]byte, error) {
	var out [HeaderSize]byte
	h, err := newHeader(format, dataLength)
	if err != nil {
		return out, err
	}

	buf := bytes.NewBuffer(out[:0])
	if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
		return out, fmt.Errorf("failed to write WAV header: %w", err)
	}
	copy(out[:], buf.Bytes())
	return out, nil
}

// Synthesize prepends the canonical header to payload.
// Empty and misaligned payloads are accepted as given.
func Synthesize(format audio.Format, payload []byte) ([]byte, error) {
	h, err := Header(format, len(payload))
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, HeaderSize+len(payload))
	out = append(out, h[:]...)
	out = append(out, payload...)
	return out, nil
}

// WriteTo streams header and payload to w without joining them
func WriteTo(w io.Writer, format audio.Format, payload []byte) (int64, error) {
	h, err := Header(format, len(payload))
	if err != nil {
		return 0, err
	}

	n, err := w.Write(h[:])
	if err != nil {
		return int64(n), fmt.Errorf("failed to write WAV header: %w", err)
	}
	m, err := w.Write(payload)
	if err != nil {
		return int64(n + m), fmt.Errorf("failed to write audio data: %w", err)
	}
	return int64(n + m), nil
}

// Parse reads a canonical container and returns its format and payload
func Parse(data []byte) (audio.Format, []byte, error) {
	if len(data) < HeaderSize {
		return audio.Format{}, nil, &audio.MalformedInputError{
			Op:     "wav",
			Reason: fmt.Sprintf("need at least %d bytes, got %d", HeaderSize, len(data)),
			Offset: len(data),
		}
	}

	var h header
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &h); err != nil {
		return audio.Format{}, nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	switch {
	case string(h.ChunkID[:]) != "RIFF":
		return audio.Format{}, nil, &audio.MalformedInputError{Op: "wav", Reason: "missing RIFF header"}
	case string(h.Format[:]) != "WAVE":
		return audio.Format{}, nil, &audio.MalformedInputError{Op: "wav", Reason: "missing WAVE format", Offset: 8}
	case string(h.Subchunk1ID[:]) != "fmt " || h.Subchunk1Size != 16:
		return audio.Format{}, nil, &audio.MalformedInputError{Op: "wav", Reason: "missing canonical fmt chunk", Offset: 12}
	case h.AudioFormat != 1:
		return audio.Format{}, nil, &audio.MalformedInputError{Op: "wav", Reason: fmt.Sprintf("unsupported audio format: %d (only PCM is supported)", h.AudioFormat), Offset: 20}
	case string(h.Subchunk2ID[:]) != "data":
		return audio.Format{}, nil, &audio.MalformedInputError{Op: "wav", Reason: "missing data chunk", Offset: 36}
	}

	format := audio.Format{
		SampleRate: int(h.SampleRate),
		Channels:   int(h.NumChannels),
		BitDepth:   int(h.BitsPerSample),
	}
	if err := format.Validate(); err != nil {
		return audio.Format{}, nil, err
	}

	if uint64(h.Subchunk2Size) != uint64(len(data)-HeaderSize) || h.ChunkSize != h.Subchunk2Size+HeaderSize-8 {
		return audio.Format{}, nil, &audio.MalformedInputError{
			Op:     "wav",
			Reason: fmt.Sprintf("data chunk declares %d bytes, container holds %d", h.Subchunk2Size, len(data)-HeaderSize),
			Offset: 40,
		}
	}

	return format, data[HeaderSize:], nil
}
