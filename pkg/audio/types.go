// ABOUTME: Audio type definitions
// ABOUTME: Defines PCM formats, decoded buffers and sample conversions
package audio

import (
	"fmt"
	"time"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23

	// fullScale24 maps the 24-bit range onto [-1, 1)
	fullScale24 = 8388608.0
)

// DefaultFormat is the synthesis service output: 24kHz mono signed 16-bit LE
var DefaultFormat = Format{
	SampleRate: 24000,
	Channels:   1,
	BitDepth:   16,
}

// Format describes a linear PCM stream
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// OrDefault returns DefaultFormat when f is the zero value
func (f Format) OrDefault() Format {
	if f == (Format{}) {
		return DefaultFormat
	}
	return f
}

// Validate checks the format invariants
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return &MalformedInputError{Op: "format", Reason: fmt.Sprintf("sample rate must be positive, got %d", f.SampleRate)}
	}
	if f.Channels < 1 {
		return &MalformedInputError{Op: "format", Reason: fmt.Sprintf("channel count must be at least 1, got %d", f.Channels)}
	}
	switch f.BitDepth {
	case 8, 16, 24, 32:
	default:
		return &MalformedInputError{Op: "format", Reason: fmt.Sprintf("unsupported bit depth: %d (supported: 8, 16, 24, 32)", f.BitDepth)}
	}
	return nil
}

// BytesPerSample returns the width of one sample
func (f Format) BytesPerSample() int {
	return f.BitDepth / 8
}

// FrameSize returns the width of one interleaved frame (block align)
func (f Format) FrameSize() int {
	return f.Channels * f.BytesPerSample()
}

// ByteRate returns bytes per second of audio
func (f Format) ByteRate() int {
	return f.SampleRate * f.FrameSize()
}

// Frames returns how many whole frames fit in n payload bytes
func (f Format) Frames(n int) int {
	if f.FrameSize() == 0 {
		return 0
	}
	return n / f.FrameSize()
}

// Duration returns the play time of the given number of frames
func (f Format) Duration(frames int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit", f.SampleRate, f.Channels, f.BitDepth)
}

// ValidatePayload checks that payload holds a whole number of frames
func ValidatePayload(f Format, payload []byte) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if rem := len(payload) % f.FrameSize(); rem != 0 {
		return &MalformedInputError{
			Op:     "payload",
			Reason: fmt.Sprintf("length %d is not a multiple of frame size %d", len(payload), f.FrameSize()),
			Offset: len(payload) - rem,
		}
	}
	return nil
}

// Buffer represents decoded PCM audio.
// Samples are interleaved and left-justified in the 24-bit range.
type Buffer struct {
	Samples []int32
	Format  Format
}

// Frames returns the number of interleaved frames held
func (b *Buffer) Frames() int {
	if b == nil || b.Format.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Format.Channels
}

// Duration returns frames / sample rate
func (b *Buffer) Duration() time.Duration {
	if b == nil {
		return 0
	}
	return b.Format.Duration(b.Frames())
}

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	// Right-shift to convert 24-bit (or 16-bit) to 16-bit range
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// SampleFromUint8 converts unsigned 8-bit PCM (offset 128) to int32
func SampleFromUint8(sample uint8) int32 {
	return (int32(sample) - 128) << 16
}

// SampleToUint8 converts int32 sample to unsigned 8-bit PCM
func SampleToUint8(sample int32) uint8 {
	return uint8((sample >> 16) + 128)
}

// SampleFromInt32 converts a full-range 32-bit sample to the 24-bit range
func SampleFromInt32(sample int32) int32 {
	return sample >> 8
}

// SampleToInt32 converts a 24-bit range sample to full 32-bit range
func SampleToInt32(sample int32) int32 {
	return sample << 8
}

// SampleToFloat32 normalizes a 24-bit range sample to [-1, 1).
// For 16-bit sources this is exactly s/32768.
func SampleToFloat32(sample int32) float32 {
	return float32(float64(sample) / fullScale24)
}

// SampleTo24Bit converts int32 to 24-bit packed bytes (little-endian)
func SampleTo24Bit(sample int32) [3]byte {
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}
