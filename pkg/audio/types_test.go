// ABOUTME: Tests for audio types
// ABOUTME: Tests sample conversion functions and format math
package audio

import (
	"errors"
	"testing"
	"time"
)

func TestSampleFromInt16(t *testing.T) {
	tests := []struct {
		name     string
		input    int16
		expected int32
	}{
		{"zero", 0, 0},
		{"positive", 100, 100 << 8},
		{"negative", -100, -100 << 8},
		{"max", 32767, 32767 << 8},
		{"min", -32768, -32768 << 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SampleFromInt16(tt.input)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestSampleToInt16(t *testing.T) {
	tests := []struct {
		name     string
		input    int32
		expected int16
	}{
		{"zero", 0, 0},
		{"positive", 100 << 8, 100},
		{"negative", -100 << 8, -100},
		{"24bit positive", 1000000, 3906}, // 1000000 >> 8 = 3906
		{"24bit negative", -1000000, -3907},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SampleToInt16(tt.input)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestSampleTo24Bit(t *testing.T) {
	tests := []struct {
		name     string
		input    int32
		expected [3]byte
	}{
		{"zero", 0, [3]byte{0, 0, 0}},
		{"positive", 0x123456, [3]byte{0x56, 0x34, 0x12}},
		{"negative", -256, [3]byte{0x00, 0xFF, 0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SampleTo24Bit(tt.input)
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestSampleFrom24Bit(t *testing.T) {
	tests := []struct {
		name     string
		input    [3]byte
		expected int32
	}{
		{"zero", [3]byte{0, 0, 0}, 0},
		{"positive", [3]byte{0x56, 0x34, 0x12}, 0x123456},
		{"negative", [3]byte{0x00, 0xFF, 0xFF}, -256},
		{"max positive", [3]byte{0xFF, 0xFF, 0x7F}, Max24Bit},
		{"max negative", [3]byte{0x00, 0x00, 0x80}, Min24Bit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SampleFrom24Bit(tt.input)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestRoundTrip16Bit(t *testing.T) {
	// Test that 16-bit samples survive round-trip conversion
	samples := []int16{0, 100, -100, 1000, -1000, 32767, -32768}

	for _, original := range samples {
		sample32 := SampleFromInt16(original)
		result := SampleToInt16(sample32)
		if result != original {
			t.Errorf("round-trip failed: %d -> %d -> %d", original, sample32, result)
		}
	}
}

func TestRoundTrip24Bit(t *testing.T) {
	// Test that 24-bit samples survive round-trip conversion
	samples := []int32{0, 100000, -100000, Max24Bit, Min24Bit}

	for _, original := range samples {
		bytes := SampleTo24Bit(original)
		result := SampleFrom24Bit(bytes)
		// Mask to 24-bit for comparison
		expected := original & 0xFFFFFF
		if expected&0x800000 != 0 {
			expected |= ^0xFFFFFF
		}
		if result != expected {
			t.Errorf("round-trip failed: %d -> %v -> %d (expected %d)", original, bytes, result, expected)
		}
	}
}

func TestSampleToFloat32(t *testing.T) {
	tests := []struct {
		name     string
		input    int16
		expected float32
	}{
		{"zero", 0, 0},
		{"half", 16384, 0.5},
		{"min", -32768, -1},
		{"negative quarter", -8192, -0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SampleToFloat32(SampleFromInt16(tt.input))
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestFormatValidate(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		wantErr bool
	}{
		{"default", DefaultFormat, false},
		{"stereo 48k 24bit", Format{SampleRate: 48000, Channels: 2, BitDepth: 24}, false},
		{"zero rate", Format{SampleRate: 0, Channels: 1, BitDepth: 16}, true},
		{"zero channels", Format{SampleRate: 24000, Channels: 0, BitDepth: 16}, true},
		{"12 bit", Format{SampleRate: 24000, Channels: 1, BitDepth: 12}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.format.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			var me *MalformedInputError
			if err != nil && !errors.As(err, &me) {
				t.Errorf("expected MalformedInputError, got %T", err)
			}
		})
	}
}

func TestFormatMath(t *testing.T) {
	f := DefaultFormat
	if f.FrameSize() != 2 {
		t.Errorf("expected frame size 2, got %d", f.FrameSize())
	}
	if f.ByteRate() != 48000 {
		t.Errorf("expected byte rate 48000, got %d", f.ByteRate())
	}
	if got := f.Duration(f.Frames(48000)); got != time.Second {
		t.Errorf("expected 1s for 48000 bytes, got %v", got)
	}
	if (Format{}).OrDefault() != DefaultFormat {
		t.Error("expected zero format to resolve to default")
	}
}

func TestValidatePayload(t *testing.T) {
	if err := ValidatePayload(DefaultFormat, make([]byte, 4)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidatePayload(DefaultFormat, nil); err != nil {
		t.Errorf("empty payload should be valid: %v", err)
	}

	err := ValidatePayload(DefaultFormat, make([]byte, 3))
	var me *MalformedInputError
	if !errors.As(err, &me) {
		t.Fatalf("expected MalformedInputError, got %v", err)
	}
	if me.Offset != 2 {
		t.Errorf("expected offset 2, got %d", me.Offset)
	}
}

func TestBufferDuration(t *testing.T) {
	b := &Buffer{Samples: make([]int32, 48000), Format: Format{SampleRate: 24000, Channels: 2, BitDepth: 16}}
	if b.Frames() != 24000 {
		t.Errorf("expected 24000 frames, got %d", b.Frames())
	}
	if b.Duration() != time.Second {
		t.Errorf("expected 1s, got %v", b.Duration())
	}

	var nilBuf *Buffer
	if nilBuf.Frames() != 0 || nilBuf.Duration() != 0 {
		t.Error("nil buffer should report zero frames")
	}
}
