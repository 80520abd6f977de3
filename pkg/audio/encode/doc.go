// ABOUTME: Audio encoder package producing linear PCM payloads
// ABOUTME: Provides the Encoder interface and the PCM implementation
// Package encode turns sample buffers back into raw PCM payloads.
//
// Supports: PCM (8, 16, 24 and 32-bit little-endian)
//
// All encoders accept int32 samples in 24-bit range.
//
// Example:
//
//	payload, err := encode.Buffer(tone.Generate(audio.DefaultFormat, 440, time.Second))
package encode
