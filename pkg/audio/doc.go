// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Buffer, error types and sample conversion functions
// Package audio provides the fundamental types of the PCM pipeline.
//
// This package defines core types used throughout the audio-chat module:
//   - Format: Describes a linear PCM stream (sample rate, channels, bit depth)
//   - Buffer: Decoded interleaved samples, left-justified in the 24-bit range
//   - MalformedInputError, RetrievalError, RenderError and ErrNotFound
//
// It also provides utilities for converting between different sample formats:
//   - 8/16/32-bit ↔ 24-bit conversions
//   - int32 ↔ packed byte conversions
//   - int32 → normalized float32 for render callbacks
//
// Payloads that arrive without format metadata use DefaultFormat
// (24000 Hz, mono, 16-bit little-endian).
//
// Example:
//
//	format := audio.Format{SampleRate: 24000, Channels: 1, BitDepth: 16}
//	if err := audio.ValidatePayload(format, payload); err != nil {
//	    return err
//	}
//
//	// Normalize a decoded sample for a float32 sink
//	f := audio.SampleToFloat32(audio.SampleFromInt16(sample16))
package audio
