// ABOUTME: Audio decoder package for linear PCM payloads
// ABOUTME: Provides the Decoder interface and the PCM implementation
// Package decode turns raw PCM payloads into sample buffers.
//
// Supports: PCM (8, 16, 24 and 32-bit little-endian)
//
// All decoders implement the Decoder interface and output int32 samples
// in 24-bit range for consistent processing downstream.
//
// Example:
//
//	buf, err := decode.Payload(audio.DefaultFormat, pcm)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(buf.Duration())
package decode
