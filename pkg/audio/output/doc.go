// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides callback-driven Oto, Malgo and Clock outputs
// Package output drives a Source from an audio device's callback thread.
//
// Each output pulls interleaved float32 frames at the device cadence:
//   - Oto: oto's player goroutine reads through an io.Reader adapter
//   - Malgo: miniaudio's device data callback renders directly
//   - Clock: a ticker goroutine with no device, for headless runs and tests
//
// All outputs apply software volume and mute after the source renders.
//
// Example:
//
//	out := output.NewMalgo()
//	err := out.Open(24000, 2, renderer)
//	out.SetVolume(80)
package output
