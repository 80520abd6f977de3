// ABOUTME: WAV container package for raw PCM payloads
// ABOUTME: Lets generic players consume clips that have no container
// Package wav wraps raw PCM payloads in the canonical 44-byte RIFF/WAVE
// header so generic media elements can play them.
//
// Synthesize only fails for an invalid format or a payload too large for
// the 32-bit size fields. Payload contents are never inspected.
package wav
