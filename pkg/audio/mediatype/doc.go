// ABOUTME: Media type package for linear PCM clips
// ABOUTME: Maps audio/L16-style media types to and from audio.Format
// Package mediatype converts between RFC 3551 style linear PCM media types
// ("audio/L16;codec=pcm;rate=24000") and audio.Format.
//
// Missing parameters take their value from audio.DefaultFormat, so a bare
// "audio/L16" describes 24000 Hz mono.
package mediatype
