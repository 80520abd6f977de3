// ABOUTME: Base64 transcoding for PCM payloads carried as text
// ABOUTME: Chunked so large clips never need one giant intermediate string
// Package transcode moves PCM payloads between binary and base64 text.
//
// Decoding is strict: the input must use the standard alphabet with
// padding, and a malformed string fails with *audio.MalformedInputError.
// Work is split into 8192-character decode chunks and 8190-byte encode
// chunks; both sizes keep quanta aligned so chunk results concatenate
// exactly.
//
// Example:
//
//	text := transcode.Encode(payload)
//	back, err := transcode.Decode(text)
package transcode
