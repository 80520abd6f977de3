// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for PCM encoders
package encode

// Encoder encodes int32 samples to PCM payload bytes
type Encoder interface {
	// Encode converts samples to payload bytes
	Encode(samples []int32) ([]byte, error)

	// Close releases encoder resources
	Close() error
}
