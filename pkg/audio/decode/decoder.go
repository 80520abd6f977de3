// ABOUTME: Decoder interface definition
// ABOUTME: Common interface for PCM decoders
package decode

// Decoder decodes PCM payload bytes to int32 samples
type Decoder interface {
	// Decode converts payload bytes to samples
	Decode(data []byte) ([]int32, error)

	// Close releases decoder resources
	Close() error
}
