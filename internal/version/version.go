// ABOUTME: Version constants for the audio-chat binaries
// ABOUTME: Reported in server health, mDNS TXT records and outbound User-Agent headers
package version

const (
	// Version is the release of the binaries
	Version = "0.3.0"

	// Product is the product name
	Product = "audio-chat"

	// Manufacturer identifies the maintainer
	Manufacturer = "BuffMcBigHuge"
)

// UserAgent is sent by the fetcher and the watch client
func UserAgent() string {
	return Product + "/" + Version
}
