// ABOUTME: Client-side clip descriptor and cache identity
// ABOUTME: A clip names where its payload comes from and what format it is in
package playback

import "github.com/BuffMcBigHuge/audio-chat/pkg/audio"

// Clip describes one playable message. Exactly one payload source is used,
// in order of preference: Encoded, Data, URL.
type Clip struct {
	ConversationID string
	MessageID      string

	// URL of the raw PCM payload
	URL string

	// Encoded is a base64 payload carried inline
	Encoded string

	// Data is a raw payload carried inline
	Data []byte

	// Format of the payload; zero means audio.DefaultFormat
	Format audio.Format
}

type cacheKey struct {
	conversation string
	id           string
}

func (k cacheKey) String() string {
	return k.conversation + "\x00" + k.id
}

// key returns the cache identity: the message id, falling back to the URL
func (c Clip) key() (cacheKey, bool) {
	id := c.MessageID
	if id == "" {
		id = c.URL
	}
	if id == "" {
		return cacheKey{}, false
	}
	return cacheKey{conversation: c.ConversationID, id: id}, true
}
