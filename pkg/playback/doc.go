// ABOUTME: Playback controller package
// ABOUTME: Non-blocking play/stop on top of the real-time renderer
// Package playback is the application-facing side of the audio pipeline.
//
// A Controller owns one renderer and therefore one output device. Play
// resolves a clip to a decoded buffer (cache, inline base64, inline bytes
// or URL fetch), stops whatever is playing, waits for it to resolve, then
// loads and starts the new clip. Play blocks only the calling goroutine;
// use PlayAsync for a channel that delivers the outcome.
//
// Decoded clips are cached by (conversation, message id or URL) in a
// bounded LRU. InvalidateConversation and Purge are the only ways entries
// leave the cache early.
//
// Example:
//
//	ctrl, _ := playback.New(playback.Config{Renderer: r, Fetcher: f})
//	err := ctrl.Play(ctx, playback.Clip{ConversationID: "c1", MessageID: "m1", URL: url})
//	if errors.Is(err, playback.ErrStopped) {
//	    // replaced by another clip
//	}
package playback
