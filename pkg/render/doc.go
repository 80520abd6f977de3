// ABOUTME: Real-time renderer package
// ABOUTME: Sample-accurate playback of one buffer on an audio callback thread
// Package render converts a decoded PCM buffer into float32 frames on the
// audio device's callback thread.
//
// Control flows one way through an ordered command queue (Load, Play,
// Stop) that is drained at the start of every callback, so commands take
// effect on a callback boundary. Status flows back through an ordered
// event channel (Ready, Playing, Stopped, Ended, Error). The callback never
// waits on either queue.
//
// Example:
//
//	r := render.New(render.Config{SampleRate: 24000, Channels: 2})
//	sink := output.NewClock(r.Config().FramesPerCallback)
//	sink.Open(24000, 2, r)
//
//	r.Load(ctx, 1, buf)
//	r.Play(ctx)
//	for ev := range r.Events() {
//	    if ev.Kind == render.EventEnded {
//	        break
//	    }
//	}
package render
