// ABOUTME: Tests for the playback controller
// ABOUTME: Drives a real renderer from a fast clock output
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BuffMcBigHuge/audio-chat/pkg/audio"
	"github.com/BuffMcBigHuge/audio-chat/pkg/audio/output"
	"github.com/BuffMcBigHuge/audio-chat/pkg/audio/transcode"
	"github.com/BuffMcBigHuge/audio-chat/pkg/render"
)

// pcm returns a 16-bit mono payload of n frames
func pcm(frames int) []byte {
	b := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		b[i*2] = byte(i)
		b[i*2+1] = 0x10
	}
	return b
}

type fakeFetcher struct {
	calls   atomic.Int64
	payload []byte
	err     error
	gate    chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

type recorder struct {
	mu     sync.Mutex
	events []render.Event
	notify chan render.Event
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan render.Event, 256)}
}

func (r *recorder) OnEvent(e render.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	r.notify <- e
}

func (r *recorder) waitFor(t *testing.T, kind render.EventKind, session uint64) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-r.notify:
			if e.Kind == kind && (session == 0 || e.Session == session) {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %v", kind)
		}
	}
}

func (r *recorder) snapshot() []render.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]render.Event(nil), r.events...)
}

func newTestController(t *testing.T, config Config) (*Controller, *recorder) {
	t.Helper()

	r := render.New(render.Config{SampleRate: 24000, Channels: 1})
	clock := output.NewClock(output.ClockConfig{FramesPerCallback: 128, Period: 500 * time.Microsecond})
	if err := clock.Open(24000, 1, r); err != nil {
		t.Fatalf("failed to open clock: %v", err)
	}

	rec := newRecorder()
	config.Renderer = r
	config.OnEvent = rec.OnEvent
	if config.OnError == nil {
		config.OnError = func(error) {}
	}

	c, err := New(config)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	t.Cleanup(func() {
		c.Close()
		clock.Close()
	})
	return c, rec
}

func TestNewRequiresRenderer(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without renderer")
	}
}

func TestPlayEnds(t *testing.T) {
	c, rec := newTestController(t, Config{})

	err := c.Play(context.Background(), Clip{ConversationID: "c1", MessageID: "m1", Data: pcm(1280)})
	if err != nil {
		t.Fatalf("expected nil on end, got %v", err)
	}

	var got []render.EventKind
	for _, e := range rec.snapshot() {
		got = append(got, e.Kind)
	}
	want := []render.EventKind{render.EventReady, render.EventPlaying, render.EventEnded}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if _, playing := c.Playing(); playing {
		t.Error("expected no active clip after end")
	}
}

func TestPlayCachesFetch(t *testing.T) {
	f := &fakeFetcher{payload: pcm(256)}
	c, _ := newTestController(t, Config{Fetcher: f})

	clip := Clip{ConversationID: "c1", MessageID: "m1", URL: "http://audio/m1.pcm"}
	for i := 0; i < 3; i++ {
		if err := c.Play(context.Background(), clip); err != nil {
			t.Fatalf("play %d failed: %v", i, err)
		}
	}

	if f.calls.Load() != 1 {
		t.Errorf("expected 1 fetch, got %d", f.calls.Load())
	}
}

func TestConcurrentMissesShareFetch(t *testing.T) {
	f := &fakeFetcher{payload: pcm(16), gate: make(chan struct{})}
	c, _ := newTestController(t, Config{Fetcher: f})

	clip := Clip{ConversationID: "c1", URL: "http://audio/x.pcm"}
	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Resolve(context.Background(), clip)
			errs <- err
		}()
	}

	// Let every goroutine reach the flight before releasing it
	time.Sleep(50 * time.Millisecond)
	close(f.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("resolve failed: %v", err)
		}
	}
	if f.calls.Load() != 1 {
		t.Errorf("expected 1 fetch, got %d", f.calls.Load())
	}
}

func TestFetchErrorNotCached(t *testing.T) {
	f := &fakeFetcher{err: &audio.RetrievalError{URL: "http://audio/a", StatusCode: 404}}
	var reported atomic.Int64
	c, _ := newTestController(t, Config{Fetcher: f, OnError: func(error) { reported.Add(1) }})

	clip := Clip{ConversationID: "c1", MessageID: "m1", URL: "http://audio/a"}
	err := c.Play(context.Background(), clip)
	if !errors.Is(err, audio.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if reported.Load() != 1 {
		t.Errorf("expected error reported once, got %d", reported.Load())
	}

	f.err = nil
	f.payload = pcm(64)
	if err := c.Play(context.Background(), clip); err != nil {
		t.Fatalf("expected later play to succeed, got %v", err)
	}
	if f.calls.Load() != 2 {
		t.Errorf("expected 2 fetches, got %d", f.calls.Load())
	}
}

func TestPlaySupersedesPrevious(t *testing.T) {
	c, rec := newTestController(t, Config{})
	ctx := context.Background()

	first := c.PlayAsync(ctx, Clip{ConversationID: "c1", MessageID: "long", Data: pcm(24000 * 10)})
	rec.waitFor(t, render.EventPlaying, 1)

	if err := c.Play(ctx, Clip{ConversationID: "c1", MessageID: "short", Data: pcm(512)}); err != nil {
		t.Fatalf("second play failed: %v", err)
	}

	select {
	case err := <-first:
		if !errors.Is(err, ErrStopped) {
			t.Errorf("expected ErrStopped for superseded clip, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first play never resolved")
	}

	// The first session stops before the second one loads
	stoppedAt, readyAt := -1, -1
	for i, e := range rec.snapshot() {
		if e.Kind == render.EventStopped && e.Session == 1 {
			stoppedAt = i
		}
		if e.Kind == render.EventReady && e.Session == 2 {
			readyAt = i
		}
	}
	if stoppedAt < 0 || readyAt < 0 || stoppedAt > readyAt {
		t.Errorf("expected stop of session 1 before ready of session 2 (stop=%d ready=%d)", stoppedAt, readyAt)
	}
}

// waitFetches blocks until f has been called n times
func waitFetches(t *testing.T, f *fakeFetcher, n int64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for f.calls.Load() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d fetches", n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestLaterPlayWinsOverSlowFetch(t *testing.T) {
	f := &fakeFetcher{payload: pcm(512), gate: make(chan struct{})}
	c, rec := newTestController(t, Config{Fetcher: f})
	ctx := context.Background()

	slow := c.PlayAsync(ctx, Clip{ConversationID: "c1", MessageID: "a", URL: "http://audio/a.pcm"})
	waitFetches(t, f, 1)

	later := c.PlayAsync(ctx, Clip{ConversationID: "c1", MessageID: "b", Data: pcm(24000 * 10)})
	rec.waitFor(t, render.EventPlaying, 0)

	close(f.gate)
	select {
	case err := <-slow:
		if !errors.Is(err, ErrStopped) {
			t.Errorf("expected ErrStopped for the earlier clip, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("earlier play never resolved")
	}

	select {
	case err := <-later:
		t.Fatalf("later clip was interrupted: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	if clip, ok := c.Playing(); !ok || clip.MessageID != "b" {
		t.Errorf("expected b to own the output, got %+v %v", clip, ok)
	}
	for _, e := range rec.snapshot() {
		if e.Kind == render.EventStopped {
			t.Errorf("unexpected stop event for session %d", e.Session)
		}
	}

	c.Stop()
	if err := <-later; !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped after stop, got %v", err)
	}
}

func TestStopCancelsPendingPlay(t *testing.T) {
	f := &fakeFetcher{payload: pcm(512), gate: make(chan struct{})}
	c, rec := newTestController(t, Config{Fetcher: f})

	result := c.PlayAsync(context.Background(), Clip{ConversationID: "c1", MessageID: "a", URL: "http://audio/a.pcm"})
	waitFetches(t, f, 1)

	c.Stop()
	close(f.gate)

	select {
	case err := <-result:
		if !errors.Is(err, ErrStopped) {
			t.Errorf("expected ErrStopped, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pending play never resolved")
	}

	if _, playing := c.Playing(); playing {
		t.Error("expected nothing to play after stop")
	}
	if events := rec.snapshot(); len(events) != 0 {
		t.Errorf("expected no renderer events, got %v", events)
	}
	// The fetched clip is still cached for a later play
	if c.CacheLen() != 1 {
		t.Errorf("expected fetched clip cached, got %d", c.CacheLen())
	}
}

func TestStop(t *testing.T) {
	c, rec := newTestController(t, Config{})

	// No-op without an active clip
	c.Stop()

	result := c.PlayAsync(context.Background(), Clip{Data: pcm(24000 * 10)})
	rec.waitFor(t, render.EventPlaying, 0)

	c.Stop()
	c.Stop()

	select {
	case err := <-result:
		if !errors.Is(err, ErrStopped) {
			t.Errorf("expected ErrStopped, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("play never resolved after stop")
	}
}

func TestPlayContextCancel(t *testing.T) {
	c, rec := newTestController(t, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	result := c.PlayAsync(ctx, Clip{Data: pcm(24000 * 10)})
	rec.waitFor(t, render.EventPlaying, 0)
	cancel()

	select {
	case err := <-result:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("play ignored cancellation")
	}

	rec.waitFor(t, render.EventStopped, 0)
}

func TestEncodedClip(t *testing.T) {
	c, _ := newTestController(t, Config{})

	err := c.Play(context.Background(), Clip{Encoded: transcode.Encode(pcm(200))})
	if err != nil {
		t.Fatalf("expected encoded clip to play, got %v", err)
	}

	err = c.Play(context.Background(), Clip{Encoded: "not base64!"})
	var me *audio.MalformedInputError
	if !errors.As(err, &me) {
		t.Errorf("expected MalformedInputError, got %v", err)
	}
}

func TestClipWithoutSource(t *testing.T) {
	c, _ := newTestController(t, Config{})

	var me *audio.MalformedInputError
	if err := c.Play(context.Background(), Clip{MessageID: "m"}); !errors.As(err, &me) {
		t.Errorf("expected MalformedInputError, got %v", err)
	}
}

func TestResampledToOutputRate(t *testing.T) {
	c, rec := newTestController(t, Config{OutputSampleRate: 48000})

	if err := c.Play(context.Background(), Clip{Data: pcm(2400)}); err != nil {
		t.Fatalf("play failed: %v", err)
	}

	for _, e := range rec.snapshot() {
		if e.Kind == render.EventReady && e.Duration != 100*time.Millisecond {
			t.Errorf("expected 100ms after resampling, got %v", e.Duration)
		}
	}

	buf, err := c.Resolve(context.Background(), Clip{Data: pcm(2400)})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if buf.Format.SampleRate != 48000 || buf.Frames() != 4800 {
		t.Errorf("expected 4800 frames at 48kHz, got %d at %d", buf.Frames(), buf.Format.SampleRate)
	}
}

func TestInvalidateConversation(t *testing.T) {
	f := &fakeFetcher{payload: pcm(16)}
	c, _ := newTestController(t, Config{Fetcher: f})
	ctx := context.Background()

	c.Preload(ctx, Clip{ConversationID: "c1", MessageID: "a", URL: "u1"})
	c.Preload(ctx, Clip{ConversationID: "c1", MessageID: "b", URL: "u2"})
	c.Preload(ctx, Clip{ConversationID: "c2", MessageID: "a", URL: "u3"})
	if c.CacheLen() != 3 {
		t.Fatalf("expected 3 cached clips, got %d", c.CacheLen())
	}

	c.InvalidateConversation("c1")
	if c.CacheLen() != 1 {
		t.Errorf("expected 1 cached clip, got %d", c.CacheLen())
	}

	c.Preload(ctx, Clip{ConversationID: "c1", MessageID: "a", URL: "u1"})
	if f.calls.Load() != 4 {
		t.Errorf("expected refetch after invalidation, got %d fetches", f.calls.Load())
	}

	c.Purge()
	if c.CacheLen() != 0 {
		t.Errorf("expected empty cache after purge, got %d", c.CacheLen())
	}
}

func TestCacheBounded(t *testing.T) {
	c, _ := newTestController(t, Config{CacheSize: 2})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		c.Preload(ctx, Clip{ConversationID: "c", MessageID: fmt.Sprint(i), Data: pcm(4)})
	}
	if c.CacheLen() != 2 {
		t.Errorf("expected cache bounded at 2, got %d", c.CacheLen())
	}
}

func TestCloseResolvesPending(t *testing.T) {
	c, rec := newTestController(t, Config{})

	result := c.PlayAsync(context.Background(), Clip{Data: pcm(24000 * 10)})
	rec.waitFor(t, render.EventPlaying, 0)
	c.Close()

	select {
	case err := <-result:
		if !errors.Is(err, ErrStopped) {
			t.Errorf("expected ErrStopped, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("close left play pending")
	}

	if err := c.Play(context.Background(), Clip{Data: pcm(4)}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
