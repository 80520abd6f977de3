// ABOUTME: Playback controller owning the renderer for one output device
// ABOUTME: Resolves clips to buffers, enforces exclusive output and awaits completion
package playback

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/BuffMcBigHuge/audio-chat/pkg/audio"
	"github.com/BuffMcBigHuge/audio-chat/pkg/audio/decode"
	"github.com/BuffMcBigHuge/audio-chat/pkg/audio/resample"
	"github.com/BuffMcBigHuge/audio-chat/pkg/audio/transcode"
	"github.com/BuffMcBigHuge/audio-chat/pkg/render"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize is the number of decoded clips kept
const DefaultCacheSize = 32

var (
	// ErrStopped resolves a Play whose session was stopped or superseded
	ErrStopped = errors.New("playback stopped")

	// ErrClosed is returned by Play after Close
	ErrClosed = errors.New("playback controller closed")
)

// Renderer is the command side of a render.Renderer
type Renderer interface {
	Load(ctx context.Context, session uint64, buf *audio.Buffer) error
	Play(ctx context.Context) error
	Stop(ctx context.Context) error
	Events() <-chan render.Event
}

// Fetcher retrieves a raw payload by URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Config holds controller configuration
type Config struct {
	Renderer Renderer

	// Fetcher resolves clips that only carry a URL
	Fetcher Fetcher

	// CacheSize bounds the decoded-clip cache (default: 32)
	CacheSize int

	// OutputSampleRate is the device rate; buffers at other rates are resampled
	OutputSampleRate int

	// OnEvent is called for every renderer status event
	OnEvent func(render.Event)

	// OnError is called when a clip fails to resolve or render
	OnError func(error)
}

type session struct {
	id   uint64
	gen  uint64
	clip Clip
	done chan struct{}
	err  error
}

// Controller serializes playback onto a single renderer
type Controller struct {
	config Config
	cache  *lru.Cache[cacheKey, *audio.Buffer]
	group  singleflight.Group

	// cmdMu orders command sequences sent to the renderer
	cmdMu sync.Mutex

	// mu guards the session table and the play generation
	mu         sync.Mutex
	nextID     uint64
	generation uint64
	sessions   map[uint64]*session
	active     *session

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a controller and starts its event loop
func New(config Config) (*Controller, error) {
	if config.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if config.CacheSize <= 0 {
		config.CacheSize = DefaultCacheSize
	}
	if config.OnError == nil {
		config.OnError = func(err error) {
			log.Printf("Playback error: %v", err)
		}
	}

	cache, err := lru.New[cacheKey, *audio.Buffer](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create clip cache: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		config:   config,
		cache:    cache,
		sessions: make(map[uint64]*session),
		ctx:      ctx,
		cancel:   cancel,
	}

	c.wg.Add(1)
	go c.handleEvents()

	return c, nil
}

// Play renders clip and blocks until it finishes. It returns nil when the
// clip ends, ErrStopped when it is stopped or replaced, an *audio.RenderError
// when rendering fails, and ctx.Err() when ctx is done first.
func (c *Controller) Play(ctx context.Context, clip Clip) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}

	// The newest Play owns the output from the moment it is called
	return c.play(ctx, c.supersede(), clip)
}

func (c *Controller) play(ctx context.Context, gen uint64, clip Clip) error {
	buf, err := c.Resolve(ctx, clip)
	if err != nil {
		c.config.OnError(err)
		return err
	}

	s, err := c.start(ctx, gen, clip, buf)
	if err != nil {
		return err
	}

	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		c.stopSession(s)
		return ctx.Err()
	}
}

// PlayAsync claims the output before returning, then resolves and plays clip
// on its own goroutine. Calls therefore take effect in the order they are made.
func (c *Controller) PlayAsync(ctx context.Context, clip Clip) <-chan error {
	result := make(chan error, 1)
	if c.ctx.Err() != nil {
		result <- ErrClosed
		return result
	}
	gen := c.supersede()
	go func() {
		result <- c.play(ctx, gen, clip)
	}()
	return result
}

// start stops the active session, waits for it to resolve, then loads and plays.
// It returns ErrStopped without loading when gen has been superseded.
func (c *Controller) start(ctx context.Context, gen uint64, clip Clip, buf *audio.Buffer) (*session, error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if c.superseded(gen) {
		return nil, ErrStopped
	}

	if prev := c.activeSession(); prev != nil {
		if err := c.config.Renderer.Stop(ctx); err != nil {
			return nil, fmt.Errorf("failed to stop previous clip: %w", err)
		}
		select {
		case <-prev.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.ctx.Done():
			return nil, ErrStopped
		}
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return nil, ErrStopped
	}
	c.nextID++
	s := &session{id: c.nextID, gen: gen, clip: clip, done: make(chan struct{})}
	c.sessions[s.id] = s
	c.active = s
	c.mu.Unlock()

	if err := c.config.Renderer.Load(ctx, s.id, buf); err != nil {
		c.resolve(s.id, err)
		return nil, fmt.Errorf("failed to load clip: %w", err)
	}
	if err := c.config.Renderer.Play(ctx); err != nil {
		// The load is already queued; make sure it cannot start later
		c.resolve(s.id, err)
		return nil, fmt.Errorf("failed to start clip: %w", err)
	}

	return s, nil
}

// Stop halts the active clip at the next callback boundary. Plays still
// resolving their clip return ErrStopped without starting.
func (c *Controller) Stop() {
	c.supersede()
}

// supersede invalidates every pending play, stops the active clip and
// returns the new generation
func (c *Controller) supersede() uint64 {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	// A session started by a later call is not ours to stop
	if active := c.activeSession(); active == nil || active.gen >= gen {
		return gen
	}
	if err := c.config.Renderer.Stop(c.ctx); err != nil {
		log.Printf("Failed to queue stop: %v", err)
	}
	return gen
}

func (c *Controller) superseded(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation != gen
}

// stopSession stops s if it is still the active session
func (c *Controller) stopSession(s *session) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if c.activeSession() != s {
		return
	}
	if err := c.config.Renderer.Stop(c.ctx); err != nil {
		log.Printf("Failed to queue stop: %v", err)
	}
}

// activeSession returns the session that currently owns the output, if any
func (c *Controller) activeSession() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Playing reports the clip that owns the output
func (c *Controller) Playing() (Clip, bool) {
	s := c.activeSession()
	if s == nil {
		return Clip{}, false
	}
	return s.clip, true
}

// handleEvents routes renderer events to their sessions
func (c *Controller) handleEvents() {
	defer c.wg.Done()

	events := c.config.Renderer.Events()
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}

			if c.config.OnEvent != nil {
				c.config.OnEvent(ev)
			}

			switch ev.Kind {
			case render.EventEnded:
				c.resolve(ev.Session, nil)
			case render.EventStopped:
				c.resolve(ev.Session, ErrStopped)
			case render.EventError:
				c.config.OnError(ev.Err)
				c.resolve(ev.Session, ev.Err)
			}
		}
	}
}

// resolve completes a session exactly once
func (c *Controller) resolve(id uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[id]
	if !ok {
		return
	}
	delete(c.sessions, id)
	if c.active == s {
		c.active = nil
	}

	s.err = err
	close(s.done)
}

// Close stops playback, resolves pending sessions and ends the event loop
func (c *Controller) Close() error {
	c.Stop()
	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	ids := make([]uint64, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.resolve(id, ErrStopped)
	}
	return nil
}

// Resolve returns the decoded buffer for clip, using the cache when it can.
// Concurrent misses for the same clip share one fetch.
func (c *Controller) Resolve(ctx context.Context, clip Clip) (*audio.Buffer, error) {
	key, cacheable := clip.key()
	if !cacheable {
		return c.load(ctx, clip)
	}

	if buf, ok := c.cache.Get(key); ok {
		return buf, nil
	}

	v, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		if buf, ok := c.cache.Get(key); ok {
			return buf, nil
		}
		buf, err := c.load(ctx, clip)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, buf)
		return buf, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*audio.Buffer), nil
}

// Preload resolves clip into the cache without playing it
func (c *Controller) Preload(ctx context.Context, clip Clip) error {
	_, err := c.Resolve(ctx, clip)
	return err
}

func (c *Controller) load(ctx context.Context, clip Clip) (*audio.Buffer, error) {
	var payload []byte
	switch {
	case clip.Encoded != "":
		data, err := transcode.Decode(clip.Encoded)
		if err != nil {
			return nil, err
		}
		payload = data
	case clip.Data != nil:
		payload = clip.Data
	case clip.URL != "":
		if c.config.Fetcher == nil {
			return nil, fmt.Errorf("no fetcher configured for %s", clip.URL)
		}
		data, err := c.config.Fetcher.Fetch(ctx, clip.URL)
		if err != nil {
			return nil, err
		}
		payload = data
	default:
		return nil, &audio.MalformedInputError{Op: "clip", Reason: "no audio source"}
	}

	buf, err := decode.Payload(clip.Format, payload)
	if err != nil {
		return nil, err
	}

	if c.config.OutputSampleRate > 0 {
		buf = resample.Buffer(buf, c.config.OutputSampleRate)
	}
	return buf, nil
}

// InvalidateConversation drops every cached clip of a conversation
func (c *Controller) InvalidateConversation(conversationID string) {
	for _, key := range c.cache.Keys() {
		if key.conversation == conversationID {
			c.cache.Remove(key)
		}
	}
}

// Purge empties the clip cache
func (c *Controller) Purge() {
	c.cache.Purge()
}

// CacheLen returns the number of cached clips
func (c *Controller) CacheLen() int {
	return c.cache.Len()
}
