// ABOUTME: Main player application orchestration
// ABOUTME: Coordinates output device, playback controller, watch client and UI status
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BuffMcBigHuge/audio-chat/internal/client"
	"github.com/BuffMcBigHuge/audio-chat/internal/discovery"
	"github.com/BuffMcBigHuge/audio-chat/internal/fetch"
	"github.com/BuffMcBigHuge/audio-chat/internal/notify"
	"github.com/BuffMcBigHuge/audio-chat/internal/ui"
	"github.com/BuffMcBigHuge/audio-chat/internal/version"
	"github.com/BuffMcBigHuge/audio-chat/pkg/audio/mediatype"
	"github.com/BuffMcBigHuge/audio-chat/pkg/audio/output"
	"github.com/BuffMcBigHuge/audio-chat/pkg/playback"
	"github.com/BuffMcBigHuge/audio-chat/pkg/render"
	"github.com/google/uuid"
)

// Config holds player configuration
type Config struct {
	// ServerURL is the base URL of the audio server. Empty means mDNS discovery.
	ServerURL      string
	UserID         string
	ConversationID string

	// Backend selects the output: "oto", "malgo" or "null"
	Backend string

	// Output overrides Backend when set
	Output output.Output

	SampleRate int
	Channels   int
	Volume     int
	CacheSize  int

	// DiscoveryTimeout bounds the wait for an advertised server (default 10s)
	DiscoveryTimeout time.Duration

	// OnStatus receives UI updates; nil disables them
	OnStatus func(ui.StatusMsg)
}

// Player represents the main player application
type Player struct {
	config     Config
	output     output.Output
	renderer   *render.Renderer
	controller *playback.Controller
	fetcher    *fetch.Fetcher
	watcher    atomic.Pointer[client.Client]

	played atomic.Int64
	failed atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens the output device and starts the playback controller
func New(config Config) (*Player, error) {
	if config.SampleRate <= 0 {
		config.SampleRate = 48000
	}
	if config.Channels <= 0 {
		config.Channels = 2
	}
	if config.Volume < 0 || config.Volume > 100 {
		return nil, fmt.Errorf("volume must be between 0 and 100, got %d", config.Volume)
	}
	if config.DiscoveryTimeout <= 0 {
		config.DiscoveryTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Player{
		config:  config,
		fetcher: fetch.New(fetch.Config{}),
		renderer: render.New(render.Config{
			SampleRate: config.SampleRate,
			Channels:   config.Channels,
		}),
		ctx:    ctx,
		cancel: cancel,
	}

	p.output = config.Output
	if p.output == nil {
		p.output = output.New(config.Backend, render.DefaultFramesPerCallback)
	}

	controller, err := playback.New(playback.Config{
		Renderer:         p.renderer,
		Fetcher:          p.fetcher,
		CacheSize:        config.CacheSize,
		OutputSampleRate: p.renderer.Config().SampleRate,
		OnEvent:          p.handleEvent,
		OnError:          p.handleError,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	p.controller = controller

	if err := p.output.Open(config.SampleRate, config.Channels, p.renderer); err != nil {
		controller.Close()
		cancel()
		return nil, fmt.Errorf("failed to open output: %w", err)
	}
	p.SetVolume(config.Volume, false)

	if config.OnStatus != nil {
		p.wg.Add(1)
		go p.statsLoop()
	}

	return p, nil
}

// PlayClip plays one clip and waits for it to finish
func (p *Player) PlayClip(ctx context.Context, clip playback.Clip) error {
	p.status(ui.StatusMsg{ClipID: clipLabel(clip), Format: clip.Format.OrDefault(), ClearErr: true})
	return p.controller.Play(ctx, clip)
}

// Watch follows a conversation and auto-plays each new clip until ctx is done
func (p *Player) Watch(ctx context.Context) error {
	serverURL := p.config.ServerURL
	if serverURL == "" {
		discovered, err := p.discover(ctx)
		if err != nil {
			return err
		}
		serverURL = discovered
	}

	watcher := client.NewClient(client.Config{
		ServerURL:      serverURL,
		UserID:         p.config.UserID,
		ConversationID: p.config.ConversationID,
		ClientID:       uuid.New().String(),
	})
	p.watcher.Store(watcher)
	defer watcher.Close()

	p.status(ui.StatusMsg{ServerName: serverURL, Conversation: p.config.ConversationID})
	log.Printf("Watching %s/%s on %s", p.config.UserID, p.config.ConversationID, serverURL)

	runErr := make(chan error, 1)
	go func() {
		runErr <- watcher.Run(ctx)
	}()

	for {
		select {
		case n := <-watcher.Notifications:
			p.handleNotification(ctx, n)
		case err := <-runErr:
			return err
		}
	}
}

// handleNotification auto-plays new clips and drops deleted conversations
func (p *Player) handleNotification(ctx context.Context, n notify.Notification) {
	switch n.Type {
	case notify.ClipCreated:
		format, err := mediatype.Parse(n.MimeType)
		if err != nil {
			p.handleError(fmt.Errorf("clip %s: %w", n.ClipID, err))
			return
		}
		clip := playback.Clip{
			ConversationID: n.ConversationID,
			MessageID:      n.ClipID,
			URL:            n.AudioURL,
			Format:         format,
		}
		log.Printf("New clip %s (%.2fs)", n.ClipID, n.DurationSeconds)

		// Claimed here so clips play in notification order
		p.status(ui.StatusMsg{ClipID: clipLabel(clip), Format: clip.Format.OrDefault(), ClearErr: true})
		result := p.controller.PlayAsync(ctx, clip)

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			err := <-result
			if err != nil && !errors.Is(err, playback.ErrStopped) && !errors.Is(err, context.Canceled) {
				log.Printf("Clip %s did not finish: %v", clip.MessageID, err)
			}
		}()

	case notify.ConversationDeleted:
		log.Printf("Conversation %s deleted", n.ConversationID)
		p.controller.InvalidateConversation(n.ConversationID)
		if clip, ok := p.controller.Playing(); ok && clip.ConversationID == n.ConversationID {
			p.controller.Stop()
		}
	}
}

// discover waits for the first advertised server
func (p *Player) discover(ctx context.Context) (string, error) {
	log.Printf("Starting server discovery...")
	m := discovery.NewManager(discovery.Config{Version: version.Version})
	if err := m.Browse(); err != nil {
		return "", fmt.Errorf("discovery failed: %w", err)
	}
	defer m.Stop()

	select {
	case server := <-m.Servers():
		log.Printf("Discovered server %s at %s", server.Name, server.BaseURL())
		return server.BaseURL(), nil
	case <-time.After(p.config.DiscoveryTimeout):
		return "", fmt.Errorf("no server found after %v", p.config.DiscoveryTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// HandleControls applies TUI volume and stop requests until ctx is done
func (p *Player) HandleControls(ctx context.Context, volumeCtrl *ui.VolumeControl) {
	for {
		select {
		case vol := <-volumeCtrl.Changes:
			log.Printf("Volume change: %d%%, muted=%v", vol.Volume, vol.Muted)
			p.SetVolume(vol.Volume, vol.Muted)
		case <-volumeCtrl.Stop:
			p.controller.Stop()
		case <-ctx.Done():
			return
		}
	}
}

// SetVolume applies software gain when the output supports it
func (p *Player) SetVolume(volume int, muted bool) {
	vc, ok := p.output.(output.VolumeControl)
	if !ok {
		return
	}
	vc.SetVolume(volume)
	vc.SetMuted(muted)
	p.status(ui.StatusMsg{Volume: &volume, Muted: &muted})
}

// Stop halts the current clip
func (p *Player) Stop() {
	p.controller.Stop()
}

// Controller exposes the playback controller
func (p *Player) Controller() *playback.Controller {
	return p.controller
}

// Played returns the number of clips that reached their end
func (p *Player) Played() int64 {
	return p.played.Load()
}

// Failed returns the number of clips that could not be resolved or rendered
func (p *Player) Failed() int64 {
	return p.failed.Load()
}

func (p *Player) handleEvent(ev render.Event) {
	msg := ui.StatusMsg{State: ev.Kind.String()}
	switch ev.Kind {
	case render.EventReady:
		msg.Duration = ev.Duration
	case render.EventEnded:
		p.played.Add(1)
	}
	p.status(msg)
}

func (p *Player) handleError(err error) {
	p.failed.Add(1)
	log.Printf("Playback error: %v", err)
	p.status(ui.StatusMsg{Err: err.Error()})
}

func (p *Player) status(msg ui.StatusMsg) {
	if p.config.OnStatus != nil {
		p.config.OnStatus(msg)
	}
}

// statsLoop periodically updates the UI with playback statistics
func (p *Player) statsLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := p.renderer.Stats()
			cached := p.controller.CacheLen()
			msg := ui.StatusMsg{
				Played:   p.played.Load(),
				Failed:   p.failed.Load(),
				CacheLen: &cached,
				Render:   &stats,
			}
			if watcher := p.watcher.Load(); watcher != nil {
				connected := watcher.IsConnected()
				msg.Connected = &connected
			}
			p.status(msg)
		case <-p.ctx.Done():
			return
		}
	}
}

// Close stops playback and releases the output device
func (p *Player) Close() error {
	p.cancel()
	err := p.controller.Close()
	p.wg.Wait()
	if cerr := p.output.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func clipLabel(clip playback.Clip) string {
	switch {
	case clip.MessageID != "":
		return clip.MessageID
	case clip.URL != "":
		return clip.URL
	default:
		return "inline clip"
	}
}
