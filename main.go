// ABOUTME: Entry point for the audio-chat player
// ABOUTME: Plays single clips or watches a conversation and auto-plays new clips
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BuffMcBigHuge/audio-chat/internal/app"
	"github.com/BuffMcBigHuge/audio-chat/internal/ui"
	"github.com/BuffMcBigHuge/audio-chat/internal/version"
	"github.com/BuffMcBigHuge/audio-chat/pkg/audio"
	"github.com/BuffMcBigHuge/audio-chat/pkg/audio/encode"
	"github.com/BuffMcBigHuge/audio-chat/pkg/audio/mediatype"
	"github.com/BuffMcBigHuge/audio-chat/pkg/audio/tone"
	"github.com/BuffMcBigHuge/audio-chat/pkg/audio/wav"
	"github.com/BuffMcBigHuge/audio-chat/pkg/playback"
	tea "github.com/charmbracelet/bubbletea"
)

var (
	serverURL    = flag.String("server", "", "Server base URL, e.g. http://localhost:5000 (default: mDNS discovery)")
	userID       = flag.String("user", "", "User id of the conversation to watch")
	chatID       = flag.String("chat", "", "Conversation id to watch")
	clipURL      = flag.String("url", "", "Play one raw PCM clip from this URL and exit")
	mimeType     = flag.String("mime", "", "Media type of -url, e.g. audio/L16;rate=24000 (default: 24kHz mono 16-bit)")
	wavFile      = flag.String("wav", "", "Play one canonical WAV file and exit")
	toneHz       = flag.Float64("tone", 0, "Play a test tone at this frequency and exit")
	toneDuration = flag.Duration("tone-duration", 2*time.Second, "Test tone length")
	backend      = flag.String("backend", "oto", "Audio output: oto, malgo or null")
	sampleRate   = flag.Int("rate", 48000, "Output sample rate")
	channels     = flag.Int("channels", 2, "Output channels")
	volume       = flag.Int("volume", 100, "Initial volume (0-100)")
	cacheSize    = flag.Int("cache-size", playback.DefaultCacheSize, "Decoded clips kept in memory")
	logFile      = flag.String("log-file", "audiochat-player.log", "Log file path")
	noTUI        = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.UserAgent())
		return
	}

	oneShot := *clipURL != "" || *wavFile != "" || *toneHz > 0
	if !oneShot && (*userID == "" || *chatID == "") {
		fmt.Fprintln(os.Stderr, "either -user and -chat, or one of -url, -wav, -tone is required")
		flag.Usage()
		os.Exit(2)
	}
	useTUI := !*noTUI && !oneShot

	// Set up logging
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	log.Printf("Starting %s", version.UserAgent())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var tuiProg *tea.Program
	var volumeCtrl *ui.VolumeControl
	if useTUI {
		volumeCtrl = ui.NewVolumeControl()
		tuiProg = ui.Run(volumeCtrl, *volume)
		go func() {
			if _, err := tuiProg.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
			stop()
		}()
	}

	config := app.Config{
		ServerURL:      *serverURL,
		UserID:         *userID,
		ConversationID: *chatID,
		Backend:        *backend,
		SampleRate:     *sampleRate,
		Channels:       *channels,
		Volume:         *volume,
		CacheSize:      *cacheSize,
	}
	if tuiProg != nil {
		config.OnStatus = func(msg ui.StatusMsg) { tuiProg.Send(msg) }
	}

	player, err := app.New(config)
	if err != nil {
		if tuiProg != nil {
			tuiProg.Quit()
		}
		log.Fatalf("Failed to create player: %v", err)
	}
	defer func() {
		if err := player.Close(); err != nil {
			log.Printf("Error closing player: %v", err)
		}
		log.Printf("Player stopped")
	}()

	if oneShot {
		clip, err := oneShotClip()
		if err != nil {
			log.Printf("Invalid clip: %v", err)
			return
		}
		if err := player.PlayClip(ctx, clip); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Playback failed: %v", err)
		}
		return
	}

	if volumeCtrl != nil {
		go player.HandleControls(ctx, volumeCtrl)
		go func() {
			select {
			case <-volumeCtrl.Quit:
				log.Printf("Received quit signal from TUI")
				stop()
			case <-ctx.Done():
			}
		}()
	}

	if err := player.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Watch failed: %v", err)
	}
	if tuiProg != nil {
		tuiProg.Quit()
	}
}

// oneShotClip builds the clip named by -url, -wav or -tone
func oneShotClip() (playback.Clip, error) {
	switch {
	case *clipURL != "":
		format, err := mediatype.Parse(*mimeType)
		if err != nil {
			return playback.Clip{}, err
		}
		return playback.Clip{URL: *clipURL, Format: format}, nil

	case *wavFile != "":
		data, err := os.ReadFile(*wavFile)
		if err != nil {
			return playback.Clip{}, fmt.Errorf("failed to read %s: %w", *wavFile, err)
		}
		format, payload, err := wav.Parse(data)
		if err != nil {
			return playback.Clip{}, err
		}
		return playback.Clip{MessageID: *wavFile, Data: payload, Format: format}, nil

	default:
		buf := tone.Generate(audio.DefaultFormat, *toneHz, *toneDuration)
		payload, err := encode.Buffer(buf)
		if err != nil {
			return playback.Clip{}, err
		}
		log.Printf("Playing %.0fHz test tone for %v", *toneHz, *toneDuration)
		return playback.Clip{Data: payload, Format: buf.Format}, nil
	}
}
