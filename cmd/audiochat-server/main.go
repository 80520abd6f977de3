// ABOUTME: Entry point for the audio-chat server
// ABOUTME: Loads configuration, opens the store and serves the audio API until signalled
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BuffMcBigHuge/audio-chat/internal/config"
	"github.com/BuffMcBigHuge/audio-chat/internal/metrics"
	"github.com/BuffMcBigHuge/audio-chat/internal/notify"
	"github.com/BuffMcBigHuge/audio-chat/internal/server"
	"github.com/BuffMcBigHuge/audio-chat/internal/store"
	"github.com/BuffMcBigHuge/audio-chat/internal/version"
)

var (
	configPath  = flag.String("config", "audiochat.yaml", "Path to YAML configuration")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.UserAgent())
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "audiochat-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadEnv(); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := server.SetupTelemetry(ctx, cfg.Telemetry, os.Stdout, logger)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	st, err := store.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithMetrics(metrics.New()),
	}

	bridge, embedded, err := startBridge(ctx, cfg.Notify, logger)
	if err != nil {
		return err
	}
	if embedded != nil {
		defer embedded.Shutdown()
	}
	if bridge != nil {
		defer bridge.Close()
		opts = append(opts, server.WithBridge(bridge))
	}

	logger.Info("starting audio-chat server",
		slog.String("version", version.Version),
		slog.String("addr", cfg.HTTP.Addr()),
		slog.String("root", st.Root()),
		slog.Bool("indexed", st.Indexed()))

	srv := server.New(cfg, st, opts...)
	if err := srv.Run(ctx); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}

// startBridge connects the NATS bridge, starting an embedded server when asked
func startBridge(ctx context.Context, cfg config.NotifyConfig, logger *slog.Logger) (*notify.NATS, *notify.EmbeddedServer, error) {
	if !cfg.Enabled() {
		return nil, nil, nil
	}

	var embedded *notify.EmbeddedServer
	if cfg.NATSURL == "" && cfg.Embedded {
		ns, err := notify.StartEmbedded("127.0.0.1", cfg.EmbeddedPort, logger)
		if err != nil {
			return nil, nil, err
		}
		embedded = ns
		cfg.NATSURL = ns.ClientURL()
	}

	bridge, err := notify.Connect(ctx, cfg, logger)
	if err != nil {
		if embedded != nil {
			embedded.Shutdown()
		}
		return nil, nil, err
	}
	return bridge, embedded, nil
}

func newLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", version.Product)), nil
}
