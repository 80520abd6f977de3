// ABOUTME: HTTP server for the audio-chat clip store
// ABOUTME: Wires routes, metrics, notifications and mDNS around the store
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/BuffMcBigHuge/audio-chat/internal/config"
	"github.com/BuffMcBigHuge/audio-chat/internal/discovery"
	"github.com/BuffMcBigHuge/audio-chat/internal/metrics"
	"github.com/BuffMcBigHuge/audio-chat/internal/notify"
	"github.com/BuffMcBigHuge/audio-chat/internal/store"
	"github.com/BuffMcBigHuge/audio-chat/internal/version"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Server serves clips over HTTP and pushes clip notifications to watchers
type Server struct {
	cfg      config.Config
	serverID string
	store    *store.Store
	hub      *notify.Hub
	bridge   notify.Publisher
	metrics  *metrics.Metrics
	log      *slog.Logger

	upgrader   websocket.Upgrader
	mux        *http.ServeMux
	httpServer *http.Server

	mdnsManager *discovery.Manager
	startTime   time.Time

	wg sync.WaitGroup
}

// Option customizes a Server
type Option func(*Server)

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithBridge forwards every notification to p as well as local watchers
func WithBridge(p notify.Publisher) Option {
	return func(s *Server) { s.bridge = p }
}

// WithHub replaces the watcher hub
func WithHub(h *notify.Hub) Option {
	return func(s *Server) { s.hub = h }
}

// New creates a server around st
func New(cfg config.Config, st *store.Store, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		serverID:  uuid.New().String(),
		store:     st,
		mux:       http.NewServeMux(),
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// watchers are browsers on the chat origin or native players without Origin
				return true
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.hub == nil {
		s.hub = notify.NewHub(notify.DefaultBuffer)
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /health", s.withMetrics("/health", s.handleHealth))
	s.mux.Handle("GET /metrics", s.metrics.Handler())

	s.mux.HandleFunc("GET /api/audio/{uid}/{chatId}/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/audio/{uid}/{chatId}/{filename}", s.withMetrics("/api/audio/{uid}/{chatId}/{filename}", s.handleGetAudio))
	s.mux.HandleFunc("GET /api/audio/{uid}/{chatId}", s.withMetrics("/api/audio/{uid}/{chatId}", s.handleListAudio))
	s.mux.HandleFunc("POST /api/audio/{uid}/{chatId}", s.withMetrics("/api/audio/{uid}/{chatId}", s.handleUpload))
	s.mux.HandleFunc("DELETE /api/audio/{uid}/{chatId}", s.withMetrics("/api/audio/{uid}/{chatId}", s.handleDeleteConversation))
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Hub returns the watcher hub
func (s *Server) Hub() *notify.Hub {
	return s.hub
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.HTTP.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.HTTP.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("server starting",
		slog.String("id", s.serverID),
		slog.String("address", ln.Addr().String()),
		slog.String("root", s.store.Root()),
		slog.Bool("indexed", s.store.Indexed()))

	if s.cfg.Discovery.Enabled {
		port := s.cfg.HTTP.Port
		if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
			port = tcp.Port
		}
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.cfg.Discovery.Name,
			Port:        port,
			Version:     version.Version,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			s.log.Warn("failed to start mDNS advertisement", slog.String("error", err.Error()))
		} else {
			s.log.Info("mDNS advertisement started", slog.String("name", s.cfg.Discovery.Name))
		}
	}

	s.httpServer = &http.Server{
		Handler:      s.mux,
		ReadTimeout:  s.cfg.HTTP.ReadTimeout,
		WriteTimeout: s.cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.log.Info("server shutting down")
	case err := <-errChan:
		s.log.Error("HTTP server error", slog.String("error", err.Error()))
		serverErr = err
	}

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	// watchers hold hijacked connections that Shutdown does not wait for
	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("HTTP server shutdown error", slog.String("error", err.Error()))
	}

	s.wg.Wait()
	s.log.Info("server stopped cleanly")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// withMetrics wraps an HTTP handler with metrics collection
func (s *Server) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		duration := time.Since(start).Seconds()
		s.metrics.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(ww.statusCode), duration)
		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			s.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}

		s.log.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.statusCode),
			slog.Duration("duration", time.Since(start)))
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
