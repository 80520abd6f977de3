// ABOUTME: OpenTelemetry tracer provider setup for the server
// ABOUTME: Exports spans to stdout when tracing is enabled
package server

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/BuffMcBigHuge/audio-chat/internal/config"
	"github.com/BuffMcBigHuge/audio-chat/internal/version"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// SetupTelemetry installs a global tracer provider. The returned function flushes it.
// With tracing disabled the global no-op provider stays in place.
func SetupTelemetry(ctx context.Context, cfg config.TelemetryConfig, w io.Writer, logger *slog.Logger) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(version.Version),
			attribute.String("audiochat.exporter", cfg.Exporter),
		),
	)
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.Exporter == "stdout" {
		if w == nil {
			w = os.Stdout
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	logger.Info("telemetry initialized", slog.String("exporter", cfg.Exporter))
	return tp.Shutdown, nil
}
