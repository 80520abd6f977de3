// ABOUTME: Prometheus metrics for the audio-chat server
// ABOUTME: Registered on a private registry so tests can build servers freely
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the server
type Metrics struct {
	registry *prometheus.Registry

	// Clip metrics
	ClipsStored          prometheus.Counter
	ClipBytes            prometheus.Histogram
	ClipDuration         prometheus.Histogram
	ClipsServed          *prometheus.CounterVec
	ConversationsDeleted prometheus.Counter
	UploadErrors         *prometheus.CounterVec

	// Notification metrics
	Watchers             prometheus.Gauge
	NotificationsSent    prometheus.Counter
	NotificationFailures prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// New creates and registers all metrics on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ClipsStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "audiochat_clips_stored_total",
			Help: "Total number of clips written to the store",
		}),
		ClipBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "audiochat_clip_size_bytes",
			Help:    "Size of stored PCM payloads",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to ~256MB
		}),
		ClipDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "audiochat_clip_duration_seconds",
			Help:    "Play time of stored clips",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2 minutes
		}),
		ClipsServed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audiochat_clips_served_total",
			Help: "Total number of clip downloads",
		}, []string{"format"}),
		ConversationsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "audiochat_conversations_deleted_total",
			Help: "Total number of conversation deletions",
		}),
		UploadErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audiochat_upload_errors_total",
			Help: "Total number of rejected uploads",
		}, []string{"reason"}),

		Watchers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "audiochat_watchers",
			Help: "Current number of websocket watchers",
		}),
		NotificationsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "audiochat_notifications_sent_total",
			Help: "Total number of clip notifications published",
		}),
		NotificationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "audiochat_notification_failures_total",
			Help: "Total number of notifications that failed to publish",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audiochat_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audiochat_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audiochat_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordClipStored records a successful upload
func (m *Metrics) RecordClipStored(sizeBytes int64, durationSeconds float64) {
	m.ClipsStored.Inc()
	m.ClipBytes.Observe(float64(sizeBytes))
	m.ClipDuration.Observe(durationSeconds)
}

// RecordClipServed increments downloads for the given format (pcm or wav)
func (m *Metrics) RecordClipServed(format string) {
	m.ClipsServed.WithLabelValues(format).Inc()
}

// RecordUploadError increments rejected uploads by reason
func (m *Metrics) RecordUploadError(reason string) {
	m.UploadErrors.WithLabelValues(reason).Inc()
}

// RecordConversationDeleted increments conversation deletions
func (m *Metrics) RecordConversationDeleted() {
	m.ConversationsDeleted.Inc()
}

// RecordNotification records a publish attempt
func (m *Metrics) RecordNotification(err error) {
	if err != nil {
		m.NotificationFailures.Inc()
		return
	}
	m.NotificationsSent.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
