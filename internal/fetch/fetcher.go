// ABOUTME: Stream fetcher for remote PCM payloads
// ABOUTME: Downloads audio by URL as bytes or as base64 text with bounded memory
package fetch

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/BuffMcBigHuge/audio-chat/internal/version"
	"github.com/BuffMcBigHuge/audio-chat/pkg/audio"
	"github.com/BuffMcBigHuge/audio-chat/pkg/audio/transcode"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultMaxBytes allows about ten minutes of 24kHz mono 16-bit audio
	DefaultMaxBytes = 32 << 20

	DefaultTimeout = 30 * time.Second
)

var tracer = otel.Tracer("github.com/BuffMcBigHuge/audio-chat/fetch")

// Config holds fetcher configuration
type Config struct {
	Client   *http.Client
	MaxBytes int64
	Timeout  time.Duration
}

// Fetcher retrieves audio payloads over HTTP
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	timeout  time.Duration
}

// New creates a fetcher
func New(config Config) *Fetcher {
	if config.Client == nil {
		config.Client = &http.Client{}
	}
	if config.MaxBytes <= 0 {
		config.MaxBytes = DefaultMaxBytes
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &Fetcher{
		client:   config.Client,
		maxBytes: config.MaxBytes,
		timeout:  config.Timeout,
	}
}

// Fetch downloads the raw payload at url
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "fetch.audio", trace.WithAttributes(attribute.String("url.full", url)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	body, _, err := f.open(ctx, span, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(f.limit(body))
	if err != nil {
		return nil, f.fail(span, &audio.RetrievalError{URL: url, Err: err})
	}

	span.SetAttributes(attribute.Int("audio.bytes", len(data)))
	log.Printf("Downloaded audio: %s (%d bytes)", url, len(data))
	return data, nil
}

// FetchBase64 downloads the payload at url and returns it as base64 text.
// The body is encoded as it streams in, so the binary payload is never held whole.
func (f *Fetcher) FetchBase64(ctx context.Context, url string) (string, error) {
	ctx, span := tracer.Start(ctx, "fetch.audio.base64", trace.WithAttributes(attribute.String("url.full", url)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	body, length, err := f.open(ctx, span, url)
	if err != nil {
		return "", err
	}
	defer body.Close()

	var sb strings.Builder
	if length > 0 && length <= f.maxBytes {
		sb.Grow(transcode.EncodedLen(int(length)))
	}
	if _, err := transcode.EncodeStream(&sb, f.limit(body)); err != nil {
		return "", f.fail(span, &audio.RetrievalError{URL: url, Err: err})
	}

	span.SetAttributes(attribute.Int("audio.base64_chars", sb.Len()))
	return sb.String(), nil
}

// open issues the GET and returns the body with its declared length (-1 if unknown)
func (f *Fetcher) open(ctx context.Context, span trace.Span, url string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, f.fail(span, &audio.RetrievalError{URL: url, Err: err})
	}
	req.Header.Set("User-Agent", version.UserAgent())

	log.Printf("Downloading audio: %s", url)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, f.fail(span, &audio.RetrievalError{URL: url, Err: err})
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, 0, f.fail(span, &audio.RetrievalError{URL: url, StatusCode: resp.StatusCode})
	}

	return resp.Body, resp.ContentLength, nil
}

// limit fails the read once more than maxBytes arrive
func (f *Fetcher) limit(r io.Reader) io.Reader {
	return &limitedReader{r: r, remaining: f.maxBytes, max: f.maxBytes}
}

func (f *Fetcher) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

type limitedReader struct {
	r         io.Reader
	remaining int64
	max       int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		// Probe one byte to tell an exact fit from an oversize body
		var probe [1]byte
		n, err := l.r.Read(probe[:])
		if n > 0 {
			return 0, fmt.Errorf("payload exceeds %d bytes", l.max)
		}
		return 0, err
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}
