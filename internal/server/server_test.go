// ABOUTME: Tests for the audio-chat HTTP server
// ABOUTME: Exercises upload, download, listing, deletion and watcher notifications over httptest
package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BuffMcBigHuge/audio-chat/internal/config"
	"github.com/BuffMcBigHuge/audio-chat/internal/notify"
	"github.com/BuffMcBigHuge/audio-chat/internal/store"
	"github.com/gorilla/websocket"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *httptest.Server) {
	t.Helper()
	tmp := t.TempDir()
	cfg := config.Default()
	cfg.Storage.Root = filepath.Join(tmp, "audio")
	cfg.Storage.IndexPath = filepath.Join(tmp, "clips.db")
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := store.Open(context.Background(), cfg.Storage, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	srv := New(cfg, st, WithLogger(newLogger()))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Hub().Close()
		ts.Close()
	})
	return srv, ts
}

type uploaded struct {
	ClipID          string  `json:"clipId"`
	AudioURL        string  `json:"audioUrl"`
	MimeType        string  `json:"mimeType"`
	DurationSeconds float64 `json:"durationSeconds"`
}

func uploadJSON(t *testing.T, ts *httptest.Server, path string, payload []byte, mimeType string) uploaded {
	t.Helper()
	body, _ := json.Marshal(map[string]string{
		"audioData": base64.StdEncoding.EncodeToString(payload),
		"mimeType":  mimeType,
	})
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, msg)
	}
	var out uploaded
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	return out
}

func get(t *testing.T, url string, header http.Header) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func TestUploadAndServe(t *testing.T) {
	_, ts := newTestServer(t, nil)
	payload := bytes.Repeat([]byte{0x10, 0x20}, 24000)

	up := uploadJSON(t, ts, "/api/audio/user1/chat1", payload, "audio/L16;codec=pcm;rate=24000")

	wantPrefix := ts.URL + "/api/audio/user1/chat1/"
	if !strings.HasPrefix(up.AudioURL, wantPrefix) || !strings.HasSuffix(up.AudioURL, ".pcm") {
		t.Fatalf("unexpected audio url %q", up.AudioURL)
	}
	if up.DurationSeconds != 1.0 {
		t.Errorf("expected 1.0s, got %v", up.DurationSeconds)
	}

	resp, body := get(t, up.AudioURL, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/L16" {
		t.Errorf("expected audio/L16, got %q", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "public, max-age=86400" {
		t.Errorf("unexpected Cache-Control %q", cc)
	}
	if !bytes.Equal(body, payload) {
		t.Error("served payload differs from upload")
	}
}

func TestServeRange(t *testing.T) {
	_, ts := newTestServer(t, nil)
	payload := []byte{0, 1, 2, 3, 4, 5, 6, 7}
	up := uploadJSON(t, ts, "/api/audio/u/c", payload, "")

	resp, body := get(t, up.AudioURL, http.Header{"Range": {"bytes=2-5"}})
	if resp.StatusCode != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", resp.StatusCode)
	}
	if !bytes.Equal(body, []byte{2, 3, 4, 5}) {
		t.Errorf("unexpected range body %v", body)
	}
}

func TestServeWAV(t *testing.T) {
	_, ts := newTestServer(t, nil)
	payload := make([]byte, 48000)
	up := uploadJSON(t, ts, "/api/audio/u/c", payload, "audio/L16;codec=pcm;rate=24000")

	resp, body := get(t, up.AudioURL+"?format=wav", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("expected audio/wav, got %q", ct)
	}
	if len(body) != 48044 {
		t.Errorf("expected 48044 bytes, got %d", len(body))
	}
	if string(body[0:4]) != "RIFF" || string(body[8:12]) != "WAVE" {
		t.Errorf("missing RIFF/WAVE tags")
	}
}

func TestGetMissingAudio(t *testing.T) {
	_, ts := newTestServer(t, nil)

	for _, path := range []string{
		"/api/audio/u/c/does-not-exist.pcm",
		"/api/audio/u/c/bad.name.pcm",
	} {
		resp, body := get(t, ts.URL+path, nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, resp.StatusCode)
			continue
		}
		if strings.TrimSpace(string(body)) != `{"error":"Audio file not found"}` {
			t.Errorf("%s: unexpected body %s", path, body)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("%s: expected application/json, got %q", path, ct)
		}
	}
}

func TestRawUpload(t *testing.T) {
	_, ts := newTestServer(t, nil)
	payload := make([]byte, 192000)

	resp, err := http.Post(ts.URL+"/api/audio/u/c", "audio/L16; rate=48000; channels=2", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var up uploaded
	if err := json.NewDecoder(resp.Body).Decode(&up); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if up.DurationSeconds != 1.0 {
		t.Errorf("expected 1.0s, got %v", up.DurationSeconds)
	}

	got, _ := get(t, up.AudioURL, nil)
	if ct := got.Header.Get("Content-Type"); ct != "audio/L16;rate=48000;channels=2" {
		t.Errorf("unexpected Content-Type %q", ct)
	}
}

func TestUploadRejects(t *testing.T) {
	_, ts := newTestServer(t, func(c *config.Config) { c.HTTP.MaxUploadBytes = 1024 })

	tests := []struct {
		name        string
		path        string
		contentType string
		body        string
		want        int
	}{
		{"bad base64", "/api/audio/u/c", "application/json", `{"audioData":"QUJ*","mimeType":"audio/L16;rate=24000"}`, http.StatusBadRequest},
		{"misaligned payload", "/api/audio/u/c", "application/json", `{"audioData":"QUJD","mimeType":"audio/L16;rate=24000"}`, http.StatusBadRequest},
		{"bad json", "/api/audio/u/c", "application/json", `{"audioData":`, http.StatusBadRequest},
		{"unsupported codec", "/api/audio/u/c", "application/json", `{"audioData":"","mimeType":"audio/mpeg"}`, http.StatusBadRequest},
		{"bad rate", "/api/audio/u/c", "audio/L16;rate=fast", "", http.StatusBadRequest},
		{"too large", "/api/audio/u/c", "audio/L16", strings.Repeat("a", 2048), http.StatusRequestEntityTooLarge},
		{"bad conversation id", "/api/audio/u/c.d", "audio/L16", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+tt.path, tt.contentType, strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("post: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				msg, _ := io.ReadAll(resp.Body)
				t.Errorf("expected %d, got %d: %s", tt.want, resp.StatusCode, msg)
			}
		})
	}
}

func TestListAndDelete(t *testing.T) {
	_, ts := newTestServer(t, nil)
	first := uploadJSON(t, ts, "/api/audio/u/c", make([]byte, 4800), "")
	uploadJSON(t, ts, "/api/audio/u/c", make([]byte, 4800), "")
	other := uploadJSON(t, ts, "/api/audio/u/other", make([]byte, 4800), "")

	resp, body := get(t, ts.URL+"/api/audio/u/c", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", resp.StatusCode)
	}
	var list struct {
		Clips []struct {
			ClipID          string  `json:"clipId"`
			AudioURL        string  `json:"audioUrl"`
			DurationSeconds float64 `json:"durationSeconds"`
		} `json:"clips"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Clips) != 2 {
		t.Fatalf("expected 2 clips, got %d", len(list.Clips))
	}
	if list.Clips[0].ClipID != first.ClipID {
		t.Errorf("expected oldest clip first")
	}
	if list.Clips[0].DurationSeconds != 0.1 {
		t.Errorf("expected 0.1s, got %v", list.Clips[0].DurationSeconds)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/audio/u/c", nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	defer delResp.Body.Close()
	var deleted struct {
		Deleted int `json:"deleted"`
	}
	if err := json.NewDecoder(delResp.Body).Decode(&deleted); err != nil {
		t.Fatalf("decode delete: %v", err)
	}
	if deleted.Deleted != 2 {
		t.Errorf("expected 2 deleted, got %d", deleted.Deleted)
	}

	if resp, _ := get(t, first.AudioURL, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", resp.StatusCode)
	}
	if resp, _ := get(t, other.AudioURL, nil); resp.StatusCode != http.StatusOK {
		t.Errorf("other conversation should survive, got %d", resp.StatusCode)
	}
}

func TestScheme(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	tests := []struct {
		name   string
		host   string
		header string
		want   string
	}{
		{"plain", "localhost:5000", "", "http"},
		{"forwarded https", "example.com", "https", "https"},
		{"hosting suffix", "abc-123.replit.dev", "", "https"},
		{"hosting suffix with port", "abc.replit.dev:443", "", "https"},
		{"forwarded http", "example.com", "http", "http"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/audio/u/c", nil)
			r.Host = tt.host
			if tt.header != "" {
				r.Header.Set("X-Forwarded-Proto", tt.header)
			}
			if got := srv.scheme(r, tt.host); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Host = "chat.replit.dev"
	if got := srv.audioURL(r, "u", "c", "x.pcm"); got != "https://chat.replit.dev/api/audio/u/c/x.pcm" {
		t.Errorf("unexpected url %q", got)
	}
}

func TestEventsStream(t *testing.T) {
	srv, ts := newTestServer(t, nil)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/audio/u/c/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Hub().Subscribers("u", "c") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("watcher never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	up := uploadJSON(t, ts, "/api/audio/u/c", make([]byte, 480), "")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	n, err := notify.Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if n.Type != notify.ClipCreated || n.ClipID != up.ClipID || n.AudioURL != up.AudioURL {
		t.Errorf("unexpected notification %+v", n)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/audio/u/c", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()

	_, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	n, err = notify.Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if n.Type != notify.ConversationDeleted {
		t.Errorf("expected conversation.deleted, got %s", n.Type)
	}
}

func TestEventsRejectsBadID(t *testing.T) {
	_, ts := newTestServer(t, nil)
	resp, _ := get(t, ts.URL+"/api/audio/u/c.x/events", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

type recordingPublisher struct {
	got chan notify.Notification
}

func (p *recordingPublisher) Publish(_ context.Context, n notify.Notification) error {
	p.got <- n
	return nil
}

func TestBridgeReceivesNotifications(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.Default()
	cfg.Storage.Root = tmp
	st, err := store.Open(context.Background(), cfg.Storage, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	bridge := &recordingPublisher{got: make(chan notify.Notification, 1)}
	srv := New(cfg, st, WithLogger(newLogger()), WithBridge(bridge))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	up := uploadJSON(t, ts, "/api/audio/u/c", make([]byte, 2), "")
	select {
	case n := <-bridge.got:
		if n.ClipID != up.ClipID {
			t.Errorf("unexpected clip %q", n.ClipID)
		}
	case <-time.After(time.Second):
		t.Fatal("bridge did not receive notification")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	_, ts := newTestServer(t, nil)
	uploadJSON(t, ts, "/api/audio/u/c", make([]byte, 2), "")

	resp, body := get(t, ts.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", resp.StatusCode)
	}
	var health struct {
		Status  string `json:"status"`
		Indexed bool   `json:"indexed"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" || !health.Indexed {
		t.Errorf("unexpected health %+v", health)
	}

	resp, body = get(t, ts.URL+"/metrics", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", resp.StatusCode)
	}
	for _, name := range []string{"audiochat_clips_stored_total 1", "audiochat_http_requests_total"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %q", name)
		}
	}
}

func TestServeShutdown(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Root = t.TempDir()
	st, err := store.Open(context.Background(), cfg.Storage, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := New(cfg, st, WithLogger(newLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, _ := get(t, "http://"+ln.Addr().String()+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
