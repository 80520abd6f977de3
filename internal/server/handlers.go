// ABOUTME: HTTP handlers for clip download, upload, listing and deletion
// ABOUTME: Responses are JSON except for the audio bodies themselves
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BuffMcBigHuge/audio-chat/internal/notify"
	"github.com/BuffMcBigHuge/audio-chat/internal/store"
	"github.com/BuffMcBigHuge/audio-chat/internal/version"
	"github.com/BuffMcBigHuge/audio-chat/pkg/audio"
	"github.com/BuffMcBigHuge/audio-chat/pkg/audio/mediatype"
	"github.com/BuffMcBigHuge/audio-chat/pkg/audio/transcode"
	"github.com/BuffMcBigHuge/audio-chat/pkg/audio/wav"
	"github.com/bytedance/sonic"
)

const (
	cacheControl    = "public, max-age=86400"
	notFoundMessage = "Audio file not found"
)

type uploadRequest struct {
	AudioData string `json:"audioData"`
	MimeType  string `json:"mimeType"`
}

type uploadResponse struct {
	ClipID          string  `json:"clipId"`
	AudioURL        string  `json:"audioUrl"`
	MimeType        string  `json:"mimeType"`
	DurationSeconds float64 `json:"durationSeconds"`
}

type clipResponse struct {
	ClipID          string    `json:"clipId"`
	AudioURL        string    `json:"audioUrl"`
	MimeType        string    `json:"mimeType"`
	SizeBytes       int64     `json:"sizeBytes"`
	DurationSeconds float64   `json:"durationSeconds"`
	CreatedAt       time.Time `json:"createdAt"`
}

type listResponse struct {
	UserID         string         `json:"userId"`
	ConversationID string         `json:"chatId"`
	Clips          []clipResponse `json:"clips"`
}

type deleteResponse struct {
	Deleted int `json:"deleted"`
}

type healthResponse struct {
	Status   string `json:"status"`
	ServerID string `json:"serverId"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Indexed  bool   `json:"indexed"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		ServerID: s.serverID,
		Version:  version.Version,
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
		Indexed:  s.store.Indexed(),
	})
}

// handleGetAudio serves a stored clip as raw PCM, or as WAV with ?format=wav
func (s *Server) handleGetAudio(w http.ResponseWriter, r *http.Request) {
	userID, chatID, filename := r.PathValue("uid"), r.PathValue("chatId"), r.PathValue("filename")

	f, clip, err := s.store.Open(r.Context(), userID, chatID, filename)
	if err != nil {
		var malformed *audio.MalformedInputError
		if errors.Is(err, audio.ErrNotFound) || errors.As(err, &malformed) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: notFoundMessage})
			return
		}
		s.log.Error("error serving audio file", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to serve audio file"})
		return
	}
	defer f.Close()

	w.Header().Set("Cache-Control", cacheControl)

	if strings.EqualFold(r.URL.Query().Get("format"), "wav") {
		s.serveWAV(w, r, f, clip)
		return
	}

	w.Header().Set("Content-Type", mediatype.ContentType(clip.Format))
	s.metrics.RecordClipServed("pcm")
	http.ServeContent(w, r, clip.Filename(), clip.CreatedAt, f)
}

func (s *Server) serveWAV(w http.ResponseWriter, r *http.Request, f io.Reader, clip store.Clip) {
	payload, err := io.ReadAll(f)
	if err != nil {
		s.log.Error("error reading audio file", slog.String("clip", clip.ID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to serve audio file"})
		return
	}
	data, err := wav.Synthesize(clip.Format, payload)
	if err != nil {
		s.log.Error("error synthesizing container", slog.String("clip", clip.ID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to serve audio file"})
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	s.metrics.RecordClipServed("wav")
	http.ServeContent(w, r, clip.ID+".wav", clip.CreatedAt, bytes.NewReader(data))
}

// handleUpload stores a clip sent as JSON {audioData, mimeType} or as a raw audio/L16 body
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	userID, chatID := r.PathValue("uid"), r.PathValue("chatId")

	payload, format, err := s.readUpload(w, r)
	if err != nil {
		s.rejectUpload(w, err)
		return
	}

	clip, err := s.store.Put(r.Context(), userID, chatID, payload, format)
	if err != nil {
		s.rejectUpload(w, err)
		return
	}

	audioURL := s.audioURL(r, userID, chatID, clip.Filename())
	duration := clip.Duration().Seconds()
	s.metrics.RecordClipStored(clip.Size, duration)

	s.log.Info("audio file saved",
		slog.String("user", userID),
		slog.String("chat", chatID),
		slog.String("clip", clip.ID),
		slog.String("url", audioURL))

	s.publish(r.Context(), notify.Notification{
		Type:            notify.ClipCreated,
		UserID:          userID,
		ConversationID:  chatID,
		ClipID:          clip.ID,
		AudioURL:        audioURL,
		MimeType:        mediatype.MimeType(clip.Format),
		DurationSeconds: duration,
		Timestamp:       clip.CreatedAt,
	})

	writeJSON(w, http.StatusCreated, uploadResponse{
		ClipID:          clip.ID,
		AudioURL:        audioURL,
		MimeType:        mediatype.MimeType(clip.Format),
		DurationSeconds: duration,
	})
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, audio.Format, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.HTTP.MaxUploadBytes))
	if err != nil {
		return nil, audio.Format{}, err
	}

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "application/json") {
		var req uploadRequest
		if err := sonic.Unmarshal(body, &req); err != nil {
			return nil, audio.Format{}, &audio.MalformedInputError{Op: "json", Reason: err.Error()}
		}
		format, err := mediatype.Parse(req.MimeType)
		if err != nil {
			return nil, audio.Format{}, err
		}
		payload, err := transcode.Decode(req.AudioData)
		if err != nil {
			return nil, audio.Format{}, err
		}
		return payload, format, nil
	}

	format, err := mediatype.Parse(contentType)
	if err != nil {
		return nil, audio.Format{}, err
	}
	return body, format, nil
}

func (s *Server) rejectUpload(w http.ResponseWriter, err error) {
	var (
		malformed *audio.MalformedInputError
		tooLarge  *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLarge):
		s.metrics.RecordUploadError("too_large")
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit)})
	case errors.As(err, &malformed):
		s.metrics.RecordUploadError(malformed.Op)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: malformed.Error()})
	default:
		s.metrics.RecordUploadError("internal")
		s.log.Error("error saving audio file", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to save audio file"})
	}
}

func (s *Server) handleListAudio(w http.ResponseWriter, r *http.Request) {
	userID, chatID := r.PathValue("uid"), r.PathValue("chatId")

	clips, err := s.store.List(r.Context(), userID, chatID)
	if err != nil {
		var malformed *audio.MalformedInputError
		if errors.As(err, &malformed) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: malformed.Error()})
			return
		}
		s.log.Error("error listing audio files", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to list audio files"})
		return
	}

	resp := listResponse{UserID: userID, ConversationID: chatID, Clips: make([]clipResponse, 0, len(clips))}
	for _, c := range clips {
		resp.Clips = append(resp.Clips, clipResponse{
			ClipID:          c.ID,
			AudioURL:        s.audioURL(r, userID, chatID, c.Filename()),
			MimeType:        mediatype.MimeType(c.Format),
			SizeBytes:       c.Size,
			DurationSeconds: c.Duration().Seconds(),
			CreatedAt:       c.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	userID, chatID := r.PathValue("uid"), r.PathValue("chatId")

	n, err := s.store.DeleteConversation(r.Context(), userID, chatID)
	if err != nil {
		var malformed *audio.MalformedInputError
		if errors.As(err, &malformed) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: malformed.Error()})
			return
		}
		s.log.Error("error deleting conversation", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to delete conversation"})
		return
	}
	s.metrics.RecordConversationDeleted()

	s.publish(r.Context(), notify.Notification{
		Type:           notify.ConversationDeleted,
		UserID:         userID,
		ConversationID: chatID,
		Timestamp:      time.Now().UTC(),
	})

	writeJSON(w, http.StatusOK, deleteResponse{Deleted: n})
}

func (s *Server) publish(ctx context.Context, n notify.Notification) {
	pubs := notify.Fanout{s.hub}
	if s.bridge != nil {
		pubs = append(pubs, s.bridge)
	}
	err := pubs.Publish(ctx, n)
	s.metrics.RecordNotification(err)
	if err != nil {
		s.log.Warn("failed to publish notification",
			slog.String("type", string(n.Type)),
			slog.String("error", err.Error()))
	}
}

// audioURL builds the absolute URL of a clip from the request's scheme and host
func (s *Server) audioURL(r *http.Request, userID, chatID, filename string) string {
	host := r.Host
	if host == "" {
		host = fmt.Sprintf("localhost:%d", s.cfg.HTTP.Port)
	}
	return fmt.Sprintf("%s://%s/api/audio/%s/%s/%s", s.scheme(r, host), host, userID, chatID, filename)
}

func (s *Server) scheme(r *http.Request, host string) string {
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return "https"
	}
	hostname := host
	if i := strings.LastIndex(hostname, ":"); i > 0 && !strings.Contains(hostname[i:], "]") {
		hostname = hostname[:i]
	}
	for _, suffix := range s.cfg.HTTP.HostSuffixes {
		if suffix != "" && strings.HasSuffix(hostname, suffix) {
			return "https"
		}
	}
	return "http"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
