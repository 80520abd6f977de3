// ABOUTME: Websocket endpoint streaming clip notifications for one conversation
// ABOUTME: Each watcher gets a hub subscription drained by a single writer loop
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/BuffMcBigHuge/audio-chat/internal/store"
	"github.com/gorilla/websocket"
)

const (
	pingInterval  = 30 * time.Second
	writeDeadline = 10 * time.Second
)

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	userID, chatID := r.PathValue("uid"), r.PathValue("chatId")
	if err := store.ValidateIDs(userID, chatID); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade error", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe(userID, chatID)
	defer sub.Close()

	s.metrics.Watchers.Inc()
	defer s.metrics.Watchers.Dec()

	s.log.Info("watcher connected",
		slog.String("remote", r.RemoteAddr),
		slog.String("user", userID),
		slog.String("chat", chatID))
	defer s.log.Info("watcher disconnected", slog.String("remote", r.RemoteAddr))

	// Watchers never send data; reading surfaces the close frame and drives pong handling.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
					s.log.Debug("websocket read error", slog.String("error", err.Error()))
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case n, ok := <-sub.C:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
				conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeDeadline))
				return
			}
			data, err := n.Marshal()
			if err != nil {
				s.log.Error("error marshaling notification", slog.String("error", err.Error()))
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.log.Debug("error writing notification", slog.String("error", err.Error()))
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				return
			}

		case <-closed:
			return
		}
	}
}
