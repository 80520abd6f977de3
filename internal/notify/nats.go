// ABOUTME: NATS bridge publishing clip notifications to other services
// ABOUTME: Subjects are <prefix>.clips.<user>.<conversation>
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BuffMcBigHuge/audio-chat/internal/config"
	"github.com/nats-io/nats.go"
)

// NATS publishes notifications on a NATS connection
type NATS struct {
	conn   *nats.Conn
	prefix string
	log    *slog.Logger
}

// Connect dials the configured NATS server
func Connect(ctx context.Context, cfg config.NotifyConfig, log *slog.Logger) (*NATS, error) {
	if cfg.NATSURL == "" {
		return nil, errors.New("no NATS url configured")
	}

	options := []nats.Option{
		nats.Name(cfg.ClientName),
		nats.Timeout(cfg.ConnectTimeout),
	}

	conn, err := nats.Connect(cfg.NATSURL, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info("connected to NATS", slog.String("url", cfg.NATSURL), slog.String("prefix", cfg.SubjectPrefix))
	return NewNATS(conn, cfg.SubjectPrefix, log), nil
}

// NewNATS wraps an existing connection
func NewNATS(conn *nats.Conn, prefix string, log *slog.Logger) *NATS {
	return &NATS{conn: conn, prefix: prefix, log: log}
}

// Subject returns the subject a notification is published on
func (p *NATS) Subject(n Notification) string {
	return Subject(p.prefix, n.UserID, n.ConversationID)
}

// Subject builds <prefix>.clips.<user>.<conversation>
func Subject(prefix, userID, conversationID string) string {
	return fmt.Sprintf("%s.clips.%s.%s", prefix, userID, conversationID)
}

// Publish implements Publisher
func (p *NATS) Publish(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := n.Marshal()
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := p.conn.Publish(p.Subject(n), data); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Healthy reports whether the connection is up
func (p *NATS) Healthy() bool {
	return p != nil && p.conn != nil && p.conn.Status() == nats.CONNECTED
}

// Close drains and closes the connection
func (p *NATS) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.log.Info("closing NATS connection")
	p.conn.Drain()
	p.conn.Close()
}
