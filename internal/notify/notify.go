// ABOUTME: Clip notifications pushed to watching players
// ABOUTME: Defines the wire shape and the Publisher interface shared by the hub and NATS bridge
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
)

// Kind names a notification
type Kind string

const (
	// ClipCreated announces a newly stored clip
	ClipCreated Kind = "clip.created"
	// ConversationDeleted announces that every clip of a conversation is gone
	ConversationDeleted Kind = "conversation.deleted"
)

// Notification is sent as one JSON text frame per event
type Notification struct {
	Type            Kind      `json:"type"`
	UserID          string    `json:"userId"`
	ConversationID  string    `json:"chatId"`
	ClipID          string    `json:"clipId,omitempty"`
	AudioURL        string    `json:"audioUrl,omitempty"`
	MimeType        string    `json:"mimeType,omitempty"`
	DurationSeconds float64   `json:"durationSeconds,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Marshal encodes n as JSON
func (n Notification) Marshal() ([]byte, error) {
	return sonic.Marshal(n)
}

// Unmarshal decodes a notification frame
func Unmarshal(data []byte) (Notification, error) {
	var n Notification
	if err := sonic.Unmarshal(data, &n); err != nil {
		return Notification{}, err
	}
	if n.Type == "" {
		return Notification{}, errors.New("notification missing type")
	}
	return n, nil
}

// Publisher delivers notifications
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

// Fanout publishes to every publisher and joins their errors
type Fanout []Publisher

// Publish implements Publisher
func (f Fanout) Publish(ctx context.Context, n Notification) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
