// ABOUTME: WebSocket client watching one conversation for clip notifications
// ABOUTME: Handles connection, reconnection and routing of notifications to a channel
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/BuffMcBigHuge/audio-chat/internal/notify"
	"github.com/BuffMcBigHuge/audio-chat/internal/version"
	"github.com/gorilla/websocket"
)

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// Config holds client configuration
type Config struct {
	// ServerURL is the server's base URL, e.g. http://localhost:5000
	ServerURL      string
	UserID         string
	ConversationID string
	ClientID       string
}

// Client represents a notification watcher
type Client struct {
	config Config
	dialer *websocket.Dialer
	conn   *websocket.Conn
	mu     sync.RWMutex

	// Notifications carries every clip notification across reconnects
	Notifications chan notify.Notification

	// State
	connected bool
	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewClient creates a new watcher
func NewClient(config Config) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		config:        config,
		dialer:        websocket.DefaultDialer,
		Notifications: make(chan notify.Notification, 16),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// EventsURL returns the websocket URL of the watched conversation
func (c *Client) EventsURL() (string, error) {
	u, err := url.Parse(c.config.ServerURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws", "":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("server url has no host")
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + fmt.Sprintf("/api/audio/%s/%s/events",
		url.PathEscape(c.config.UserID), url.PathEscape(c.config.ConversationID))
	u.RawQuery = ""
	return u.String(), nil
}

// Connect establishes one websocket connection and starts reading
func (c *Client) Connect(ctx context.Context) error {
	target, err := c.EventsURL()
	if err != nil {
		return err
	}
	log.Printf("Connecting to %s", target)

	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())
	if c.config.ClientID != "" {
		header.Set("X-Client-ID", c.config.ClientID)
	}

	conn, _, err := c.dialer.DialContext(ctx, target, header)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.done = done
	c.mu.Unlock()

	go c.readMessages(conn, done)
	return nil
}

// Run connects and reconnects with backoff until ctx is done or Close is called
func (c *Client) Run(ctx context.Context) error {
	backoff := minBackoff
	for {
		if err := c.Connect(ctx); err != nil {
			log.Printf("Watch connection failed: %v (retrying in %v)", err, backoff)
		} else {
			backoff = minBackoff
			select {
			case <-c.Done():
			case <-ctx.Done():
				c.Close()
				return ctx.Err()
			case <-c.ctx.Done():
				return nil
			}
			log.Printf("Watch connection lost, reconnecting")
		}

		select {
		case <-ctx.Done():
			c.Close()
			return ctx.Err()
		case <-c.ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// readMessages reads and routes incoming notifications
func (c *Client) readMessages(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	defer c.disconnect(conn)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Printf("Read error: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		n, err := notify.Unmarshal(data)
		if err != nil {
			log.Printf("Failed to parse notification: %v", err)
			continue
		}

		select {
		case c.Notifications <- n:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) disconnect(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn.Close()
	if c.conn == conn {
		c.connected = false
	}
}

// Done is closed when the current connection ends
func (c *Client) Done() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.done
}

// Close stops the client permanently
func (c *Client) Close() {
	c.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.conn.Close()
		log.Printf("Connection closed")
	}
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
