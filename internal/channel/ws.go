package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

// frame is the wire format spoken between WSChannel and WSHandler.
// Client-to-server types: track, untrack, broadcast. Server-to-client
// types mirror the Event kinds.
type frame struct {
	Type      string                       `json:"type"`
	Key       string                       `json:"key,omitempty"`
	Sender    string                       `json:"sender,omitempty"`
	Event     string                       `json:"event,omitempty"`
	State     json.RawMessage              `json:"state,omitempty"`
	Payload   json.RawMessage              `json:"payload,omitempty"`
	Presences map[string][]json.RawMessage `json:"presences,omitempty"`
}

// WSChannel implements Channel over a websocket connection to a hub
// served by WSHandler.
type WSChannel struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	logger  *slog.Logger

	mu      sync.Mutex
	tracked bool
	closed  bool
}

// Dial connects to a hub endpoint, e.g. ws://host:port/channel. The key
// identifies this client within the hub's presence map.
func Dial(rawURL, key string, logger *slog.Logger) (*WSChannel, error) {
	if logger == nil {
		logger = slog.Default()
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse channel url: %w", err)
	}
	q := u.Query()
	q.Set("client_id", key)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial channel: %w", err)
	}
	return &WSChannel{conn: conn, logger: logger}, nil
}

func (c *WSChannel) Subscribe(handler func(Event)) error {
	go func() {
		for {
			var f frame
			if err := c.conn.ReadJSON(&f); err != nil {
				c.mu.Lock()
				closed := c.closed
				c.mu.Unlock()
				if !closed {
					c.logger.Warn("channel read failed", "err", err)
				}
				return
			}
			handler(Event{
				Kind:      f.Type,
				Presences: f.Presences,
				Key:       f.Key,
				Sender:    f.Sender,
				Event:     f.Event,
				Payload:   f.Payload,
			})
		}
	}()
	return nil
}

func (c *WSChannel) write(f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

func (c *WSChannel) Track(_ context.Context, state any) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode presence state: %w", err)
	}
	c.mu.Lock()
	c.tracked = true
	c.mu.Unlock()
	return c.write(frame{Type: "track", State: raw})
}

func (c *WSChannel) Untrack(_ context.Context) error {
	c.mu.Lock()
	c.tracked = false
	c.mu.Unlock()
	return c.write(frame{Type: "untrack"})
}

func (c *WSChannel) Broadcast(_ context.Context, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	return c.write(frame{Type: "broadcast", Event: event, Payload: raw})
}

// Close untracks if needed and drops the connection. The server observes
// the disconnect and withdraws any remaining presence on our behalf.
func (c *WSChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	tracked := c.tracked
	c.mu.Unlock()

	if tracked {
		if err := c.Untrack(context.Background()); err != nil {
			c.logger.Warn("failed to untrack on close", "err", err)
		}
	}
	return c.conn.Close()
}
