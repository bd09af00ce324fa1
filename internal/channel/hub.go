package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Hub is an in-process channel fabric. Every connected client holds a
// LocalChannel keyed by its client id; the websocket server bridges remote
// connections onto the same hub, and tests use it directly.
type Hub struct {
	mu        sync.Mutex
	clients   map[string]*LocalChannel
	presences map[string]json.RawMessage
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[string]*LocalChannel),
		presences: make(map[string]json.RawMessage),
	}
}

// Channel returns a new channel endpoint for the given client key. The
// endpoint joins the hub when Subscribe is called.
func (h *Hub) Channel(key string) *LocalChannel {
	return &LocalChannel{hub: h, key: key}
}

func (h *Hub) snapshotLocked() map[string][]json.RawMessage {
	snap := make(map[string][]json.RawMessage, len(h.presences))
	for key, state := range h.presences {
		snap[key] = []json.RawMessage{state}
	}
	return snap
}

// fanOut collects the current handlers under the lock and invokes them
// after releasing it, so handlers may call back into the hub.
func (h *Hub) fanOut(events ...Event) {
	h.mu.Lock()
	handlers := make([]func(Event), 0, len(h.clients))
	for _, c := range h.clients {
		if c.handler != nil {
			handlers = append(handlers, c.handler)
		}
	}
	h.mu.Unlock()

	for _, ev := range events {
		for _, fn := range handlers {
			fn(ev)
		}
	}
}

// LocalChannel is one client's endpoint on a Hub.
type LocalChannel struct {
	hub     *Hub
	key     string
	handler func(Event)
	tracked bool
	closed  bool
}

func (c *LocalChannel) Subscribe(handler func(Event)) error {
	c.hub.mu.Lock()
	if c.closed {
		c.hub.mu.Unlock()
		return errors.New("channel closed")
	}
	if _, ok := c.hub.clients[c.key]; ok {
		c.hub.mu.Unlock()
		return fmt.Errorf("client key already subscribed: %s", c.key)
	}
	c.handler = handler
	c.hub.clients[c.key] = c
	snap := c.hub.snapshotLocked()
	c.hub.mu.Unlock()

	// Initial sync so a new subscriber learns who is already here.
	handler(Event{Kind: KindSync, Presences: snap})
	return nil
}

func (c *LocalChannel) Track(_ context.Context, state any) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode presence state: %w", err)
	}

	c.hub.mu.Lock()
	if c.closed {
		c.hub.mu.Unlock()
		return errors.New("channel closed")
	}
	_, rejoin := c.hub.presences[c.key]
	c.hub.presences[c.key] = raw
	c.tracked = true
	c.hub.mu.Unlock()

	if rejoin {
		// Refreshed record: peers converge through the sync snapshot alone.
		c.hub.fanOut(Event{Kind: KindSync, Presences: c.snapshot()})
	} else {
		c.hub.fanOut(
			Event{Kind: KindJoin, Key: c.key},
			Event{Kind: KindSync, Presences: c.snapshot()},
		)
	}
	return nil
}

func (c *LocalChannel) snapshot() map[string][]json.RawMessage {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	return c.hub.snapshotLocked()
}

func (c *LocalChannel) Untrack(_ context.Context) error {
	c.hub.mu.Lock()
	_, present := c.hub.presences[c.key]
	delete(c.hub.presences, c.key)
	c.tracked = false
	c.hub.mu.Unlock()

	if present {
		c.hub.fanOut(
			Event{Kind: KindLeave, Key: c.key},
			Event{Kind: KindSync, Presences: c.snapshot()},
		)
	}
	return nil
}

func (c *LocalChannel) Broadcast(_ context.Context, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	c.hub.mu.Lock()
	closed := c.closed
	c.hub.mu.Unlock()
	if closed {
		return errors.New("channel closed")
	}

	c.hub.fanOut(Event{Kind: KindBroadcast, Sender: c.key, Event: event, Payload: raw})
	return nil
}

// Close drops the client from the hub. A still-tracked presence is
// withdrawn first, which is how peers observe a dropped connection.
func (c *LocalChannel) Close() error {
	c.hub.mu.Lock()
	if c.closed {
		c.hub.mu.Unlock()
		return nil
	}
	c.closed = true
	tracked := c.tracked
	delete(c.hub.clients, c.key)
	c.hub.mu.Unlock()

	if tracked {
		return c.Untrack(context.Background())
	}
	return nil
}
