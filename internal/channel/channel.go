// Package channel is the realtime publish/subscribe boundary used by the
// presence and editing components. A Channel carries two kinds of traffic:
// ephemeral presence records (Track/Untrack, observed through periodic
// sync snapshots plus advisory join/leave events) and tagged broadcast
// payloads delivered to every subscriber. Delivery is at-most-once and
// unordered; nothing built on top of a Channel may depend on ordering.
package channel

import (
	"context"
	"encoding/json"
)

// Event kinds delivered to subscribers.
const (
	KindSync      = "sync"
	KindJoin      = "join"
	KindLeave     = "leave"
	KindBroadcast = "broadcast"
)

type Event struct {
	Kind string

	// Presences is the full key-to-records snapshot, set for sync events.
	Presences map[string][]json.RawMessage

	// Key identifies the client a join/leave refers to. Advisory only.
	Key string

	// Sender, Event and Payload describe a broadcast. Broadcasts are
	// delivered to every subscriber including the sender; receivers filter
	// their own messages.
	Sender  string
	Event   string
	Payload json.RawMessage
}

type Channel interface {
	// Subscribe registers the handler and starts delivery. The first sync
	// snapshot arrives shortly after subscribing.
	Subscribe(handler func(Event)) error

	// Track publishes this client's presence record, replacing any prior
	// record under the same key.
	Track(ctx context.Context, state any) error

	// Untrack withdraws this client's presence record.
	Untrack(ctx context.Context) error

	// Broadcast publishes a tagged payload to all subscribers.
	Broadcast(ctx context.Context, event string, payload any) error

	// Close withdraws presence if tracked and ends delivery.
	Close() error
}
