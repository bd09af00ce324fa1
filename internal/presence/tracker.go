// Package presence maintains a live view of which users are connected
// and where, built only on the channel's broadcast delivery. The periodic
// sync snapshot is the sole source of truth for the online set; join and
// leave events are advisory and only logged, so the view can never
// diverge from the authoritative snapshot.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/avelar/taskhub/internal/channel"
	"github.com/avelar/taskhub/pkg/models"
)

type State int

const (
	StateDisconnected State = iota
	StateSubscribing
	StateSubscribed
)

type Tracker struct {
	ch     channel.Channel
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	self       models.PresenceState
	online     map[string]models.PresenceState
	announcing bool
	dirty      bool
}

func NewTracker(ch channel.Channel, self models.PresenceState, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		ch:     ch,
		logger: logger,
		self:   self,
		online: make(map[string]models.PresenceState),
	}
}

// Subscribe joins the presence channel and announces this client. The
// tracker moves disconnected → subscribing → subscribed; the first sync
// snapshot may arrive before the announce completes.
func (t *Tracker) Subscribe(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StateDisconnected {
		t.mu.Unlock()
		return fmt.Errorf("tracker already subscribed")
	}
	t.state = StateSubscribing
	t.mu.Unlock()

	if err := t.ch.Subscribe(t.handle); err != nil {
		t.mu.Lock()
		t.state = StateDisconnected
		t.mu.Unlock()
		return fmt.Errorf("failed to subscribe presence channel: %w", err)
	}

	t.mu.Lock()
	t.state = StateSubscribed
	t.mu.Unlock()

	return t.announce(ctx)
}

func (t *Tracker) handle(ev channel.Event) {
	switch ev.Kind {
	case channel.KindSync:
		online := make(map[string]models.PresenceState, len(ev.Presences))
		for key, records := range ev.Presences {
			for _, raw := range records {
				var p models.PresenceState
				if err := json.Unmarshal(raw, &p); err != nil {
					t.logger.Warn("failed to decode presence record", "key", key, "err", err)
					continue
				}
				online[p.UserID] = p
			}
		}
		t.mu.Lock()
		t.online = online
		t.mu.Unlock()
	case channel.KindJoin:
		// Advisory only; the next sync carries the authoritative set.
		t.logger.Debug("presence join", "key", ev.Key)
	case channel.KindLeave:
		t.logger.Debug("presence leave", "key", ev.Key)
	}
}

// announce publishes the current presence record. An announce already in
// flight suppresses this one to keep location writes ordered; the dirty
// flag makes the in-flight call re-announce the latest record when it
// finishes, so the final state always wins.
func (t *Tracker) announce(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StateSubscribed {
		t.mu.Unlock()
		return fmt.Errorf("tracker not subscribed")
	}
	if t.announcing {
		t.dirty = true
		t.mu.Unlock()
		return nil
	}
	t.announcing = true
	t.mu.Unlock()

	for {
		t.mu.Lock()
		t.dirty = false
		state := t.self
		t.mu.Unlock()

		err := t.ch.Track(ctx, state)

		t.mu.Lock()
		redo := t.dirty
		if !redo || err != nil {
			t.announcing = false
		}
		t.mu.Unlock()

		if err != nil {
			return fmt.Errorf("failed to announce presence: %w", err)
		}
		if !redo {
			return nil
		}
	}
}

// SetLocation re-announces presence with a new location tag. Channel
// failures degrade the roster, not task data, so they are only logged.
func (t *Tracker) SetLocation(ctx context.Context, location string) {
	t.mu.Lock()
	t.self.Location = location
	t.mu.Unlock()

	if err := t.announce(ctx); err != nil {
		t.logger.Warn("failed to update presence location", "location", location, "err", err)
	}
}

// Online returns every user in the latest sync snapshot, ordered by join
// time then user id for stable display.
func (t *Tracker) Online() []models.PresenceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.PresenceState, 0, len(t.online))
	for _, p := range t.online {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// Others returns the online set with this client's own record filtered
// out.
func (t *Tracker) Others() []models.PresenceState {
	var others []models.PresenceState
	for _, p := range t.Online() {
		if p.UserID != t.self.UserID {
			others = append(others, p)
		}
	}
	return others
}

// Close un-announces this client and tears the subscription down.
func (t *Tracker) Close() error {
	t.mu.Lock()
	if t.state == StateDisconnected {
		t.mu.Unlock()
		return nil
	}
	t.state = StateDisconnected
	t.mu.Unlock()

	if err := t.ch.Untrack(context.Background()); err != nil {
		t.logger.Warn("failed to untrack presence", "err", err)
	}
	return t.ch.Close()
}
