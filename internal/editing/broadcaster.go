// Package editing broadcasts advisory "user is editing task X" signals
// with automatic expiry. Indicators never block a write; they only let
// peers render who is touching what. Three mechanisms clear an entry: an
// explicit editing=false broadcast, the sender's local auto-clear timer
// firing without a keep-alive, and the receiver-side sweep that garbage
// collects entries whose sender vanished without saying goodbye.
package editing

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/avelar/taskhub/internal/channel"
	"github.com/avelar/taskhub/pkg/models"
)

const (
	// BroadcastEvent tags editing messages on the channel.
	BroadcastEvent = "editing"

	DefaultTimeout    = 30 * time.Second
	DefaultGrace      = 10 * time.Second
	DefaultSweepEvery = 10 * time.Second
)

type message struct {
	models.EditingState
	Editing bool `json:"editing"`
}

type target struct {
	taskID string
	field  string
}

type Broadcaster struct {
	ch     channel.Channel
	self   models.User
	logger *slog.Logger

	timeout    time.Duration
	grace      time.Duration
	sweepEvery time.Duration
	now        func() time.Time

	mu         sync.Mutex
	editors    map[string][]models.EditingState
	current    *target
	clearTimer *time.Timer
	done       chan struct{}
	closed     bool
}

type Option func(*Broadcaster)

func WithTimeout(d time.Duration) Option    { return func(b *Broadcaster) { b.timeout = d } }
func WithGrace(d time.Duration) Option      { return func(b *Broadcaster) { b.grace = d } }
func WithSweepEvery(d time.Duration) Option { return func(b *Broadcaster) { b.sweepEvery = d } }

func NewBroadcaster(ch channel.Channel, self models.User, logger *slog.Logger, opts ...Option) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broadcaster{
		ch:         ch,
		self:       self,
		logger:     logger,
		timeout:    DefaultTimeout,
		grace:      DefaultGrace,
		sweepEvery: DefaultSweepEvery,
		now:        func() time.Time { return time.Now().UTC() },
		editors:    make(map[string][]models.EditingState),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe starts receiving peer editing broadcasts and the background
// stale-entry sweep.
func (b *Broadcaster) Subscribe() error {
	if err := b.ch.Subscribe(b.handle); err != nil {
		return err
	}
	go b.sweepLoop()
	return nil
}

func (b *Broadcaster) handle(ev channel.Event) {
	if ev.Kind != channel.KindBroadcast || ev.Event != BroadcastEvent {
		return
	}

	var msg message
	if err := json.Unmarshal(ev.Payload, &msg); err != nil {
		b.logger.Warn("failed to decode editing message", "err", err)
		return
	}
	if msg.UserID == b.self.ID {
		// Own broadcasts are filtered on receipt.
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.editors[msg.TaskID]
	kept := entries[:0]
	for _, e := range entries {
		if !(e.UserID == msg.UserID && e.Field == msg.Field) {
			kept = append(kept, e)
		}
	}
	if msg.Editing {
		state := msg.EditingState
		// Age is measured from receipt so heartbeats keep entries alive.
		state.StartedAt = b.now()
		kept = append(kept, state)
	}
	if len(kept) == 0 {
		delete(b.editors, msg.TaskID)
	} else {
		b.editors[msg.TaskID] = kept
	}
}

func (b *Broadcaster) broadcast(ctx context.Context, taskID, field string, editing bool) {
	msg := message{
		EditingState: models.EditingState{
			UserID:    b.self.ID,
			Name:      b.self.Name,
			Color:     b.self.Color,
			TaskID:    taskID,
			Field:     field,
			StartedAt: b.now(),
		},
		Editing: editing,
	}
	if err := b.ch.Broadcast(ctx, BroadcastEvent, msg); err != nil {
		b.logger.Warn("failed to broadcast editing state", "task", taskID, "err", err)
	}
}

// SetEditing announces that this user started (editing=true) or stopped
// (editing=false) editing a task field. Starting arms the auto-clear
// timer; without a KeepAlive before it fires, editing=false is broadcast
// on the user's behalf.
func (b *Broadcaster) SetEditing(ctx context.Context, taskID, field string, editing bool) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if b.clearTimer != nil {
		b.clearTimer.Stop()
		b.clearTimer = nil
	}
	if editing {
		b.current = &target{taskID: taskID, field: field}
		b.clearTimer = time.AfterFunc(b.timeout, b.autoClear)
	} else {
		b.current = nil
	}
	b.mu.Unlock()

	b.broadcast(ctx, taskID, field, editing)
}

// KeepAlive re-arms the auto-clear timer and re-broadcasts the editing
// signal so peers refresh their entry's age.
func (b *Broadcaster) KeepAlive(ctx context.Context) {
	b.mu.Lock()
	if b.closed || b.current == nil {
		b.mu.Unlock()
		return
	}
	cur := *b.current
	if b.clearTimer != nil {
		b.clearTimer.Stop()
	}
	b.clearTimer = time.AfterFunc(b.timeout, b.autoClear)
	b.mu.Unlock()

	b.broadcast(ctx, cur.taskID, cur.field, true)
}

func (b *Broadcaster) autoClear() {
	b.mu.Lock()
	if b.closed || b.current == nil {
		b.mu.Unlock()
		return
	}
	cur := *b.current
	b.current = nil
	b.clearTimer = nil
	b.mu.Unlock()

	b.logger.Debug("editing timed out", "task", cur.taskID, "field", cur.field)
	b.broadcast(context.Background(), cur.taskID, cur.field, false)
}

func (b *Broadcaster) sweepLoop() {
	ticker := time.NewTicker(b.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.sweep()
		case <-b.done:
			return
		}
	}
}

// sweep drops peer entries older than timeout+grace. This covers peers
// that disconnected without broadcasting editing=false.
func (b *Broadcaster) sweep() {
	cutoff := b.now().Add(-(b.timeout + b.grace))

	b.mu.Lock()
	defer b.mu.Unlock()
	for taskID, entries := range b.editors {
		kept := entries[:0]
		for _, e := range entries {
			if e.StartedAt.After(cutoff) {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(b.editors, taskID)
		} else {
			b.editors[taskID] = kept
		}
	}
}

// Editors returns the active peer editing entries for a task.
func (b *Broadcaster) Editors(taskID string) []models.EditingState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.EditingState(nil), b.editors[taskID]...)
}

// Close broadcasts editing=false for whatever was last being edited,
// stops the timers and tears down the channel subscription.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	cur := b.current
	b.current = nil
	if b.clearTimer != nil {
		b.clearTimer.Stop()
		b.clearTimer = nil
	}
	close(b.done)
	b.mu.Unlock()

	if cur != nil {
		b.broadcast(context.Background(), cur.taskID, cur.field, false)
	}
	return b.ch.Close()
}
