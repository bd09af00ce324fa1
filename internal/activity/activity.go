// Package activity is the append-only activity log collaborator. The
// coordinators write one entry per confirmed mutation; the streak
// collaborator reads recent entries back.
package activity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avelar/taskhub/pkg/models"
)

type Recorder interface {
	Record(ctx context.Context, e *models.ActivityEntry) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]*models.ActivityEntry, error)
}

// MemoryRecorder keeps entries in memory. Used in tests and by clients
// running without an activity endpoint.
type MemoryRecorder struct {
	mu      sync.Mutex
	entries []*models.ActivityEntry
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (r *MemoryRecorder) Record(_ context.Context, e *models.ActivityEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	r.entries = append(r.entries, e)
	return nil
}

func (r *MemoryRecorder) Recent(_ context.Context, limit int) ([]*models.ActivityEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.ActivityEntry, len(r.entries))
	copy(out, r.entries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every recorded entry in append order. Test helper.
func (r *MemoryRecorder) All() []*models.ActivityEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.ActivityEntry, len(r.entries))
	copy(out, r.entries)
	return out
}
