package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avelar/taskhub/internal/activity"
	"github.com/avelar/taskhub/internal/cache"
	"github.com/avelar/taskhub/internal/store"
	"github.com/avelar/taskhub/pkg/models"
)

// ErrMergeTooFew rejects a merge before any remote call is made.
var ErrMergeTooFew = errors.New("merge requires at least two selected tasks")

// ErrEmptySelection rejects a bulk operation with nothing selected.
var ErrEmptySelection = errors.New("no tasks selected")

// Bulk applies one mutation to a whole selection as a single rollback
// unit: one batched remote call, and on failure every selected task is
// restored from the pre-batch snapshot. The selection is cleared on both
// success and failure, matching the UI contract that a bulk action always
// dismisses the bulk-action state.
type Bulk struct {
	cache    *cache.Cache
	store    store.TaskStore
	recorder activity.Recorder
	actor    models.User
	logger   *slog.Logger
	now      func() time.Time

	// OnFinish, when set, is called after every bulk operation (success or
	// failure) so the UI can close its bulk-action affordances.
	OnFinish func()

	selection map[string]struct{}
}

func NewBulk(c *cache.Cache, s store.TaskStore, rec activity.Recorder, actor models.User, logger *slog.Logger) *Bulk {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bulk{
		cache:     c,
		store:     s,
		recorder:  rec,
		actor:     actor,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		selection: make(map[string]struct{}),
	}
}

func (b *Bulk) Select(id string)   { b.selection[id] = struct{}{} }
func (b *Bulk) Deselect(id string) { delete(b.selection, id) }

func (b *Bulk) ClearSelection() {
	b.selection = make(map[string]struct{})
}

// Selected returns the selected ids in cache insertion order, which keeps
// batch application and activity entries deterministic.
func (b *Bulk) Selected() []string {
	var ids []string
	for _, t := range b.cache.List() {
		if _, ok := b.selection[t.ID]; ok {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

func (b *Bulk) finish() {
	b.ClearSelection()
	if b.OnFinish != nil {
		b.OnFinish()
	}
}

func (b *Bulk) record(ctx context.Context, action string, t *models.Task, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	details["bulk_action"] = true
	entry := &models.ActivityEntry{
		Action:    action,
		Actor:     b.actor.Name,
		TaskID:    t.ID,
		TaskText:  t.Text,
		Details:   details,
		CreatedAt: b.now(),
	}
	if err := b.recorder.Record(ctx, entry); err != nil {
		b.logger.Warn("failed to record bulk activity", "action", action, "task", t.ID, "err", err)
	}
}

// applyBatch is the shared optimistic batch pattern: snapshot, local
// apply, one remote call, whole-batch rollback on failure.
func (b *Bulk) applyBatch(ctx context.Context, fields store.TaskFields, action string) error {
	defer b.finish()

	ids := b.Selected()
	if len(ids) == 0 {
		return ErrEmptySelection
	}

	snapshot := b.cache.Snapshot(ids...)
	updated := make([]*models.Task, 0, len(ids))
	for _, id := range ids {
		if t := b.cache.Get(id); t != nil {
			u := applyFields(t, fields)
			u.UpdatedBy = b.actor.Name
			u.UpdatedAt = b.now()
			updated = append(updated, u)
		}
	}
	// One cache mutation for the whole batch, so observers fire once.
	b.cache.PutAll(updated)

	fields.UpdatedBy = b.actor.Name
	if err := b.store.UpdateMany(ctx, ids, fields); err != nil {
		b.cache.Restore(snapshot)
		return fmt.Errorf("bulk update reverted: %w", err)
	}

	for _, id := range ids {
		if t := b.cache.Get(id); t != nil {
			b.record(ctx, action, t, nil)
		}
	}
	return nil
}

// BulkComplete marks every selected task done, pairing the completed
// flag and status in the same batch.
func (b *Bulk) BulkComplete(ctx context.Context) error {
	completed := true
	status := models.StatusDone
	return b.applyBatch(ctx, store.TaskFields{Completed: &completed, Status: &status}, models.ActionTaskCompleted)
}

func (b *Bulk) BulkAssign(ctx context.Context, assignee string) error {
	return b.applyBatch(ctx, store.TaskFields{AssignedTo: &assignee}, models.ActionTaskAssigned)
}

func (b *Bulk) BulkReschedule(ctx context.Context, dueDate string) error {
	return b.applyBatch(ctx, store.TaskFields{DueDate: &dueDate}, models.ActionTaskUpdated)
}

func (b *Bulk) BulkSetPriority(ctx context.Context, priority models.Priority) error {
	return b.applyBatch(ctx, store.TaskFields{Priority: &priority}, models.ActionTaskUpdated)
}

// BulkDelete removes every selected task with a single remote call. On
// failure the deleted entries are re-inserted from the snapshot.
func (b *Bulk) BulkDelete(ctx context.Context) error {
	defer b.finish()

	ids := b.Selected()
	if len(ids) == 0 {
		return ErrEmptySelection
	}

	snapshot := b.cache.Snapshot(ids...)
	b.cache.ApplyBatch(nil, ids)

	if err := b.store.DeleteMany(ctx, ids); err != nil {
		b.cache.Restore(snapshot)
		return fmt.Errorf("bulk delete reverted: %w", err)
	}

	for _, t := range snapshot.Tasks() {
		b.record(ctx, models.ActionTaskDeleted, t, nil)
	}
	return nil
}

// MergeTodos folds the selected tasks into the primary one: notes are
// concatenated under per-source headers, subtasks and attachments are
// unioned, and the highest-ranked priority wins. The store performs the
// update and the deletes in one transaction, so a failure leaves the
// remote side untouched and the local side is rolled back whole.
func (b *Bulk) MergeTodos(ctx context.Context, primaryID string) (*models.Task, error) {
	defer b.finish()

	ids := b.Selected()
	if len(ids) < 2 {
		return nil, ErrMergeTooFew
	}

	primary := b.cache.Get(primaryID)
	if primary == nil {
		return nil, ErrNotFound
	}
	if _, ok := b.selection[primaryID]; !ok {
		return nil, fmt.Errorf("primary task %s is not part of the selection", primaryID)
	}

	merged := primary.Clone()
	priorities := []models.Priority{primary.Priority}
	var removeIDs []string
	var notes strings.Builder
	notes.WriteString(primary.Notes)

	for _, id := range ids {
		if id == primaryID {
			continue
		}
		src := b.cache.Get(id)
		if src == nil {
			continue
		}
		removeIDs = append(removeIDs, id)
		priorities = append(priorities, src.Priority)
		merged.Subtasks = append(merged.Subtasks, src.Subtasks...)
		merged.Attachments = append(merged.Attachments, src.Attachments...)
		if src.Notes != "" {
			fmt.Fprintf(&notes, "\n\n--- Merged from %q ---\n%s", src.Text, src.Notes)
		}
	}

	merged.Notes = notes.String()
	merged.Priority = models.MaxPriority(priorities...)
	merged.UpdatedBy = b.actor.Name
	merged.UpdatedAt = b.now()

	snapshot := b.cache.Snapshot(ids...)
	b.cache.ApplyBatch([]*models.Task{merged}, removeIDs)

	fields := store.TaskFields{
		Notes:       &merged.Notes,
		Priority:    &merged.Priority,
		Subtasks:    &merged.Subtasks,
		Attachments: &merged.Attachments,
		UpdatedBy:   b.actor.Name,
	}
	confirmed, err := b.store.Merge(ctx, primaryID, fields, removeIDs)
	if err != nil {
		b.cache.Restore(snapshot)
		return nil, fmt.Errorf("merge reverted: %w", err)
	}
	b.cache.Put(confirmed)

	b.record(ctx, models.ActionTasksMerged, confirmed, map[string]any{"merged_ids": removeIDs})
	return confirmed, nil
}
