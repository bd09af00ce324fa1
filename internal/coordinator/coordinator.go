// Package coordinator applies task mutations optimistically: the local
// cache is written first so the UI sees the change immediately, then the
// remote store is asked to confirm. A remote rejection restores the exact
// pre-mutation snapshot. Activity entries are recorded only for confirmed
// mutations.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avelar/taskhub/internal/activity"
	"github.com/avelar/taskhub/internal/cache"
	"github.com/avelar/taskhub/internal/notify"
	"github.com/avelar/taskhub/internal/store"
	"github.com/avelar/taskhub/internal/streak"
	"github.com/avelar/taskhub/pkg/models"
)

// ErrEmptyText rejects a create before any optimistic write happens.
var ErrEmptyText = errors.New("task text must not be empty")

// ErrNotFound reports an id absent from the local cache.
var ErrNotFound = errors.New("task not in local cache")

type Coordinator struct {
	cache    *cache.Cache
	store    store.TaskStore
	recorder activity.Recorder
	notifier notify.Notifier
	actor    models.User
	logger   *slog.Logger

	// Injected in tests for deterministic ids and clocks.
	now   func() time.Time
	newID func() string
}

func New(c *cache.Cache, s store.TaskStore, rec activity.Recorder, n notify.Notifier, actor models.User, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cache:    c,
		store:    s,
		recorder: rec,
		notifier: n,
		actor:    actor,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
}

// Cache exposes the local task cache for read-only consumers (UI, MCP).
func (c *Coordinator) Cache() *cache.Cache { return c.cache }

// Actor returns the user this coordinator mutates on behalf of.
func (c *Coordinator) Actor() models.User { return c.actor }

// Refresh replaces the local cache with the authoritative task list.
func (c *Coordinator) Refresh(ctx context.Context) error {
	tasks, err := c.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tasks: %w", err)
	}
	c.cache.ReplaceAll(tasks)
	return nil
}

// record appends an activity entry. The log is a collaborator, not part
// of the mutation's outcome: a write failure is logged and swallowed.
func (c *Coordinator) record(ctx context.Context, action string, t *models.Task, details map[string]any) {
	entry := &models.ActivityEntry{
		Action:    action,
		Actor:     c.actor.Name,
		TaskID:    t.ID,
		TaskText:  t.Text,
		Details:   details,
		CreatedAt: c.now(),
	}
	if err := c.recorder.Record(ctx, entry); err != nil {
		c.logger.Warn("failed to record activity", "action", action, "task", t.ID, "err", err)
	}
}

// CreateInput carries the explicitly-set fields for a new task. Anything
// left zero takes the defaults: status todo, not completed, medium
// priority.
type CreateInput struct {
	Text       string
	Priority   models.Priority
	AssignedTo *string
	DueDate    *string
	Notes      string
	Subtasks   []models.Subtask
	Recurrence models.Recurrence
}

// CreateTask validates input, writes the new task into the cache, then
// asks the store to confirm. On rejection the task is removed again;
// nothing existed before, so removal is the whole rollback.
func (c *Coordinator) CreateTask(ctx context.Context, in CreateInput) (*models.Task, error) {
	if in.Text == "" {
		return nil, ErrEmptyText
	}

	priority := in.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}

	now := c.now()
	t := &models.Task{
		ID:         c.newID(),
		Text:       in.Text,
		Completed:  false,
		Status:     models.StatusTodo,
		Priority:   priority,
		AssignedTo: in.AssignedTo,
		DueDate:    in.DueDate,
		Subtasks:   in.Subtasks,
		Notes:      in.Notes,
		Recurrence: in.Recurrence,
		CreatedBy:  c.actor.Name,
		CreatedAt:  now,
		UpdatedBy:  c.actor.Name,
		UpdatedAt:  now,
	}

	c.cache.Put(t)

	if err := c.store.Insert(ctx, t.Clone()); err != nil {
		c.cache.Delete(t.ID)
		return nil, fmt.Errorf("create reverted: %w", err)
	}

	c.record(ctx, models.ActionTaskCreated, t, nil)
	if t.AssignedTo != nil && *t.AssignedTo != c.actor.Name {
		c.notifier.TaskAssigned(ctx, t, *t.AssignedTo)
	}
	return t, nil
}

// UpdateTask applies a partial field update optimistically. The snapshot
// taken before the local write is restored verbatim if the store rejects
// the update, including the zero-rows conflict case.
func (c *Coordinator) UpdateTask(ctx context.Context, id string, fields store.TaskFields) (*models.Task, error) {
	snapshot := c.cache.Get(id)
	if snapshot == nil {
		return nil, ErrNotFound
	}
	rollback := c.cache.Snapshot(id)

	updated := applyFields(snapshot.Clone(), fields)
	updated.UpdatedBy = c.actor.Name
	updated.UpdatedAt = c.now()
	c.cache.Put(updated)

	fields.UpdatedBy = c.actor.Name
	confirmed, err := c.store.Update(ctx, id, fields)
	if err != nil {
		c.cache.Restore(rollback)
		return nil, fmt.Errorf("update reverted: %w", err)
	}

	c.cache.Put(confirmed)
	c.record(ctx, models.ActionTaskUpdated, confirmed, nil)

	if fields.AssignedTo != nil && *fields.AssignedTo != "" && *fields.AssignedTo != c.actor.Name {
		c.notifier.TaskAssigned(ctx, confirmed, *fields.AssignedTo)
	}
	return confirmed, nil
}

// CompletionResult reports the side effects of a status transition. A
// recurrence failure is fatal only to the recurrence sub-operation; the
// primary status change has already been confirmed when it is reported.
type CompletionResult struct {
	Action         string
	Celebration    *streak.Celebration
	NextOccurrence *models.Task
	RecurrenceErr  error
}

// UpdateStatus moves a task to a new status, keeping the completed flag
// paired in the same local write.
func (c *Coordinator) UpdateStatus(ctx context.Context, id string, status models.Status) (*CompletionResult, error) {
	completed := status == models.StatusDone
	return c.transition(ctx, id, status, completed)
}

// ToggleCompletion flips the completed flag, deriving the paired status.
func (c *Coordinator) ToggleCompletion(ctx context.Context, id string, completed bool) (*CompletionResult, error) {
	return c.transition(ctx, id, models.StatusFor(completed), completed)
}

func (c *Coordinator) transition(ctx context.Context, id string, status models.Status, completed bool) (*CompletionResult, error) {
	snapshot := c.cache.Get(id)
	if snapshot == nil {
		return nil, ErrNotFound
	}
	rollback := c.cache.Snapshot(id)

	updated := snapshot.Clone()
	updated.Status = status
	updated.Completed = completed
	updated.UpdatedBy = c.actor.Name
	updated.UpdatedAt = c.now()
	c.cache.Put(updated)

	fields := store.TaskFields{
		Status:    &status,
		Completed: &completed,
		UpdatedBy: c.actor.Name,
	}
	confirmed, err := c.store.Update(ctx, id, fields)
	if err != nil {
		c.cache.Restore(rollback)
		return nil, fmt.Errorf("status change reverted: %w", err)
	}
	c.cache.Put(confirmed)

	result := &CompletionResult{Action: classifyTransition(snapshot.Status, status)}
	c.record(ctx, result.Action, confirmed, nil)

	if result.Action == models.ActionTaskCompleted {
		c.notifier.TaskCompleted(ctx, confirmed)
		result.Celebration = c.celebrate(ctx)
		result.NextOccurrence, result.RecurrenceErr = c.spawnRecurrence(ctx, confirmed)
	}
	return result, nil
}

func classifyTransition(old, next models.Status) string {
	switch {
	case old != models.StatusDone && next == models.StatusDone:
		return models.ActionTaskCompleted
	case old == models.StatusDone && next != models.StatusDone:
		return models.ActionTaskReopened
	default:
		return models.ActionStatusChanged
	}
}

func (c *Coordinator) celebrate(ctx context.Context) *streak.Celebration {
	entries, err := c.recorder.Recent(ctx, 200)
	if err != nil {
		c.logger.Warn("failed to load activity for streak", "err", err)
		entries = nil
	}
	return streak.Compute(entries, c.cache.List(), c.now())
}

// spawnRecurrence creates the next occurrence of a recurring task through
// the normal optimistic create path. An unparseable due date aborts the
// recurrence without touching the already-completed task.
func (c *Coordinator) spawnRecurrence(ctx context.Context, done *models.Task) (*models.Task, error) {
	if done.Recurrence == "" {
		return nil, nil
	}
	if done.DueDate == nil {
		return nil, nil
	}

	due, err := time.Parse(models.DateLayout, *done.DueDate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse due date %q: %w", *done.DueDate, err)
	}
	next := done.Recurrence.Next(due).Format(models.DateLayout)

	t, err := c.CreateTask(ctx, CreateInput{
		Text:       done.Text,
		Priority:   done.Priority,
		AssignedTo: done.AssignedTo,
		DueDate:    &next,
		Notes:      done.Notes,
		Recurrence: done.Recurrence,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create next occurrence: %w", err)
	}
	return t, nil
}

// ToggleSubtask flips one subtask's completed flag through the normal
// partial-update path, so it gets the same optimistic semantics as any
// other field write.
func (c *Coordinator) ToggleSubtask(ctx context.Context, taskID, subtaskID string, completed bool) (*models.Task, error) {
	t := c.cache.Get(taskID)
	if t == nil {
		return nil, ErrNotFound
	}

	found := false
	subtasks := append([]models.Subtask(nil), t.Subtasks...)
	for i := range subtasks {
		if subtasks[i].ID == subtaskID {
			subtasks[i].Completed = completed
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("subtask %s not on task %s: %w", subtaskID, taskID, ErrNotFound)
	}

	return c.UpdateTask(ctx, taskID, store.TaskFields{Subtasks: &subtasks})
}

// DuplicateTask clones a task under a new id with reset status,
// completion and timestamps, using the same optimistic create path.
func (c *Coordinator) DuplicateTask(ctx context.Context, id string) (*models.Task, error) {
	src := c.cache.Get(id)
	if src == nil {
		return nil, ErrNotFound
	}

	now := c.now()
	dup := src.Clone()
	dup.ID = c.newID()
	dup.Text = src.Text + " (copy)"
	dup.Completed = false
	dup.Status = models.StatusTodo
	dup.CreatedBy = c.actor.Name
	dup.CreatedAt = now
	dup.UpdatedBy = c.actor.Name
	dup.UpdatedAt = now

	c.cache.Put(dup)

	if err := c.store.Insert(ctx, dup.Clone()); err != nil {
		c.cache.Delete(dup.ID)
		return nil, fmt.Errorf("duplicate reverted: %w", err)
	}

	c.record(ctx, models.ActionTaskDuplicated, dup, map[string]any{"source_id": src.ID})
	return dup, nil
}

// applyFields mirrors the store's partial-update semantics onto an
// in-memory task, keeping the completed/status invariant paired when
// either side arrives alone.
func applyFields(t *models.Task, fields store.TaskFields) *models.Task {
	if fields.Text != nil {
		t.Text = *fields.Text
	}
	if fields.Completed != nil {
		t.Completed = *fields.Completed
		if fields.Status == nil {
			t.Status = models.StatusFor(*fields.Completed)
		}
	}
	if fields.Status != nil {
		t.Status = *fields.Status
		if fields.Completed == nil {
			t.Completed = *fields.Status == models.StatusDone
		}
	}
	if fields.Priority != nil {
		t.Priority = *fields.Priority
	}
	if fields.AssignedTo != nil {
		if *fields.AssignedTo == "" {
			t.AssignedTo = nil
		} else {
			v := *fields.AssignedTo
			t.AssignedTo = &v
		}
	}
	if fields.DueDate != nil {
		if *fields.DueDate == "" {
			t.DueDate = nil
		} else {
			v := *fields.DueDate
			t.DueDate = &v
		}
	}
	if fields.Notes != nil {
		t.Notes = *fields.Notes
	}
	if fields.Subtasks != nil {
		t.Subtasks = append([]models.Subtask(nil), (*fields.Subtasks)...)
	}
	if fields.Attachments != nil {
		t.Attachments = append([]models.Attachment(nil), (*fields.Attachments)...)
	}
	if fields.Recurrence != nil {
		t.Recurrence = *fields.Recurrence
	}
	return t
}
