package coordinator

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/avelar/taskhub/internal/activity"
	"github.com/avelar/taskhub/internal/cache"
	"github.com/avelar/taskhub/internal/store"
	"github.com/avelar/taskhub/pkg/models"
)

// fakeStore implements store.TaskStore in memory with injectable
// failures, standing in for the remote side.
type fakeStore struct {
	mu    sync.Mutex
	tasks map[string]*models.Task

	insertErr     error
	updateErr     error
	updateManyErr error
	deleteManyErr error
	mergeErr      error

	insertCalls     int
	updateCalls     int
	updateManyCalls int
	deleteManyCalls int
	mergeCalls      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[string]*models.Task)}
}

func (f *fakeStore) seed(t *models.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[t.ID] = t.Clone()
}

func (f *fakeStore) List(context.Context) ([]*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Task
	for _, t := range f.tasks {
		out = append(out, t.Clone())
	}
	return out, nil
}

func (f *fakeStore) Insert(_ context.Context, t *models.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertCalls++
	if f.insertErr != nil {
		return f.insertErr
	}
	f.tasks[t.ID] = t.Clone()
	return nil
}

func (f *fakeStore) Update(_ context.Context, id string, fields store.TaskFields) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	t, ok := f.tasks[id]
	if !ok {
		return nil, store.ErrConflict
	}
	updated := applyFields(t.Clone(), fields)
	if fields.UpdatedBy != "" {
		updated.UpdatedBy = fields.UpdatedBy
	}
	f.tasks[id] = updated
	return updated.Clone(), nil
}

func (f *fakeStore) UpdateMany(_ context.Context, ids []string, fields store.TaskFields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateManyCalls++
	if f.updateManyErr != nil {
		return f.updateManyErr
	}
	for _, id := range ids {
		if t, ok := f.tasks[id]; ok {
			f.tasks[id] = applyFields(t.Clone(), fields)
		}
	}
	return nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tasks, id)
	return nil
}

func (f *fakeStore) DeleteMany(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteManyCalls++
	if f.deleteManyErr != nil {
		return f.deleteManyErr
	}
	for _, id := range ids {
		delete(f.tasks, id)
	}
	return nil
}

func (f *fakeStore) Merge(_ context.Context, primaryID string, fields store.TaskFields, removeIDs []string) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mergeCalls++
	if f.mergeErr != nil {
		return nil, f.mergeErr
	}
	t, ok := f.tasks[primaryID]
	if !ok {
		return nil, store.ErrConflict
	}
	updated := applyFields(t.Clone(), fields)
	f.tasks[primaryID] = updated
	for _, id := range removeIDs {
		delete(f.tasks, id)
	}
	return updated.Clone(), nil
}

type fakeNotifier struct {
	assigned  []string
	completed []string
}

func (n *fakeNotifier) TaskAssigned(_ context.Context, t *models.Task, assignee string) {
	n.assigned = append(n.assigned, assignee)
}

func (n *fakeNotifier) TaskCompleted(_ context.Context, t *models.Task) {
	n.completed = append(n.completed, t.ID)
}

func newTestCoordinator(fs *fakeStore) (*Coordinator, *activity.MemoryRecorder, *fakeNotifier) {
	rec := activity.NewMemoryRecorder()
	notifier := &fakeNotifier{}
	coord := New(cache.New(), fs, rec, notifier, models.User{ID: "u1", Name: "rui", Color: "#fff"}, nil)
	coord.now = func() time.Time { return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC) }
	return coord, rec, notifier
}

// seedTask puts a task into both the cache and the fake remote store.
func seedTask(coord *Coordinator, fs *fakeStore, t *models.Task) {
	coord.cache.Put(t)
	fs.seed(t)
}

func TestCreateTaskOptimistic(t *testing.T) {
	fs := newFakeStore()
	coord, rec, _ := newTestCoordinator(fs)
	ctx := context.Background()

	// 1. Success path: visible in cache with defaults, logged once.
	task, err := coord.CreateTask(ctx, CreateInput{Text: "Call customer"})
	if err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	got := coord.cache.Get(task.ID)
	if got == nil {
		t.Fatalf("Task not in cache")
	}
	if got.Status != models.StatusTodo || got.Completed {
		t.Errorf("Expected todo/false defaults, got %s/%v", got.Status, got.Completed)
	}
	if got.Priority != models.PriorityMedium {
		t.Errorf("Expected default medium priority, got %s", got.Priority)
	}
	entries := rec.All()
	if len(entries) != 1 || entries[0].Action != models.ActionTaskCreated {
		t.Errorf("Expected one task_created entry, got %+v", entries)
	}

	// 2. Empty text rejected before any optimistic write.
	if _, err := coord.CreateTask(ctx, CreateInput{}); !errors.Is(err, ErrEmptyText) {
		t.Errorf("Expected ErrEmptyText, got %v", err)
	}
	if fs.insertCalls != 1 {
		t.Errorf("Expected no remote call for invalid input, got %d", fs.insertCalls)
	}
}

func TestCreateTaskRollsBackOnRemoteFailure(t *testing.T) {
	fs := newFakeStore()
	fs.insertErr = errors.New("network down")
	coord, rec, _ := newTestCoordinator(fs)

	_, err := coord.CreateTask(context.Background(), CreateInput{Text: "Call customer"})
	if err == nil {
		t.Fatalf("Expected error")
	}
	if coord.cache.Len() != 0 {
		t.Errorf("Expected cache entry removed entirely, got %d tasks", coord.cache.Len())
	}
	if len(rec.All()) != 0 {
		t.Errorf("Expected no activity entry for rolled-back create")
	}
}

func TestCreateTaskNotifiesAssignee(t *testing.T) {
	fs := newFakeStore()
	coord, _, notifier := newTestCoordinator(fs)
	ctx := context.Background()

	other := "mara"
	if _, err := coord.CreateTask(ctx, CreateInput{Text: "review", AssignedTo: &other}); err != nil {
		t.Fatalf("Failed to create: %v", err)
	}
	self := "rui"
	if _, err := coord.CreateTask(ctx, CreateInput{Text: "self-assigned", AssignedTo: &self}); err != nil {
		t.Fatalf("Failed to create: %v", err)
	}

	if !reflect.DeepEqual(notifier.assigned, []string{"mara"}) {
		t.Errorf("Expected only mara notified, got %v", notifier.assigned)
	}
}

func TestToggleCompletionPairsStatusAndFlag(t *testing.T) {
	fs := newFakeStore()
	coord, rec, notifier := newTestCoordinator(fs)
	ctx := context.Background()

	seedTask(coord, fs, &models.Task{ID: "t1", Text: "work", Status: models.StatusInProgress, Priority: models.PriorityLow})

	result, err := coord.ToggleCompletion(ctx, "t1", true)
	if err != nil {
		t.Fatalf("Failed to toggle: %v", err)
	}
	got := coord.cache.Get("t1")
	if !got.Completed || got.Status != models.StatusDone {
		t.Errorf("Expected completed/done, got %v/%s", got.Completed, got.Status)
	}
	if result.Action != models.ActionTaskCompleted {
		t.Errorf("Expected task_completed, got %s", result.Action)
	}
	if result.Celebration == nil {
		t.Errorf("Expected a celebration on completion")
	}
	if !reflect.DeepEqual(notifier.completed, []string{"t1"}) {
		t.Errorf("Expected completion notification, got %v", notifier.completed)
	}

	entries := rec.All()
	if len(entries) != 1 || entries[0].Action != models.ActionTaskCompleted {
		t.Fatalf("Expected exactly one task_completed entry, got %+v", entries)
	}

	// Un-complete: paired back to todo, classified as reopened.
	result, err = coord.ToggleCompletion(ctx, "t1", false)
	if err != nil {
		t.Fatalf("Failed to untoggle: %v", err)
	}
	got = coord.cache.Get("t1")
	if got.Completed || got.Status != models.StatusTodo {
		t.Errorf("Expected not-completed/todo, got %v/%s", got.Completed, got.Status)
	}
	if result.Action != models.ActionTaskReopened {
		t.Errorf("Expected task_reopened, got %s", result.Action)
	}
}

func TestToggleRollbackRestoresExactSnapshot(t *testing.T) {
	fs := newFakeStore()
	coord, rec, _ := newTestCoordinator(fs)
	ctx := context.Background()

	assignee := "mara"
	seedTask(coord, fs, &models.Task{
		ID: "t1", Text: "work", Status: models.StatusInProgress,
		Priority: models.PriorityHigh, AssignedTo: &assignee,
		Subtasks: []models.Subtask{{ID: "s1", Text: "part", Priority: models.PriorityLow}},
	})
	before := coord.cache.Get("t1")

	fs.updateErr = errors.New("500 from server")
	if _, err := coord.ToggleCompletion(ctx, "t1", true); err == nil {
		t.Fatalf("Expected error")
	}

	after := coord.cache.Get("t1")
	if !reflect.DeepEqual(before, after) {
		t.Errorf("Cache not restored exactly:\nbefore %+v\nafter  %+v", before, after)
	}
	if len(rec.All()) != 0 {
		t.Errorf("Expected no activity entry after rollback")
	}
}

func TestConflictIsDistinguishable(t *testing.T) {
	fs := newFakeStore()
	coord, _, _ := newTestCoordinator(fs)

	// In cache but deleted remotely: the zero-row case.
	coord.cache.Put(&models.Task{ID: "t1", Text: "gone remotely", Status: models.StatusTodo})

	_, err := coord.ToggleCompletion(context.Background(), "t1", true)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("Expected ErrConflict in chain, got %v", err)
	}

	if _, err := coord.ToggleCompletion(context.Background(), "unknown", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestStatusChangeClassification(t *testing.T) {
	fs := newFakeStore()
	coord, rec, _ := newTestCoordinator(fs)
	ctx := context.Background()

	seedTask(coord, fs, &models.Task{ID: "t1", Text: "work", Status: models.StatusTodo, Priority: models.PriorityLow})

	result, err := coord.UpdateStatus(ctx, "t1", models.StatusInProgress)
	if err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}
	if result.Action != models.ActionStatusChanged {
		t.Errorf("Expected status_changed, got %s", result.Action)
	}
	got := coord.cache.Get("t1")
	if got.Completed {
		t.Errorf("in_progress must not be completed")
	}

	entries := rec.All()
	if len(entries) != 1 || entries[0].Action != models.ActionStatusChanged {
		t.Errorf("Expected one status_changed entry, got %+v", entries)
	}
}

func TestRecurrenceSpawnsNextOccurrence(t *testing.T) {
	fs := newFakeStore()
	coord, _, _ := newTestCoordinator(fs)
	ctx := context.Background()

	due := "2026-01-31"
	seedTask(coord, fs, &models.Task{
		ID: "t1", Text: "water plants", Status: models.StatusTodo,
		Priority: models.PriorityLow, DueDate: &due, Recurrence: models.RecurrenceDaily,
	})

	result, err := coord.ToggleCompletion(ctx, "t1", true)
	if err != nil {
		t.Fatalf("Failed to toggle: %v", err)
	}
	if result.RecurrenceErr != nil {
		t.Fatalf("Unexpected recurrence error: %v", result.RecurrenceErr)
	}
	if result.NextOccurrence == nil {
		t.Fatalf("Expected next occurrence")
	}
	if *result.NextOccurrence.DueDate != "2026-02-01" {
		t.Errorf("Expected due 2026-02-01, got %s", *result.NextOccurrence.DueDate)
	}
	if result.NextOccurrence.Completed || result.NextOccurrence.Status != models.StatusTodo {
		t.Errorf("Next occurrence must start fresh: %+v", result.NextOccurrence)
	}
	if coord.cache.Get(result.NextOccurrence.ID) == nil {
		t.Errorf("Next occurrence missing from cache")
	}
}

func TestRecurrenceBadDateAbortsOnlyRecurrence(t *testing.T) {
	fs := newFakeStore()
	coord, _, _ := newTestCoordinator(fs)
	ctx := context.Background()

	due := "next tuesday"
	seedTask(coord, fs, &models.Task{
		ID: "t1", Text: "water plants", Status: models.StatusTodo,
		Priority: models.PriorityLow, DueDate: &due, Recurrence: models.RecurrenceDaily,
	})

	result, err := coord.ToggleCompletion(ctx, "t1", true)
	if err != nil {
		t.Fatalf("The primary operation must succeed: %v", err)
	}
	if result.RecurrenceErr == nil {
		t.Fatalf("Expected a recurrence error")
	}
	if result.NextOccurrence != nil {
		t.Errorf("Expected no next occurrence")
	}

	// The completed task is untouched by the failed sub-operation.
	got := coord.cache.Get("t1")
	if !got.Completed || got.Status != models.StatusDone {
		t.Errorf("Completed task was disturbed: %+v", got)
	}
	if coord.cache.Len() != 1 {
		t.Errorf("Expected exactly one task, got %d", coord.cache.Len())
	}
}

func TestDuplicateTask(t *testing.T) {
	fs := newFakeStore()
	coord, rec, _ := newTestCoordinator(fs)
	ctx := context.Background()

	seedTask(coord, fs, &models.Task{
		ID: "t1", Text: "write report", Status: models.StatusDone, Completed: true,
		Priority: models.PriorityHigh, Notes: "quarterly",
	})

	dup, err := coord.DuplicateTask(ctx, "t1")
	if err != nil {
		t.Fatalf("Failed to duplicate: %v", err)
	}
	if dup.ID == "t1" {
		t.Errorf("Duplicate must get a new id")
	}
	if dup.Text != "write report (copy)" {
		t.Errorf("Expected suffixed text, got %q", dup.Text)
	}
	if dup.Completed || dup.Status != models.StatusTodo {
		t.Errorf("Expected reset to todo/not-completed, got %s/%v", dup.Status, dup.Completed)
	}
	if dup.Notes != "quarterly" {
		t.Errorf("Expected notes carried over, got %q", dup.Notes)
	}

	entries := rec.All()
	if len(entries) != 1 || entries[0].Action != models.ActionTaskDuplicated {
		t.Errorf("Expected one task_duplicated entry, got %+v", entries)
	}

	// Remote failure removes the duplicate again.
	fs.insertErr = errors.New("boom")
	if _, err := coord.DuplicateTask(ctx, "t1"); err == nil {
		t.Fatalf("Expected error")
	}
	if coord.cache.Len() != 2 {
		t.Errorf("Expected rollback to 2 tasks, got %d", coord.cache.Len())
	}
}

func TestToggleSubtask(t *testing.T) {
	fs := newFakeStore()
	coord, _, _ := newTestCoordinator(fs)
	ctx := context.Background()

	seedTask(coord, fs, &models.Task{
		ID: "t1", Text: "release", Status: models.StatusInProgress, Priority: models.PriorityHigh,
		Subtasks: []models.Subtask{
			{ID: "s1", Text: "tag build", Priority: models.PriorityMedium},
			{ID: "s2", Text: "write notes", Priority: models.PriorityLow},
		},
	})

	got, err := coord.ToggleSubtask(ctx, "t1", "s2", true)
	if err != nil {
		t.Fatalf("Failed to toggle subtask: %v", err)
	}
	if !got.Subtasks[1].Completed || got.Subtasks[0].Completed {
		t.Errorf("Expected only s2 completed: %+v", got.Subtasks)
	}
	// The parent task's own completion is untouched.
	if got.Completed || got.Status != models.StatusInProgress {
		t.Errorf("Parent task disturbed: %s/%v", got.Status, got.Completed)
	}

	if _, err := coord.ToggleSubtask(ctx, "t1", "nope", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown subtask, got %v", err)
	}
}

func TestUpdateTaskPartialFields(t *testing.T) {
	fs := newFakeStore()
	coord, _, _ := newTestCoordinator(fs)
	ctx := context.Background()

	seedTask(coord, fs, &models.Task{ID: "t1", Text: "work", Status: models.StatusTodo, Priority: models.PriorityLow})

	notes := "remember the attachments"
	urgent := models.PriorityUrgent
	got, err := coord.UpdateTask(ctx, "t1", store.TaskFields{Notes: &notes, Priority: &urgent})
	if err != nil {
		t.Fatalf("Failed to update: %v", err)
	}
	if got.Notes != notes || got.Priority != models.PriorityUrgent {
		t.Errorf("Fields not applied: %+v", got)
	}
	if got.Text != "work" {
		t.Errorf("Untouched field clobbered: %q", got.Text)
	}

	// Completing through a bare completed flag keeps the pair intact.
	completed := true
	got, err = coord.UpdateTask(ctx, "t1", store.TaskFields{Completed: &completed})
	if err != nil {
		t.Fatalf("Failed to update: %v", err)
	}
	if got.Status != models.StatusDone {
		t.Errorf("Expected paired status done, got %s", got.Status)
	}
}
