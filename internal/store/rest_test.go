package store

import (
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/avelar/taskhub/internal/activity"
	"github.com/avelar/taskhub/pkg/models"
)

func newTestServer(t *testing.T) *Client {
	t.Helper()
	db := openTestDB(t)

	rest := NewRESTServer(db, activity.NewSQLiteRecorder(db.DB), slog.Default())
	ts := httptest.NewServer(rest.Router())
	t.Cleanup(ts.Close)

	return NewClient(ts.URL, nil)
}

func TestClientRoundTrip(t *testing.T) {
	client := newTestServer(t)
	ctx := context.Background()

	// 1. Insert through the client, server assigns nothing we didn't set.
	task := &models.Task{
		ID:       "t1",
		Text:     "Call customer",
		Status:   models.StatusTodo,
		Priority: models.PriorityMedium,
	}
	if err := client.Insert(ctx, task); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	// 2. List sees it.
	tasks, err := client.List(ctx)
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t1" {
		t.Fatalf("Expected one task t1, got %+v", tasks)
	}

	// 3. Partial update returns the confirmed row.
	status := models.StatusDone
	completed := true
	got, err := client.Update(ctx, "t1", TaskFields{Status: &status, Completed: &completed})
	if err != nil {
		t.Fatalf("Failed to update: %v", err)
	}
	if got.Status != models.StatusDone || !got.Completed {
		t.Errorf("Expected confirmed done row, got %+v", got)
	}

	// 4. Delete, then verify gone.
	if err := client.Delete(ctx, "t1"); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	tasks, err = client.List(ctx)
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("Expected empty list, got %d", len(tasks))
	}
}

func TestClientConflictMapsToErrConflict(t *testing.T) {
	client := newTestServer(t)

	status := models.StatusDone
	_, err := client.Update(context.Background(), "missing", TaskFields{Status: &status})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Expected ErrConflict over HTTP, got %v", err)
	}

	if err := client.Delete(context.Background(), "missing"); !errors.Is(err, ErrConflict) {
		t.Fatalf("Expected ErrConflict for delete, got %v", err)
	}
}

func TestClientMerge(t *testing.T) {
	client := newTestServer(t)
	ctx := context.Background()

	for _, task := range []*models.Task{
		{ID: "p", Text: "primary", Status: models.StatusTodo, Priority: models.PriorityLow},
		{ID: "s", Text: "secondary", Status: models.StatusTodo, Priority: models.PriorityUrgent},
	} {
		if err := client.Insert(ctx, task); err != nil {
			t.Fatalf("Failed to insert: %v", err)
		}
	}

	urgent := models.PriorityUrgent
	got, err := client.Merge(ctx, "p", TaskFields{Priority: &urgent}, []string{"s"})
	if err != nil {
		t.Fatalf("Failed to merge: %v", err)
	}
	if got.ID != "p" || got.Priority != models.PriorityUrgent {
		t.Errorf("Unexpected merge result: %+v", got)
	}

	tasks, err := client.List(ctx)
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("Expected only the primary left, got %d", len(tasks))
	}
}
