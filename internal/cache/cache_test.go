package cache

import (
	"reflect"
	"testing"

	"github.com/avelar/taskhub/pkg/models"
)

func task(id, text string) *models.Task {
	return &models.Task{ID: id, Text: text, Status: models.StatusTodo, Priority: models.PriorityMedium}
}

func TestInsertionOrder(t *testing.T) {
	c := New()
	c.Put(task("b", "second"))
	c.Put(task("a", "first"))
	c.Put(task("c", "third"))

	// Replacing an existing id keeps its position.
	c.Put(task("a", "first updated"))

	var ids []string
	for _, item := range c.List() {
		ids = append(ids, item.ID)
	}
	want := []string{"b", "a", "c"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("Expected order %v, got %v", want, ids)
	}
	if c.Len() != 3 {
		t.Errorf("Expected 3 tasks, got %d", c.Len())
	}
}

func TestGetReturnsCopy(t *testing.T) {
	c := New()
	c.Put(task("t1", "hello"))

	got := c.Get("t1")
	got.Text = "mutated"

	if c.Get("t1").Text != "hello" {
		t.Errorf("Mutation through Get leaked into the cache")
	}

	if c.Get("missing") != nil {
		t.Errorf("Expected nil for missing id")
	}
}

func TestSnapshotRestore(t *testing.T) {
	c := New()
	c.Put(task("t1", "one"))
	c.Put(task("t2", "two"))

	snap := c.Snapshot("t1", "t2", "missing")
	if len(snap.Tasks()) != 2 {
		t.Fatalf("Expected 2 snapshot entries, got %d", len(snap.Tasks()))
	}

	// Mutate and delete, then restore.
	c.Put(task("t1", "changed"))
	c.Delete("t2")

	c.Restore(snap)

	if got := c.Get("t1"); got.Text != "one" {
		t.Errorf("Expected restored text 'one', got %q", got.Text)
	}
	if got := c.Get("t2"); got == nil || got.Text != "two" {
		t.Errorf("Expected t2 re-inserted, got %+v", got)
	}
}

func TestRestorePreservesInsertionOrder(t *testing.T) {
	c := New()
	c.Put(task("a", "first"))
	c.Put(task("b", "second"))
	c.Put(task("c", "third"))
	c.Put(task("d", "fourth"))

	// Delete from the middle, then roll back.
	snap := c.Snapshot("b", "c")
	c.Delete("b")
	c.Delete("c")
	c.Restore(snap)

	var ids []string
	for _, item := range c.List() {
		ids = append(ids, item.ID)
	}
	want := []string{"a", "b", "c", "d"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("Expected order %v after rollback, got %v", want, ids)
	}
}

func TestPutAllReplacesAndAppends(t *testing.T) {
	c := New()
	c.Put(task("a", "first"))

	c.PutAll([]*models.Task{task("a", "first updated"), task("b", "second")})

	if got := c.Get("a"); got.Text != "first updated" {
		t.Errorf("Expected replacement, got %q", got.Text)
	}
	var ids []string
	for _, item := range c.List() {
		ids = append(ids, item.ID)
	}
	if !reflect.DeepEqual(ids, []string{"a", "b"}) {
		t.Errorf("Expected order [a b], got %v", ids)
	}
}

func TestReplaceAll(t *testing.T) {
	c := New()
	c.Put(task("old", "stale"))

	c.ReplaceAll([]*models.Task{task("n1", "new one"), task("n2", "new two")})

	if c.Get("old") != nil {
		t.Errorf("Expected old task dropped")
	}
	if c.Len() != 2 {
		t.Errorf("Expected 2 tasks, got %d", c.Len())
	}
}

func TestSubscribe(t *testing.T) {
	c := New()

	fired := 0
	unsubscribe := c.Subscribe(func() { fired++ })

	c.Put(task("t1", "one"))
	if fired != 1 {
		t.Errorf("Expected 1 notification, got %d", fired)
	}

	c.Delete("t1")
	if fired != 2 {
		t.Errorf("Expected 2 notifications, got %d", fired)
	}

	unsubscribe()
	c.Put(task("t2", "two"))
	if fired != 2 {
		t.Errorf("Expected no notification after unsubscribe, got %d", fired)
	}
}

func TestPutAllNotifiesOnce(t *testing.T) {
	c := New()

	fired := 0
	unsubscribe := c.Subscribe(func() { fired++ })
	defer unsubscribe()

	c.PutAll([]*models.Task{task("a", "one"), task("b", "two"), task("c", "three")})
	if fired != 1 {
		t.Errorf("Expected 1 notification for the batch, got %d", fired)
	}

	snap := c.Snapshot("a", "b", "c")
	c.Restore(snap)
	if fired != 2 {
		t.Errorf("Expected 1 notification for the restore, got %d", fired-1)
	}
}
