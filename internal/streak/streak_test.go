package streak

import (
	"strings"
	"testing"
	"time"

	"github.com/avelar/taskhub/pkg/models"
)

func completedAt(ts time.Time) *models.ActivityEntry {
	return &models.ActivityEntry{Action: models.ActionTaskCompleted, CreatedAt: ts}
}

func TestStreakCountsConsecutiveDays(t *testing.T) {
	now := time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC)

	entries := []*models.ActivityEntry{
		completedAt(now.Add(-2 * time.Hour)),
		completedAt(now.AddDate(0, 0, -1)),
		completedAt(now.AddDate(0, 0, -2)),
		// Gap at -3; the run before it must not count.
		completedAt(now.AddDate(0, 0, -4)),
		// Non-completion actions on a day do not extend the streak.
		{Action: models.ActionTaskCreated, CreatedAt: now.AddDate(0, 0, -3)},
	}

	got := Compute(entries, nil, now)
	if got.Streak != 3 {
		t.Errorf("Expected streak 3, got %d", got.Streak)
	}
	if !strings.Contains(got.Message, "3-day streak") {
		t.Errorf("Expected streak message, got %q", got.Message)
	}
}

func TestStreakZeroWithoutCompletionToday(t *testing.T) {
	now := time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC)
	entries := []*models.ActivityEntry{
		completedAt(now.AddDate(0, 0, -1)),
		completedAt(now.AddDate(0, 0, -2)),
	}

	if got := Compute(entries, nil, now); got.Streak != 0 {
		t.Errorf("A streak must end today, got %d", got.Streak)
	}
}

func TestSuggestOrdersByPriorityThenDueDate(t *testing.T) {
	soon := "2026-08-29"
	later := "2026-09-15"

	tasks := []*models.Task{
		{ID: "done", Text: "finished", Completed: true, Priority: models.PriorityUrgent},
		{ID: "low", Text: "someday", Priority: models.PriorityLow},
		{ID: "high-later", Text: "big thing", Priority: models.PriorityHigh, DueDate: &later},
		{ID: "high-soon", Text: "urgent-ish", Priority: models.PriorityHigh, DueDate: &soon},
		{ID: "urgent", Text: "fire", Priority: models.PriorityUrgent},
		{ID: "medium", Text: "routine", Priority: models.PriorityMedium},
	}

	got := Compute(nil, tasks, time.Now()).Suggestions
	if len(got) != 3 {
		t.Fatalf("Expected 3 suggestions, got %d", len(got))
	}
	want := []string{"urgent", "high-soon", "high-later"}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("Suggestion %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestSuggestSkipsCompleted(t *testing.T) {
	tasks := []*models.Task{
		{ID: "t1", Completed: true, Priority: models.PriorityUrgent},
		{ID: "t2", Priority: models.PriorityLow},
	}
	got := Compute(nil, tasks, time.Now()).Suggestions
	if len(got) != 1 || got[0].ID != "t2" {
		t.Errorf("Expected only the open task, got %+v", got)
	}
}
