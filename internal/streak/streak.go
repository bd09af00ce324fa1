// Package streak derives completion streaks and next-task suggestions
// from the activity log and the current task list. Pure functions; the
// mutation coordinator calls Compute synchronously on completion.
package streak

import (
	"fmt"
	"sort"
	"time"

	"github.com/avelar/taskhub/pkg/models"
)

const maxSuggestions = 3

type Celebration struct {
	Streak      int
	Suggestions []*models.Task
	Message     string
}

// Compute returns the current completion streak (consecutive days ending
// today with at least one completed task), a short list of suggested next
// tasks, and an encouragement line.
func Compute(entries []*models.ActivityEntry, tasks []*models.Task, now time.Time) *Celebration {
	streak := streakDays(entries, now)
	return &Celebration{
		Streak:      streak,
		Suggestions: suggest(tasks),
		Message:     message(streak),
	}
}

func streakDays(entries []*models.ActivityEntry, now time.Time) int {
	days := make(map[string]bool)
	for _, e := range entries {
		if e.Action == models.ActionTaskCompleted {
			days[e.CreatedAt.Format(models.DateLayout)] = true
		}
	}

	streak := 0
	for day := now; days[day.Format(models.DateLayout)]; day = day.AddDate(0, 0, -1) {
		streak++
	}
	return streak
}

func suggest(tasks []*models.Task) []*models.Task {
	var open []*models.Task
	for _, t := range tasks {
		if !t.Completed {
			open = append(open, t)
		}
	}

	// Highest priority first; earlier due date breaks ties, undated last.
	sort.SliceStable(open, func(i, j int) bool {
		if open[i].Priority.Rank() != open[j].Priority.Rank() {
			return open[i].Priority.Rank() > open[j].Priority.Rank()
		}
		switch {
		case open[i].DueDate == nil:
			return false
		case open[j].DueDate == nil:
			return true
		default:
			return *open[i].DueDate < *open[j].DueDate
		}
	})

	if len(open) > maxSuggestions {
		open = open[:maxSuggestions]
	}
	return open
}

func message(streak int) string {
	switch {
	case streak >= 7:
		return fmt.Sprintf("%d days straight. Unstoppable.", streak)
	case streak >= 3:
		return fmt.Sprintf("%d-day streak, keep it rolling!", streak)
	case streak == 2:
		return "Two days in a row, nice momentum."
	default:
		return "Task done, well earned."
	}
}
