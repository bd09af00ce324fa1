package models

import "time"

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
)

// Priority is an ordinal scale; comparisons go through Rank, never
// through the string value.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// MaxPriority returns the highest-ranked priority among the given values.
func MaxPriority(priorities ...Priority) Priority {
	max := PriorityLow
	for _, p := range priorities {
		if p.Rank() > max.Rank() {
			max = p
		}
	}
	return max
}

type Recurrence string

const (
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// Next returns the next occurrence date for the rule. Monthly recurrence
// uses calendar-month arithmetic via time.AddDate.
func (r Recurrence) Next(from time.Time) time.Time {
	switch r {
	case RecurrenceDaily:
		return from.AddDate(0, 0, 1)
	case RecurrenceWeekly:
		return from.AddDate(0, 0, 7)
	case RecurrenceMonthly:
		return from.AddDate(0, 1, 0)
	default:
		return from
	}
}

// DateLayout is the wire format for due dates.
const DateLayout = "2006-01-02"

type Subtask struct {
	ID               string   `json:"id"`
	Text             string   `json:"text"`
	Completed        bool     `json:"completed"`
	Priority         Priority `json:"priority"`
	EstimatedMinutes *int     `json:"estimated_minutes,omitempty"`
}

type Attachment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Task is the shared mutable entity. Completed and Status are paired:
// Completed is true iff Status is StatusDone, and every write that changes
// one must change the other in the same operation.
type Task struct {
	ID          string       `json:"id"`
	Text        string       `json:"text"`
	Completed   bool         `json:"completed"`
	Status      Status       `json:"status"`
	Priority    Priority     `json:"priority"`
	AssignedTo  *string      `json:"assigned_to,omitempty"`
	DueDate     *string      `json:"due_date,omitempty"`
	Subtasks    []Subtask    `json:"subtasks,omitempty"`
	Notes       string       `json:"notes,omitempty"`
	Recurrence  Recurrence   `json:"recurrence,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedBy   string       `json:"created_by"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedBy   string       `json:"updated_by"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Clone returns a deep copy. Rollback snapshots rely on the copy sharing
// no memory with the original.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.AssignedTo != nil {
		v := *t.AssignedTo
		c.AssignedTo = &v
	}
	if t.DueDate != nil {
		v := *t.DueDate
		c.DueDate = &v
	}
	if t.Subtasks != nil {
		c.Subtasks = make([]Subtask, len(t.Subtasks))
		copy(c.Subtasks, t.Subtasks)
		for i := range t.Subtasks {
			if t.Subtasks[i].EstimatedMinutes != nil {
				v := *t.Subtasks[i].EstimatedMinutes
				c.Subtasks[i].EstimatedMinutes = &v
			}
		}
	}
	if t.Attachments != nil {
		c.Attachments = make([]Attachment, len(t.Attachments))
		copy(c.Attachments, t.Attachments)
	}
	return &c
}

// StatusFor returns the status paired with a completion flag. Completing a
// task always lands on StatusDone; un-completing one returns it to
// StatusTodo regardless of where it was before.
func StatusFor(completed bool) Status {
	if completed {
		return StatusDone
	}
	return StatusTodo
}
