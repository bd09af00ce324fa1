package models

import "time"

// Activity actions recorded for confirmed mutations. Failed or rolled-back
// operations never produce an entry.
const (
	ActionTaskCreated    = "task_created"
	ActionTaskDuplicated = "task_duplicated"
	ActionTaskUpdated    = "task_updated"
	ActionTaskCompleted  = "task_completed"
	ActionTaskReopened   = "task_reopened"
	ActionStatusChanged  = "status_changed"
	ActionTaskDeleted    = "task_deleted"
	ActionTaskAssigned   = "task_assigned"
	ActionTasksMerged    = "tasks_merged"
)

type ActivityEntry struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	Actor     string         `json:"actor"`
	TaskID    string         `json:"task_id"`
	TaskText  string         `json:"task_text"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
