package models

import "time"

// PresenceState is the record a client tracks on the presence channel.
// The aggregate online-user view is rebuilt from the channel's sync
// snapshot, never from individual join/leave events.
type PresenceState struct {
	UserID   string    `json:"user_id"`
	Name     string    `json:"name"`
	Color    string    `json:"color"`
	JoinedAt time.Time `json:"joined_at"`
	Location string    `json:"location"`
}

// EditingState is an advisory "user X is editing task Y" record held by
// peers. StartedAt is refreshed on every broadcast receipt so stale-entry
// sweeps measure age since the last heartbeat, not since editing began.
type EditingState struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	TaskID    string    `json:"task_id"`
	Field     string    `json:"field,omitempty"`
	StartedAt time.Time `json:"started_at"`
}
