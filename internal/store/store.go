// Package store defines the remote authoritative task collection: the
// TaskStore boundary the coordinators write through, a sqlite-backed
// implementation, and a REST server/client pair exposing it over HTTP.
package store

import (
	"context"
	"errors"

	"github.com/avelar/taskhub/pkg/models"
)

// ErrConflict reports an update or delete that matched zero rows. The row
// was deleted or changed by another client, so the caller's precondition
// no longer holds and its optimistic write must be rolled back.
var ErrConflict = errors.New("store: no matching row")

// TaskFields is a partial update. Nil pointers leave the column untouched.
// An AssignedTo pointing at the empty string clears the assignee.
type TaskFields struct {
	Text        *string              `json:"text,omitempty"`
	Completed   *bool                `json:"completed,omitempty"`
	Status      *models.Status       `json:"status,omitempty"`
	Priority    *models.Priority     `json:"priority,omitempty"`
	AssignedTo  *string              `json:"assigned_to,omitempty"`
	DueDate     *string              `json:"due_date,omitempty"`
	Notes       *string              `json:"notes,omitempty"`
	Subtasks    *[]models.Subtask    `json:"subtasks,omitempty"`
	Attachments *[]models.Attachment `json:"attachments,omitempty"`
	Recurrence  *models.Recurrence   `json:"recurrence,omitempty"`
	UpdatedBy   string               `json:"updated_by,omitempty"`
}

// TaskStore is the remote store boundary. Update returns the confirmed
// row so callers can reconcile their local copy with what the server
// actually wrote; zero matched rows surface as ErrConflict.
type TaskStore interface {
	List(ctx context.Context) ([]*models.Task, error)
	Insert(ctx context.Context, t *models.Task) error
	Update(ctx context.Context, id string, fields TaskFields) (*models.Task, error)
	UpdateMany(ctx context.Context, ids []string, fields TaskFields) error
	Delete(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, ids []string) error

	// Merge applies fields to the primary task and deletes removeIDs in a
	// single transaction, so a merge is atomic on the server side.
	Merge(ctx context.Context, primaryID string, fields TaskFields, removeIDs []string) (*models.Task, error)
}
