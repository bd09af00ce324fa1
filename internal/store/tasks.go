package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avelar/taskhub/pkg/models"
)

const taskColumns = `id, text, completed, status, priority, assigned_to, due_date,
       subtasks, notes, recurrence, attachments, created_by, created_at, updated_by, updated_at`

type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	t := &models.Task{}
	var completed int
	var assignedTo, dueDate sql.NullString
	var subtasks, attachments string
	err := row.Scan(
		&t.ID, &t.Text, &completed, &t.Status, &t.Priority, &assignedTo, &dueDate,
		&subtasks, &t.Notes, &t.Recurrence, &attachments, &t.CreatedBy, &t.CreatedAt, &t.UpdatedBy, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Completed = completed == 1
	if assignedTo.Valid {
		t.AssignedTo = &assignedTo.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	if err := json.Unmarshal([]byte(subtasks), &t.Subtasks); err != nil {
		return nil, fmt.Errorf("failed to decode subtasks: %w", err)
	}
	if err := json.Unmarshal([]byte(attachments), &t.Attachments); err != nil {
		return nil, fmt.Errorf("failed to decode attachments: %w", err)
	}
	return t, nil
}

// List returns all tasks in creation order.
func (db *DB) List(ctx context.Context) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY created_at ASC, id ASC`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return tasks, nil
}

// Get retrieves a single task, or nil if it does not exist.
func (db *DB) Get(ctx context.Context, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`
	t, err := scanTask(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// Insert stores a new task. If t.ID is empty a new UUID is generated.
func (db *DB) Insert(ctx context.Context, t *models.Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}

	completed := 0
	if t.Completed {
		completed = 1
	}
	subtasks, err := json.Marshal(t.Subtasks)
	if err != nil {
		return fmt.Errorf("failed to encode subtasks: %w", err)
	}
	attachments, err := json.Marshal(t.Attachments)
	if err != nil {
		return fmt.Errorf("failed to encode attachments: %w", err)
	}

	query := `
		INSERT INTO tasks (id, text, completed, status, priority, assigned_to, due_date,
		                   subtasks, notes, recurrence, attachments, created_by, created_at, updated_by, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var assignedTo, dueDate any
	if t.AssignedTo != nil {
		assignedTo = *t.AssignedTo
	}
	if t.DueDate != nil {
		dueDate = *t.DueDate
	}
	_, err = db.ExecContext(ctx, query,
		t.ID, t.Text, completed, t.Status, t.Priority, assignedTo, dueDate,
		string(subtasks), t.Notes, t.Recurrence, string(attachments), t.CreatedBy, t.CreatedAt, t.UpdatedBy, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

// setClause builds the SET fragment and args for a partial update. The
// updated_at column is always touched so clients can order confirmations.
func setClause(fields TaskFields) (string, []any, error) {
	var set []string
	var args []any

	add := func(col string, v any) {
		set = append(set, col+" = ?")
		args = append(args, v)
	}

	if fields.Text != nil {
		add("text", *fields.Text)
	}
	if fields.Completed != nil {
		completed := 0
		if *fields.Completed {
			completed = 1
		}
		add("completed", completed)
	}
	if fields.Status != nil {
		add("status", *fields.Status)
	}
	if fields.Priority != nil {
		add("priority", *fields.Priority)
	}
	if fields.AssignedTo != nil {
		if *fields.AssignedTo == "" {
			add("assigned_to", nil)
		} else {
			add("assigned_to", *fields.AssignedTo)
		}
	}
	if fields.DueDate != nil {
		if *fields.DueDate == "" {
			add("due_date", nil)
		} else {
			add("due_date", *fields.DueDate)
		}
	}
	if fields.Notes != nil {
		add("notes", *fields.Notes)
	}
	if fields.Subtasks != nil {
		raw, err := json.Marshal(*fields.Subtasks)
		if err != nil {
			return "", nil, fmt.Errorf("failed to encode subtasks: %w", err)
		}
		add("subtasks", string(raw))
	}
	if fields.Attachments != nil {
		raw, err := json.Marshal(*fields.Attachments)
		if err != nil {
			return "", nil, fmt.Errorf("failed to encode attachments: %w", err)
		}
		add("attachments", string(raw))
	}
	if fields.Recurrence != nil {
		add("recurrence", *fields.Recurrence)
	}
	if fields.UpdatedBy != "" {
		add("updated_by", fields.UpdatedBy)
	}
	add("updated_at", time.Now().UTC())

	return strings.Join(set, ", "), args, nil
}

// Update applies a partial update scoped by id and returns the confirmed
// row. Zero matched rows return ErrConflict.
func (db *DB) Update(ctx context.Context, id string, fields TaskFields) (*models.Task, error) {
	return update(ctx, db.DB, id, fields, db.triggerChange)
}

func update(ctx context.Context, exec executor, id string, fields TaskFields, onChange func(context.Context)) (*models.Task, error) {
	set, args, err := setClause(fields)
	if err != nil {
		return nil, err
	}
	args = append(args, id)

	query := `UPDATE tasks SET ` + set + ` WHERE id = ? RETURNING ` + taskColumns
	t, err := scanTask(exec.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	if onChange != nil {
		onChange(ctx)
	}
	return t, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// UpdateMany applies the same partial update to every task in the id set
// with a single statement. Matching zero rows is a conflict: the whole
// selection vanished underneath the caller.
func (db *DB) UpdateMany(ctx context.Context, ids []string, fields TaskFields) error {
	if len(ids) == 0 {
		return nil
	}
	set, args, err := setClause(fields)
	if err != nil {
		return err
	}
	for _, id := range ids {
		args = append(args, id)
	}

	query := `UPDATE tasks SET ` + set + ` WHERE id IN (` + placeholders(len(ids)) + `)`
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update tasks: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrConflict
	}

	db.triggerChange(ctx)
	return nil
}

// Delete removes a single task. Zero matched rows return ErrConflict.
func (db *DB) Delete(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrConflict
	}

	db.triggerChange(ctx)
	return nil
}

// DeleteMany removes every task in the id set with a single statement.
func (db *DB) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	query := `DELETE FROM tasks WHERE id IN (` + placeholders(len(ids)) + `)`
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete tasks: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrConflict
	}

	db.triggerChange(ctx)
	return nil
}

// Merge updates the primary task and deletes the merged-away tasks in one
// transaction, so concurrent readers never observe a half-applied merge.
func (db *DB) Merge(ctx context.Context, primaryID string, fields TaskFields, removeIDs []string) (*models.Task, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	t, err := update(ctx, tx, primaryID, fields, nil)
	if err != nil {
		return nil, err
	}

	if len(removeIDs) > 0 {
		args := make([]any, 0, len(removeIDs))
		for _, id := range removeIDs {
			args = append(args, id)
		}
		query := `DELETE FROM tasks WHERE id IN (` + placeholders(len(removeIDs)) + `)`
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("failed to delete merged tasks: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	db.triggerChange(ctx)
	return t, nil
}
