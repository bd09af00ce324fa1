// Package mcp exposes the shared task board as MCP tools. Every mutation
// goes through the coordinator, so agent-driven edits get the same
// optimistic-write, rollback and activity-log semantics as interactive
// ones.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/avelar/taskhub/internal/coordinator"
	"github.com/avelar/taskhub/internal/store"
	"github.com/avelar/taskhub/pkg/models"
)

// NewServer creates a new MCP server backed by the coordinator.
func NewServer(coord *coordinator.Coordinator) *server.MCPServer {
	s := server.NewMCPServer("Taskhub", "0.1.0")

	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List all tasks on the shared board."),
		mcp.WithString("status", mcp.Description("Filter by status (todo|in_progress|done|blocked)")),
	), listTasksHandler(coord))

	s.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Create a new task. The task appears locally at once and is confirmed remotely."),
		mcp.WithString("text", mcp.Description("Task text"), mcp.Required()),
		mcp.WithString("priority", mcp.Description("Priority (low|medium|high|urgent), defaults to medium")),
		mcp.WithString("assigned_to", mcp.Description("Assignee name")),
		mcp.WithString("due_date", mcp.Description("Due date (YYYY-MM-DD)")),
		mcp.WithString("notes", mcp.Description("Free-form notes")),
		mcp.WithString("recurrence", mcp.Description("Recurrence rule (daily|weekly|monthly)")),
	), createTaskHandler(coord))

	s.AddTool(mcp.NewTool("update_task_status",
		mcp.WithDescription("Move a task to a new status. Completion is derived automatically."),
		mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
		mcp.WithString("status", mcp.Description("New status (todo|in_progress|done|blocked)"), mcp.Required()),
	), updateStatusHandler(coord))

	s.AddTool(mcp.NewTool("toggle_task",
		mcp.WithDescription("Mark a task completed or not completed."),
		mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
		mcp.WithBoolean("completed", mcp.Description("Completion flag"), mcp.Required()),
	), toggleTaskHandler(coord))

	s.AddTool(mcp.NewTool("assign_task",
		mcp.WithDescription("Assign a task to a user."),
		mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
		mcp.WithString("assignee", mcp.Description("Assignee name, empty to unassign"), mcp.Required()),
	), assignTaskHandler(coord))

	s.AddTool(mcp.NewTool("duplicate_task",
		mcp.WithDescription("Duplicate a task under a new id with reset status."),
		mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
	), duplicateTaskHandler(coord))

	return s
}

// Serve starts the MCP server on stdio.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func listTasksHandler(coord *coordinator.Coordinator) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := mcp.ParseString(request, "status", "")

		tasks := coord.Cache().List()
		if status != "" {
			filtered := tasks[:0]
			for _, t := range tasks {
				if t.Status == models.Status(status) {
					filtered = append(filtered, t)
				}
			}
			tasks = filtered
		}

		data, err := json.Marshal(map[string]any{"tasks": tasks})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func createTaskHandler(coord *coordinator.Coordinator) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		in := coordinator.CreateInput{
			Text:       mcp.ParseString(request, "text", ""),
			Priority:   models.Priority(mcp.ParseString(request, "priority", "")),
			Notes:      mcp.ParseString(request, "notes", ""),
			Recurrence: models.Recurrence(mcp.ParseString(request, "recurrence", "")),
		}
		if assignee := mcp.ParseString(request, "assigned_to", ""); assignee != "" {
			in.AssignedTo = &assignee
		}
		if due := mcp.ParseString(request, "due_date", ""); due != "" {
			in.DueDate = &due
		}

		t, err := coord.CreateTask(ctx, in)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Task '%s' created with id %s", t.Text, t.ID)), nil
	}
}

func updateStatusHandler(coord *coordinator.Coordinator) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")
		status := models.Status(mcp.ParseString(request, "status", ""))

		result, err := coord.UpdateStatus(ctx, id, status)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		text := fmt.Sprintf("Task %s: %s", id, result.Action)
		if result.Celebration != nil {
			text += fmt.Sprintf(". %s (streak: %d days)", result.Celebration.Message, result.Celebration.Streak)
		}
		if result.RecurrenceErr != nil {
			text += fmt.Sprintf(" (recurrence skipped: %v)", result.RecurrenceErr)
		}
		return mcp.NewToolResultText(text), nil
	}
}

func toggleTaskHandler(coord *coordinator.Coordinator) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")
		completed := mcp.ParseBoolean(request, "completed", true)

		result, err := coord.ToggleCompletion(ctx, id, completed)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Task %s: %s", id, result.Action)), nil
	}
}

func assignTaskHandler(coord *coordinator.Coordinator) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")
		assignee := mcp.ParseString(request, "assignee", "")

		if _, err := coord.UpdateTask(ctx, id, store.TaskFields{AssignedTo: &assignee}); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if assignee == "" {
			return mcp.NewToolResultText(fmt.Sprintf("Task %s unassigned", id)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Task %s assigned to %s", id, assignee)), nil
	}
}

func duplicateTaskHandler(coord *coordinator.Coordinator) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")

		t, err := coord.DuplicateTask(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Duplicated as '%s' with id %s", t.Text, t.ID)), nil
	}
}
