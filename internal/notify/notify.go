// Package notify is the fire-and-forget notification boundary. Failures
// never propagate back into the mutation path.
package notify

import (
	"context"
	"log/slog"

	"github.com/avelar/taskhub/pkg/models"
)

type Notifier interface {
	TaskAssigned(ctx context.Context, task *models.Task, assignee string)
	TaskCompleted(ctx context.Context, task *models.Task)
}

// LogNotifier writes notifications to the log. Stands in for a real
// delivery channel (email, push) in development and tests.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) TaskAssigned(_ context.Context, task *models.Task, assignee string) {
	n.logger.Info("task assigned", "task", task.ID, "text", task.Text, "assignee", assignee)
}

func (n *LogNotifier) TaskCompleted(_ context.Context, task *models.Task) {
	n.logger.Info("task completed", "task", task.ID, "text", task.Text)
}
