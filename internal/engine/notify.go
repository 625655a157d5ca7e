package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/r3dhorse/task-management-system-sub000/internal/domain"
	"github.com/r3dhorse/task-management-system-sub000/internal/kafka"
	"github.com/r3dhorse/task-management-system-sub000/internal/postgres"
	"github.com/r3dhorse/task-management-system-sub000/pkg/retry"
	"github.com/r3dhorse/task-management-system-sub000/pkg/telemetry"
)

// notifyTopic receives one event per stored notification so downstream
// transports (chat, push) can deliver without the engine knowing about them.
const notifyTopic = "notifications.events"

// notableFields are the changes that fan out to followers.
var notableFields = map[string]struct{}{
	FieldStatus:      {},
	FieldAssignee:    {},
	FieldService:     {},
	FieldDueDate:     {},
	FieldName:        {},
	FieldDescription: {},
}

// Notifier fans out post-commit notifications. Everything here is
// best-effort: failures are logged and never reach the caller.
type Notifier struct {
	repo     postgres.NotificationRepository
	producer kafka.Producer
	logger   *slog.Logger
}

// NewNotifier builds a Notifier. producer may be nil when no broker is
// configured; inbox rows are still written.
func NewNotifier(repo postgres.NotificationRepository, producer kafka.Producer, logger *slog.Logger) *Notifier {
	return &Notifier{repo: repo, producer: producer, logger: logger}
}

// Dispatch inspects the committed changes and notifies the new assignee and
// the task's followers. Multiple simultaneous field changes collapse into a
// single message per recipient.
func (n *Notifier) Dispatch(ctx context.Context, task *domain.Task, actorID string, changes []Change, at time.Time) {
	var notable []string
	assigneeChanged := false
	for _, c := range changes {
		if _, ok := notableFields[c.Field]; ok {
			notable = append(notable, c.Field)
		}
		if c.Field == FieldAssignee {
			assigneeChanged = true
		}
	}
	if len(notable) == 0 {
		return
	}

	var batch []*domain.Notification

	if assigneeChanged && task.AssigneeID != nil && *task.AssigneeID != actorID {
		batch = append(batch, &domain.Notification{
			UserID:      *task.AssigneeID,
			Type:        domain.NotificationTaskAssigned,
			Title:       fmt.Sprintf("Task #%d assigned to you", task.Number),
			Message:     task.Name,
			WorkspaceID: task.WorkspaceID,
			TaskID:      task.ID,
			CreatedAt:   at,
		})
	}

	message := fmt.Sprintf("%s: %s", task.Name, summarize(notable))
	for _, follower := range task.Followers {
		if follower == actorID {
			continue
		}
		if assigneeChanged && task.IsAssignee(follower) {
			// Already got the assignment notification.
			continue
		}
		batch = append(batch, &domain.Notification{
			UserID:      follower,
			Type:        domain.NotificationTaskUpdated,
			Title:       fmt.Sprintf("Task #%d updated", task.Number),
			Message:     message,
			WorkspaceID: task.WorkspaceID,
			TaskID:      task.ID,
			CreatedAt:   at,
		})
	}

	if len(batch) == 0 {
		return
	}
	if err := n.repo.AddBatch(ctx, batch); err != nil {
		n.logger.Error("notification write failed",
			slog.String("task_id", task.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	telemetry.NotificationsStored.Add(float64(len(batch)))
	n.publish(ctx, batch)
}

func summarize(fields []string) string {
	if len(fields) == 1 {
		return fields[0] + " changed"
	}
	out := fields[0]
	for _, f := range fields[1 : len(fields)-1] {
		out += ", " + f
	}
	return out + " and " + fields[len(fields)-1] + " changed"
}

// publish emits one event per notification, keyed by task id for per-task
// ordering. A dead broker only costs a log line.
func (n *Notifier) publish(ctx context.Context, batch []*domain.Notification) {
	if n.producer == nil {
		return
	}
	for _, notif := range batch {
		payload, err := json.Marshal(notif)
		if err != nil {
			n.logger.Error("marshal notification event", slog.String("error", err.Error()))
			continue
		}
		err = retry.Do(ctx, retry.Config{
			MaxAttempts: 3,
			BaseDelay:   100 * time.Millisecond,
		}, func() error {
			return n.producer.Publish(ctx, notifyTopic, notif.TaskID, payload)
		})
		if err != nil {
			n.logger.Error("notification event publish failed",
				slog.String("task_id", notif.TaskID),
				slog.String("recipient", notif.UserID),
				slog.String("error", err.Error()),
			)
			continue
		}
		telemetry.NotificationEventsPublished.Inc()
	}
}
