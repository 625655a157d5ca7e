package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/r3dhorse/task-management-system-sub000/internal/domain"
	"github.com/r3dhorse/task-management-system-sub000/internal/postgres"
)

var actionByField = map[string]domain.Action{
	FieldStatus:         domain.ActionStatusChanged,
	FieldAssignee:       domain.ActionAssigneeChanged,
	FieldReviewer:       domain.ActionReviewerChanged,
	FieldService:        domain.ActionServiceChanged,
	FieldWorkspace:      domain.ActionWorkspaceMoved,
	FieldDueDate:        domain.ActionDueDateChanged,
	FieldName:           domain.ActionNameChanged,
	FieldDescription:    domain.ActionDescription,
	FieldFollowers:      domain.ActionFollowers,
	FieldConfidentially: domain.ActionConfidentiality,
}

// HistoryRecorder turns detected changes into immutable audit entries.
// Recording happens after the primary mutation has committed and must never
// fail it: errors are logged and swallowed.
type HistoryRecorder struct {
	history postgres.HistoryRepository
	dir     postgres.DirectoryRepository
	logger  *slog.Logger
}

// NewHistoryRecorder builds a recorder over the given repositories.
func NewHistoryRecorder(history postgres.HistoryRepository, dir postgres.DirectoryRepository, logger *slog.Logger) *HistoryRecorder {
	return &HistoryRecorder{history: history, dir: dir, logger: logger}
}

// RecordCreated appends the CREATED entry for a new task.
func (r *HistoryRecorder) RecordCreated(ctx context.Context, task *domain.Task, actorID string, at time.Time) {
	r.append(ctx, &domain.HistoryEntry{
		TaskID:    task.ID,
		UserID:    actorID,
		Action:    domain.ActionCreated,
		NewValue:  task.Name,
		CreatedAt: at,
	})
}

// RecordChanges appends one entry per change, resolving referenced ids to
// display names at write time. The denormalized strings survive later
// renames and deletions of the referenced entities.
func (r *HistoryRecorder) RecordChanges(ctx context.Context, task *domain.Task, actorID string, changes []Change, at time.Time) {
	for _, c := range changes {
		action, ok := actionByField[c.Field]
		if !ok {
			action = domain.ActionUpdated
		}
		entry := &domain.HistoryEntry{
			TaskID:    task.ID,
			UserID:    actorID,
			Action:    action,
			Field:     c.Field,
			OldValue:  r.resolve(ctx, c.Field, c.Old),
			NewValue:  r.resolve(ctx, c.Field, c.New),
			CreatedAt: at,
		}
		if c.Field == FieldAttachment {
			if c.New == "" {
				entry.Action = domain.ActionAttachmentGone
			} else {
				entry.Action = domain.ActionAttachmentAdded
			}
		}
		r.append(ctx, entry)
	}
}

// resolve maps a raw reference value to its display string. Non-reference
// fields pass through unchanged.
func (r *HistoryRecorder) resolve(ctx context.Context, field, value string) string {
	if value == "" {
		return ""
	}
	var (
		name string
		err  error
	)
	switch field {
	case FieldAssignee, FieldReviewer:
		name, err = r.dir.UserName(ctx, value)
	case FieldService:
		name, err = r.dir.ServiceName(ctx, value)
	case FieldWorkspace:
		name, err = r.dir.WorkspaceName(ctx, value)
	default:
		return value
	}
	if err != nil {
		r.logger.Warn("audit display-name lookup failed, storing raw id",
			slog.String("field", field),
			slog.String("value", value),
			slog.String("error", err.Error()),
		)
		return value
	}
	return name
}

func (r *HistoryRecorder) append(ctx context.Context, entry *domain.HistoryEntry) {
	if err := r.history.Append(ctx, entry); err != nil {
		r.logger.Error("history write failed",
			slog.String("task_id", entry.TaskID),
			slog.String("action", string(entry.Action)),
			slog.String("error", err.Error()),
		)
	}
}
