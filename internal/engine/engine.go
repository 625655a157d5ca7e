package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/r3dhorse/task-management-system-sub000/internal/domain"
	"github.com/r3dhorse/task-management-system-sub000/internal/postgres"
	"github.com/r3dhorse/task-management-system-sub000/pkg/telemetry"
)

// Engine runs every task mutation through the same pipeline: authorize,
// mutate transactionally, diff, audit, notify. User requests and scheduler
// jobs share it; nothing writes a task around it.
type Engine struct {
	tasks    postgres.TaskRepository
	history  postgres.HistoryRepository
	dir      postgres.DirectoryRepository
	recorder *HistoryRecorder
	notifier *Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// New wires an Engine from its repositories.
func New(
	tasks postgres.TaskRepository,
	history postgres.HistoryRepository,
	dir postgres.DirectoryRepository,
	recorder *HistoryRecorder,
	notifier *Notifier,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		tasks:    tasks,
		history:  history,
		dir:      dir,
		recorder: recorder,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateRequest carries the fields for a new task.
type CreateRequest struct {
	Name           string         `json:"name"`
	WorkspaceID    string         `json:"workspace_id"`
	ServiceID      string         `json:"service_id"`
	AssigneeID     *string        `json:"assignee_id,omitempty"`
	ReviewerID     *string        `json:"reviewer_id,omitempty"`
	DueDate        time.Time      `json:"due_date"`
	Description    string         `json:"description,omitempty"`
	AttachmentID   *string        `json:"attachment_id,omitempty"`
	IsConfidential bool           `json:"is_confidential"`
	Followers      []string       `json:"followers,omitempty"`
	Status         *domain.Status `json:"status,omitempty"`
}

// Create validates and persists a new task, seeds its followers, and records
// the CREATED audit entry. Validation failures reject before any mutation.
func (e *Engine) Create(ctx context.Context, identity domain.Identity, req CreateRequest) (*domain.Task, error) {
	if req.Name == "" {
		return nil, &domain.ValidationError{Field: FieldName, Reason: "name is required"}
	}
	if req.WorkspaceID == "" {
		return nil, &domain.ValidationError{Field: FieldWorkspace, Reason: "workspace is required"}
	}
	if req.DueDate.IsZero() {
		return nil, &domain.ValidationError{Field: FieldDueDate, Reason: "due date is required"}
	}
	if req.ServiceID == "" {
		return nil, &domain.ValidationError{Field: FieldService, Reason: "service is required"}
	}
	if req.IsConfidential && (req.AssigneeID == nil || *req.AssigneeID == "") {
		return nil, &domain.ValidationError{Field: FieldConfidentially, Reason: "confidential tasks require an assignee"}
	}

	if _, err := e.roleFor(ctx, identity, req.WorkspaceID); err != nil {
		return nil, err
	}

	svc, err := e.dir.GetService(ctx, req.ServiceID)
	if err != nil {
		var notFound *domain.ServiceNotFoundError
		if errors.As(err, &notFound) {
			return nil, &domain.ValidationError{Field: FieldService, Reason: "unknown service"}
		}
		return nil, err
	}
	if svc.WorkspaceID != req.WorkspaceID {
		return nil, &domain.ValidationError{Field: FieldService, Reason: "service belongs to another workspace"}
	}

	status := domain.StatusTodo
	if req.Status != nil {
		if !req.Status.Valid() || *req.Status == domain.StatusArchived {
			return nil, &domain.ValidationError{Field: FieldStatus, Reason: "invalid initial status"}
		}
		status = *req.Status
	}

	now := e.now()
	task := &domain.Task{
		Name:           req.Name,
		Status:         status,
		WorkspaceID:    req.WorkspaceID,
		ServiceID:      req.ServiceID,
		AssigneeID:     emptyToNil(req.AssigneeID),
		ReviewerID:     emptyToNil(req.ReviewerID),
		DueDate:        req.DueDate,
		Description:    req.Description,
		AttachmentID:   emptyToNil(req.AttachmentID),
		IsConfidential: req.IsConfidential,
		CreatedBy:      identity.UserID,
		Followers:      append([]string(nil), req.Followers...),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	task.SyncFollowers()

	if err := e.tasks.Create(ctx, task); err != nil {
		return nil, err
	}
	telemetry.TasksCreated.WithLabelValues("user").Inc()
	e.logger.Info("task created",
		slog.String("task_id", task.ID),
		slog.Int64("number", task.Number),
		slog.String("workspace_id", task.WorkspaceID),
	)

	// Post-commit, best-effort.
	e.recorder.RecordCreated(ctx, task, identity.UserID, now)
	if task.AssigneeID != nil && *task.AssigneeID != identity.UserID {
		e.notifier.Dispatch(ctx, task, identity.UserID, []Change{
			{Field: FieldAssignee, Old: "", New: *task.AssigneeID},
		}, now)
	}
	return task, nil
}

// Update runs the full pipeline on a partial update. A request whose values
// all normalize to the current state is a no-op: no write, no history.
func (e *Engine) Update(ctx context.Context, identity domain.Identity, taskID string, req UpdateRequest) (*domain.Task, error) {
	task, actx, err := e.loadForActor(ctx, identity, taskID)
	if err != nil {
		return nil, err
	}

	if req.Status != nil && !req.Status.Valid() {
		return nil, &domain.ValidationError{Field: FieldStatus, Reason: "unknown status"}
	}
	if req.Status != nil && *req.Status == domain.StatusArchived {
		return nil, &domain.ValidationError{Field: FieldStatus, Reason: "archiving requires the archive action"}
	}

	changes := detectChanges(task, req)
	if len(changes) == 0 {
		return task, nil
	}

	transfer := false
	for _, c := range changes {
		switch c.Field {
		case FieldStatus:
			if !canChangeStatus(task.Status, *req.Status, actx) {
				return nil, &domain.PermissionDeniedError{
					Reason: "status change " + string(task.Status) + " -> " + string(*req.Status) + " not permitted",
				}
			}
		case FieldAssignee:
			if !canReassign(task, actx, c.New) {
				return nil, &domain.PermissionDeniedError{Reason: "assignee change not permitted"}
			}
		case FieldWorkspace:
			// Transfers reset status, so the visitor no-status-change rule
			// applies on top of the field-edit rule.
			if actx.role == domain.RoleVisitor && !actx.isAdmin {
				return nil, &domain.PermissionDeniedError{Reason: "visitors may not transfer tasks"}
			}
			if !canEditFields(task.Status, actx) {
				return nil, &domain.PermissionDeniedError{Reason: "field edits not permitted in status " + string(task.Status)}
			}
			transfer = true
		default:
			if !canEditFields(task.Status, actx) {
				return nil, &domain.PermissionDeniedError{Reason: "field edits not permitted in status " + string(task.Status)}
			}
		}
	}

	updated := *task
	updated.Followers = append([]string(nil), task.Followers...)
	applyUpdate(&updated, req)

	if transfer {
		extra, err := e.checkTransfer(ctx, identity, task, &updated, req)
		if err != nil {
			return nil, err
		}
		changes = append(changes, extra...)
	}

	// Confidentiality consistency holds after every mutation, whether the
	// flag or the assignee moved.
	if updated.IsConfidential && updated.AssigneeID == nil {
		return nil, &domain.ValidationError{Field: FieldConfidentially, Reason: "confidential tasks require an assignee"}
	}

	now := e.now()
	updated.UpdatedAt = now
	updated.SyncFollowers()

	if transfer {
		err = e.tasks.Transfer(ctx, &updated)
	} else {
		err = e.tasks.Update(ctx, &updated)
	}
	if err != nil {
		return nil, err
	}
	telemetry.TaskMutations.WithLabelValues("update").Inc()
	e.logger.Info("task updated",
		slog.String("task_id", updated.ID),
		slog.Int("changes", len(changes)),
		slog.Bool("transfer", transfer),
	)

	e.recorder.RecordChanges(ctx, &updated, identity.UserID, changes, now)
	e.notifier.Dispatch(ctx, &updated, identity.UserID, changes, now)
	return &updated, nil
}

// Archive soft-deletes the task. Tasks are never physically removed.
func (e *Engine) Archive(ctx context.Context, identity domain.Identity, taskID string) (*domain.Task, error) {
	task, actx, err := e.loadForActor(ctx, identity, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == domain.StatusArchived {
		return task, nil
	}
	if !canArchive(task, actx) {
		return nil, &domain.PermissionDeniedError{Reason: "archiving not permitted"}
	}

	now := e.now()
	updated := *task
	updated.Status = domain.StatusArchived
	updated.UpdatedAt = now
	if err := e.tasks.Update(ctx, &updated); err != nil {
		return nil, err
	}
	telemetry.TaskMutations.WithLabelValues("archive").Inc()

	changes := []Change{{Field: FieldStatus, Old: string(task.Status), New: string(domain.StatusArchived)}}
	e.recorder.RecordChanges(ctx, &updated, identity.UserID, changes, now)
	e.notifier.Dispatch(ctx, &updated, identity.UserID, changes, now)
	return &updated, nil
}

// Get returns the task when the caller may see it, and reports not-found
// otherwise. Invisible and nonexistent are indistinguishable on purpose.
func (e *Engine) Get(ctx context.Context, identity domain.Identity, taskID string) (*domain.Task, error) {
	task, _, err := e.loadForActor(ctx, identity, taskID)
	return task, err
}

// listBatchSize is the raw page size walked per database round trip while
// assembling a visibility-filtered page.
const listBatchSize = 200

// List returns the workspace's tasks, visibility-filtered server-side.
// Limit and offset address the visible sequence, so the repository is walked
// in raw batches and pagination is applied after the visibility filter.
func (e *Engine) List(ctx context.Context, identity domain.Identity, workspaceID string, filter postgres.ListFilter) ([]*domain.Task, error) {
	role, err := e.roleFor(ctx, identity, workspaceID)
	if err != nil {
		return nil, err
	}

	limit, skip := filter.Limit, filter.Offset
	raw := filter
	raw.Limit, raw.Offset = listBatchSize, 0
	if limit > listBatchSize {
		raw.Limit = limit
	}

	var page []*domain.Task
	for {
		batch, err := e.tasks.ListByWorkspace(ctx, workspaceID, raw)
		if err != nil {
			return nil, err
		}
		for _, task := range filterVisible(batch, identity, role) {
			if skip > 0 {
				skip--
				continue
			}
			page = append(page, task)
			if limit > 0 && len(page) == limit {
				return page, nil
			}
		}
		if len(batch) < raw.Limit {
			return page, nil
		}
		raw.Offset += raw.Limit
	}
}

// History returns the task's audit trail, newest first, when the task itself
// is visible to the caller.
func (e *Engine) History(ctx context.Context, identity domain.Identity, taskID string) ([]*domain.HistoryEntry, error) {
	if _, _, err := e.loadForActor(ctx, identity, taskID); err != nil {
		return nil, err
	}
	return e.history.ListByTask(ctx, taskID)
}

// loadForActor fetches the task, resolves the actor's workspace role, and
// applies the visibility guard. Invisible tasks surface as not-found.
func (e *Engine) loadForActor(ctx context.Context, identity domain.Identity, taskID string) (*domain.Task, actorContext, error) {
	task, err := e.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, actorContext{}, err
	}
	role, err := e.roleFor(ctx, identity, task.WorkspaceID)
	if err != nil {
		var notMember *domain.NotMemberError
		if errors.As(err, &notMember) {
			return nil, actorContext{}, &domain.TaskNotFoundError{TaskID: taskID}
		}
		return nil, actorContext{}, err
	}
	if !canView(task, identity, role) {
		return nil, actorContext{}, &domain.TaskNotFoundError{TaskID: taskID}
	}
	return task, newActorContext(task, identity, role), nil
}

// roleFor resolves the actor's role in a workspace. Global admin identities
// act as workspace admins everywhere.
func (e *Engine) roleFor(ctx context.Context, identity domain.Identity, workspaceID string) (domain.Role, error) {
	if identity.IsAdmin || identity.IsSuperAdmin {
		return domain.RoleAdmin, nil
	}
	member, err := e.dir.MemberOf(ctx, identity.UserID, workspaceID)
	if err != nil {
		return "", err
	}
	return member.Role, nil
}

// checkTransfer validates a workspace move and applies its side effects to
// updated: reviewer reset, status back to TODO, and assignee handling per
// confidentiality. The returned extra changes join the audit diff.
func (e *Engine) checkTransfer(ctx context.Context, identity domain.Identity, current, updated *domain.Task, req UpdateRequest) ([]Change, error) {
	target := updated.WorkspaceID

	if _, err := e.roleFor(ctx, identity, target); err != nil {
		var notMember *domain.NotMemberError
		if errors.As(err, &notMember) {
			return nil, &domain.PermissionDeniedError{Reason: "actor is not a member of the target workspace"}
		}
		return nil, err
	}

	svc, err := e.dir.GetService(ctx, updated.ServiceID)
	if err != nil {
		var notFound *domain.ServiceNotFoundError
		if errors.As(err, &notFound) {
			return nil, &domain.ValidationError{Field: FieldService, Reason: "unknown service for target workspace"}
		}
		return nil, err
	}
	if !svc.IsPublic || svc.WorkspaceID != target {
		return nil, &domain.ValidationError{Field: FieldService, Reason: "transfer requires a public service of the target workspace"}
	}

	var extra []Change

	if updated.IsConfidential {
		if updated.AssigneeID == nil {
			return nil, &domain.ValidationError{Field: FieldAssignee, Reason: "confidential transfer requires an assignee"}
		}
		member, err := e.dir.MemberOf(ctx, *updated.AssigneeID, target)
		if err != nil {
			var notMember *domain.NotMemberError
			if errors.As(err, &notMember) {
				return nil, &domain.ValidationError{Field: FieldAssignee, Reason: "assignee is not a member of the target workspace"}
			}
			return nil, err
		}
		if member.Role == domain.RoleVisitor {
			return nil, &domain.ValidationError{Field: FieldAssignee, Reason: "assignee may not be a visitor in the target workspace"}
		}
	} else if updated.AssigneeID != nil {
		extra = append(extra, Change{Field: FieldAssignee, Old: *updated.AssigneeID, New: ""})
		updated.AssigneeID = nil
	}

	if updated.ReviewerID != nil {
		extra = append(extra, Change{Field: FieldReviewer, Old: *updated.ReviewerID, New: ""})
		updated.ReviewerID = nil
	}
	if updated.Status != domain.StatusTodo {
		extra = append(extra, Change{Field: FieldStatus, Old: string(updated.Status), New: string(domain.StatusTodo)})
		updated.Status = domain.StatusTodo
	}
	return extra, nil
}

// applyUpdate copies the present request fields onto the task.
func applyUpdate(task *domain.Task, req UpdateRequest) {
	if req.Name != nil {
		task.Name = *req.Name
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.Status != nil {
		task.Status = *req.Status
	}
	if req.AssigneeID != nil {
		task.AssigneeID = emptyToNil(req.AssigneeID)
	}
	if req.ReviewerID != nil {
		task.ReviewerID = emptyToNil(req.ReviewerID)
	}
	if req.ServiceID != nil {
		task.ServiceID = *req.ServiceID
	}
	if req.WorkspaceID != nil {
		task.WorkspaceID = *req.WorkspaceID
	}
	if req.DueDate != nil {
		task.DueDate = *req.DueDate
	}
	if req.Position != nil {
		task.Position = *req.Position
	}
	if req.AttachmentID != nil {
		task.AttachmentID = emptyToNil(req.AttachmentID)
	}
	if req.IsConfidential != nil {
		task.IsConfidential = *req.IsConfidential
	}
	if req.Followers != nil {
		task.Followers = append([]string(nil), (*req.Followers)...)
	}
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}
