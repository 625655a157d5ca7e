package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/r3dhorse/task-management-system-sub000/internal/domain"
	"github.com/r3dhorse/task-management-system-sub000/internal/engine"
	"github.com/r3dhorse/task-management-system-sub000/internal/jobs"
	"github.com/r3dhorse/task-management-system-sub000/internal/postgres"
	"github.com/r3dhorse/task-management-system-sub000/services/api/middleware"
)

// REST handles HTTP requests for the workflow engine.
type REST struct {
	engine        *engine.Engine
	notifications postgres.NotificationRepository
	sweep         *jobs.OverdueSweep
	routinary     *jobs.RoutinaryGenerator
	pingFn        func(context.Context) error
	logger        *slog.Logger
}

// NewREST creates a new REST handler. pingFn backs the readiness probe.
func NewREST(eng *engine.Engine, notifications postgres.NotificationRepository, sweep *jobs.OverdueSweep, routinary *jobs.RoutinaryGenerator, pingFn func(context.Context) error, logger *slog.Logger) *REST {
	return &REST{engine: eng, notifications: notifications, sweep: sweep, routinary: routinary, pingFn: pingFn, logger: logger}
}

// CreateTaskResponse is the POST /tasks response body.
type CreateTaskResponse struct {
	Task       *domain.Task `json:"task"`
	TaskNumber int64        `json:"task_number"`
}

// CreateTask handles POST /api/v1/tasks.
func (h *REST) CreateTask(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("api").Start(r.Context(), "api.create_task")
	defer span.End()

	identity, ok := middleware.IdentityFrom(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "no identity")
		return
	}

	var req engine.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	task, err := h.engine.Create(ctx, identity, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		h.writeDomainError(w, err)
		return
	}
	span.SetAttributes(
		attribute.String("task.id", task.ID),
		attribute.Int64("task.number", task.Number),
	)

	writeJSON(w, http.StatusCreated, CreateTaskResponse{Task: task, TaskNumber: task.Number})
}

// GetTask handles GET /api/v1/tasks/{id}.
func (h *REST) GetTask(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no identity")
		return
	}
	task, err := h.engine.Get(r.Context(), identity, chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// UpdateTask handles PATCH /api/v1/tasks/{id}.
func (h *REST) UpdateTask(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("api").Start(r.Context(), "api.update_task")
	defer span.End()

	identity, ok := middleware.IdentityFrom(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "no identity")
		return
	}

	var req engine.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	taskID := chi.URLParam(r, "id")
	span.SetAttributes(attribute.String("task.id", taskID))

	task, err := h.engine.Update(ctx, identity, taskID, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// ArchiveTask handles POST /api/v1/tasks/{id}/archive.
func (h *REST) ArchiveTask(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no identity")
		return
	}
	task, err := h.engine.Archive(r.Context(), identity, chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": task.ID})
}

// ListTasks handles GET /api/v1/workspaces/{id}/tasks.
func (h *REST) ListTasks(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no identity")
		return
	}

	q := r.URL.Query()
	filter := postgres.ListFilter{
		ServiceID:       q.Get("service"),
		AssigneeID:      q.Get("assignee"),
		Status:          domain.Status(q.Get("status")),
		Search:          q.Get("search"),
		IncludeArchived: q.Get("include_archived") == "true",
	}
	if v := q.Get("due_before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "due_before must be RFC3339")
			return
		}
		filter.DueBefore = &t
	}
	filter.Limit = intQuery(q.Get("limit"), 50)
	filter.Offset = intQuery(q.Get("offset"), 0)

	tasks, err := h.engine.List(r.Context(), identity, chi.URLParam(r, "id"), filter)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tasks":  tasks,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// GetHistory handles GET /api/v1/tasks/{id}/history.
func (h *REST) GetHistory(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no identity")
		return
	}
	entries, err := h.engine.History(r.Context(), identity, chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// ListNotifications handles GET /api/v1/notifications. The inbox is scoped
// to the caller; there is no way to read another user's notifications.
func (h *REST) ListNotifications(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no identity")
		return
	}
	notifications, err := h.notifications.ListByUser(r.Context(), identity.UserID, intQuery(r.URL.Query().Get("limit"), 50))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications})
}

// MarkNotificationRead handles POST /api/v1/notifications/{id}/read.
// Marking a notification that belongs to someone else is a silent no-op.
func (h *REST) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no identity")
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.notifications.MarkRead(r.Context(), id, identity.UserID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// RunOverdueSweep handles POST /api/v1/scheduler/overdue-sweep.
// Super-admin only; runs the same job as the scheduled tick.
func (h *REST) RunOverdueSweep(w http.ResponseWriter, r *http.Request) {
	h.runJob(w, r, "overdue_sweep", h.sweep.Run)
}

// RunRoutinaryGeneration handles POST /api/v1/scheduler/routinary.
func (h *REST) RunRoutinaryGeneration(w http.ResponseWriter, r *http.Request) {
	h.runJob(w, r, "routinary_generation", h.routinary.Run)
}

func (h *REST) runJob(w http.ResponseWriter, r *http.Request, name string, run func(context.Context) (jobs.Result, error)) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no identity")
		return
	}
	if !identity.IsSuperAdmin {
		writeError(w, http.StatusForbidden, "super-admin only")
		return
	}

	res, err := run(r.Context())
	if err != nil {
		h.logger.Error("manual job trigger failed",
			slog.String("job", name),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "job failed")
		return
	}
	h.logger.Info("manual job trigger complete",
		slog.String("job", name),
		slog.String("user_id", identity.UserID),
		slog.Int("total", res.Total),
	)
	writeJSON(w, http.StatusOK, res)
}

// Healthz handles GET /healthz.
func (h *REST) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// Readyz handles GET /readyz — checks database connectivity.
func (h *REST) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.pingFn(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database not ready")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// writeDomainError maps domain errors to HTTP statuses. Not-visible and
// nonexistent tasks share 404 deliberately.
func (h *REST) writeDomainError(w http.ResponseWriter, err error) {
	var (
		validation *domain.ValidationError
		permission *domain.PermissionDeniedError
		notMember  *domain.NotMemberError
		notFound   *domain.TaskNotFoundError
		noService  *domain.ServiceNotFoundError
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
	case errors.As(err, &permission):
		writeError(w, http.StatusForbidden, permission.Error())
	case errors.As(err, &notMember):
		writeError(w, http.StatusForbidden, notMember.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.As(err, &noService):
		writeError(w, http.StatusBadRequest, noService.Error())
	default:
		h.logger.Error("internal error", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func intQuery(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
