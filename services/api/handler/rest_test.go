package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3dhorse/task-management-system-sub000/internal/domain"
	"github.com/r3dhorse/task-management-system-sub000/internal/engine"
	"github.com/r3dhorse/task-management-system-sub000/internal/jobs"
	"github.com/r3dhorse/task-management-system-sub000/internal/postgres"
	"github.com/r3dhorse/task-management-system-sub000/services/api/middleware"
)

// ── fakes ────────────────────────────────────────────────────────────────────

type memTasks struct {
	tasks map[string]*domain.Task
	next  int64
}

func (r *memTasks) Create(_ context.Context, task *domain.Task) error {
	r.next++
	task.ID = fmt.Sprintf("task-%d", r.next)
	task.Number = r.next
	cp := *task
	r.tasks[task.ID] = &cp
	return nil
}

func (r *memTasks) GetByID(_ context.Context, id string) (*domain.Task, error) {
	task, ok := r.tasks[id]
	if !ok {
		return nil, &domain.TaskNotFoundError{TaskID: id}
	}
	cp := *task
	return &cp, nil
}

func (r *memTasks) ListByWorkspace(_ context.Context, workspaceID string, _ postgres.ListFilter) ([]*domain.Task, error) {
	var out []*domain.Task
	for _, task := range r.tasks {
		if task.WorkspaceID == workspaceID {
			cp := *task
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memTasks) Update(_ context.Context, task *domain.Task) error {
	cp := *task
	r.tasks[task.ID] = &cp
	return nil
}

func (r *memTasks) Transfer(_ context.Context, task *domain.Task) error {
	cp := *task
	r.tasks[task.ID] = &cp
	return nil
}

type memHistory struct {
	entries []*domain.HistoryEntry
}

func (r *memHistory) Append(_ context.Context, entry *domain.HistoryEntry) error {
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memHistory) ListByTask(_ context.Context, taskID string) ([]*domain.HistoryEntry, error) {
	var out []*domain.HistoryEntry
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].TaskID == taskID {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}

type memNotifications struct {
	rows []*domain.Notification
}

func (n *memNotifications) AddBatch(_ context.Context, batch []*domain.Notification) error {
	for _, row := range batch {
		if row.ID == "" {
			row.ID = fmt.Sprintf("notif-%d", len(n.rows)+1)
		}
		n.rows = append(n.rows, row)
	}
	return nil
}

func (n *memNotifications) ListByUser(_ context.Context, userID string, limit int) ([]*domain.Notification, error) {
	var out []*domain.Notification
	for _, row := range n.rows {
		if row.UserID != userID {
			continue
		}
		out = append(out, row)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (n *memNotifications) MarkRead(_ context.Context, id, userID string) error {
	for _, row := range n.rows {
		if row.ID == id && row.UserID == userID {
			row.Read = true
		}
	}
	return nil
}

type memDirectory struct {
	members  map[string]domain.Role
	services map[string]*domain.Service
}

func (d *memDirectory) MemberOf(_ context.Context, userID, workspaceID string) (*domain.Member, error) {
	role, ok := d.members[userID+"/"+workspaceID]
	if !ok {
		return nil, &domain.NotMemberError{UserID: userID, WorkspaceID: workspaceID}
	}
	return &domain.Member{UserID: userID, WorkspaceID: workspaceID, Role: role}, nil
}

func (d *memDirectory) GetService(_ context.Context, serviceID string) (*domain.Service, error) {
	svc, ok := d.services[serviceID]
	if !ok {
		return nil, &domain.ServiceNotFoundError{ServiceID: serviceID}
	}
	return svc, nil
}

func (d *memDirectory) UserName(_ context.Context, id string) (string, error) { return id, nil }

func (d *memDirectory) ServiceName(_ context.Context, id string) (string, error) { return id, nil }

func (d *memDirectory) WorkspaceName(_ context.Context, id string) (string, error) {
	return id, nil
}

type memScheduler struct{}

func (memScheduler) ListOverdue(_ context.Context, _ time.Time) ([]*domain.Task, error) {
	return nil, nil
}
func (memScheduler) DemoteToBacklog(_ context.Context, _ string, _ *domain.HistoryEntry) error {
	return nil
}
func (memScheduler) ListDueRoutinary(_ context.Context, _ time.Time) ([]*domain.Service, error) {
	return nil, nil
}
func (memScheduler) SpawnRoutinary(_ context.Context, _ *domain.Task, _ *domain.HistoryEntry, _ string, _ time.Time) error {
	return nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

type testAPI struct {
	router chi.Router
	tasks  *memTasks
	dir    *memDirectory
	inbox  *memNotifications
}

func newTestAPI() *testAPI {
	logger := slog.Default()
	tasks := &memTasks{tasks: make(map[string]*domain.Task)}
	hist := &memHistory{}
	inbox := &memNotifications{}
	dir := &memDirectory{
		members:  map[string]domain.Role{"alice/ws1": domain.RoleMember},
		services: map[string]*domain.Service{"svc1": {ID: "svc1", Name: "General", WorkspaceID: "ws1", IsPublic: true}},
	}

	eng := engine.New(
		tasks, hist, dir,
		engine.NewHistoryRecorder(hist, dir, logger),
		engine.NewNotifier(inbox, nil, logger),
		logger,
	)
	sweep := jobs.NewOverdueSweep(memScheduler{}, "system", time.UTC, logger)
	routinary := jobs.NewRoutinaryGenerator(memScheduler{}, "system", time.UTC, logger)
	rest := NewREST(eng, inbox, sweep, routinary, func(context.Context) error { return nil }, logger)

	r := chi.NewRouter()
	r.Get("/healthz", rest.Healthz)
	r.Get("/readyz", rest.Readyz)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/tasks", rest.CreateTask)
		r.Get("/tasks/{id}", rest.GetTask)
		r.Patch("/tasks/{id}", rest.UpdateTask)
		r.Post("/tasks/{id}/archive", rest.ArchiveTask)
		r.Get("/tasks/{id}/history", rest.GetHistory)
		r.Get("/workspaces/{id}/tasks", rest.ListTasks)
		r.Get("/notifications", rest.ListNotifications)
		r.Post("/notifications/{id}/read", rest.MarkNotificationRead)
		r.Post("/scheduler/overdue-sweep", rest.RunOverdueSweep)
		r.Post("/scheduler/routinary", rest.RunRoutinaryGeneration)
	})
	return &testAPI{router: r, tasks: tasks, dir: dir, inbox: inbox}
}

func (a *testAPI) do(t *testing.T, identity *domain.Identity, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if identity != nil {
		req = req.WithContext(middleware.WithIdentity(req.Context(), *identity))
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func caller(id string) *domain.Identity { return &domain.Identity{UserID: id} }

const createBody = `{
	"name": "file taxes",
	"workspace_id": "ws1",
	"service_id": "svc1",
	"due_date": "2026-09-15T00:00:00Z"
}`

// ── tests ────────────────────────────────────────────────────────────────────

func TestCreateTask_Created(t *testing.T) {
	api := newTestAPI()

	rec := api.do(t, caller("alice"), http.MethodPost, "/api/v1/tasks", createBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp CreateTaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.TaskNumber)
	assert.Equal(t, "file taxes", resp.Task.Name)
	assert.Equal(t, domain.StatusTodo, resp.Task.Status)
}

func TestCreateTask_ValidationIs400(t *testing.T) {
	api := newTestAPI()

	rec := api.do(t, caller("alice"), http.MethodPost, "/api/v1/tasks",
		`{"workspace_id":"ws1","service_id":"svc1","due_date":"2026-09-15T00:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTask_NonMemberIs403(t *testing.T) {
	api := newTestAPI()

	rec := api.do(t, caller("stranger"), http.MethodPost, "/api/v1/tasks", createBody)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateTask_NoIdentityIs401(t *testing.T) {
	api := newTestAPI()

	rec := api.do(t, nil, http.MethodPost, "/api/v1/tasks", createBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetTask_HiddenAndMissingAreBoth404(t *testing.T) {
	api := newTestAPI()
	assignee := "bob"
	api.dir.members["eve/ws1"] = domain.RoleMember
	api.tasks.tasks["task-9"] = &domain.Task{
		ID: "task-9", Name: "secret", Status: domain.StatusTodo, WorkspaceID: "ws1",
		IsConfidential: true, AssigneeID: &assignee, CreatedBy: "alice",
		Followers: []string{"alice", "bob"},
	}

	missing := api.do(t, caller("eve"), http.MethodGet, "/api/v1/tasks/no-such", "")
	hidden := api.do(t, caller("eve"), http.MethodGet, "/api/v1/tasks/task-9", "")

	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, http.StatusNotFound, hidden.Code)
	assert.Equal(t, missing.Body.String(), hidden.Body.String(),
		"hidden tasks must be indistinguishable from missing ones")
}

func TestUpdateTask_PermissionIs403(t *testing.T) {
	api := newTestAPI()
	api.dir.members["eve/ws1"] = domain.RoleVisitor
	api.tasks.tasks["task-1"] = &domain.Task{
		ID: "task-1", Name: "report", Status: domain.StatusTodo, WorkspaceID: "ws1",
		CreatedBy: "alice", Followers: []string{"alice", "eve"},
	}

	rec := api.do(t, caller("eve"), http.MethodPatch, "/api/v1/tasks/task-1",
		`{"status":"IN_PROGRESS"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateTask_OK(t *testing.T) {
	api := newTestAPI()
	api.tasks.tasks["task-1"] = &domain.Task{
		ID: "task-1", Name: "report", Status: domain.StatusTodo, WorkspaceID: "ws1",
		CreatedBy: "alice", Followers: []string{"alice"},
	}

	rec := api.do(t, caller("alice"), http.MethodPatch, "/api/v1/tasks/task-1",
		`{"status":"IN_PROGRESS"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var task domain.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	assert.Equal(t, domain.StatusInProgress, task.Status)
}

func TestArchiveThenHistory(t *testing.T) {
	api := newTestAPI()
	api.tasks.tasks["task-1"] = &domain.Task{
		ID: "task-1", Name: "report", Status: domain.StatusTodo, WorkspaceID: "ws1",
		CreatedBy: "alice", Followers: []string{"alice"},
	}

	rec := api.do(t, caller("alice"), http.MethodPost, "/api/v1/tasks/task-1/archive", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Archived tasks stay readable to members, history included.
	hist := api.do(t, caller("alice"), http.MethodGet, "/api/v1/tasks/task-1/history", "")
	require.Equal(t, http.StatusOK, hist.Code)
	var resp struct {
		Entries []*domain.HistoryEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(hist.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, domain.ActionStatusChanged, resp.Entries[0].Action)
}

func TestListTasks_BadDueBefore(t *testing.T) {
	api := newTestAPI()

	rec := api.do(t, caller("alice"), http.MethodGet, "/api/v1/workspaces/ws1/tasks?due_before=tomorrow", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTasks_OK(t *testing.T) {
	api := newTestAPI()
	api.tasks.tasks["task-1"] = &domain.Task{
		ID: "task-1", Name: "report", Status: domain.StatusTodo, WorkspaceID: "ws1",
		CreatedBy: "alice", Followers: []string{"alice"},
	}

	rec := api.do(t, caller("alice"), http.MethodGet, "/api/v1/workspaces/ws1/tasks?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Tasks []*domain.Task `json:"tasks"`
		Limit int            `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Tasks, 1)
	assert.Equal(t, 10, resp.Limit)
}

func TestListNotifications_InboxScopedToCaller(t *testing.T) {
	api := newTestAPI()
	api.dir.members["bob/ws1"] = domain.RoleMember

	body := `{
		"name": "file taxes",
		"workspace_id": "ws1",
		"service_id": "svc1",
		"assignee_id": "bob",
		"due_date": "2026-09-15T00:00:00Z"
	}`
	rec := api.do(t, caller("alice"), http.MethodPost, "/api/v1/tasks", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(t, caller("bob"), http.MethodGet, "/api/v1/notifications", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Notifications []*domain.Notification `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Notifications, 1)
	assert.Equal(t, "bob", resp.Notifications[0].UserID)
	assert.False(t, resp.Notifications[0].Read)

	// The actor never sees the assignment notification in their own inbox.
	rec = api.do(t, caller("alice"), http.MethodGet, "/api/v1/notifications", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Notifications)
}

func TestMarkNotificationRead_OwnerOnly(t *testing.T) {
	api := newTestAPI()
	api.inbox.rows = []*domain.Notification{{ID: "notif-1", UserID: "bob"}}

	rec := api.do(t, caller("alice"), http.MethodPost, "/api/v1/notifications/notif-1/read", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, api.inbox.rows[0].Read, "another user's mark attempt is a no-op")

	rec = api.do(t, caller("bob"), http.MethodPost, "/api/v1/notifications/notif-1/read", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, api.inbox.rows[0].Read)
}

func TestSchedulerTriggers_SuperAdminOnly(t *testing.T) {
	api := newTestAPI()

	rec := api.do(t, caller("alice"), http.MethodPost, "/api/v1/scheduler/overdue-sweep", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	root := &domain.Identity{UserID: "root", IsSuperAdmin: true}
	rec = api.do(t, root, http.MethodPost, "/api/v1/scheduler/overdue-sweep", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var res jobs.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Zero(t, res.Total)

	rec = api.do(t, root, http.MethodPost, "/api/v1/scheduler/routinary", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProbes(t *testing.T) {
	api := newTestAPI()

	assert.Equal(t, http.StatusOK, api.do(t, nil, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, api.do(t, nil, http.MethodGet, "/readyz", "").Code)
}
