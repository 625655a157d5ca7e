package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/r3dhorse/task-management-system-sub000/internal/domain"
)

// ListFilter narrows a workspace task listing. Zero values mean "no filter".
type ListFilter struct {
	ServiceID       string
	AssigneeID      string
	Status          domain.Status
	Search          string
	DueBefore       *time.Time
	IncludeArchived bool
	Limit           int
	Offset          int
}

// TaskRepository abstracts all database access for tasks.
type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) error
	GetByID(ctx context.Context, id string) (*domain.Task, error)
	ListByWorkspace(ctx context.Context, workspaceID string, f ListFilter) ([]*domain.Task, error)
	Update(ctx context.Context, task *domain.Task) error
	// Transfer updates the task and relocates its chat messages to the new
	// workspace in one transaction.
	Transfer(ctx context.Context, task *domain.Task) error
}

type taskRepository struct {
	pool *pgxpool.Pool
}

// NewTaskRepository wraps a pgxpool with the TaskRepository interface.
func NewTaskRepository(pool *pgxpool.Pool) TaskRepository {
	return &taskRepository{pool: pool}
}

const taskColumns = `
	id, number, name, status, workspace_id, service_id, assignee_id,
	reviewer_id, position, due_date, description, attachment_id,
	is_confidential, created_by, followers, created_at, updated_at`

// Create inserts the task. The human-readable number comes from a dedicated
// sequence and the position from the current column maximum, both resolved
// inside the INSERT so concurrent creates never collide.
func (r *taskRepository) Create(ctx context.Context, task *domain.Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO tasks
			(id, number, name, status, workspace_id, service_id, assignee_id,
			 reviewer_id, position, due_date, description, attachment_id,
			 is_confidential, created_by, followers, created_at, updated_at)
		VALUES
			($1, nextval('tasks_number_seq'), $2, $3, $4, $5, $6, $7,
			 (SELECT COALESCE(MAX(position), 0) + $8
			    FROM tasks WHERE workspace_id = $4 AND status = $3),
			 $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING number, position
	`,
		task.ID, task.Name, string(task.Status), task.WorkspaceID, task.ServiceID,
		task.AssigneeID, task.ReviewerID, float64(domain.PositionStep),
		task.DueDate, task.Description, task.AttachmentID,
		task.IsConfidential, task.CreatedBy, task.Followers,
		task.CreatedAt, task.UpdatedAt,
	)
	if err := row.Scan(&task.Number, &task.Position); err != nil {
		return fmt.Errorf("create task %s: %w", task.ID, err)
	}
	return nil
}

func (r *taskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+taskColumns+` FROM tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.TaskNotFoundError{TaskID: id}
		}
		return nil, err
	}
	return task, nil
}

func (r *taskRepository) ListByWorkspace(ctx context.Context, workspaceID string, f ListFilter) ([]*domain.Task, error) {
	query := `SELECT` + taskColumns + ` FROM tasks WHERE workspace_id = $1`
	args := []any{workspaceID}

	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !f.IncludeArchived {
		query += ` AND status <> ` + next(string(domain.StatusArchived))
	}
	if f.ServiceID != "" {
		query += ` AND service_id = ` + next(f.ServiceID)
	}
	if f.AssigneeID != "" {
		query += ` AND assignee_id = ` + next(f.AssigneeID)
	}
	if f.Status != "" {
		query += ` AND status = ` + next(string(f.Status))
	}
	if f.Search != "" {
		query += ` AND (name ILIKE ` + next("%"+f.Search+"%") + ` OR description ILIKE ` + next("%"+f.Search+"%") + `)`
	}
	if f.DueBefore != nil {
		query += ` AND due_date < ` + next(*f.DueBefore)
	}

	query += ` ORDER BY status, position`
	if f.Limit > 0 {
		query += ` LIMIT ` + next(f.Limit)
	}
	if f.Offset > 0 {
		query += ` OFFSET ` + next(f.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks in workspace %s: %w", workspaceID, err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (r *taskRepository) Update(ctx context.Context, task *domain.Task) error {
	tag, err := r.pool.Exec(ctx, updateTaskSQL, updateTaskArgs(task)...)
	if err != nil {
		return fmt.Errorf("update task %s: %w", task.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.TaskNotFoundError{TaskID: task.ID}
	}
	return nil
}

// Transfer moves the task and its chat thread to task.WorkspaceID atomically.
func (r *taskRepository) Transfer(ctx context.Context, task *domain.Task) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transfer of task %s: %w", task.ID, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, updateTaskSQL, updateTaskArgs(task)...); err != nil {
		return fmt.Errorf("transfer task %s: %w", task.ID, err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE chat_messages SET workspace_id = $1 WHERE task_id = $2
	`, task.WorkspaceID, task.ID); err != nil {
		return fmt.Errorf("relocate messages of task %s: %w", task.ID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transfer of task %s: %w", task.ID, err)
	}
	return nil
}

const updateTaskSQL = `
	UPDATE tasks SET
		name = $2, status = $3, workspace_id = $4, service_id = $5,
		assignee_id = $6, reviewer_id = $7, position = $8, due_date = $9,
		description = $10, attachment_id = $11, is_confidential = $12,
		followers = $13, updated_at = $14
	WHERE id = $1`

func updateTaskArgs(task *domain.Task) []any {
	return []any{
		task.ID, task.Name, string(task.Status), task.WorkspaceID, task.ServiceID,
		task.AssigneeID, task.ReviewerID, task.Position, task.DueDate,
		task.Description, task.AttachmentID, task.IsConfidential,
		task.Followers, task.UpdatedAt,
	}
}

// scanTask reads a task row from any pgx row type.
func scanTask(row interface {
	Scan(...any) error
}) (*domain.Task, error) {
	var task domain.Task
	var statusStr string
	err := row.Scan(
		&task.ID, &task.Number, &task.Name, &statusStr, &task.WorkspaceID,
		&task.ServiceID, &task.AssigneeID, &task.ReviewerID, &task.Position,
		&task.DueDate, &task.Description, &task.AttachmentID,
		&task.IsConfidential, &task.CreatedBy, &task.Followers,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	task.Status = domain.Status(statusStr)
	return &task, nil
}
