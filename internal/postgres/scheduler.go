package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/r3dhorse/task-management-system-sub000/internal/domain"
)

// SchedulerRepository holds the queries and transactions the background jobs
// need. Both mutating methods are single transactions so a job item either
// lands completely or not at all.
type SchedulerRepository interface {
	ListOverdue(ctx context.Context, before time.Time) ([]*domain.Task, error)
	// DemoteToBacklog moves the task to BACKLOG and appends the audit entry
	// in one transaction.
	DemoteToBacklog(ctx context.Context, taskID string, entry *domain.HistoryEntry) error
	ListDueRoutinary(ctx context.Context, now time.Time) ([]*domain.Service, error)
	// SpawnRoutinary inserts the generated task, advances the service's next
	// run, and appends the CREATED audit entry in one transaction.
	SpawnRoutinary(ctx context.Context, task *domain.Task, entry *domain.HistoryEntry, serviceID string, nextRun time.Time) error
}

type schedulerRepository struct {
	pool *pgxpool.Pool
}

// NewSchedulerRepository wraps a pgxpool with the SchedulerRepository interface.
func NewSchedulerRepository(pool *pgxpool.Pool) SchedulerRepository {
	return &schedulerRepository{pool: pool}
}

func (r *schedulerRepository) ListOverdue(ctx context.Context, before time.Time) ([]*domain.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+taskColumns+`
		FROM tasks
		WHERE status = ANY($1) AND due_date < $2
		ORDER BY due_date
	`, []string{
		string(domain.StatusTodo),
		string(domain.StatusInProgress),
		string(domain.StatusInReview),
	}, before)
	if err != nil {
		return nil, fmt.Errorf("list overdue tasks: %w", err)
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

func (r *schedulerRepository) DemoteToBacklog(ctx context.Context, taskID string, entry *domain.HistoryEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin demote of task %s: %w", taskID, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, `
		UPDATE tasks SET status = $1, updated_at = $2 WHERE id = $3
	`, string(domain.StatusBacklog), entry.CreatedAt, taskID)
	if err != nil {
		return fmt.Errorf("demote task %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.TaskNotFoundError{TaskID: taskID}
	}

	if err := appendHistoryTx(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit demote of task %s: %w", taskID, err)
	}
	return nil
}

func (r *schedulerRepository) ListDueRoutinary(ctx context.Context, now time.Time) ([]*domain.Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, workspace_id, is_public, is_routinary,
		       frequency, next_run_date, sla_days, include_weekends
		FROM services
		WHERE is_routinary = TRUE AND next_run_date IS NOT NULL AND next_run_date <= $1
		ORDER BY next_run_date
	`, now)
	if err != nil {
		return nil, fmt.Errorf("list due routinary services: %w", err)
	}
	defer rows.Close()

	var services []*domain.Service
	for rows.Next() {
		var s domain.Service
		var freq *string
		if err := rows.Scan(
			&s.ID, &s.Name, &s.WorkspaceID, &s.IsPublic, &s.IsRoutinary,
			&freq, &s.NextRunDate, &s.SLADays, &s.IncludeWeekends,
		); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		if freq != nil {
			s.Frequency = domain.Frequency(*freq)
		}
		services = append(services, &s)
	}
	return services, rows.Err()
}

func (r *schedulerRepository) SpawnRoutinary(ctx context.Context, task *domain.Task, entry *domain.HistoryEntry, serviceID string, nextRun time.Time) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin spawn for service %s: %w", serviceID, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	row := tx.QueryRow(ctx, `
		INSERT INTO tasks
			(id, number, name, status, workspace_id, service_id, assignee_id,
			 reviewer_id, position, due_date, description, attachment_id,
			 is_confidential, created_by, followers, created_at, updated_at)
		VALUES
			($1, nextval('tasks_number_seq'), $2, $3, $4, $5, NULL, NULL,
			 (SELECT COALESCE(MAX(position), 0) + $6
			    FROM tasks WHERE workspace_id = $4 AND status = $3),
			 $7, $8, NULL, FALSE, $9, $10, $11, $11)
		RETURNING number, position
	`,
		task.ID, task.Name, string(task.Status), task.WorkspaceID, task.ServiceID,
		float64(domain.PositionStep), task.DueDate, task.Description,
		task.CreatedBy, task.Followers, task.CreatedAt,
	)
	if err := row.Scan(&task.Number, &task.Position); err != nil {
		return fmt.Errorf("spawn task for service %s: %w", serviceID, err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE services SET next_run_date = $1 WHERE id = $2
	`, nextRun, serviceID); err != nil {
		return fmt.Errorf("advance next run of service %s: %w", serviceID, err)
	}

	entry.TaskID = task.ID
	if err := appendHistoryTx(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit spawn for service %s: %w", serviceID, err)
	}
	return nil
}

func appendHistoryTx(ctx context.Context, tx pgx.Tx, entry *domain.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO task_history
			(id, task_id, user_id, action, field, old_value, new_value, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		entry.ID, entry.TaskID, entry.UserID, string(entry.Action),
		entry.Field, entry.OldValue, entry.NewValue, entry.Details, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append history for task %s: %w", entry.TaskID, err)
	}
	return nil
}
