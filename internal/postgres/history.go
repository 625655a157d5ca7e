package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/r3dhorse/task-management-system-sub000/internal/domain"
)

// HistoryRepository persists the append-only audit trail. There is no update
// or delete surface on purpose.
type HistoryRepository interface {
	Append(ctx context.Context, entry *domain.HistoryEntry) error
	ListByTask(ctx context.Context, taskID string) ([]*domain.HistoryEntry, error)
}

type historyRepository struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository wraps a pgxpool with the HistoryRepository interface.
func NewHistoryRepository(pool *pgxpool.Pool) HistoryRepository {
	return &historyRepository{pool: pool}
}

func (r *historyRepository) Append(ctx context.Context, entry *domain.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO task_history
			(id, task_id, user_id, action, field, old_value, new_value, details, created_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		entry.ID, entry.TaskID, entry.UserID, string(entry.Action),
		entry.Field, entry.OldValue, entry.NewValue, entry.Details, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append history for task %s: %w", entry.TaskID, err)
	}
	return nil
}

// ListByTask returns entries newest-first, capped at HistoryPageSize.
func (r *historyRepository) ListByTask(ctx context.Context, taskID string) ([]*domain.HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, task_id, user_id, action, field, old_value, new_value, details, created_at
		FROM task_history
		WHERE task_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, taskID, domain.HistoryPageSize)
	if err != nil {
		return nil, fmt.Errorf("list history for task %s: %w", taskID, err)
	}
	defer rows.Close()

	var entries []*domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		var action string
		if err := rows.Scan(
			&e.ID, &e.TaskID, &e.UserID, &action,
			&e.Field, &e.OldValue, &e.NewValue, &e.Details, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		e.Action = domain.Action(action)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
