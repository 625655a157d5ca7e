package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/r3dhorse/task-management-system-sub000/internal/domain"
)

// DirectoryRepository resolves memberships, services, and the display names
// the audit trail denormalizes at write time.
type DirectoryRepository interface {
	// MemberOf returns the user's membership in the workspace, or a
	// NotMemberError when there is none.
	MemberOf(ctx context.Context, userID, workspaceID string) (*domain.Member, error)
	GetService(ctx context.Context, serviceID string) (*domain.Service, error)
	UserName(ctx context.Context, userID string) (string, error)
	ServiceName(ctx context.Context, serviceID string) (string, error)
	WorkspaceName(ctx context.Context, workspaceID string) (string, error)
}

type directoryRepository struct {
	pool *pgxpool.Pool
}

// NewDirectoryRepository wraps a pgxpool with the DirectoryRepository interface.
func NewDirectoryRepository(pool *pgxpool.Pool) DirectoryRepository {
	return &directoryRepository{pool: pool}
}

func (r *directoryRepository) MemberOf(ctx context.Context, userID, workspaceID string) (*domain.Member, error) {
	var m domain.Member
	var role string
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, workspace_id, role
		FROM members
		WHERE user_id = $1 AND workspace_id = $2
	`, userID, workspaceID).Scan(&m.UserID, &m.WorkspaceID, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.NotMemberError{UserID: userID, WorkspaceID: workspaceID}
		}
		return nil, fmt.Errorf("lookup membership of %s in %s: %w", userID, workspaceID, err)
	}
	m.Role = domain.Role(role)
	return &m, nil
}

func (r *directoryRepository) GetService(ctx context.Context, serviceID string) (*domain.Service, error) {
	var s domain.Service
	var freq *string
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, workspace_id, is_public, is_routinary,
		       frequency, next_run_date, sla_days, include_weekends
		FROM services
		WHERE id = $1
	`, serviceID).Scan(
		&s.ID, &s.Name, &s.WorkspaceID, &s.IsPublic, &s.IsRoutinary,
		&freq, &s.NextRunDate, &s.SLADays, &s.IncludeWeekends,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.ServiceNotFoundError{ServiceID: serviceID}
		}
		return nil, fmt.Errorf("get service %s: %w", serviceID, err)
	}
	if freq != nil {
		s.Frequency = domain.Frequency(*freq)
	}
	return &s, nil
}

func (r *directoryRepository) UserName(ctx context.Context, userID string) (string, error) {
	return r.displayName(ctx, `SELECT name FROM users WHERE id = $1`, userID)
}

func (r *directoryRepository) ServiceName(ctx context.Context, serviceID string) (string, error) {
	return r.displayName(ctx, `SELECT name FROM services WHERE id = $1`, serviceID)
}

func (r *directoryRepository) WorkspaceName(ctx context.Context, workspaceID string) (string, error) {
	return r.displayName(ctx, `SELECT name FROM workspaces WHERE id = $1`, workspaceID)
}

// displayName falls back to the raw id when the row is gone, so an audit
// write never fails just because the referenced entity was deleted.
func (r *directoryRepository) displayName(ctx context.Context, query, id string) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, query, id).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return id, nil
		}
		return "", fmt.Errorf("resolve display name for %s: %w", id, err)
	}
	return name, nil
}
