package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/r3dhorse/task-management-system-sub000/internal/domain"
	"github.com/r3dhorse/task-management-system-sub000/internal/postgres"
	"github.com/r3dhorse/task-management-system-sub000/pkg/telemetry"
)

// OverdueSweep demotes open tasks whose due date has passed back to BACKLOG.
// "Passed" means strictly before the start of the current day in the
// configured reference timezone; a task due today is left alone.
type OverdueSweep struct {
	repo         postgres.SchedulerRepository
	systemUserID string
	location     *time.Location
	logger       *slog.Logger
	now          func() time.Time
}

// NewOverdueSweep builds the sweep job. location is the reference timezone
// used to compute "start of today".
func NewOverdueSweep(repo postgres.SchedulerRepository, systemUserID string, location *time.Location, logger *slog.Logger) *OverdueSweep {
	return &OverdueSweep{
		repo:         repo,
		systemUserID: systemUserID,
		location:     location,
		logger:       logger,
		now:          time.Now,
	}
}

// WithClock overrides the time source, for deterministic tests.
func (j *OverdueSweep) WithClock(now func() time.Time) *OverdueSweep {
	j.now = now
	return j
}

// Run executes one sweep. Each task is demoted in its own transaction; a
// failure is counted and the batch continues.
func (j *OverdueSweep) Run(ctx context.Context) (Result, error) {
	if j.systemUserID == "" {
		return Result{}, errors.New("overdue sweep: no system identity configured")
	}

	now := j.now().In(j.location)
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, j.location)

	tasks, err := j.repo.ListOverdue(ctx, todayStart)
	if err != nil {
		return Result{}, err
	}

	res := Result{Total: len(tasks)}
	for _, task := range tasks {
		entry := &domain.HistoryEntry{
			TaskID:    task.ID,
			UserID:    j.systemUserID,
			Action:    domain.ActionStatusChanged,
			Field:     "status",
			OldValue:  string(task.Status),
			NewValue:  string(domain.StatusBacklog),
			Details:   "due date passed",
			CreatedAt: j.now().UTC(),
		}
		if err := j.repo.DemoteToBacklog(ctx, task.ID, entry); err != nil {
			res.Failed++
			telemetry.SweepProcessed.WithLabelValues("failed").Inc()
			j.logger.Error("overdue demotion failed",
				slog.String("task_id", task.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		res.Success++
		telemetry.SweepProcessed.WithLabelValues("success").Inc()
		j.logger.Info("task demoted to backlog",
			slog.String("task_id", task.ID),
			slog.Int64("number", task.Number),
			slog.Time("due_date", task.DueDate),
		)
	}
	return res, nil
}
