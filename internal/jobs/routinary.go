package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/r3dhorse/task-management-system-sub000/internal/domain"
	"github.com/r3dhorse/task-management-system-sub000/internal/postgres"
	"github.com/r3dhorse/task-management-system-sub000/pkg/telemetry"
)

// RoutinaryGenerator spawns a fresh TODO task for every routinary service
// whose next run has elapsed, then advances the service's next run by its
// frequency. Spawn and advance commit atomically per service.
type RoutinaryGenerator struct {
	repo         postgres.SchedulerRepository
	systemUserID string
	location     *time.Location
	logger       *slog.Logger
	now          func() time.Time
}

// NewRoutinaryGenerator builds the generator job.
func NewRoutinaryGenerator(repo postgres.SchedulerRepository, systemUserID string, location *time.Location, logger *slog.Logger) *RoutinaryGenerator {
	return &RoutinaryGenerator{
		repo:         repo,
		systemUserID: systemUserID,
		location:     location,
		logger:       logger,
		now:          time.Now,
	}
}

// WithClock overrides the time source, for deterministic tests.
func (j *RoutinaryGenerator) WithClock(now func() time.Time) *RoutinaryGenerator {
	j.now = now
	return j
}

// Run executes one generation pass. One service's failure does not halt the
// others.
func (j *RoutinaryGenerator) Run(ctx context.Context) (Result, error) {
	if j.systemUserID == "" {
		return Result{}, errors.New("routinary generator: no system identity configured")
	}

	now := j.now().UTC()
	services, err := j.repo.ListDueRoutinary(ctx, now)
	if err != nil {
		return Result{}, err
	}

	res := Result{Total: len(services)}
	for _, svc := range services {
		if err := j.spawn(ctx, svc, now); err != nil {
			res.Failed++
			telemetry.RoutinarySpawned.WithLabelValues("failed").Inc()
			j.logger.Error("routinary spawn failed",
				slog.String("service_id", svc.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		res.Success++
		telemetry.RoutinarySpawned.WithLabelValues("success").Inc()
	}
	return res, nil
}

func (j *RoutinaryGenerator) spawn(ctx context.Context, svc *domain.Service, now time.Time) error {
	task := &domain.Task{
		Name:        fmt.Sprintf("%s %s", svc.Name, now.In(j.location).Format("January 2006")),
		Status:      domain.StatusTodo,
		WorkspaceID: svc.WorkspaceID,
		ServiceID:   svc.ID,
		DueDate:     svc.DueDateFrom(now),
		CreatedBy:   j.systemUserID,
		Followers:   []string{j.systemUserID},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	entry := &domain.HistoryEntry{
		UserID:    j.systemUserID,
		Action:    domain.ActionCreated,
		NewValue:  task.Name,
		Details:   "generated from routinary service " + svc.Name,
		CreatedAt: now,
	}

	// Advance from the scheduled slot, not from now, so a late run does not
	// shift the whole cadence.
	nextRun := svc.Frequency.Next(*svc.NextRunDate)

	if err := j.repo.SpawnRoutinary(ctx, task, entry, svc.ID, nextRun); err != nil {
		return err
	}
	telemetry.TasksCreated.WithLabelValues("routinary").Inc()
	j.logger.Info("routinary task spawned",
		slog.String("service_id", svc.ID),
		slog.String("task_id", task.ID),
		slog.Int64("number", task.Number),
		slog.Time("next_run", nextRun),
	)
	return nil
}
