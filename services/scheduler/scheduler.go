// Package scheduler runs the two background jobs on independent timers.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/r3dhorse/task-management-system-sub000/internal/jobs"
	redislock "github.com/r3dhorse/task-management-system-sub000/internal/redis"
	"github.com/r3dhorse/task-management-system-sub000/pkg/telemetry"
)

// Job is one schedulable unit of autonomous work.
type Job interface {
	Run(ctx context.Context) (jobs.Result, error)
}

// Options controls the timing of both jobs.
type Options struct {
	// StartupDelay is how long after process start each job first fires.
	StartupDelay time.Duration
	// SweepInterval is the overdue sweep period.
	SweepInterval time.Duration
	// RoutinaryInterval is the routinary generation period.
	RoutinaryInterval time.Duration
}

// DefaultOptions matches the production cadence: both jobs fire shortly
// after start, the sweep hourly and the generator every thirty minutes.
func DefaultOptions() Options {
	return Options{
		StartupDelay:      10 * time.Second,
		SweepInterval:     time.Hour,
		RoutinaryInterval: 30 * time.Minute,
	}
}

// Scheduler owns the two job loops. Each loop carries its own in-flight
// flag: a tick that arrives while the previous run is still executing is
// skipped, never queued. With a leader lock set, only the elected replica
// actually runs the jobs.
type Scheduler struct {
	sweep     Job
	routinary Job
	leader    *redislock.LeaderLock // nil when running single-instance
	opts      Options
	logger    *slog.Logger

	sweepBusy     atomic.Bool
	routinaryBusy atomic.Bool
}

// New builds a Scheduler. leader may be nil.
func New(sweep, routinary Job, leader *redislock.LeaderLock, opts Options, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		sweep:     sweep,
		routinary: routinary,
		leader:    leader,
		opts:      opts,
		logger:    logger,
	}
}

// Run starts both loops and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.loop(ctx, "overdue_sweep", s.opts.SweepInterval, s.RunSweep)
	}()
	go func() {
		defer wg.Done()
		s.loop(ctx, "routinary_generation", s.opts.RoutinaryInterval, s.RunRoutinary)
	}()
	wg.Wait()

	if s.leader != nil {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.leader.Release(releaseCtx)
	}
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, run func(context.Context) (jobs.Result, bool)) {
	// First run fires once shortly after start, then on the fixed period.
	startup := time.NewTimer(s.opts.StartupDelay)
	defer startup.Stop()
	select {
	case <-ctx.Done():
		return
	case <-startup.C:
		run(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run(ctx)
		}
	}
}

// RunSweep executes one overdue sweep tick. The second return value reports
// whether the tick actually ran (false: skipped because a previous run is
// still in flight, or this replica is not the leader).
func (s *Scheduler) RunSweep(ctx context.Context) (jobs.Result, bool) {
	return s.tick(ctx, "overdue_sweep", &s.sweepBusy, s.sweep)
}

// RunRoutinary executes one routinary generation tick.
func (s *Scheduler) RunRoutinary(ctx context.Context) (jobs.Result, bool) {
	return s.tick(ctx, "routinary_generation", &s.routinaryBusy, s.routinary)
}

func (s *Scheduler) tick(ctx context.Context, name string, busy *atomic.Bool, job Job) (jobs.Result, bool) {
	if !busy.CompareAndSwap(false, true) {
		telemetry.JobSkipped.WithLabelValues(name).Inc()
		s.logger.Warn("tick skipped, previous run still in flight", slog.String("job", name))
		return jobs.Result{}, false
	}
	defer busy.Store(false)

	if s.leader != nil {
		isLeader, err := s.leader.AcquireOrRenew(ctx)
		if err != nil {
			s.logger.Error("leader election failed", slog.String("job", name), slog.String("error", err.Error()))
			return jobs.Result{}, false
		}
		if !isLeader {
			return jobs.Result{}, false
		}
	}

	start := time.Now()
	res, err := job.Run(ctx)
	telemetry.JobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		// A whole-job failure aborts this run only; the next tick retries.
		s.logger.Error("job run failed", slog.String("job", name), slog.String("error", err.Error()))
		return jobs.Result{}, true
	}
	s.logger.Info("job run complete",
		slog.String("job", name),
		slog.Int("total", res.Total),
		slog.Int("success", res.Success),
		slog.Int("failed", res.Failed),
	)
	return res, true
}
