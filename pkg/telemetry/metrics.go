package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── Workflow engine ─────────────────────────────────────────────────────────

	TasksCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskboard",
		Subsystem: "engine",
		Name:      "tasks_created_total",
		Help:      "Total tasks created, labelled by origin (user or routinary).",
	}, []string{"origin"})

	TaskMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskboard",
		Subsystem: "engine",
		Name:      "task_mutations_total",
		Help:      "Total committed task mutations, labelled by operation.",
	}, []string{"operation"})

	NotificationsStored = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskboard",
		Subsystem: "engine",
		Name:      "notifications_stored_total",
		Help:      "Total notification inbox rows written.",
	})

	NotificationEventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskboard",
		Subsystem: "engine",
		Name:      "notification_events_published_total",
		Help:      "Total notification events published to the broker.",
	})

	// ─── Scheduler jobs ──────────────────────────────────────────────────────────

	SweepProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskboard",
		Subsystem: "scheduler",
		Name:      "overdue_sweep_tasks_total",
		Help:      "Tasks handled by the overdue sweep, labelled by outcome.",
	}, []string{"outcome"})

	RoutinarySpawned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskboard",
		Subsystem: "scheduler",
		Name:      "routinary_services_total",
		Help:      "Routinary services handled by the generator, labelled by outcome.",
	}, []string{"outcome"})

	JobSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskboard",
		Subsystem: "scheduler",
		Name:      "job_ticks_skipped_total",
		Help:      "Ticks skipped because the previous run was still in flight.",
	}, []string{"job"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taskboard",
		Subsystem: "scheduler",
		Name:      "job_duration_seconds",
		Help:      "End-to-end duration of one scheduler job run.",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"job"})
)
