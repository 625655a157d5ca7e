package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/r3dhorse/task-management-system-sub000/internal/jobs"
	"github.com/r3dhorse/task-management-system-sub000/internal/postgres"
	redislock "github.com/r3dhorse/task-management-system-sub000/internal/redis"
	"github.com/r3dhorse/task-management-system-sub000/pkg/telemetry"
	"github.com/r3dhorse/task-management-system-sub000/services/scheduler"
	"github.com/r3dhorse/task-management-system-sub000/services/scheduler/config"
)

const leaderKey = "taskboard:scheduler:leader"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scheduler loops",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("redis-addr", "localhost:6379", "Redis address (host:port)")
	serveCmd.Flags().String("metrics-addr", ":9093", "Prometheus metrics server address")
	serveCmd.Flags().String("system-user-id", "", "user id the jobs act as; required")
	serveCmd.Flags().String("timezone", "UTC", "reference timezone for the overdue cutoff")
	serveCmd.Flags().Duration("startup-delay", 10*time.Second, "delay before the first run of each job")
	serveCmd.Flags().Duration("sweep-interval", time.Hour, "overdue sweep period")
	serveCmd.Flags().Duration("routinary-interval", 30*time.Minute, "routinary generation period")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")

	bindFlag("redis_addr", serveCmd.Flags(), "redis-addr")
	bindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	bindFlag("system_user_id", serveCmd.Flags(), "system-user-id")
	bindFlag("timezone", serveCmd.Flags(), "timezone")
	bindFlag("startup_delay", serveCmd.Flags(), "startup-delay")
	bindFlag("sweep_interval", serveCmd.Flags(), "sweep-interval")
	bindFlag("routinary_interval", serveCmd.Flags(), "routinary-interval")
	bindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, "scheduler")
	instanceID := "scheduler-" + uuid.New().String()[:8]

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "scheduler", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := postgres.NewPool(initCtx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	repo := postgres.NewSchedulerRepository(pool)

	redisClient := redislock.NewClient(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()
	leader := redislock.NewLeaderLock(redisClient, leaderKey, instanceID, 30*time.Second)

	sweep := jobs.NewOverdueSweep(repo, cfg.SystemUserID, location, logger)
	routinary := jobs.NewRoutinaryGenerator(repo, cfg.SystemUserID, location, logger)

	opts := scheduler.DefaultOptions()
	if cfg.StartupDelay > 0 {
		opts.StartupDelay = cfg.StartupDelay
	}
	if cfg.SweepInterval > 0 {
		opts.SweepInterval = cfg.SweepInterval
	}
	if cfg.RoutinaryInterval > 0 {
		opts.RoutinaryInterval = cfg.RoutinaryInterval
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-quit
		logger.Info("shutting down...")
		runCancel()
	}()

	sched := scheduler.New(sweep, routinary, leader, opts, logger)
	logger.Info("scheduler starting",
		slog.String("instance_id", instanceID),
		slog.Duration("sweep_interval", opts.SweepInterval),
		slog.Duration("routinary_interval", opts.RoutinaryInterval),
	)
	sched.Run(runCtx)
	logger.Info("stopped")
	return nil
}
