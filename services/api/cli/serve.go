package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/r3dhorse/task-management-system-sub000/internal/engine"
	"github.com/r3dhorse/task-management-system-sub000/internal/jobs"
	"github.com/r3dhorse/task-management-system-sub000/internal/kafka"
	"github.com/r3dhorse/task-management-system-sub000/internal/postgres"
	"github.com/r3dhorse/task-management-system-sub000/pkg/telemetry"
	"github.com/r3dhorse/task-management-system-sub000/services/api/config"
	"github.com/r3dhorse/task-management-system-sub000/services/api/handler"
	"github.com/r3dhorse/task-management-system-sub000/services/api/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("http-port", "8080", "HTTP server port")
	serveCmd.Flags().String("metrics-addr", ":9095", "Prometheus metrics server address")
	serveCmd.Flags().String("kafka-brokers", "localhost:9092", "comma-separated Kafka broker addresses; empty disables event publishing")
	serveCmd.Flags().String("jwt-secret", "changeme", "JWT signing secret")
	serveCmd.Flags().String("system-user-id", "system", "user id recorded on scheduler-made changes")
	serveCmd.Flags().String("timezone", "UTC", "IANA timezone for day-boundary calculations")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")

	bindFlag("http_port", serveCmd.Flags(), "http-port")
	bindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	bindFlag("kafka_brokers", serveCmd.Flags(), "kafka-brokers")
	bindFlag("jwt_secret", serveCmd.Flags(), "jwt-secret")
	bindFlag("system_user_id", serveCmd.Flags(), "system-user-id")
	bindFlag("timezone", serveCmd.Flags(), "timezone")
	bindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, "api")

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "api", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}

	var producer kafka.Producer
	if cfg.KafkaBrokers != "" {
		producer = kafka.NewProducer(strings.Split(cfg.KafkaBrokers, ","))
		defer func() { _ = producer.Close() }()
	}

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := postgres.NewPool(initCtx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	tasks := postgres.NewTaskRepository(pool)
	history := postgres.NewHistoryRepository(pool)
	notifications := postgres.NewNotificationRepository(pool)
	dir := postgres.NewDirectoryRepository(pool)
	schedRepo := postgres.NewSchedulerRepository(pool)

	recorder := engine.NewHistoryRecorder(history, dir, logger)
	notifier := engine.NewNotifier(notifications, producer, logger)
	eng := engine.New(tasks, history, dir, recorder, notifier, logger)

	// Manual job triggers share the scheduler's job implementations.
	sweep := jobs.NewOverdueSweep(schedRepo, cfg.SystemUserID, location, logger)
	routinary := jobs.NewRoutinaryGenerator(schedRepo, cfg.SystemUserID, location, logger)

	rest := handler.NewREST(eng, notifications, sweep, routinary, pool.Ping, logger)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1MB limit
	r.Get("/healthz", rest.Healthz)
	r.Get("/readyz", rest.Readyz)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(cfg.JWTSecret))
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

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ── signal handling ───────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	// ── Prometheus metrics ────────────────────────────────────────────────────
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, logger)

	go func() {
		logger.Info("api HTTP starting", slog.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	<-quit
	logger.Info("shutting down...")
	runCancel()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("stopped")
	return nil
}
