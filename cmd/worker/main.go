package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jwalitptl/telemed-api/internal/config"
	"github.com/jwalitptl/telemed-api/internal/email"
	"github.com/jwalitptl/telemed-api/internal/handler/health"
	"github.com/jwalitptl/telemed-api/internal/handler/prometheus"
	"github.com/jwalitptl/telemed-api/internal/repository/postgres"
	"github.com/jwalitptl/telemed-api/internal/service/audit"
	auditworker "github.com/jwalitptl/telemed-api/internal/worker"
	"github.com/jwalitptl/telemed-api/pkg/logger"
	"github.com/jwalitptl/telemed-api/pkg/messaging/redis"
	"github.com/jwalitptl/telemed-api/pkg/metrics"
	"github.com/jwalitptl/telemed-api/pkg/worker"
)

const metricsNamespace = "telemed_worker"

func setupHealthServer(port int, checks map[string]health.Pinger, promHandler *prometheus.Handler, log *zap.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	health.NewHandler(checks).RegisterRoutes(engine)
	engine.GET("/metrics", promHandler.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("health check server failed", zap.Error(err))
		}
	}()
	return srv
}

func main() {
	cfg, err := config.Load(os.Getenv("TELEMED_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewZap(cfg.Log.Level, cfg.Log.Format, "telemed-worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(ctx, redis.Config{URL: cfg.Redis.URL, MaxRetries: 3}, log)
	if err != nil {
		log.Fatal("failed to create Redis broker", zap.Error(err))
	}
	defer broker.Close()

	repos := postgres.NewRepositories(db)
	promHandler := prometheus.New(metricsNamespace)
	m := metrics.NewMetrics(metricsNamespace, promHandler.Registry())

	var notifier worker.Notifier
	if cfg.SMTP.Enabled() && cfg.Emergency.NotifyEmail != "" {
		notifier = email.NewEmergencyNotifier(email.NewSMTPService(cfg.SMTP), cfg.Emergency.NotifyEmail, log)
	} else {
		log.Info("emergency e-mail notifications disabled")
	}

	processor, err := worker.NewOutboxProcessor(repos.Tx, repos.Outbox, broker, notifier, worker.OutboxProcessorConfig{
		Channel:       cfg.Redis.Channel,
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  cfg.Outbox.PollInterval,
		RetryAttempts: cfg.Outbox.RetryAttempts,
		RetryDelay:    cfg.Outbox.RetryDelay,
		Retention:     cfg.Outbox.Retention,
	}, log, m)
	if err != nil {
		log.Fatal("invalid outbox configuration", zap.Error(err))
	}

	cleanup := auditworker.NewAuditCleanupWorker(audit.NewService(repos.Audit),
		cfg.Audit.RetentionDays, cfg.Audit.CleanupInterval, log, m)

	srv := setupHealthServer(cfg.Worker.HealthPort, map[string]health.Pinger{
		"database": db,
		"redis":    broker,
	}, promHandler, log)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		cleanup.Start(ctx)
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	wg.Wait()

	shutdownCtx, done := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("health server forced to shutdown", zap.Error(err))
	}
}
