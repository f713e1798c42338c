package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/telemed-api/internal/config"
	"github.com/jwalitptl/telemed-api/internal/handler/health"
	"github.com/jwalitptl/telemed-api/internal/handler/prometheus"
	"github.com/jwalitptl/telemed-api/internal/repository/postgres"
	"github.com/jwalitptl/telemed-api/internal/router"
	"github.com/jwalitptl/telemed-api/internal/service"
	"github.com/jwalitptl/telemed-api/pkg/auth"
	"github.com/jwalitptl/telemed-api/pkg/logger"
	"github.com/jwalitptl/telemed-api/pkg/metrics"
	"github.com/jwalitptl/telemed-api/pkg/security"
)

const metricsNamespace = "telemed"

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("TELEMED_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	l := logger.NewLogger(&logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
	})
	l.SetGlobal()

	// Initialize database
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("jwt.secret must be set")
	}
	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)

	promHandler := prometheus.New(metricsNamespace)
	m := metrics.NewMetrics(metricsNamespace, promHandler.Registry())

	svcs := service.New(postgres.NewRepositories(db), cfg, m, jwtSvc, security.NewBcryptHasher(bcrypt.DefaultCost))

	healthHandler := health.NewHandler(map[string]health.Pinger{"database": db})

	r := router.NewAPI(cfg, l.Zerolog(), svcs, jwtSvc, promHandler, healthHandler)

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
