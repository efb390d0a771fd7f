package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/dormhousing-backend/api/routes"
	"github.com/angelmondragon/dormhousing-backend/internal/applications"
	"github.com/angelmondragon/dormhousing-backend/internal/audit"
	"github.com/angelmondragon/dormhousing-backend/internal/booking"
	"github.com/angelmondragon/dormhousing-backend/internal/catalog"
	"github.com/angelmondragon/dormhousing-backend/internal/notifications"
	"github.com/angelmondragon/dormhousing-backend/pkg/config"
	"github.com/angelmondragon/dormhousing-backend/pkg/db"
	"github.com/angelmondragon/dormhousing-backend/pkg/logger"
	"github.com/angelmondragon/dormhousing-backend/pkg/metrics"
	"github.com/angelmondragon/dormhousing-backend/pkg/migrate"
	"github.com/angelmondragon/dormhousing-backend/pkg/outbox"
	"github.com/angelmondragon/dormhousing-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.ConsoleLogs(),
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg, db.WithLockTimeout(cfg.Booking.LockTimeout))
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	recorder := audit.NewRecorder(dbClient.DB(), logg, cfg.Booking.AuditQueueSize)
	recorder.Start()
	defer func() {
		recorder.Close()
		if dropped := recorder.Dropped(); dropped > 0 {
			logg.Warn(logg.WithField(context.Background(), "dropped", dropped), "audit entries dropped")
		}
		if err := multierr.Combine(redisClient.Close(), dbClient.Close()); err != nil {
			logg.Error(context.Background(), "error closing api dependencies", err)
		}
	}()

	engine, err := booking.NewForDB(
		dbClient,
		dbClient.DB(),
		recorder,
		metrics.NewBookingMetrics(prometheus.DefaultRegisterer),
		logg,
		booking.OptionsFromConfig(cfg.Booking),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create booking engine", err)
		os.Exit(1)
	}

	dispatcher, err := notifications.NewDispatcher(dbClient, outbox.NewService(outbox.NewRepository(dbClient.DB()), logg), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification dispatcher", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			DB:           dbClient,
			Redis:        redisClient,
			Booking:      engine,
			Applications: applications.NewRepository(dbClient.DB()),
			Reports:      catalog.NewService(catalog.NewRepository(dbClient.DB())),
			Notifier:     dispatcher,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
		}
		return
	case <-sigCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "api server shutdown failed", err)
		return
	}
	logg.Info(ctx, "api server shut down gracefully")
}
