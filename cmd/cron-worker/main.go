package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/dormhousing-backend/internal/audit"
	"github.com/angelmondragon/dormhousing-backend/internal/booking"
	"github.com/angelmondragon/dormhousing-backend/internal/cron"
	"github.com/angelmondragon/dormhousing-backend/pkg/config"
	"github.com/angelmondragon/dormhousing-backend/pkg/db"
	"github.com/angelmondragon/dormhousing-backend/pkg/logger"
	"github.com/angelmondragon/dormhousing-backend/pkg/metrics"
	"github.com/angelmondragon/dormhousing-backend/pkg/migrate"
	"github.com/angelmondragon/dormhousing-backend/pkg/outbox"
	"github.com/angelmondragon/dormhousing-backend/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	if err := godotenv.Load(); err != nil {
		logger.New(logger.Options{ServiceName: serviceKind}).Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: serviceKind}).Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.ConsoleLogs(),
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceKind})

	dbClient, err := db.New(ctx, cfg.DB, logg, db.WithLockTimeout(cfg.Booking.LockTimeout))
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	recorder := audit.NewRecorder(dbClient.DB(), logg, cfg.Booking.AuditQueueSize)
	recorder.Start()
	defer recorder.Close()

	jobs, err := buildJobs(cfg, logg, dbClient, recorder)
	if err != nil {
		return err
	}

	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceKind+":"+env), cron.DefaultLockTTL)
	if err != nil {
		return err
	}

	scheduler, err := cron.NewScheduler(cron.SchedulerParams{
		Logger:   logg,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Jobs:     jobs,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return err
	}

	logg.Info(ctx, "starting cron worker")
	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
	return nil
}

func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, recorder *audit.Recorder) ([]cron.Job, error) {
	var jobs []cron.Job
	if cfg.Cron.ReconcileEnabled {
		engine, err := booking.NewForDB(
			dbClient,
			dbClient.DB(),
			recorder,
			metrics.NewBookingMetrics(prometheus.DefaultRegisterer),
			logg,
			booking.OptionsFromConfig(cfg.Booking),
		)
		if err != nil {
			return nil, err
		}
		job, err := cron.NewReconcileOccupancyJob(cron.ReconcileOccupancyJobParams{Logger: logg, Reconciler: engine})
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	retention, err := cron.NewRetentionJob(logg,
		cron.Sweep{
			Table:     "outbox_events",
			Retention: cfg.Cron.OutboxRetention,
			Delete:    outbox.NewRepository(dbClient.DB()).DeletePublishedBefore,
		},
		cron.Sweep{
			Table:     "outbox_dlq",
			Retention: cfg.Cron.DLQRetention,
			Delete:    outbox.NewDLQRepository(dbClient.DB()).DeleteFailedBefore,
		},
	)
	if err != nil {
		return nil, err
	}
	return append(jobs, retention), nil
}
