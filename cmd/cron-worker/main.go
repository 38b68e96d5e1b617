package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/dealflow-backend/internal/app"
	"github.com/angelmondragon/dealflow-backend/internal/cron"
	"github.com/angelmondragon/dealflow-backend/internal/payments"
	"github.com/angelmondragon/dealflow-backend/pkg/config"
	"github.com/angelmondragon/dealflow-backend/pkg/db"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
	"github.com/angelmondragon/dealflow-backend/pkg/metrics"
	"github.com/angelmondragon/dealflow-backend/pkg/migrate"
	"github.com/angelmondragon/dealflow-backend/pkg/redis"
	"github.com/angelmondragon/dealflow-backend/pkg/square"
)

const serviceKind = "cron-worker"

func main() {
	boot := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		boot.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		boot.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceKind})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	// ctx may already be canceled on shutdown; closers get a fresh one.
	closeCtx := context.WithoutCancel(ctx)

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer closeWith(closeCtx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer closeWith(closeCtx, logg, "redis", redisClient.Close)

	squareClient, err := square.NewClient(ctx, cfg.Square, logg)
	if err != nil {
		return fmt.Errorf("square: %w", err)
	}
	gateway, err := payments.NewSquareGateway(squareClient)
	if err != nil {
		return fmt.Errorf("payment gateway: %w", err)
	}

	reg := prometheus.NewRegistry()
	services, err := app.BuildServices(app.Params{
		Config:  cfg,
		DB:      dbClient,
		Gateway: gateway,
		Metrics: metrics.NewMoneyFlowMetrics(reg),
		Logger:  logg,
	})
	if err != nil {
		return fmt.Errorf("services: %w", err)
	}

	registry, err := jobs(cfg, logg, dbClient, services)
	if err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg), cfg.Cron.LockTTL)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(reg),
		Interval:   cfg.Cron.Interval(),
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	metricsServer := metrics.Serve(ctx, logg, reg)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(closeCtx, 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	return service.Run(ctx)
}

// jobs builds the registry. Auto-complete goes before the sweep so deals it
// completes settle in the same cycle.
func jobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, services *app.Services) (*cron.Registry, error) {
	builders := []func() (cron.Job, error){
		func() (cron.Job, error) {
			return cron.NewDealAutoCompleteJob(cron.DealAutoCompleteJobParams{
				Logger: logg, Deals: services.Deals, BatchSize: cfg.Cron.CompleteBatchSize,
			})
		},
		func() (cron.Job, error) {
			return cron.NewSettlementSweepJob(cron.SettlementSweepJobParams{
				Logger: logg, Ledger: services.Settlement, BatchSize: cfg.Cron.SettleBatchSize,
			})
		},
		func() (cron.Job, error) {
			return cron.NewCartReconcileJob(cron.CartReconcileJobParams{
				Logger: logg, Carts: services.Cart, BatchSize: cfg.Cron.ReconcileBatchSize,
			})
		},
		func() (cron.Job, error) {
			return cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
				Logger: logg, DB: dbClient, Repository: services.OutboxRepo, Retention: cfg.Cron.OutboxRetentionDays,
			})
		},
		func() (cron.Job, error) {
			return cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
				Logger: logg, DB: dbClient, Repository: services.NotifyRepo, Retention: cfg.Cron.NotificationRetentionDays,
			})
		},
	}
	registry := cron.NewRegistry()
	for _, build := range builders {
		job, err := build()
		if err != nil {
			return nil, err
		}
		if err := registry.Register(job); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func lockKey(cfg *config.Config) string {
	if key := strings.TrimSpace(cfg.Cron.LockKey); key != "" {
		return key
	}
	env := strings.TrimSpace(cfg.App.Env)
	if env == "" {
		env = "local"
	}
	return "df:cron-worker:lock:" + env
}

func closeWith(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", name), "close failed", err)
	}
}
