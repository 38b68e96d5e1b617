package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/dealflow-backend/internal/analytics"
	"github.com/angelmondragon/dealflow-backend/internal/notifications"
	"github.com/angelmondragon/dealflow-backend/pkg/bigquery"
	"github.com/angelmondragon/dealflow-backend/pkg/config"
	"github.com/angelmondragon/dealflow-backend/pkg/db"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
	"github.com/angelmondragon/dealflow-backend/pkg/metrics"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/dealflow-backend/pkg/pubsub"
	"github.com/angelmondragon/dealflow-backend/pkg/redis"
)

const serviceKind = "worker"

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
		logg.Error(ctx, "worker stopped", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "worker shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	closeCtx := context.WithoutCancel(ctx)

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer closeWith(closeCtx, logg, "database", dbClient.Close)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer closeWith(closeCtx, logg, "redis", redisClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	defer closeWith(closeCtx, logg, "pubsub", pubsubClient.Close)

	dedupe, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return fmt.Errorf("idempotency manager: %w", err)
	}

	deps := map[string]pinger{"database": dbClient, "redis": redisClient, "pubsub": pubsubClient}
	consumers := map[string]consumer{}

	inbox, err := notifications.NewConsumer(
		notifications.NewRepository(dbClient.DB()),
		pubsubClient.NotificationSubscription(),
		dedupe,
		notifications.LogPusher{Logger: logg},
		logg,
	)
	if err != nil {
		return fmt.Errorf("notification consumer: %w", err)
	}
	consumers["notifications"] = inbox

	if cfg.BigQuery.Enabled && cfg.PubSub.AnalyticsSubscription != "" {
		bq, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
		if err != nil {
			return fmt.Errorf("bigquery: %w", err)
		}
		defer closeWith(closeCtx, logg, "bigquery", bq.Close)
		if err := bq.EnsureTable(ctx, cfg.BigQuery.SettlementTable, analytics.FactsSchema()); err != nil {
			return fmt.Errorf("bigquery settlement table: %w", err)
		}
		facts, err := analytics.NewConsumer(bq, cfg.BigQuery.SettlementTable, dedupe, pubsubClient.AnalyticsSubscription(), logg)
		if err != nil {
			return fmt.Errorf("analytics consumer: %w", err)
		}
		deps["bigquery"] = bq
		consumers["analytics"] = facts
	} else {
		logg.Info(ctx, "analytics consumer disabled")
	}

	service, err := NewService(ServiceParams{Logger: logg, Dependencies: deps, Consumers: consumers})
	if err != nil {
		return fmt.Errorf("worker service: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsServer := metrics.Serve(ctx, logg, reg)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(closeCtx, 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	return service.Run(ctx)
}

func closeWith(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", name), "close failed", err)
	}
}
