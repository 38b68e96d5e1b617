package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/dealflow-backend/api/controllers"
	"github.com/angelmondragon/dealflow-backend/api/routes"
	"github.com/angelmondragon/dealflow-backend/internal/app"
	"github.com/angelmondragon/dealflow-backend/internal/payments"
	"github.com/angelmondragon/dealflow-backend/pkg/auth/session"
	"github.com/angelmondragon/dealflow-backend/pkg/config"
	"github.com/angelmondragon/dealflow-backend/pkg/db"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
	"github.com/angelmondragon/dealflow-backend/pkg/metrics"
	"github.com/angelmondragon/dealflow-backend/pkg/migrate"
	"github.com/angelmondragon/dealflow-backend/pkg/redis"
	"github.com/angelmondragon/dealflow-backend/pkg/square"
)

const (
	serviceKind     = "api"
	shutdownTimeout = 15 * time.Second
)

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

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api stopped", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "api shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
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
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	services, err := app.BuildServices(app.Params{
		Config:  cfg,
		DB:      dbClient,
		Locker:  redisClient,
		Gateway: gateway,
		Metrics: metrics.NewMoneyFlowMetrics(reg),
		Logger:  logg,
	})
	if err != nil {
		return fmt.Errorf("services: %w", err)
	}

	var sessions session.AccessSessionChecker
	if cfg.JWT.CheckSession {
		checker, err := session.NewChecker(redisClient)
		if err != nil {
			return fmt.Errorf("session checker: %w", err)
		}
		sessions = checker
	}

	server := &http.Server{
		Addr:              listenAddr(cfg),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return closeCtx },
		Handler: routes.NewRouter(routes.RouterParams{
			Config:        cfg,
			Logger:        logg,
			Gatherer:      reg,
			Health:        map[string]controllers.Pinger{"db": dbClient, "redis": redisClient},
			Sessions:      sessions,
			Store:         redisClient,
			Products:      services.Products,
			Cart:          services.Cart,
			Checkout:      services.Checkout,
			Payments:      services.Payments,
			Deals:         services.Deals,
			Deliveries:    services.Deliveries,
			Reviews:       services.Reviews,
			Settlement:    services.Settlement,
			Notifications: services.Notifications,
		}),
	}
	return serve(ctx, logg, server)
}

// serve blocks until the server fails or ctx ends, then drains in-flight
// requests for up to shutdownTimeout.
func serve(ctx context.Context, logg *logger.Logger, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		logg.Info(logg.WithField(ctx, "addr", server.Addr), "api listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	logg.Info(ctx, "draining api server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// listenAddr prefers the platform-assigned PORT over the configured one.
func listenAddr(cfg *config.Config) string {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = cfg.App.Port
	}
	return ":" + port
}

func closeWith(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", name), "close failed", err)
	}
}
