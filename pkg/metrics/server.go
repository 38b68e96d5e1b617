package metrics

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/dealflow-backend/pkg/logger"
)

const defaultMetricsPort = "9090"

// Serve exposes g at /metrics on METRICS_PORT for binaries that have no
// HTTP API of their own. The caller owns shutdown.
func Serve(ctx context.Context, logg *logger.Logger, g prometheus.Gatherer) *http.Server {
	port := strings.TrimSpace(os.Getenv("METRICS_PORT"))
	if port == "" {
		port = defaultMetricsPort
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()
	return server
}
