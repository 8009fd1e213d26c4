// Package server exposes the health and metrics endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/nholik/openstack-service-checks/internal/healthcheck"
	"github.com/nholik/openstack-service-checks/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

// Options selects which endpoints are served and where. A zero port disables a server.
type Options struct {
	PollInterval time.Duration
	Tracker      *healthcheck.Tracker
	Metrics      *metrics.Metrics
	// Status serves the persisted agent state on the health port when set.
	Status      http.Handler
	HealthPort  int
	MetricsPort int
}

// Start launches health and metrics HTTP servers as configured.
func Start(ctx context.Context, logger zerolog.Logger, opts Options) {
	for port, mux := range Muxes(opts) {
		label := "health"
		switch {
		case port == opts.HealthPort && port == opts.MetricsPort:
			label = "health/metrics"
		case port == opts.MetricsPort:
			label = "metrics"
		}
		startServer(ctx, logger, mux, port, label)
	}
}

// Muxes builds one mux per configured port; health and metrics share a mux when their ports match.
func Muxes(opts Options) map[int]*http.ServeMux {
	muxes := make(map[int]*http.ServeMux)
	mux := func(port int) *http.ServeMux {
		if existing, ok := muxes[port]; ok {
			return existing
		}
		created := http.NewServeMux()
		muxes[port] = created
		return created
	}

	if opts.HealthPort > 0 {
		registerHealthRoutes(mux(opts.HealthPort), opts)
	}
	if opts.MetricsPort > 0 {
		registerMetricsRoute(mux(opts.MetricsPort), opts.Metrics)
	}
	return muxes
}

func registerHealthRoutes(mux *http.ServeMux, opts Options) {
	mux.HandleFunc("/healthz", healthcheck.HealthHandler(opts.Tracker, opts.PollInterval))
	mux.HandleFunc("/readyz", healthcheck.ReadyHandler(opts.Tracker))
	if opts.Status != nil {
		mux.Handle("/status", opts.Status)
	}
}

func registerMetricsRoute(mux *http.ServeMux, metricsCollector *metrics.Metrics) {
	if metricsCollector == nil {
		return
	}
	mux.Handle("/metrics", metricsCollector.Handler())
}

func startServer(ctx context.Context, logger zerolog.Logger, handler http.Handler, port int, label string) {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("server", label).Int("port", port).Msg("http server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("server", label).Int("port", port).Msg("http server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Str("server", label).Int("port", port).Msg("http server shutdown failed")
		}
	}()
}
