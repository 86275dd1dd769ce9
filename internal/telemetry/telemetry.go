package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jondoveston/monitop/internal/client"
)

// Outcome label values
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// Metrics is monitop's own instrumentation
type Metrics struct {
	registry *prometheus.Registry
	polls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	stale    *prometheus.CounterVec
}

// New registers the metrics on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "monitop",
			Name:      "polls_total",
			Help:      "Requests made to the monitoring service, by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "monitop",
			Name:      "poll_duration_seconds",
			Help:      "Time taken by requests to the monitoring service.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		stale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "monitop",
			Name:      "stale_responses_total",
			Help:      "Responses dropped because a newer request replaced them.",
		}, []string{"endpoint"}),
	}
	m.registry.MustRegister(m.polls, m.duration, m.stale)
	return m
}

// Registry exposes the registry for serving and tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObservePoll records one finished request
func (m *Metrics) ObservePoll(endpoint string, elapsed time.Duration, err error) {
	outcome := OutcomeOK
	switch {
	case err == nil:
	case client.IsCanceled(err):
		outcome = OutcomeCancelled
	default:
		outcome = OutcomeError
	}
	m.polls.WithLabelValues(endpoint, outcome).Inc()
	m.duration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// ObserveStale records a dropped response
func (m *Metrics) ObserveStale(endpoint string) {
	m.stale.WithLabelValues(endpoint).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx ends
func (m *Metrics) Serve(ctx context.Context, addr string, logger logr.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving telemetry", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("telemetry server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
