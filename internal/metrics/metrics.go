// Package metrics exports connection-building counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	connectionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connectome_connections_created_total",
		Help: "Connections created, by synapse type",
	}, []string{"synapse_model"})

	pairsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connectome_pairs_skipped_total",
		Help: "Pairs dropped by builders, by reason",
	}, []string{"reason"})

	connectDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "connectome_connect_duration_seconds",
		Help:    "Wall time of connect calls, by rule",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1, 10, 60},
	}, []string{"rule"})

	connections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "connectome_connections",
		Help: "Connections currently stored on this process",
	})

	delayExtrema = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "connectome_delay_extrema_ms",
		Help: "Global delay window in milliseconds",
	}, []string{"bound"})

	reductionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "connectome_delay_reduction_duration_seconds",
		Help:    "Duration of the cross-process delay extrema reduction",
		Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
	})
)

// ConnectionCreated counts one stored connection of synapse type model.
func ConnectionCreated(model string, n int) {
	connectionsCreated.WithLabelValues(model).Add(float64(n))
}

// PairSkipped counts one dropped pair.
func PairSkipped(reason string) {
	pairsSkipped.WithLabelValues(reason).Inc()
}

// ObserveConnect records the duration of a connect call.
func ObserveConnect(rule string, d time.Duration) {
	connectDuration.WithLabelValues(rule).Observe(d.Seconds())
}

// SetConnections sets the stored connection gauge.
func SetConnections(n int64) {
	connections.Set(float64(n))
}

// SetDelayExtrema publishes the delay window.
func SetDelayExtrema(minMS, maxMS float64) {
	delayExtrema.WithLabelValues("min").Set(minMS)
	delayExtrema.WithLabelValues("max").Set(maxMS)
}

// ReductionTimer starts timing a delay extrema reduction. Call
// ObserveDuration on the result when it completes.
func ReductionTimer() *prometheus.Timer {
	return prometheus.NewTimer(reductionDuration)
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics endpoint listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
