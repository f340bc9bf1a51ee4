// Package metrics holds the prometheus collectors shared by the crawlers and
// the HTTP server that exposes them.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "lorekeeper"

var (
	// PageFetches counts page fetches by source (cache, remote) and status.
	PageFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "page_fetches_total",
		Help:      "Wiki page fetches by source and status.",
	}, []string{"source", "status"})

	// FetchDuration observes remote fetch latency.
	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "page_fetch_duration_seconds",
		Help:      "Latency of remote page fetches.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"host"})

	// ParseFailures counts entities skipped because extraction failed.
	ParseFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "parse_failures_total",
		Help:      "Entities skipped after an extraction error.",
	}, []string{"dataset"})

	// RecordsWritten counts dataset results written by each sink.
	RecordsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_written_total",
		Help:      "Dataset results written by sink.",
	}, []string{"sink", "dataset"})

	// APICalls counts remote API calls by endpoint and status.
	APICalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_calls_total",
		Help:      "Remote API calls by endpoint and status.",
	}, []string{"endpoint", "status"})

	// DatasetRuns counts dataset runs by outcome.
	DatasetRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dataset_runs_total",
		Help:      "Dataset runs by game and outcome.",
	}, []string{"game", "status"})
)

// Handler returns the exposition handler of the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics and /healthz on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics server starting")
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info().Msg("metrics server shutting down")
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
