package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grounder_pipeline_runs_total",
			Help: "Total number of pipeline runs by final state",
		},
		[]string{"state", "valid"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grounder_pipeline_duration_seconds",
			Help:    "Wall-clock duration of pipeline runs",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	CandidateFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grounder_candidate_failures_total",
			Help: "Candidates rejected or failed, by phase and code",
		},
		[]string{"phase", "code"},
	)

	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grounder_cache_hits_total",
			Help: "Candidates served from the result cache",
		},
	)

	RetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grounder_retries_total",
			Help: "Retry attempts performed by the retry executor",
		},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grounder_fetch_duration_seconds",
			Help:    "Duration of outbound page fetches in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "status"},
	)

	FetchBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grounder_fetch_bytes_total",
			Help: "Total bytes downloaded across all fetches",
		},
	)
)

// RecordFetch updates fetch metrics. status is 0 when no response arrived.
func RecordFetch(method string, status int, bytes int, d time.Duration) {
	statusStr := strconv.Itoa(status)
	if status == 0 {
		statusStr = "error"
	}
	FetchDuration.WithLabelValues(method, statusStr).Observe(d.Seconds())
	FetchBytesTotal.Add(float64(bytes))
}

// RecordRun updates run-level metrics once a pipeline run has finished.
func RecordRun(state string, valid bool, d time.Duration) {
	RunsTotal.WithLabelValues(state, strconv.FormatBool(valid)).Inc()
	RunDuration.Observe(d.Seconds())
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	return &Server{srv: srv, logger: logger}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
