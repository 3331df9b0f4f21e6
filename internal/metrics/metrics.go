package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Outcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_outcomes_total",
		Help: "Completed fetch attempts by outcome",
	}, []string{"outcome"})
	BytesFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crawler_bytes_fetched_total",
		Help: "Total bytes downloaded",
	})
	Edges = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crawler_edges_total",
		Help: "Discovered links recorded as edges",
	})
	CheckpointFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crawler_checkpoint_failures_total",
		Help: "Checkpoint writes that failed",
	})
	FrontierSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "crawler_frontier_size",
		Help: "Tasks waiting in the frontier",
	})
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "crawler_inflight_fetches",
		Help: "Fetches currently holding a connection slot",
	})
	FetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "crawler_fetch_duration_seconds",
		Help:    "Wall time of completed HTTP fetches",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(Outcomes, BytesFetched, Edges, CheckpointFailures, FrontierSize, InFlight, FetchDuration)
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
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
