// Package metrics exposes the Prometheus metrics of an export run.
// All metrics are defined in their respective packages (client, cache,
// pagination, pipeline) to maintain modularity and avoid circular
// dependencies; this package serves them.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the default Prometheus registry used by the exporter.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the registry the /metrics endpoint reads from.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Server serves /metrics and /health for the lifetime of a run.
type Server struct {
	srv      *http.Server
	listener net.Listener
	done     chan error
}

// Serve starts a metrics server on addr (e.g. ":9090" or
// "127.0.0.1:0").
func Serve(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})

	s := &Server{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		done:     make(chan error, 1),
	}

	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()

	log.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")
	return s, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	return <-s.done
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - evg_requests_total{endpoint, status} (Counter): Total requests by endpoint and HTTP status
//   - evg_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint, retries included
//   - evg_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - evg_retries_total{error_class} (Counter): Retry attempts by error class
//   - evg_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - evg_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Listing Metrics (pkg/pagination):
//   - evg_pages_fetched_total{outcome} (Counter): Listing pages fetched (ok, error)
//
// Cache Metrics (pkg/cache):
//   - evg_cache_hits_total (Counter): Patch detail cache hits
//   - evg_cache_misses_total (Counter): Patch detail cache misses
//   - evg_cache_written_bytes_total (Counter): Bytes written to Redis
//   - evg_cache_errors_total{operation} (Counter): Cache operation errors
//
// Pipeline Metrics (pkg/pipeline):
//   - evg_pipeline_queue_depth (Gauge): Messages waiting between producer and collector
//   - evg_pipeline_patches_discovered_total (Counter): Patch ids forwarded by the producer
//   - evg_pipeline_batches_total (Counter): Batches resolved
//   - evg_pipeline_batch_duration_seconds (Histogram): Time per batch
//   - evg_pipeline_resolve_failures_total (Counter): Lookups that failed and were skipped
//   - evg_pipeline_patches_excluded_total (Counter): Commit-queue patches skipped
//   - evg_pipeline_records_total (Counter): Records appended to the sink
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(evg_cache_hits_total[5m])) /
//   (sum(rate(evg_cache_hits_total[5m])) + sum(rate(evg_cache_misses_total[5m])))
//
//   # Lookup Failure Ratio
//   evg_pipeline_resolve_failures_total / evg_pipeline_patches_discovered_total
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(evg_request_duration_seconds_bucket[5m]))
