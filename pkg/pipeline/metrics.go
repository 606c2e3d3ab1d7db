package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for pipeline operations.
var (
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "evg_pipeline_queue_depth",
		Help: "Messages waiting in the producer/collector queue",
	})

	patchesDiscoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evg_pipeline_patches_discovered_total",
		Help: "Patch ids forwarded by the producer",
	})

	batchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evg_pipeline_batches_total",
		Help: "Batches resolved by the collector",
	})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "evg_pipeline_batch_duration_seconds",
		Help:    "Time to resolve and flatten one batch",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	resolveFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evg_pipeline_resolve_failures_total",
		Help: "Patch lookups that failed and were skipped",
	})

	patchesExcludedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evg_pipeline_patches_excluded_total",
		Help: "Resolved patches skipped because of their alias",
	})

	recordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evg_pipeline_records_total",
		Help: "Records appended to the sink",
	})
)
