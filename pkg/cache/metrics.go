package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evg_cache_hits_total",
		Help: "Patch lookups answered from Redis",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evg_cache_misses_total",
		Help: "Patch lookups with no fresh cache entry",
	})

	CacheBytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evg_cache_written_bytes_total",
		Help: "Encoded entry bytes written to Redis",
	})

	// CacheErrors is labelled by operation: get, set, delete, encode, decode.
	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evg_cache_errors_total",
		Help: "Cache operations that failed",
	}, []string{"operation"})
)
