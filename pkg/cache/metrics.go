package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for cache operations.
var (
	// Hits counts cache hits.
	Hits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filings_cache_hits_total",
		Help: "Search responses served from cache",
	})

	// Misses counts cache misses.
	Misses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filings_cache_misses_total",
		Help: "Search requests not found in cache",
	})

	// Errors counts failed cache operations by operation.
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filings_cache_errors_total",
		Help: "Cache operation errors by operation",
	}, []string{"operation"})
)
