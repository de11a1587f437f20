// Package metrics documents the Prometheus metric surface of the filings
// client. Metrics are defined in their owning packages (client, ratelimit,
// cache, search) via promauto to keep dependencies one-directional; this
// package only exposes the registry and the reference list.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the Prometheus registry used by the client. All metrics are
// registered automatically via promauto in their owning packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Reference
//
// Rate limit (pkg/ratelimit):
//   - filings_rate_limit_remaining (Gauge): requests left in the current window
//   - filings_rate_limit_queued_requests (Gauge): callers parked for reset
//   - filings_rate_limit_throttles_total (Counter): proactively delayed requests
//   - filings_rate_limit_queue_waits_total (Counter): requests queued on exhaustion
//   - filings_rate_limit_excessive_waits_total (Counter): waits past the warning threshold
//
// Requests (pkg/client):
//   - filings_requests_total{endpoint, status} (Counter)
//   - filings_request_duration_seconds{endpoint} (Histogram)
//   - filings_errors_total{kind} (Counter)
//
// Retry (pkg/client):
//   - filings_retries_total{kind} (Counter)
//   - filings_retry_backoff_seconds{kind} (Histogram)
//   - filings_retry_exhausted_total{kind} (Counter)
//
// Cache (pkg/cache):
//   - filings_cache_hits_total (Counter)
//   - filings_cache_misses_total (Counter)
//   - filings_cache_errors_total{operation} (Counter)
//
// Search (pkg/search):
//   - filings_search_pages_fetched_total (Counter)
//
// Example queries:
//
//	# Share of requests delayed by governance
//	rate(filings_rate_limit_throttles_total[5m]) / rate(filings_requests_total[5m])
//
//	# Remaining budget alert
//	filings_rate_limit_remaining < 10
//
//	# P95 request latency
//	histogram_quantile(0.95, rate(filings_request_duration_seconds_bucket[5m]))
