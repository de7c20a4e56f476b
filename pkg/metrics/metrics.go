// Package metrics exposes the Prometheus registry the connector packages
// register into. Collectors live next to the code they measure (client,
// cache, ratelimit, pagination) and register through promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer the connector's collectors use.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the connector metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Gateway (pkg/client):
//   - redmine_requests_total{method, status} (Counter)
//   - redmine_request_duration_seconds{method} (Histogram)
//   - redmine_errors_total{class} (Counter): client, server, throttled, network
//
// Pagination (pkg/pagination):
//   - redmine_pages_fetched_total{entity} (Counter)
//   - redmine_records_fetched_total{entity} (Counter)
//   - redmine_protocol_violations_total{entity} (Counter)
//
// Cache (pkg/cache):
//   - redmine_cache_hits_total, redmine_cache_misses_total (Counter)
//   - redmine_cache_entry_bytes (Histogram)
//   - redmine_cache_conditional_requests_total (Counter)
//   - redmine_cache_not_modified_total (Counter)
//   - redmine_cache_errors_total{operation} (Counter)
//
// Back-off (pkg/ratelimit):
//   - redmine_backoff_windows_total, redmine_backoff_blocks_total (Counter)
//   - redmine_backoff_remaining_seconds (Gauge)
//
// Example Prometheus Queries:
//
//   # Records per page actually delivered
//   rate(redmine_records_fetched_total[5m]) / rate(redmine_pages_fetched_total[5m])
//
//   # Revalidation hit rate
//   rate(redmine_cache_not_modified_total[5m]) / rate(redmine_cache_conditional_requests_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(redmine_request_duration_seconds_bucket[5m]))
