package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts entries found in Redis.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redmine_cache_hits_total",
		Help: "Total number of Redmine response cache hits",
	})

	// CacheMisses counts lookups that found nothing usable.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redmine_cache_misses_total",
		Help: "Total number of Redmine response cache misses",
	})

	// CacheEntryBytes observes the serialized size of stored entries.
	CacheEntryBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "redmine_cache_entry_bytes",
		Help:    "Serialized size of cached Redmine responses",
		Buckets: prometheus.ExponentialBuckets(512, 4, 8),
	})

	// ConditionalRequests counts requests sent with a validator.
	ConditionalRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redmine_cache_conditional_requests_total",
		Help: "Total number of conditional requests sent to Redmine",
	})

	// NotModified counts 304 responses served from cache.
	NotModified = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redmine_cache_not_modified_total",
		Help: "Total number of 304 Not Modified responses served from cache",
	})

	// CacheErrors counts Redis failures by operation.
	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redmine_cache_errors_total",
		Help: "Total number of cache operation errors",
	}, []string{"operation"}) // "get", "set", "delete"
)
