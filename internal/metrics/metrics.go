// Package metrics registers the Prometheus metrics exported by the proxy.
// Import this package from the server entry point so all metrics are
// registered before the /metrics handler is mounted.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts completed HTTP requests labelled by route
	// ("attachment", "page", "general", "health") and status code.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlproxy_requests_total",
			Help: "Total number of requests processed by the proxy.",
		},
		[]string{"route", "status"},
	)

	// RequestDuration observes end-to-end request latency in seconds.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atlproxy_request_duration_seconds",
			Help:    "End-to-end request duration in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"route"},
	)

	// CacheHits counts attachment requests served from the cache.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atlproxy_cache_hits_total",
		Help: "Attachment requests served from the in-memory cache.",
	})

	// CacheMisses counts attachment requests that required an upstream fetch.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atlproxy_cache_misses_total",
		Help: "Attachment requests that missed the cache.",
	})

	// CacheEvictions counts entries evicted to make room at capacity.
	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atlproxy_cache_evictions_total",
		Help: "Cache entries evicted due to the capacity bound.",
	})

	// CacheEntries tracks the current number of cached attachments.
	CacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "atlproxy_cache_entries",
		Help: "Current number of entries in the attachment cache.",
	})

	// UpstreamFetches counts upstream calls by outcome ("success",
	// "not_found", "auth_error", "transient", "upstream_error",
	// "circuit_open").
	UpstreamFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlproxy_upstream_fetches_total",
			Help: "Upstream Confluence fetches by outcome.",
		},
		[]string{"outcome"},
	)

	// CoalescedRequests counts requests that joined an already in-flight
	// fetch instead of issuing their own.
	CoalescedRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atlproxy_coalesced_requests_total",
		Help: "Requests that shared an in-flight upstream fetch.",
	})

	// RateLimitRejections counts requests rejected by the per-client
	// rate-limit middleware.
	RateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atlproxy_rate_limit_rejections_total",
		Help: "Requests rejected by rate limiting.",
	})
)
