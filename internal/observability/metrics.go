package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SearchRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_request_duration_seconds",
			Help:    "End-to-end search request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.15, 0.2, 0.5, 1, 2.5},
		},
		[]string{"status"},
	)

	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_requests_total",
			Help: "Total number of search requests",
		},
		[]string{"status"},
	)

	MethodDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_method_duration_seconds",
			Help:    "Per-method search duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.5},
		},
		[]string{"method", "status"},
	)

	MethodDegraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_method_degraded_total",
			Help: "Search methods that failed or timed out and contributed no results",
		},
		[]string{"method", "reason"},
	)

	FusionConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fusion_overall_confidence",
			Help:    "Distribution of overall fused result confidence",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "context_cache_hits_total",
			Help: "Context-aware cache hits by entry type",
		},
		[]string{"type"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "context_cache_misses_total",
			Help: "Context-aware cache misses by entry type",
		},
		[]string{"type"},
	)

	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "context_cache_invalidations_total",
			Help: "Cache entries invalidated by context event",
		},
		[]string{"event"},
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "context_cache_evictions_total",
			Help: "Cache entries evicted under capacity pressure",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "conversation_active_sessions",
			Help: "Number of live conversation sessions",
		},
	)

	ConversationTurns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversation_turns_total",
			Help: "Total conversation turns recorded across all sessions",
		},
	)

	TopicChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topic_changes_total",
			Help: "Detected topic changes by type",
		},
		[]string{"type"},
	)

	QueryResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_resolutions_total",
			Help: "Query resolutions by query type and strategy",
		},
		[]string{"query_type", "strategy"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	SlowQueryCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slow_query_total",
			Help: "Total number of slow queries",
		},
		[]string{"severity", "query_type"},
	)
)
