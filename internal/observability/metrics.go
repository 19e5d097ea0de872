// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	NotificationsReceived prometheus.Counter
	EventsEmitted         *prometheus.CounterVec
	SignaturesDropped     prometheus.Counter
	WSReconnects          prometheus.Counter
	WSConnectionState     prometheus.Gauge

	// Resolver metrics
	ResolverCacheHits   prometheus.Counter
	ResolverFallbacks   prometheus.Counter
	EnhancedBatchesSent prometheus.Counter

	// Rate limiting metrics
	Throttled429s    prometheus.Counter
	BreakerState     prometheus.Gauge
	GovernorRejected *prometheus.CounterVec
	GovernorAllowed  *prometheus.CounterVec

	// Enrichment metrics
	EnrichmentPasses  *prometheus.CounterVec
	EnrichmentLatency prometheus.Histogram
	TrackedTokens     prometheus.Gauge
	CacheSweepEvicted prometheus.Counter

	// Storage metrics
	IndexUpsertErrors prometheus.Counter
	TradesSunk        prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_token_radar"
	}

	return &Metrics{
		// Ingestion metrics
		NotificationsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "notifications_received_total",
			Help:      "Total number of log notifications received over the socket",
		}),
		EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_emitted_total",
			Help:      "Total number of domain events emitted by kind",
		}, []string{"kind"}),
		SignaturesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "signatures_dropped_total",
			Help:      "Total number of classified signatures that could not be resolved",
		}),
		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "ws_reconnects_total",
			Help:      "Total number of socket reconnect attempts",
		}),
		WSConnectionState: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "ws_connection_state",
			Help:      "Current connection state (0=disconnected 1=connecting 2=connected 3=reconnecting 4=auth_failed)",
		}),

		// Resolver metrics
		ResolverCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "cache_hits_total",
			Help:      "Total number of signature resolutions served from cache",
		}),
		ResolverFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "raw_fallbacks_total",
			Help:      "Total number of resolutions that fell back to raw ledger lookups",
		}),
		EnhancedBatchesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "enhanced_batches_sent_total",
			Help:      "Total number of enhanced lookup batches posted",
		}),

		// Rate limiting metrics
		Throttled429s: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "throttled_responses_total",
			Help:      "Total number of 429 responses from the chain RPC",
		}),
		BreakerState: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0=closed 1=open 2=half-open)",
		}),
		GovernorRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "governor_rejected_total",
			Help:      "Total number of requests rejected by the sliding window per service",
		}, []string{"service"}),
		GovernorAllowed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "governor_allowed_total",
			Help:      "Total number of requests allowed by the sliding window per service",
		}, []string{"service"}),

		// Enrichment metrics
		EnrichmentPasses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "passes_total",
			Help:      "Total number of enrichment passes by terminal source",
		}, []string{"source"}),
		EnrichmentLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "pass_duration_seconds",
			Help:      "Duration of one enrichment pass",
			Buckets:   prometheus.DefBuckets,
		}),
		TrackedTokens: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "tracked_tokens",
			Help:      "Current number of token records in memory",
		}),
		CacheSweepEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "sweep_evicted_total",
			Help:      "Total number of cache entries evicted by the periodic sweep",
		}),

		// Storage metrics
		IndexUpsertErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "index_upsert_errors_total",
			Help:      "Total number of failed token index upserts",
		}),
		TradesSunk: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "trades_sunk_total",
			Help:      "Total number of trade events written to the analysis sink",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordEventEmitted increments the emitted-events counter for a kind.
func RecordEventEmitted(kind string) {
	DefaultMetrics.EventsEmitted.WithLabelValues(kind).Inc()
}

// RecordNotificationReceived increments the notifications counter.
func RecordNotificationReceived() {
	DefaultMetrics.NotificationsReceived.Inc()
}

// RecordSignatureDropped increments the unresolvable-signature counter.
func RecordSignatureDropped() {
	DefaultMetrics.SignaturesDropped.Inc()
}

// RecordReconnect increments the reconnect counter.
func RecordReconnect() {
	DefaultMetrics.WSReconnects.Inc()
}

// UpdateConnectionState sets the connection state gauge.
func UpdateConnectionState(state int) {
	DefaultMetrics.WSConnectionState.Set(float64(state))
}

// RecordThrottled increments the 429 counter.
func RecordThrottled() {
	DefaultMetrics.Throttled429s.Inc()
}

// UpdateBreakerState sets the breaker state gauge.
func UpdateBreakerState(state int) {
	DefaultMetrics.BreakerState.Set(float64(state))
}

// RecordGovernorDecision records one sliding-window decision.
func RecordGovernorDecision(service string, allowed bool) {
	if allowed {
		DefaultMetrics.GovernorAllowed.WithLabelValues(service).Inc()
		return
	}
	DefaultMetrics.GovernorRejected.WithLabelValues(service).Inc()
}

// RecordEnrichmentPass records one completed pass and its duration.
func RecordEnrichmentPass(source string, seconds float64) {
	DefaultMetrics.EnrichmentPasses.WithLabelValues(source).Inc()
	DefaultMetrics.EnrichmentLatency.Observe(seconds)
}

// UpdateTrackedTokens sets the tracked-token gauge.
func UpdateTrackedTokens(n int) {
	DefaultMetrics.TrackedTokens.Set(float64(n))
}
