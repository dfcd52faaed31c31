package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts the total number of proxied HTTP requests.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Name:      "requests_total",
			Help:      "Total number of proxied HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration observes the request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "warden",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// RuleLookups mirrors ProxyManager.Stats(), labeled by outcome (cache,
	// exact, pattern, miss). It is a gauge rather than a counter because it
	// is republished wholesale from a monotonic snapshot, not incremented
	// per event.
	RuleLookups = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "warden",
			Name:      "rule_lookups",
			Help:      "Routing table lookups observed so far, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	// RuleTableSize tracks the number of exact and pattern rules currently
	// loaded in the routing table.
	RuleTableSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "warden",
			Name:      "rule_table_size",
			Help:      "Number of rules currently loaded, labeled by kind.",
		},
		[]string{"kind"},
	)

	// RewriteFailuresTotal counts URI rewrites that failed to build a valid
	// URI; the request is then forwarded with its original URI.
	RewriteFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Name:      "rewrite_failures_total",
			Help:      "Total URI rewrites that failed; the request was forwarded with its original URI.",
		},
		[]string{"mode"},
	)
)

func init() {
	prometheus.MustRegister(RequestsTotal, RequestDuration, RuleLookups, RuleTableSize, RewriteFailuresTotal)
}

// RecordRuleStats republishes a proxy.Stats snapshot onto the rule_lookups
// gauge vector.
func RecordRuleStats(cacheHits, exactHits, patternHits, misses uint64) {
	RuleLookups.WithLabelValues("cache").Set(float64(cacheHits))
	RuleLookups.WithLabelValues("exact").Set(float64(exactHits))
	RuleLookups.WithLabelValues("pattern").Set(float64(patternHits))
	RuleLookups.WithLabelValues("miss").Set(float64(misses))
}

// RecordRuleTableSize publishes the current exact and pattern rule counts.
func RecordRuleTableSize(exact, pattern int) {
	RuleTableSize.WithLabelValues("exact").Set(float64(exact))
	RuleTableSize.WithLabelValues("pattern").Set(float64(pattern))
}

// RecordRewriteFailure records a rewrite that failed to build a valid URI.
func RecordRewriteFailure(mode string) {
	RewriteFailuresTotal.WithLabelValues(mode).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records metrics for a completed HTTP request.
func RecordRequest(method, path string, status int, duration time.Duration) {
	RequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
