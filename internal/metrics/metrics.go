// Package metrics exposes Prometheus collectors for the search service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	searchesTotal              *prometheus.CounterVec
	providerAttemptsTotal      *prometheus.CounterVec
	cacheLookupsTotal          *prometheus.CounterVec
	poolSessionsInUse          prometheus.Gauge
	gateDelaySeconds           prometheus.Histogram
	domainLimiterDelaySeconds  *prometheus.HistogramVec
	enrichmentsTotal           *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry. It is safe to call
// more than once; every observer calls it lazily.
func Init() {
	once.Do(func() {
		searchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "websearch_searches_total",
				Help: "Searches answered, labeled by serving provider and outcome.",
			},
			[]string{"provider", "outcome"},
		)

		providerAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "websearch_provider_attempts_total",
				Help: "Provider attempts, labeled by provider and result kind.",
			},
			[]string{"provider", "kind"},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "websearch_cache_lookups_total",
				Help: "Result cache lookups, labeled by hit or miss.",
			},
			[]string{"result"},
		)

		poolSessionsInUse = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "websearch_pool_sessions_in_use",
				Help: "Browser sessions currently leased from the pool.",
			},
		)

		gateDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "websearch_navigation_gate_delay_seconds",
				Help:    "Time spent waiting on the global navigation gate.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		)

		domainLimiterDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "websearch_domain_rate_limit_delay_seconds",
				Help:    "Per-domain rate limiter wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		enrichmentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "websearch_enrichments_total",
				Help: "Result enrichments, labeled by the source that produced metadata.",
			},
			[]string{"source"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname from rawURL, or "unknown".
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveSearch counts a finished search.
func ObserveSearch(provider, outcome string) {
	Init()
	if provider == "" {
		provider = "none"
	}
	searchesTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveProviderAttempt counts one provider attempt by result kind.
func ObserveProviderAttempt(provider, kind string) {
	Init()
	providerAttemptsTotal.WithLabelValues(provider, kind).Inc()
}

// ObserveCacheLookup counts a cache hit or miss.
func ObserveCacheLookup(hit bool) {
	Init()
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// SetPoolSessionsInUse records the number of leased sessions.
func SetPoolSessionsInUse(n int) {
	Init()
	poolSessionsInUse.Set(float64(n))
}

// ObserveGateDelay records time spent waiting on the navigation gate.
func ObserveGateDelay(d time.Duration) {
	Init()
	gateDelaySeconds.Observe(d.Seconds())
}

// ObserveRateLimitDelay records a per-domain limiter wait.
func ObserveRateLimitDelay(domain string, d time.Duration) {
	Init()
	domainLimiterDelaySeconds.WithLabelValues(domain).Observe(d.Seconds())
}

// ObserveEnrichment counts one enriched result by source
// ("browser", "http", "favicon").
func ObserveEnrichment(source string) {
	Init()
	enrichmentsTotal.WithLabelValues(source).Inc()
}

// ObserveHTTPRequest records an API request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
