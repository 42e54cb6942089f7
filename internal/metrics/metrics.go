// Package metrics registers the gateway's Prometheus collectors and
// exposes thin recording helpers so the rest of the gateway never imports
// client_golang directly.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the gateway registers. Construct once at
// startup with NewRegistered and pass the pointer down to whatever layers
// need to record.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ProviderCalls    *prometheus.CounterVec
	ProviderErrors   *prometheus.CounterVec
	RetryTotal       *prometheus.CounterVec
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	RateLimitAllowed prometheus.Counter
	RateLimitDenied  prometheus.Counter
	BreakerState     *prometheus.GaugeVec
}

// NewRegistered builds and registers every collector against reg. Pass
// prometheus.DefaultRegisterer in production; a fresh
// prometheus.NewRegistry() in tests to avoid duplicate-registration panics
// across test runs.
func NewRegistered(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aigateway_requests_total",
			Help: "Total inbound requests by route and HTTP status.",
		}, []string{"route", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aigateway_request_duration_seconds",
			Help:    "End-to-end request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),

		ProviderCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aigateway_provider_calls_total",
			Help: "Routed requests by serving provider and outcome (provider \"none\" when every candidate failed).",
		}, []string{"provider", "outcome"}),

		ProviderErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aigateway_provider_errors_total",
			Help: "Upstream provider errors by provider and error code.",
		}, []string{"provider", "code"}),

		RetryTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aigateway_retries_total",
			Help: "Chat requests served after at least one retry or fallback hop, by serving provider.",
		}, []string{"provider"}),

		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "aigateway_cache_hits_total",
			Help: "Chat cache lookups that found an entry.",
		}),

		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "aigateway_cache_misses_total",
			Help: "Chat cache lookups that found nothing.",
		}),

		RateLimitAllowed: factory.NewCounter(prometheus.CounterOpts{
			Name: "aigateway_ratelimit_allowed_total",
			Help: "Requests permitted by the rate limiter.",
		}),

		RateLimitDenied: factory.NewCounter(prometheus.CounterOpts{
			Name: "aigateway_ratelimit_denied_total",
			Help: "Requests rejected by the rate limiter.",
		}),

		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aigateway_breaker_state",
			Help: "Circuit breaker state per provider: 0=closed, 1=half-open, 2=open.",
		}, []string{"provider"}),
	}
}

// ObserveProviderCall records one upstream call outcome and, when err is
// non-nil, its classified error code.
func (m *Metrics) ObserveProviderCall(providerName string, err error, code string) {
	if err == nil {
		m.ProviderCalls.WithLabelValues(providerName, "success").Inc()
		return
	}
	m.ProviderCalls.WithLabelValues(providerName, "error").Inc()
	m.ProviderErrors.WithLabelValues(providerName, code).Inc()
}

// ObserveRetry records one retry attempt against providerName.
func (m *Metrics) ObserveRetry(providerName string) {
	m.RetryTotal.WithLabelValues(providerName).Inc()
}

// SetBreakerState records gobreaker's numeric state (0/1/2) for providerName.
func (m *Metrics) SetBreakerState(providerName string, state float64) {
	m.BreakerState.WithLabelValues(providerName).Set(state)
}
