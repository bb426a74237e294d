// Package metrics exposes prometheus instruments for the API surface,
// the upstream adapters, and the sweep scheduler.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	UpstreamVision = "vision"
	UpstreamChat   = "chat"

	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeDeadline = "deadline_exceeded"
)

// AppMetrics captures request-path health signals.
type AppMetrics struct {
	rateLimitAllowed prometheus.Counter
	rateLimitDenied  *prometheus.CounterVec
	upstreamCalls    *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	analysisResults  *prometheus.CounterVec
}

var (
	appMetricsOnce sync.Once
	appMetrics     *AppMetrics
)

// App returns the singleton application metrics registry.
func App() *AppMetrics {
	appMetricsOnce.Do(func() {
		appMetrics = newAppMetrics(prometheus.DefaultRegisterer)
	})
	return appMetrics
}

// ResetAppMetricsForTest drops the singleton and unregisters its collectors
// so the next App() call can register fresh ones without panicking.
func ResetAppMetricsForTest() {
	if appMetrics != nil {
		for _, c := range appMetrics.collectors() {
			prometheus.DefaultRegisterer.Unregister(c)
		}
	}
	appMetricsOnce = sync.Once{}
	appMetrics = nil
}

func newAppMetrics(registerer prometheus.Registerer) *AppMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &AppMetrics{
		rateLimitAllowed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kaimo_rate_limit_allowed_total",
			Help: "Requests admitted by the per-user rate limiter.",
		}),
		rateLimitDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kaimo_rate_limit_denied_total",
			Help: "Requests rejected by the per-user rate limiter.",
		}, []string{"scope"}),
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kaimo_upstream_calls_total",
			Help: "External OCR/chat calls by outcome.",
		}, []string{"service", "outcome"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kaimo_upstream_call_duration_seconds",
			Help:    "External OCR/chat call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
		analysisResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kaimo_analysis_results_total",
			Help: "Image analysis outcomes by kind.",
		}, []string{"kind"}),
	}

	registerer.MustRegister(m.collectors()...)
	return m
}

func (m *AppMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.rateLimitAllowed,
		m.rateLimitDenied,
		m.upstreamCalls,
		m.upstreamDuration,
		m.analysisResults,
	}
}

func (m *AppMetrics) IncRateLimitAllowed() {
	if m == nil {
		return
	}
	m.rateLimitAllowed.Inc()
}

func (m *AppMetrics) IncRateLimitDenied(scope string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.WithLabelValues(scope).Inc()
}

func (m *AppMetrics) ObserveUpstreamCall(service, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamCalls.WithLabelValues(service, outcome).Inc()
	m.upstreamDuration.WithLabelValues(service).Observe(d.Seconds())
}

func (m *AppMetrics) IncAnalysisResult(kind string) {
	if m == nil {
		return
	}
	m.analysisResults.WithLabelValues(kind).Inc()
}
