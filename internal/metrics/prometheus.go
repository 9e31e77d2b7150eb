// Package metrics exports process counters and latency histograms in
// Prometheus format: outreach send outcomes, LLM call latency, and
// in-memory cache hit/miss rates.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "telecopilot"

// Exporter holds every registered metric and serves them over HTTP.
type Exporter struct {
	registry *prometheus.Registry

	outreachSent    *prometheus.CounterVec
	outreachActive  prometheus.Gauge
	llmRequests     *prometheus.CounterVec
	llmLatency      *prometheus.HistogramVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	authTransitions *prometheus.CounterVec
}

// Config configures the Exporter.
type Config struct {
	// Registry to register metrics against. A fresh one is created if nil.
	Registry *prometheus.Registry

	// LatencyBuckets bounds the LLM latency histogram, in seconds.
	LatencyBuckets []float64
}

// DefaultConfig returns the default bucket boundaries, chosen to straddle
// both remote (30s timeout) and local (120s timeout) providers.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}
}

// New builds an Exporter and registers every metric against cfg's
// registry (or a fresh one).
func New(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.outreachSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outreach",
		Name:      "sent_total",
		Help:      "Total outreach sends by outcome.",
	}, []string{"status"})

	e.outreachActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "outreach",
		Name:      "queues_active",
		Help:      "Number of outreach queues currently running.",
	})

	e.llmRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "llm",
		Name:      "requests_total",
		Help:      "Total LLM chat completion calls by provider and outcome.",
	}, []string{"provider", "status"})

	e.llmLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "llm",
		Name:      "latency_seconds",
		Help:      "LLM chat completion latency in seconds.",
		Buckets:   cfg.LatencyBuckets,
	}, []string{"provider"})

	e.cacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits by cache type.",
	}, []string{"cache_type"})

	e.cacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses by cache type.",
	}, []string{"cache_type"})

	e.authTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "auth_transitions_total",
		Help:      "Total auth state transitions by destination state.",
	}, []string{"state"})

	registry.MustRegister(
		e.outreachSent,
		e.outreachActive,
		e.llmRequests,
		e.llmLatency,
		e.cacheHits,
		e.cacheMisses,
		e.authTransitions,
	)

	return e
}

// RecordOutreachSend records one outreach send's outcome ("sent" or
// "failed").
func (e *Exporter) RecordOutreachSend(status string) {
	e.outreachSent.WithLabelValues(status).Inc()
}

// SetActiveQueues sets the number of currently running outreach queues.
func (e *Exporter) SetActiveQueues(n int) {
	e.outreachActive.Set(float64(n))
}

// RecordLLMRequest records one chat completion call's latency and
// success/failure.
func (e *Exporter) RecordLLMRequest(provider string, latency time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	e.llmRequests.WithLabelValues(provider, status).Inc()
	e.llmLatency.WithLabelValues(provider).Observe(latency.Seconds())
}

// RecordCacheHit records a hit against cacheType (e.g. "briefing",
// "summary", "draft", "contacts").
func (e *Exporter) RecordCacheHit(cacheType string) {
	e.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a miss against cacheType.
func (e *Exporter) RecordCacheMiss(cacheType string) {
	e.cacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordAuthTransition records a session auth state transition to state.
func (e *Exporter) RecordAuthTransition(state string) {
	e.authTransitions.WithLabelValues(state).Inc()
}

// Handler returns the HTTP handler serving metrics in Prometheus text
// format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}
