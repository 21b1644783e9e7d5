// Package monitoring - metrics.go exports Prometheus metrics.
//
// DESIGN: One Metrics value owns all collectors on a private registry so
// tests can build isolated instances. The gateway serves them at /metrics.
//
// METRICS:
//   - requests_total{provider,outcome}:  Proxied requests by result
//   - upstream_seconds{provider}:        Upstream call latency
//   - stream_chunks_total{provider}:     Re-emitted stream events
//   - images_transformed_total{action}:  Tool-result images stripped/omitted/reencoded
//   - toon_tokens_saved_total:           Tokens saved by tool-output compression
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Transform actions for the images_transformed_total label.
const (
	ImageActionStripped  = "stripped"
	ImageActionOmitted   = "omitted"
	ImageActionReencoded = "reencoded"
)

// Metrics owns all Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	upstream     *prometheus.HistogramVec
	streamChunks *prometheus.CounterVec
	images       *prometheus.CounterVec
	toonSaved    prometheus.Counter
}

// NewMetrics builds and registers all collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llmbridge",
			Name:      "requests_total",
			Help:      "Proxied requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		upstream: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "llmbridge",
			Name:      "upstream_seconds",
			Help:      "Upstream provider call latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"provider"}),
		streamChunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llmbridge",
			Name:      "stream_chunks_total",
			Help:      "Stream events re-emitted to clients.",
		}, []string{"provider"}),
		images: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llmbridge",
			Name:      "images_transformed_total",
			Help:      "Tool-result images transformed by action.",
		}, []string{"action"}),
		toonSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "llmbridge",
			Name:      "toon_tokens_saved_total",
			Help:      "Tokens saved by tool-output compression.",
		}),
	}

	registry.MustRegister(m.requests, m.upstream, m.streamChunks, m.images, m.toonSaved)
	return m
}

// RecordRequest records one proxied request.
func (m *Metrics) RecordRequest(provider string, success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	m.requests.WithLabelValues(provider, outcome).Inc()
}

// RecordUpstream records upstream call latency.
func (m *Metrics) RecordUpstream(provider string, seconds float64) {
	m.upstream.WithLabelValues(provider).Observe(seconds)
}

// RecordStreamChunks records re-emitted stream events.
func (m *Metrics) RecordStreamChunks(provider string, n int) {
	if n > 0 {
		m.streamChunks.WithLabelValues(provider).Add(float64(n))
	}
}

// RecordImages records transformed tool-result images.
func (m *Metrics) RecordImages(action string, n int) {
	if n > 0 {
		m.images.WithLabelValues(action).Add(float64(n))
	}
}

// RecordToonSavings records tokens saved by tool-output compression.
func (m *Metrics) RecordToonSavings(tokens int) {
	if tokens > 0 {
		m.toonSaved.Add(float64(tokens))
	}
}

// Handler serves this instance's registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
