// Package metrics exposes Prometheus counters for chat and ingestion.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors recorded by the server, orchestrator and
// ingester. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	chatRequests   *prometheus.CounterVec
	rerankOutcomes *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	ingestedChunks *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		chatRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragchat_chat_requests_total",
				Help: "Chat requests by mode and result",
			},
			[]string{"mode", "result"},
		),
		rerankOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragchat_rerank_outcomes_total",
				Help: "Rerank calls by outcome status",
			},
			[]string{"status"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ragchat_stage_duration_seconds",
				Help:    "Duration of pipeline stages (retrieve, rerank, generate, ingest)",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
			},
			[]string{"stage"},
		),
		ingestedChunks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragchat_ingested_chunks_total",
				Help: "Chunks written to the vector store by collection",
			},
			[]string{"collection"},
		),
	}
	m.registry.MustRegister(m.chatRequests, m.rerankOutcomes, m.stageDuration, m.ingestedChunks)
	return m
}

// ChatRequest counts one chat request.
func (m *Metrics) ChatRequest(mode, result string) {
	if m == nil {
		return
	}
	m.chatRequests.WithLabelValues(mode, result).Inc()
}

// RerankOutcome counts one rerank call.
func (m *Metrics) RerankOutcome(status string) {
	if m == nil {
		return
	}
	m.rerankOutcomes.WithLabelValues(status).Inc()
}

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// IngestedChunks counts chunks added to a collection.
func (m *Metrics) IngestedChunks(collection string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ingestedChunks.WithLabelValues(collection).Add(float64(n))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
