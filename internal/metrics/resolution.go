package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Resolution pipeline Prometheus metrics.
var (
	ResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uniqa",
			Name:      "resolutions_total",
			Help:      "Total number of resolved queries",
		},
		[]string{"source", "intent"},
	)

	ResolutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "uniqa",
			Name:      "resolution_duration_seconds",
			Help:      "End-to-end query resolution duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"source"},
	)

	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uniqa",
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by result",
		},
		[]string{"result"}, // "hit_exact" / "hit_semantic" / "miss" / "bypass"
	)

	CacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "uniqa",
			Name:      "cache_entries",
			Help:      "Response cache entries currently held",
		},
	)

	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uniqa",
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"provider", "op", "status"},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "uniqa",
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "op"},
	)

	KeyRotationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uniqa",
			Name:      "llm_key_rotations_total",
			Help:      "Credential rotations caused by rate limiting",
		},
		[]string{"provider"},
	)

	RetrievalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "uniqa",
			Name:      "retrieval_duration_seconds",
			Help:      "Knowledge retrieval duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		},
	)

	ToolInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uniqa",
			Name:      "tool_invocations_total",
			Help:      "Agent tool invocations by outcome",
		},
		[]string{"tool", "status"},
	)

	IndexChunks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "uniqa",
			Name:      "index_chunks",
			Help:      "Knowledge chunks in the active embedding index snapshot",
		},
	)
)

var resolutionMetricsRegistered bool

// RegisterResolutionMetrics registers Prometheus resolution metrics. Must be called once from main.
func RegisterResolutionMetrics() {
	if resolutionMetricsRegistered {
		return
	}
	prometheus.MustRegister(ResolutionsTotal)
	prometheus.MustRegister(ResolutionDuration)
	prometheus.MustRegister(CacheLookupsTotal)
	prometheus.MustRegister(CacheEntries)
	prometheus.MustRegister(LLMRequestsTotal)
	prometheus.MustRegister(LLMRequestDuration)
	prometheus.MustRegister(KeyRotationsTotal)
	prometheus.MustRegister(RetrievalDuration)
	prometheus.MustRegister(ToolInvocationsTotal)
	prometheus.MustRegister(IndexChunks)
	resolutionMetricsRegistered = true
}

// GatewayRecorder adapts the resolution metrics to the llm.Recorder
// contract without the llm package importing prometheus.
type GatewayRecorder struct{}

func (GatewayRecorder) RecordLLMRequest(provider, op, status string, duration time.Duration) {
	LLMRequestsTotal.WithLabelValues(provider, op, status).Inc()
	LLMRequestDuration.WithLabelValues(provider, op).Observe(duration.Seconds())
}

func (GatewayRecorder) RecordKeyRotation(provider string) {
	KeyRotationsTotal.WithLabelValues(provider).Inc()
}
