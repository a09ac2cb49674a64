package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the memory engine.
type Metrics struct {
	Turns            *prometheus.CounterVec
	LLMLatency       prometheus.Histogram
	RetrievedItems   *prometheus.CounterVec
	ExtractionFacts  *prometheus.CounterVec
	EpisodesStored   prometheus.Counter
	CompressionRuns  *prometheus.CounterVec
	WorkerJobs       *prometheus.CounterVec
	WorkerQueueDepth prometheus.Gauge
	InjectionChars   prometheus.Histogram
	KnownUsers       prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Turns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversational turns handled, by retrieval mode.",
		}, []string{"mode"}),
		LLMLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_latency_ms",
			Help:      "Generation-service latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		}),
		RetrievedItems: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieved_items_total",
			Help:      "Memory items surfaced by retrieval, by tier.",
		}, []string{"tier"}),
		ExtractionFacts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_facts_total",
			Help:      "Extraction candidates by outcome.",
		}, []string{"outcome"}),
		EpisodesStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "episodes_stored_total",
			Help:      "Episodic summaries persisted.",
		}),
		CompressionRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compression_runs_total",
			Help:      "Session compression attempts by outcome.",
		}, []string{"outcome"}),
		WorkerJobs: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_jobs_total",
			Help:      "Background jobs by name and outcome.",
		}, []string{"job", "outcome"}),
		WorkerQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_queue_depth",
			Help:      "Jobs waiting in the background queue.",
		}),
		InjectionChars: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "injection_chars",
			Help:      "Characters of memory context injected per turn.",
			Buckets:   []float64{0, 100, 250, 500, 1000, 1600, 2400},
		}),
		KnownUsers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "known_users",
			Help:      "Users with a live session window.",
		}),
	}
}

func (m *Metrics) ObserveLLMLatency(d time.Duration) {
	m.LLMLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
