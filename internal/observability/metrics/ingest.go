package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ingestCollectors are shared by the api and worker registries; both
// processes ingest documents.
type ingestCollectors struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	chunks   *prometheus.HistogramVec
}

func newIngestCollectors() *ingestCollectors {
	return &ingestCollectors{
		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "documents_total",
				Help:      "Ingested documents by outcome (processed, duplicate, failed).",
			},
			[]string{"service", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "duration_seconds",
				Help:      "Document ingestion duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "outcome"},
		),
		chunks: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "chunks",
				Help:      "Chunks produced per processed document.",
				Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
			[]string{"service"},
		),
	}
}

func (c *ingestCollectors) register(registry *prometheus.Registry) {
	registry.MustRegister(c.total, c.duration, c.chunks)
}

func (c *ingestCollectors) observe(service, outcome string, chunks int, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	c.total.WithLabelValues(service, outcome).Inc()
	c.duration.WithLabelValues(service, outcome).Observe(duration.Seconds())
	if chunks > 0 {
		c.chunks.WithLabelValues(service).Observe(float64(chunks))
	}
}
