package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	jobTotal    *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobInFlight prometheus.Gauge
	staleMarked prometheus.Counter

	ingest *ingestCollectors
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	jobTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Total worker jobs by kind and status.",
		},
		[]string{"service", "job", "status"},
	)
	jobDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "job_duration_seconds",
			Help:      "Worker job duration in seconds by kind and status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "job", "status"},
	)
	jobInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "jobs_in_flight",
			Help:      "Number of in-flight worker jobs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	staleMarked := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "stale_documents_failed_total",
			Help:      "Documents stuck in processing that the sweep marked failed.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	ingest := newIngestCollectors()

	registry.MustRegister(jobTotal, jobDuration, jobInFlight, staleMarked)
	ingest.register(registry)

	return &WorkerMetrics{
		registry:    registry,
		service:     service,
		jobTotal:    jobTotal,
		jobDuration: jobDuration,
		jobInFlight: jobInFlight,
		staleMarked: staleMarked,
		ingest:      ingest,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartJob() {
	m.jobInFlight.Inc()
}

func (m *WorkerMetrics) FinishJob(job string, duration time.Duration, err error) {
	m.jobInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.jobTotal.WithLabelValues(m.service, job, status).Inc()
	m.jobDuration.WithLabelValues(m.service, job, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) AddStaleFailed(n int) {
	if n > 0 {
		m.staleMarked.Add(float64(n))
	}
}

func (m *WorkerMetrics) ObserveIngest(outcome string, chunks int, duration time.Duration) {
	m.ingest.observe(m.service, outcome, chunks, duration)
}
