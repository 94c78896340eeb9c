package jobhandler

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Job Handler's Prometheus instrumentation, registered
// once and shared across requests when run via `cmd/handler` in server
// mode (SPEC_FULL.md §4, "/healthz and /metrics surface").
type Metrics struct {
	JobsTotal      *prometheus.CounterVec
	JobDuration    *prometheus.HistogramVec
	RealizeSeconds prometheus.Histogram
	// FetchRetries is registered with the others, but nothing in this module
	// increments it, so it always reads zero.
	FetchRetries prometheus.Counter
}

// NewMetrics builds and registers the Job Handler's metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_jobhandler_jobs_total",
			Help: "Total jobs processed, labeled by terminal state.",
		}, []string{"state"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "engine_jobhandler_job_duration_seconds",
			Help:    "End-to-end job duration by terminal state.",
			Buckets: prometheus.DefBuckets,
		}, []string{"state"}),
		RealizeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "engine_jobhandler_realize_duration_seconds",
			Help:    "Time spent in the Realize phase (short-circuited or full).",
			Buckets: prometheus.DefBuckets,
		}),
		FetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_jobhandler_fetch_retries_total",
			Help: "Count of retried fetch attempts observed by the handler.",
		}),
	}
	reg.MustRegister(m.JobsTotal, m.JobDuration, m.RealizeSeconds, m.FetchRetries)
	return m
}
