package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the process-wide Prometheus collectors registered by
// cmd/worker and cmd/api, replacing the teacher's no-op stand-ins (kept
// around to preserve call sites after an earlier Prometheus removal) with
// real counters/histograms now that the domain names the concrete things
// worth measuring: enqueue throughput, per-channel send latency, and job
// outcome counts.
type Metrics struct {
	JobsEnqueuedTotal     *prometheus.CounterVec
	JobsProcessedTotal    *prometheus.CounterVec
	ChannelSendDuration   *prometheus.HistogramVec
	QueueDepth            *prometheus.GaugeVec
	CreditOperationsTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		JobsEnqueuedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_enqueued_total",
			Help: "Total number of jobs enqueued by the producer, labeled by channel.",
		}, []string{"channel"}),
		JobsProcessedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Total number of jobs processed by the worker, labeled by channel and outcome.",
		}, []string{"channel", "outcome"}),
		ChannelSendDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "channel_send_duration_seconds",
			Help:    "Duration of one BatchSender.Send call, labeled by channel.",
			Buckets: prometheus.DefBuckets,
		}, []string{"channel"}),
		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Current active+waiting+delayed job count, labeled by queue name and state.",
		}, []string{"queue", "state"}),
		CreditOperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credit_operations_total",
			Help: "Total number of billing credit operations, labeled by operation.",
		}, []string{"operation"}),
	}
}
