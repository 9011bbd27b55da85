package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "docservice"

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	DocumentsRegistered = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "documents_registered_total", Help: "Number of documents registered after a successful upload."},
	)
	UploadFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "documents_upload_failures_total", Help: "Number of uploads rejected by the blob store or missing a file."},
	)
	DocumentsReconciled = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "documents_reconciled_total", Help: "Number of analysis results written back, by resulting status."},
		[]string{"status"},
	)
	DocumentsSwept = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "documents_swept_total", Help: "Number of processing documents marked failed after the analysis deadline."},
	)
	AnalysisJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "analysis_jobs_total", Help: "Analysis jobs handled by the worker, by outcome."},
		[]string{"outcome"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(DocumentsRegistered)
	reg.MustRegister(UploadFailures)
	reg.MustRegister(DocumentsReconciled)
	reg.MustRegister(DocumentsSwept)
	reg.MustRegister(AnalysisJobs)
}

// NewQueueDepthGauge exports the number of pending analysis jobs, read from
// depth on every scrape. A failed read is reported as -1.
func NewQueueDepthGauge(depth func() (int64, error)) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: namespace, Name: "analysis_queue_depth", Help: "Analysis jobs waiting in the queue."},
		func() float64 {
			n, err := depth()
			if err != nil {
				return -1
			}
			return float64(n)
		},
	)
}
