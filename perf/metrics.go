package perf

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VariantsProcessed counts successfully produced variants by format.
	VariantsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "variants_processed_total",
		Help: "Number of variants produced, by output format.",
	}, []string{"format"})

	// VariantFailures counts activity-level transform failures by stage.
	VariantFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "variants_failed_total",
		Help: "Number of variant attempts that failed, by stage.",
	}, []string{"stage"})

	// TransformDuration observes wall time of the transform step.
	TransformDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "variants_transform_duration_seconds",
		Help:    "Time spent decoding, transforming and encoding one variant.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// UploadBytes observes original upload sizes.
	UploadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "variants_upload_bytes",
		Help:    "Size of accepted original uploads in bytes.",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
	})
)

// ObserveTransform records one transform attempt.
func ObserveTransform(format string, d time.Duration, err error) {
	if err != nil {
		VariantFailures.WithLabelValues("transform").Inc()
		return
	}
	TransformDuration.Observe(d.Seconds())
	VariantsProcessed.WithLabelValues(format).Inc()
}
