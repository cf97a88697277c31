package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type ApplyMetrics struct {
	operations   *prometheus.CounterVec
	rejections   *prometheus.CounterVec
	batchEntries prometheus.Histogram
	duration     prometheus.Histogram
}

var (
	applyOnce     sync.Once
	applyRegistry *ApplyMetrics
)

// Apply returns the process-wide apply engine metrics, registering them with
// the default registry on first use.
func Apply() *ApplyMetrics {
	applyOnce.Do(func() {
		applyRegistry = &ApplyMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "msb_apply_operations_total",
				Help: "Count of applied log entries by operation and outcome.",
			}, []string{"operation", "outcome"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "msb_apply_rejections_total",
				Help: "Count of rejected operations by operation and reason.",
			}, []string{"operation", "reason"}),
			batchEntries: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "msb_apply_batch_entries",
				Help:    "Number of entries delivered per apply batch.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			}),
			duration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "msb_apply_duration_seconds",
				Help:    "Wall time spent applying one batch.",
				Buckets: prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(
			applyRegistry.operations,
			applyRegistry.rejections,
			applyRegistry.batchEntries,
			applyRegistry.duration,
		)
	})
	return applyRegistry
}

func (m *ApplyMetrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

func (m *ApplyMetrics) ObserveRejection(operation, reason string) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	m.rejections.WithLabelValues(operation, reason).Inc()
}

// ObserveBatch records the size and duration of one apply call.
func (m *ApplyMetrics) ObserveBatch(entries int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.batchEntries.Observe(float64(entries))
	m.duration.Observe(elapsed.Seconds())
}
