// Package prometheus provides Prometheus-backed instruments for the
// directory service controller.
package prometheus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wongsyrone/truenas-scale-middleware/pkg/metrics"
)

// dsMetrics holds the instruments for directory service lifecycle
// operations (join, leave, update).
type dsMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	state      *prometheus.GaugeVec
}

var (
	dsOnce sync.Once
	ds     *dsMetrics
)

// directoryServiceMetrics lazily builds the shared instrument set.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func directoryServiceMetrics() *dsMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	dsOnce.Do(func() {
		reg := metrics.GetRegistry()

		ds = &dsMetrics{
			operations: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "directoryservices_operations_total",
					Help: "Total number of directory service lifecycle operations by status",
				},
				[]string{"operation", "status"}, // operation: "join", "leave"; status: "JOINED", "FAULT", "ok", "error"
			),
			duration: promauto.With(reg).NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "directoryservices_operation_duration_seconds",
					Help:    "Duration of directory service lifecycle operations in seconds",
					Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
				},
				[]string{"operation"},
			),
			state: promauto.With(reg).NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "directoryservices_lifecycle_state",
					Help: "Current lifecycle state (1 for the active state, 0 otherwise)",
				},
				[]string{"state"},
			),
		}
	})

	return ds
}

// OperationTimer measures a single lifecycle operation from creation
// until Observe is called.
type OperationTimer struct {
	operation string
	start     time.Time
	metrics   *dsMetrics
}

// NewOperationTimer starts a timer for the named lifecycle operation.
// The zero-overhead contract applies: when metrics are disabled the
// returned timer does nothing.
func NewOperationTimer(operation string) *OperationTimer {
	return &OperationTimer{
		operation: operation,
		start:     time.Now(),
		metrics:   directoryServiceMetrics(),
	}
}

// Observe records the operation outcome and its duration.
func (t *OperationTimer) Observe(status string) {
	if t == nil || t.metrics == nil {
		return
	}
	t.metrics.operations.WithLabelValues(t.operation, status).Inc()
	t.metrics.duration.WithLabelValues(t.operation).Observe(time.Since(t.start).Seconds())
}

// SetLifecycleState exports the current lifecycle state as a one-hot
// gauge across the known states.
func SetLifecycleState(current string, all []string) {
	m := directoryServiceMetrics()
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1.0
		}
		m.state.WithLabelValues(s).Set(v)
	}
}
