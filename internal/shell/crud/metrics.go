package crud

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation outcomes recorded by Metrics.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFault    = "fault"
)

// Metrics records per-resource operation counts and latencies.
// A nil *Metrics records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics creates the CRUD metrics and registers them on reg (or the
// default registerer if nil). Registering twice reuses the existing
// collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crud_operations_total",
		Help: "CRUD operations by resource, operation and outcome",
	}, []string{"resource", "operation", "outcome"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crud_operation_duration_seconds",
		Help:    "Latency of CRUD operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"resource", "operation"})

	if err := reg.Register(operations); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		operations = are.ExistingCollector.(*prometheus.CounterVec)
	}
	if err := reg.Register(duration); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		duration = are.ExistingCollector.(*prometheus.HistogramVec)
	}

	return &Metrics{operations: operations, duration: duration}, nil
}

func (m *Metrics) observe(resource, operation, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(resource, operation, outcome).Inc()
	m.duration.WithLabelValues(resource, operation).Observe(time.Since(started).Seconds())
}
