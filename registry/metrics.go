package registry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts registry operations.
type Metrics struct {
	operations *prometheus.CounterVec
	inserted   prometheus.Counter
}

// NewMetrics creates the registry collectors and registers them with reg.
// A nil reg leaves the collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lottrace",
			Subsystem: "registry",
			Name:      "operations_total",
			Help:      "Registry operations by name and result.",
		}, []string{"op", "result"}),
		inserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lottrace",
			Subsystem: "registry",
			Name:      "records_inserted_total",
			Help:      "Records committed by single and batch inserts.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.inserted)
	}
	return m
}

// Operation returns the counter for op and result.
func (m *Metrics) Operation(op, result string) prometheus.Counter {
	return m.operations.WithLabelValues(op, result)
}

func (m *Metrics) observe(op string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, resultLabel(err)).Inc()
}

func (m *Metrics) addInserted(n int) {
	if m == nil {
		return
	}
	m.inserted.Add(float64(n))
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidBatch):
		return "invalid_batch"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrInvalidRecord):
		return "invalid_record"
	default:
		return "error"
	}
}
