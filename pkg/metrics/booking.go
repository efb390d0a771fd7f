package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Booking outcomes used as the outcome label.
const (
	OutcomeSuccess  = "success"
	OutcomeConflict = "conflict"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// BookingMetrics tracks engine operations, retries and counter repairs.
type BookingMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	retries    *prometheus.CounterVec
	repairs    prometheus.Counter
}

// NewBookingMetrics registers the booking metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	if reg == nil {
		return &BookingMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "booking",
		Name:      "operations_total",
		Help:      "Booking engine operations by outcome.",
	}, []string{"operation", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "booking",
		Name:      "operation_duration_seconds",
		Help:      "Wall time of booking operations including retries.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"operation"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "booking",
		Name:      "retries_total",
		Help:      "Transactions re-run after a retryable conflict.",
	}, []string{"operation"})
	repairs := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "booking",
		Name:      "occupancy_repairs_total",
		Help:      "Room occupancy counters corrected by reconciliation.",
	})
	reg.MustRegister(operations, duration, retries, repairs)
	return &BookingMetrics{
		operations: operations,
		duration:   duration,
		retries:    retries,
		repairs:    repairs,
	}
}

// Observe records one finished operation.
func (b *BookingMetrics) Observe(operation, outcome string, elapsed time.Duration) {
	if b == nil || b.operations == nil {
		return
	}
	b.operations.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
	b.duration.WithLabelValues(normalizeLabel(operation)).Observe(elapsed.Seconds())
}

// IncRetry counts a retried attempt.
func (b *BookingMetrics) IncRetry(operation string) {
	if b == nil || b.retries == nil {
		return
	}
	b.retries.WithLabelValues(normalizeLabel(operation)).Inc()
}

// AddRepairs counts rooms whose counter was overwritten.
func (b *BookingMetrics) AddRepairs(n int) {
	if b == nil || b.repairs == nil || n <= 0 {
		return
	}
	b.repairs.Add(float64(n))
}
