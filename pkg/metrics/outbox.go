package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outbox publish results used as the result label.
const (
	PublishResultPublished    = "published"
	PublishResultFailed       = "failed"
	PublishResultDeadLettered = "dead_lettered"
)

// OutboxMetrics counts publisher results per event type.
type OutboxMetrics struct {
	events *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "events_total",
		Help:      "Outbox rows handled by the publisher by result.",
	}, []string{"event_type", "result"})
	reg.MustRegister(events)
	return &OutboxMetrics{events: events}
}

func (o *OutboxMetrics) Inc(eventType, result string) {
	if o == nil || o.events == nil {
		return
	}
	o.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(result)).Inc()
}
