package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var outboxEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_outbox_events_enqueued_total",
	Help: "Total number of events written to the transactional outbox",
}, []string{"kind"})

var outboxDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_outbox_events_delivered_total",
	Help: "Total number of outbox events delivered to the event sink",
}, []string{"kind"})

var outboxDeliveryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_outbox_delivery_failures_total",
	Help: "Total number of failed outbox delivery attempts",
}, []string{"kind"})

var outboxDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_outbox_events_dropped_total",
	Help: "Total number of outbox events dropped after exhausting retries",
}, []string{"kind"})

var fanoutOverflow = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_event_fanout_overflow_total",
	Help: "Total number of events dropped due to a full subscriber buffer",
}, []string{"kind"})
