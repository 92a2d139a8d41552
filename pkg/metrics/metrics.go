// Package metrics registers the Prometheus collectors shared by both
// binaries. Each binary exposes them on its /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsPublished counts events successfully handed to the bus, by topic.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_events_published_total",
		Help: "Number of events published to the event bus.",
	}, []string{"topic"})

	// EventsConsumed counts consumed deliveries by topic and result
	// (ack, nak or term).
	EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_events_consumed_total",
		Help: "Number of event deliveries consumed, by handling result.",
	}, []string{"topic", "result"})

	// PaymentsSettled counts settlement outcomes (approved or declined).
	PaymentsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_payments_settled_total",
		Help: "Number of payment settlements, by outcome.",
	}, []string{"outcome"})

	// OutboxRetries counts publish retries performed by the outbox relay.
	OutboxRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "saga_outbox_relay_retries_total",
		Help: "Number of outbox publish attempts that had to be retried.",
	})
)
