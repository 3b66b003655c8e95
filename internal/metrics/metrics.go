// Package metrics exposes the gateway's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InboundEvents counts normalized inbound batches by event kind.
	InboundEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "inbound_events_total",
		Help:      "Normalized inbound events grouped by kind.",
	}, []string{"kind"})

	// WebhookDeliveries counts webhook POSTs by outcome.
	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "webhook_deliveries_total",
		Help:      "Webhook delivery attempts grouped by outcome.",
	}, []string{"outcome"})

	// SendFailures counts classified send failures by numeric code.
	SendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "send_failures_total",
		Help:      "Classified send failures grouped by error code.",
	}, []string{"code"})

	// SendsAccepted counts jobs accepted on the HTTP send route.
	SendsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "sends_accepted_total",
		Help:      "Send requests accepted and enqueued.",
	})
)
