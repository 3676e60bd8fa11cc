// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pharmacy_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pharmacy_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pharmacy_orders_created_total",
		Help: "Orders committed.",
	})

	OrderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pharmacy_order_create_failures_total",
		Help: "Rejected order creations by reason.",
	}, []string{"reason"})

	OrderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pharmacy_order_transitions_total",
		Help: "Order status transitions applied.",
	}, []string{"to"})

	PaymentsReconciled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pharmacy_payments_reconciled_total",
		Help: "Reconciliation attempts by entry point and outcome.",
	}, []string{"source", "outcome"})

	WebhookSignatureFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pharmacy_webhook_signature_failures_total",
		Help: "Webhook deliveries rejected for a bad signature.",
	})

	GatewayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pharmacy_gateway_request_duration_seconds",
		Help:    "Payment gateway call latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op", "result"})
)
