package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mobileshop",
		Name:      "orders_created_total",
		Help:      "Orders created.",
	})

	OrderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mobileshop",
		Name:      "order_transitions_total",
		Help:      "Order status transitions by target status.",
	}, []string{"to_status"})

	ReservationResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mobileshop",
		Name:      "number_reservations_total",
		Help:      "Number reservation attempts by result (won, lost).",
	}, []string{"result"})

	ReservationsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mobileshop",
		Name:      "number_reservations_expired_total",
		Help:      "Reservations reclaimed after TTL expiry.",
	})

	PaymentResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mobileshop",
		Name:      "payments_total",
		Help:      "Payment capture outcomes (completed, failed, pending).",
	}, []string{"result"})

	GatewayLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mobileshop",
		Name:      "gateway_request_seconds",
		Help:      "Payment gateway round-trip latency.",
		Buckets:   prometheus.DefBuckets,
	})

	OutboxSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mobileshop",
		Name:      "outbox_sends_total",
		Help:      "Outbox delivery attempts by result (sent, failed).",
	}, []string{"result"})
)
