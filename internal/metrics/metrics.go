// Package metrics registers the Prometheus collectors exposed on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Queue engine
	QueueOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_operations_total",
			Help: "Queue engine operations by kind and outcome",
		},
		[]string{"operation", "result"},
	)

	QueueOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_operation_duration_seconds",
			Help:    "Duration of queue engine operations including lock wait",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	QueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "queue_active_tickets",
			Help: "Number of waiting and in-progress tickets after the last mutation",
		},
	)

	QueuePromotions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_auto_promotions_total",
			Help: "Tickets promoted to in-progress automatically",
		},
	)

	// Notifications
	NotificationsPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_persisted_total",
			Help: "Notifications written to storage",
		},
		[]string{"kind"},
	)

	LivePushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_live_pushes_total",
			Help: "Live push attempts by outcome",
		},
		[]string{"result"},
	)

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Currently registered live-push connections",
		},
	)

	// Broker
	BrokerPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_publish_total",
			Help: "Domain event publishes by outcome",
		},
		[]string{"result"},
	)

	BrokerConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_consumed_total",
			Help: "Domain events consumed by outcome",
		},
		[]string{"result"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// HTTP
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)
)

// ObserveOperation records one engine operation.
func ObserveOperation(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	QueueOperations.WithLabelValues(op, result).Inc()
	QueueOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// RecordHTTP counts one finished request.
func RecordHTTP(method, route string, status int) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
