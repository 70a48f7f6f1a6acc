package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_ms",
			Help:    "Duration of HTTP requests in ms",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600},
		},
		[]string{"method", "path"},
	)

	PersistenceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_persistence_failures_total",
			Help: "Cart writes that reached memory but not the persistence backend",
		},
		[]string{"op"},
	)

	CheckoutsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cart_checkouts_published_total",
			Help: "Checkout events handed to the broker",
		},
	)

	CartsClearedByEvent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cart_cleared_by_event_total",
			Help: "Carts emptied after a checkout-completed event",
		},
	)
)
