package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks the number of outbound REST calls to the venue.
	RESTRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paradigm_rest_requests_total",
			Help: "Total number of Paradigm REST requests made (by path, method and status).",
		},
		[]string{"path", "method", "status"},
	)

	// Measures duration of REST calls to the venue.
	RESTRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "paradigm_rest_request_duration_seconds",
			Help:    "Duration of Paradigm REST requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"path", "method"},
	)

	// Tracks WebSocket frames by disposition.
	WSMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paradigm_ws_messages_total",
			Help: "Total number of WebSocket data frames by disposition.",
		},
		[]string{"disposition"}, // received | processed | dropped
	)

	// Gauges the number of currently tracked OPEN RFQs.
	TrackedRFQs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rfq_tracked_open",
			Help: "Number of OPEN RFQs currently tracked in memory.",
		},
	)

	// Tracks order operations by kind and outcome.
	OrderOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_operations_total",
			Help: "Total order create/replace operations by kind and outcome.",
		},
		[]string{"kind", "outcome"}, // kind = create | replace, outcome = ok | rejected | transport_error
	)

	// Tracks lifecycle events published to NATS.
	PublishedEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "published_events_total",
			Help: "Total lifecycle events published by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	// Counts market-maker-protection trips observed.
	MMPTripsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mmp_trips_total",
			Help: "Number of market maker protection trips observed.",
		},
	)
)

func IncRESTRequest(path, method, status string) {
	RESTRequestsTotal.WithLabelValues(path, method, status).Inc()
}

func ObserveRESTDuration(start time.Time, path, method string) {
	RESTRequestDuration.WithLabelValues(path, method).Observe(time.Since(start).Seconds())
}

func IncWSMessage(disposition string) {
	WSMessagesTotal.WithLabelValues(disposition).Inc()
}

func SetTrackedRFQs(n int) {
	TrackedRFQs.Set(float64(n))
}

func IncOrderOperation(kind, outcome string) {
	OrderOperationsTotal.WithLabelValues(kind, outcome).Inc()
}

func IncPublishedEvent(eventType, outcome string) {
	PublishedEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func IncMMPTrip() {
	MMPTripsTotal.Inc()
}
