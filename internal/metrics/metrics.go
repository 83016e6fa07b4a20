package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatchboard",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	allocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatchboard",
			Name:      "allocations_total",
			Help:      "Slot allocation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	mutationsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatchboard",
			Name:      "mutations_enqueued_total",
			Help:      "Offline mutations enqueued by kind.",
		},
		[]string{"kind"},
	)

	mutationsFlushed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatchboard",
			Name:      "mutations_flushed_total",
			Help:      "Offline mutations sent during flush passes by kind.",
		},
		[]string{"kind"},
	)

	flushFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatchboard",
			Name:      "flush_failures_total",
			Help:      "Queued mutations rejected by the remote side during flush. These are dropped, not retried.",
		},
		[]string{"kind"},
	)

	geofenceEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatchboard",
			Name:      "geofence_events_total",
			Help:      "Geofence enter/exit events.",
		},
		[]string{"type"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			allocations,
			mutationsEnqueued,
			mutationsFlushed,
			flushFailures,
			geofenceEvents,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncAllocation records an allocation outcome: "placed" or "rejected".
func IncAllocation(outcome string) {
	allocations.WithLabelValues(outcome).Inc()
}

// IncEnqueued records an offline mutation landing in the queue.
func IncEnqueued(kind string) {
	mutationsEnqueued.WithLabelValues(kind).Inc()
}

// IncFlushed records a mutation sent during a flush pass.
func IncFlushed(kind string) {
	mutationsFlushed.WithLabelValues(kind).Inc()
}

// IncFlushFailure records a mutation the remote rejected during flush.
func IncFlushFailure(kind string) {
	flushFailures.WithLabelValues(kind).Inc()
}

// IncGeofence records an "enter" or "exit" event.
func IncGeofence(eventType string) {
	geofenceEvents.WithLabelValues(eventType).Inc()
}
