// Package metrics exposes Prometheus counters for the bus, resolvers and
// the websocket bridge.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	eventsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tgsearch_bus_events_total",
			Help: "Total number of events emitted on a bus",
		},
		[]string{"event"},
	)

	handlerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tgsearch_bus_handler_failures_total",
			Help: "Total number of bus handler errors and panics",
		},
		[]string{"event"},
	)

	resolverItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tgsearch_resolver_items_total",
			Help: "Items processed by resolver stages",
		},
		[]string{"resolver", "status"},
	)

	resolverDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tgsearch_resolver_duration_seconds",
			Help:    "Time spent per item in a resolver stage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resolver"},
	)

	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tgsearch_bridge_connections",
			Help: "Number of connected bridge websocket clients",
		},
	)

	initOnce sync.Once
)

// Init registers the collectors with the default registry.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			eventsEmitted,
			handlerFailures,
			resolverItems,
			resolverDuration,
			activeConnections,
		)
	})
}

// Handler returns an HTTP handler for Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordEvent(event string) {
	eventsEmitted.WithLabelValues(event).Inc()
}

func RecordHandlerFailure(event string) {
	handlerFailures.WithLabelValues(event).Inc()
}

// RecordResolverItem records one unit of resolver work. status is "ok",
// "skipped" or "failed".
func RecordResolverItem(resolver, status string, duration time.Duration) {
	resolverItems.WithLabelValues(resolver, status).Inc()
	resolverDuration.WithLabelValues(resolver).Observe(duration.Seconds())
}

func ConnectionOpened() {
	activeConnections.Inc()
}

func ConnectionClosed() {
	activeConnections.Dec()
}
