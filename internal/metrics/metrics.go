// ABOUTME: Prometheus collectors for ingestion outcomes, live subscribers and query latency
// ABOUTME: All methods are safe on a nil *Metrics so callers can run without instrumentation

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingest outcomes recorded under the "outcome" label.
const (
	OutcomeStored       = "stored"
	OutcomeIgnored      = "ignored"
	OutcomeInvalid      = "invalid"
	OutcomeMissingScope = "missing_scope"
	OutcomeError        = "error"
)

// Metrics bundles the relay's collectors and the registry they live on.
type Metrics struct {
	registry *prometheus.Registry

	ingestTotal      *prometheus.CounterVec
	subscribers      prometheus.Gauge
	broadcastDropped prometheus.Counter
	queryDuration    *prometheus.HistogramVec
}

// New creates the relay collectors and registers them, along with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ingestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_ingest_total",
				Help: "Ingestion attempts by outcome.",
			},
			[]string{"outcome"},
		),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_subscribers",
			Help: "Currently connected live-event subscribers.",
		}),
		broadcastDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_broadcast_dropped_total",
			Help: "Events dropped because a subscriber buffer was full.",
		}),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_query_duration_seconds",
				Help:    "Latency of read queries against the message store.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"query"},
		),
	}

	m.registry.MustRegister(
		m.ingestTotal,
		m.subscribers,
		m.broadcastDropped,
		m.queryDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Ingested counts one ingestion attempt.
func (m *Metrics) Ingested(outcome string) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(outcome).Inc()
}

// SubscriberAdded increments the live subscriber gauge.
func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}
	m.subscribers.Inc()
}

// SubscriberRemoved decrements the live subscriber gauge.
func (m *Metrics) SubscriberRemoved() {
	if m == nil {
		return
	}
	m.subscribers.Dec()
}

// BroadcastDropped counts one event not delivered to a slow subscriber.
func (m *Metrics) BroadcastDropped() {
	if m == nil {
		return
	}
	m.broadcastDropped.Inc()
}

// ObserveQuery records how long a named read query took since start.
func (m *Metrics) ObserveQuery(query string, start time.Time) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
}
