package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CartMetrics holds Prometheus metrics for the cart engine.
// A nil *CartMetrics is valid and records nothing.
type CartMetrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	CacheLookups      *prometheus.CounterVec
	Migrations        *prometheus.CounterVec
	ProductFetches    *prometheus.CounterVec
	EventsPublished   *prometheus.CounterVec
}

// NewCartMetrics creates the engine metrics and registers them with reg.
// A nil reg creates unregistered collectors.
func NewCartMetrics(namespace string, reg prometheus.Registerer) *CartMetrics {
	if namespace == "" {
		namespace = "cartsync"
	}
	factory := promauto.With(reg)

	return &CartMetrics{
		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cart",
				Name:      "operations_total",
				Help:      "Repository operations by identity and outcome",
			},
			[]string{"operation", "identity", "outcome"}, // outcome: ok or an error code
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "cart",
				Name:      "operation_duration_seconds",
				Help:      "Repository operation latency including backend round trips",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"operation", "identity"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "TTL cache lookups by class and result",
			},
			[]string{"class", "result"}, // result: hit, miss, stale, corrupt
		),
		Migrations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cart",
				Name:      "migrations_total",
				Help:      "Guest to user cart migrations by outcome",
			},
			[]string{"outcome"}, // outcome: merged, skipped, failed
		),
		ProductFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "enrichment",
				Name:      "product_fetches_total",
				Help:      "Catalog fetches issued while enriching lines",
			},
			[]string{"outcome"}, // outcome: ok, failed
		),
		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Change notifications published on the event bus",
			},
			[]string{"topic"},
		),
	}
}

// RecordOperation counts one repository operation and its latency.
func (m *CartMetrics) RecordOperation(op, identity, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, identity, outcome).Inc()
	m.OperationDuration.WithLabelValues(op, identity).Observe(d.Seconds())
}

func (m *CartMetrics) RecordCacheLookup(class, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(class, result).Inc()
}

func (m *CartMetrics) RecordMigration(outcome string) {
	if m == nil {
		return
	}
	m.Migrations.WithLabelValues(outcome).Inc()
}

func (m *CartMetrics) RecordProductFetch(ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.ProductFetches.WithLabelValues(outcome).Inc()
}

func (m *CartMetrics) RecordEvent(topic string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(topic).Inc()
}
