// Package metrics provides Prometheus metrics collection for billgate.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for billgate.
type Collector struct {
	// Webhook processor metrics
	EventsTotal     *prometheus.CounterVec
	EventDuration   *prometheus.HistogramVec
	LedgerConflicts prometheus.Counter

	// Cache metrics
	CacheOps *prometheus.CounterVec

	// Surfacing metrics
	SurfaceOutcomes *prometheus.CounterVec
}

// Event result labels.
const (
	ResultProcessed    = "processed"
	ResultDeduplicated = "deduplicated"
	ResultIgnored      = "ignored"
	ResultFailed       = "failed"
)

// New creates a new metrics collector registered on the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "billgate",
				Name:      "webhook_events_total",
				Help:      "Total number of provider webhook events by type and result",
			},
			[]string{"event_type", "result"},
		),
		EventDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "billgate",
				Name:      "webhook_event_duration_seconds",
				Help:      "Webhook handler duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"event_type"},
		),
		LedgerConflicts: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "billgate",
				Name:      "webhook_ledger_conflicts_total",
				Help:      "Ledger inserts lost to a concurrent duplicate idempotency key",
			},
		),
		CacheOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "billgate",
				Name:      "cache_ops_total",
				Help:      "Billing cache reads by namespace and result",
			},
			[]string{"namespace", "result"},
		),
		SurfaceOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "billgate",
				Name:      "surface_outcomes_total",
				Help:      "Entitlement surfacing resolutions by resolver and outcome",
			},
			[]string{"resolver", "outcome"},
		),
	}
}
