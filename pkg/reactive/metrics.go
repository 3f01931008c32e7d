package reactive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// storeMetrics holds the Prometheus instruments for one store. Created only
// when the store is built with WithMetrics.
//
// Metrics exposed:
//   - weft_reactive_writes_total: Counter of committed cell writes
//   - weft_reactive_passes_total: Counter of propagation passes
//   - weft_reactive_recomputes_total: Counter of derivation recomputations
//   - weft_reactive_notifications_total: Counter of subscriber deliveries
//   - weft_reactive_subscriber_failures_total: Counter of subscriber panics
//   - weft_reactive_live_nodes: Gauge of live cells and derivations
//   - weft_reactive_pass_duration_seconds: Histogram of pass duration
type storeMetrics struct {
	writes             prometheus.Counter
	passes             prometheus.Counter
	recomputes         prometheus.Counter
	notifications      prometheus.Counter
	subscriberFailures prometheus.Counter
	liveNodes          prometheus.Gauge
	passDuration       prometheus.Histogram
}

func newStoreMetrics(registry prometheus.Registerer) *storeMetrics {
	factory := promauto.With(registry)

	return &storeMetrics{
		writes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "weft",
			Subsystem: "reactive",
			Name:      "writes_total",
			Help:      "Total number of committed cell writes",
		}),

		passes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "weft",
			Subsystem: "reactive",
			Name:      "passes_total",
			Help:      "Total number of propagation passes",
		}),

		recomputes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "weft",
			Subsystem: "reactive",
			Name:      "recomputes_total",
			Help:      "Total number of derivation recomputations",
		}),

		notifications: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "weft",
			Subsystem: "reactive",
			Name:      "notifications_total",
			Help:      "Total number of subscriber deliveries",
		}),

		subscriberFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "weft",
			Subsystem: "reactive",
			Name:      "subscriber_failures_total",
			Help:      "Total number of subscriber callbacks that panicked",
		}),

		liveNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "weft",
			Subsystem: "reactive",
			Name:      "live_nodes",
			Help:      "Number of live cells and derivations in the store",
		}),

		passDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weft",
			Subsystem: "reactive",
			Name:      "pass_duration_seconds",
			Help:      "Propagation pass duration in seconds",
			Buckets:   []float64{1e-6, 1e-5, 1e-4, 1e-3, 1e-2, 1e-1, 1},
		}),
	}
}
