package reactive

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

// StoreOption configures a Store at construction.
type StoreOption func(*Store)

// WithLogger sets the structured logger used for subscriber failures and
// aborted passes. Defaults to slog.Default.
func WithLogger(log *slog.Logger) StoreOption {
	return func(st *Store) {
		st.log = log
	}
}

// WithMetrics registers the store's Prometheus instruments with the given
// registerer. Without this option the store keeps only its internal Stats
// counters.
func WithMetrics(registry prometheus.Registerer) StoreOption {
	return func(st *Store) {
		st.metrics = newStoreMetrics(registry)
	}
}

// WithTracing enables an OpenTelemetry span per propagation pass, created
// from the globally configured tracer provider under the given tracer name.
func WithTracing(name string) StoreOption {
	return func(st *Store) {
		st.tracer = otel.Tracer(name)
	}
}
