package stream

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Broadcaster at construction.
type Option func(*Broadcaster)

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(b *Broadcaster) {
		b.log = log
	}
}

// WithRegistry enables Prometheus metrics: the store's instruments register
// with the registry and the router serves it at /metrics.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(b *Broadcaster) {
		b.registry = registry
	}
}

// WithSendBuffer sets the per-client event queue size. A client that falls
// this many events behind is dropped.
func WithSendBuffer(n int) Option {
	return func(b *Broadcaster) {
		b.sendBuffer = n
	}
}
