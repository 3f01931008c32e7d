package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/weft-ui/weft/pkg/reactive"
	"github.com/weft-ui/weft/pkg/resource"
	"github.com/weft-ui/weft/pkg/stream"
)

func serveCmd() *cobra.Command {
	var (
		addr     string
		tick     time.Duration
		fetchURL string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a demo reactive state server",
		Long: `Run an HTTP server that streams a small reactive graph over
websockets: a ticking counter, derived values computed from it, and
optionally a JSON resource polled from a URL.

Endpoints: /ws (event stream), /state (snapshot), /healthz, /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := slog.New(slog.NewTextHandler(os.Stderr, nil))

			registry := prometheus.NewRegistry()
			b := stream.New(
				stream.WithLogger(log),
				stream.WithRegistry(registry),
			)

			var ticks *reactive.Signal[int]
			b.Do(func(st *reactive.Store) {
				ticks = reactive.NewSignal(st, 0)
				even := reactive.Derive(ticks, func(n int) bool { return n%2 == 0 })
				uptime := reactive.Derive(ticks, func(n int) string {
					return (time.Duration(n) * tick).Truncate(time.Second).String()
				})

				stream.Watch[int](b, "ticks", ticks)
				stream.Watch[bool](b, "even", even)
				stream.Watch[string](b, "uptime", uptime)
			})

			if fetchURL != "" {
				b.Do(func(st *reactive.Store) {
					res := resource.New(st, resource.JSON[map[string]any](nil, fetchURL),
						resource.WithDispatch[map[string]any](b.Dispatch),
						resource.WithTimeout[map[string]any](10*time.Second),
						resource.WithRetry[map[string]any](2, time.Second),
					)
					stream.Watch[map[string]any](b, "remote", res.DataSignal())
					stream.Watch[resource.State](b, "remote_state", res.StateSignal())
				})
			}

			ticker := time.NewTicker(tick)
			defer ticker.Stop()
			go func() {
				for range ticker.C {
					b.Dispatch(func() {
						ticks.Update(func(n int) int { return n + 1 })
					})
				}
			}()

			srv := &http.Server{
				Addr:              addr,
				Handler:           b.Router(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errc := make(chan error, 1)
			go func() { errc <- srv.ListenAndServe() }()
			log.Info("serving", "addr", addr, "tick", tick)

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}

			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("http shutdown", "error", err)
			}
			return b.Close(shutdownCtx)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8090", "Listen address")
	cmd.Flags().DurationVar(&tick, "tick", time.Second, "Counter tick interval")
	cmd.Flags().StringVar(&fetchURL, "fetch-url", "", "Optional JSON URL polled into the graph")

	return cmd
}
