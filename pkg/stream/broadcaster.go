// Package stream exposes a reactive store over HTTP: named signals are
// watched for changes and fanned out to websocket clients as JSON events,
// with a snapshot endpoint for the current state.
//
// A Broadcaster owns its store on a dedicated event loop goroutine. All
// store access goes through Do (or Dispatch for fire-and-forget), which is
// how the store's single-goroutine contract is kept while HTTP handlers and
// fetchers run concurrently.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/weft-ui/weft/pkg/reactive"
)

// Event is one observed change of a watched signal.
type Event struct {
	Name    string `json:"name"`
	Value   any    `json:"value"`
	Version uint64 `json:"version"`
}

// Broadcaster runs a reactive store on an event loop and streams watched
// signal changes to websocket subscribers.
type Broadcaster struct {
	log      *slog.Logger
	registry *prometheus.Registry

	st    *reactive.Store
	tasks chan func()
	quit  chan struct{}
	done  chan struct{}

	sendBuffer int
	upgrader   websocket.Upgrader

	mu       sync.Mutex
	clients  map[*client]struct{}
	snapshot map[string]Event
	closed   bool
}

// New creates a Broadcaster and starts its event loop.
func New(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		tasks:      make(chan func(), 256),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		sendBuffer: 32,
		clients:    make(map[*client]struct{}),
		snapshot:   make(map[string]Event),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = slog.Default()
	}

	storeOpts := []reactive.StoreOption{reactive.WithLogger(b.log)}
	if b.registry != nil {
		storeOpts = append(storeOpts, reactive.WithMetrics(b.registry))
	}
	b.st = reactive.NewStore(storeOpts...)

	go b.loop()
	return b
}

func (b *Broadcaster) loop() {
	defer close(b.done)
	for {
		select {
		case fn := <-b.tasks:
			fn()
		case <-b.quit:
			// Drain queued tasks so Do callers are not left hanging.
			for {
				select {
				case fn := <-b.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Do runs fn on the event loop with the store and waits for it to finish.
// This is the only way to touch the store from another goroutine.
func (b *Broadcaster) Do(fn func(st *reactive.Store)) {
	doneCh := make(chan struct{})
	select {
	case b.tasks <- func() { defer close(doneCh); fn(b.st) }:
		<-doneCh
	case <-b.quit:
	}
}

// Dispatch queues fn on the event loop without waiting. It satisfies the
// resource package's WithDispatch contract.
func (b *Broadcaster) Dispatch(fn func()) {
	select {
	case b.tasks <- fn:
	case <-b.quit:
	}
}

// Watch registers a named value: its current state enters the snapshot and
// every change is broadcast to connected clients. Watch and the returned
// stop function must run on the event loop (inside Do).
func Watch[T any](b *Broadcaster, name string, v reactive.Value[T]) func() {
	sub := v.SubscribeNow(func(val T) {
		b.publish(Event{Name: name, Value: val, Version: v.Version()})
	})
	return func() {
		sub.Unsubscribe()
		b.mu.Lock()
		delete(b.snapshot, name)
		b.mu.Unlock()
	}
}

// publish records the latest event for a name and fans it out. A client
// whose send queue is full is dropped rather than allowed to stall the
// loop.
func (b *Broadcaster) publish(ev Event) {
	b.mu.Lock()
	b.snapshot[ev.Name] = ev
	var stalled []*client
	for c := range b.clients {
		select {
		case c.send <- ev:
		default:
			stalled = append(stalled, c)
		}
	}
	for _, c := range stalled {
		delete(b.clients, c)
	}
	b.mu.Unlock()

	for _, c := range stalled {
		b.log.Warn("dropping slow websocket client", "remote", c.conn.RemoteAddr())
		c.close()
	}
}

// Router returns the HTTP surface: GET /ws upgrades to the event stream,
// GET /state returns the current snapshot, GET /healthz reports liveness,
// and GET /metrics serves Prometheus metrics when a registry was supplied.
func (b *Broadcaster) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/ws", b.handleWS)
	r.Get("/state", b.handleState)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if b.registry != nil {
		r.Get("/metrics", promhttp.HandlerFor(b.registry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	return r
}

func (b *Broadcaster) handleWS(w http.ResponseWriter, req *http.Request) {
	conn, err := b.upgrader.Upgrade(w, req, nil)
	if err != nil {
		b.log.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, closed: make(chan struct{})}

	// Queue the snapshot first so the client starts from current state. The
	// send queue is sized to hold it outright.
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		conn.Close()
		return
	}
	c.send = make(chan Event, b.sendBuffer+len(b.snapshot))
	for _, ev := range b.snapshot {
		c.send <- ev
	}
	b.clients[c] = struct{}{}
	b.mu.Unlock()

	go c.writePump(b.log)
	c.readPump()

	b.mu.Lock()
	delete(b.clients, c)
	b.mu.Unlock()
	c.close()
}

func (b *Broadcaster) handleState(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	events := make([]Event, 0, len(b.snapshot))
	for _, ev := range b.snapshot {
		events = append(events, ev)
	}
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(events); err != nil {
		b.log.Error("state encode failed", "error", err)
	}
}

// Close stops the event loop and disconnects all clients.
func (b *Broadcaster) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.clients = make(map[*client]struct{})
	b.mu.Unlock()

	for _, c := range clients {
		c.close()
	}

	close(b.quit)
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
