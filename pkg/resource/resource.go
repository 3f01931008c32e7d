// Package resource bridges asynchronous data fetching into a reactive
// store. A Resource runs its fetcher off the store's goroutine and feeds
// state, data and error back through signals, so derived values and
// subscribers react to loading transitions like any other change.
package resource

import (
	"context"
	"sync"
	"time"

	"github.com/weft-ui/weft/pkg/reactive"
)

// State is the lifecycle phase of a resource.
type State int

const (
	Pending State = iota // before the first fetch completes
	Loading              // fetch in flight
	Ready                // data loaded
	Failed               // last fetch errored
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Fetcher loads a value. It runs on a background goroutine and must honor
// ctx cancellation: a superseded or timed-out fetch has its context
// cancelled.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Resource manages one asynchronously fetched value as a trio of signals.
// The signals live in the store passed to New and must only be read on the
// goroutine that owns that store; results cross back onto it through the
// dispatch function (see WithDispatch).
type Resource[T any] struct {
	st      *reactive.Store
	fetcher Fetcher[T]

	state *reactive.Signal[State]
	data  *reactive.Signal[T]
	err   *reactive.Signal[error]

	dispatch   func(func())
	timeout    time.Duration
	staleTime  time.Duration
	retryCount int
	retryDelay time.Duration
	onSuccess  func(T)
	onError    func(error)

	mu        sync.Mutex
	lastFetch time.Time
	fetchID   uint64
	cancel    context.CancelFunc
	released  bool
}

// New creates a Resource and starts its first fetch.
func New[T any](st *reactive.Store, fetcher Fetcher[T], opts ...Option[T]) *Resource[T] {
	var zero T
	r := &Resource[T]{
		st:      st,
		fetcher: fetcher,
		state:   reactive.NewSignal(st, Pending),
		data:    reactive.NewSignal(st, zero),
		err:     reactive.NewSignal[error](st, nil),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.dispatch == nil {
		r.dispatch = func(fn func()) { fn() }
	}
	r.Refetch()
	return r
}

// StateSignal exposes the lifecycle signal for subscription and derivation.
func (r *Resource[T]) StateSignal() *reactive.Signal[State] { return r.state }

// DataSignal exposes the data signal. It holds the zero value until the
// first successful fetch.
func (r *Resource[T]) DataSignal() *reactive.Signal[T] { return r.data }

// ErrSignal exposes the error signal; nil unless the last fetch failed.
func (r *Resource[T]) ErrSignal() *reactive.Signal[error] { return r.err }

// State returns the current lifecycle phase.
func (r *Resource[T]) State() State { return r.state.Get() }

// IsLoading reports whether no data is available yet.
func (r *Resource[T]) IsLoading() bool {
	s := r.state.Get()
	return s == Pending || s == Loading
}

// IsReady reports whether data is loaded.
func (r *Resource[T]) IsReady() bool { return r.state.Get() == Ready }

// Data returns the current data, or the zero value before the first
// successful fetch.
func (r *Resource[T]) Data() T { return r.data.Get() }

// DataOr returns the current data if ready, otherwise fallback.
func (r *Resource[T]) DataOr(fallback T) T {
	if r.IsReady() {
		return r.data.Get()
	}
	return fallback
}

// Err returns the error from the last failed fetch, or nil.
func (r *Resource[T]) Err() error { return r.err.Get() }

// Fetch starts a fetch unless ready data is still fresh per WithStaleTime.
func (r *Resource[T]) Fetch() {
	r.mu.Lock()
	fresh := time.Since(r.lastFetch) < r.staleTime
	r.mu.Unlock()
	if fresh && r.IsReady() {
		return
	}
	r.Refetch()
}

// Refetch starts a fetch unconditionally, cancelling any fetch in flight.
// A cancelled fetch's result is discarded even if it races the
// cancellation.
func (r *Resource[T]) Refetch() {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return
	}
	r.fetchID++
	id := r.fetchID
	if r.cancel != nil {
		r.cancel()
	}
	ctx := context.Background()
	var cancel context.CancelFunc
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	r.cancel = cancel
	retryCount, retryDelay := r.retryCount, r.retryDelay
	r.mu.Unlock()

	r.state.Set(Loading)
	r.err.Set(nil)

	go func() {
		defer cancel()

		var result T
		var err error
		for attempt := 0; attempt <= retryCount; attempt++ {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(retryDelay):
				}
			}
			if r.stale(id) {
				return
			}
			result, err = r.fetcher(ctx)
			if err == nil {
				break
			}
		}

		r.dispatch(func() {
			if r.stale(id) {
				return
			}
			r.mu.Lock()
			r.lastFetch = time.Now()
			r.mu.Unlock()

			if err != nil {
				r.err.Set(err)
				r.state.Set(Failed)
				if r.onError != nil {
					r.onError(err)
				}
				return
			}
			r.data.Set(result)
			r.state.Set(Ready)
			if r.onSuccess != nil {
				r.onSuccess(result)
			}
		})
	}()
}

// Invalidate discards freshness so the next Fetch refetches.
func (r *Resource[T]) Invalidate() {
	r.mu.Lock()
	r.lastFetch = time.Time{}
	r.mu.Unlock()
}

// Mutate applies an optimistic local update to the data signal without
// touching the lifecycle state.
func (r *Resource[T]) Mutate(fn func(T) T) {
	r.data.Update(fn)
}

// Release cancels any in-flight fetch and releases the underlying signals.
// The resource must not be used afterwards.
func (r *Resource[T]) Release() {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return
	}
	r.released = true
	r.fetchID++ // orphan any in-flight result
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	r.state.Release()
	r.data.Release()
	r.err.Release()
}

// stale reports whether id has been superseded by a newer fetch.
func (r *Resource[T]) stale(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetchID != id || r.released
}
