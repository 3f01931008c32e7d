package resource

import "time"

// Option configures a Resource at construction, before the first fetch.
type Option[T any] func(*Resource[T])

// WithDispatch routes fetch results onto the goroutine that owns the
// resource's store. fn receives a closure that commits the result; it must
// run that closure on the owning goroutine (typically by sending it to the
// event loop). The default dispatch runs the closure on the fetch
// goroutine, which is only safe when nothing else touches the store.
func WithDispatch[T any](fn func(func())) Option[T] {
	return func(r *Resource[T]) {
		r.dispatch = fn
	}
}

// WithTimeout bounds each fetch attempt's context.
func WithTimeout[T any](d time.Duration) Option[T] {
	return func(r *Resource[T]) {
		r.timeout = d
	}
}

// WithStaleTime keeps ready data fresh for d: Fetch calls within the window
// are no-ops. Refetch always bypasses the window.
func WithStaleTime[T any](d time.Duration) Option[T] {
	return func(r *Resource[T]) {
		r.staleTime = d
	}
}

// WithRetry retries a failed fetch up to count times, waiting delay between
// attempts.
func WithRetry[T any](count int, delay time.Duration) Option[T] {
	return func(r *Resource[T]) {
		r.retryCount = count
		r.retryDelay = delay
	}
}

// WithOnSuccess registers a callback invoked after a successful fetch
// commits, on the dispatch goroutine.
func WithOnSuccess[T any](fn func(T)) Option[T] {
	return func(r *Resource[T]) {
		r.onSuccess = fn
	}
}

// WithOnError registers a callback invoked after a failed fetch commits,
// on the dispatch goroutine.
func WithOnError[T any](fn func(error)) Option[T] {
	return func(r *Resource[T]) {
		r.onError = fn
	}
}
