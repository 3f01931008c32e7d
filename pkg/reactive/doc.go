// Package reactive provides the signal store that underlies the Weft UI
// runtime: mutable reactive values whose updates propagate, glitch-free, to
// derived computations and subscriber callbacks.
//
// # Core Types
//
// Store owns every reactive value. It is constructed explicitly and passed by
// handle; there is no process-wide store:
//
//	st := reactive.NewStore()
//
// Signal[T] is a handle onto a mutable cell in the store:
//
//	count := reactive.NewSignal(st, 0)
//	count.Get()           // Read current value
//	count.Set(5)          // Write, notifies subscribers if the value changed
//	count.Subscribe(func(n int) { fmt.Println("count is", n) })
//
// Derived[T] is a computed signal over an ordered list of sources. It caches
// its value and only recomputes when a source actually changed:
//
//	sum := reactive.Derive2(a, b, func(x, y int) int { return x + y })
//	sum.Get()             // 3, recomputed lazily when stale
//
// # Propagation
//
// A write starts a propagation pass: the store resolves every derivation
// transitively downstream of the written cells, recomputes each at most once
// in dependency order, and then notifies subscribers of values that actually
// changed. Writes performed inside a subscriber callback are queued into a
// new pass and run after the current one finishes, so deep update chains
// never recurse and observers never see a half-propagated state.
//
// Multiple writes can be collapsed into a single pass:
//
//	reactive.Batch(st, func() {
//	    first.Set("John")
//	    last.Set("Doe")
//	})
//
// # Ownership
//
// Handles are reference counted. Clone shares the underlying cell, Release
// drops the share; the cell is destroyed, and its subscribers detached, when
// the last handle is released. Using a handle after release panics with
// ErrHandleReleased rather than reading stale state.
//
// # Threading
//
// A Store is single-threaded by design: the event loop that owns it drives
// all writes and notifications. Feed results of asynchronous work back in
// through ordinary Set calls on that loop (see the resource package).
package reactive
