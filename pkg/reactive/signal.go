package reactive

// Signal is a handle onto a mutable reactive cell. Handles are reference
// counted: Clone shares the cell, Release drops the share, and the cell is
// destroyed when the last handle goes away. All methods must be called on
// the goroutine that owns the store.
type Signal[T any] struct {
	st       *Store
	node     *node
	released bool
}

// NewSignal creates a cell holding initial and returns its first handle.
func NewSignal[T any](st *Store, initial T) *Signal[T] {
	return &Signal[T]{st: st, node: st.newNode(initial, nil)}
}

// WithEquals replaces the cell's change detector. Writes and recomputations
// that produce an equal value commit nothing and notify nobody. The default
// detector uses == for common comparable types and reflect.DeepEqual
// otherwise. Returns the handle for chaining at construction:
//
//	pos := reactive.NewSignal(st, Point{}).WithEquals(Point.Eq)
func (s *Signal[T]) WithEquals(eq func(a, b T) bool) *Signal[T] {
	s.live().equals = typedEquals(eq)
	return s
}

// Get returns the cell's current value.
func (s *Signal[T]) Get() T {
	return s.live().value.(T)
}

// Set writes a new value. If the value differs from the current one the
// write commits, the version advances, and a propagation pass runs (unless
// a batch or another pass is active, in which case the pass is deferred).
// The returned error joins any subscriber failures from the passes this
// write drained; the write itself has already committed when they occur.
func (s *Signal[T]) Set(value T) error {
	n := s.live()
	return s.st.write(n, value)
}

// Update applies fn to the current value and writes the result. Equivalent
// to s.Set(fn(s.Get())) but reads and writes through one handle check.
func (s *Signal[T]) Update(fn func(T) T) error {
	n := s.live()
	return s.st.write(n, fn(n.value.(T)))
}

// Subscribe registers fn to be called with the cell's value after each
// committed change. The callback does not fire for the current value; use
// SubscribeNow for that. Callbacks registered earlier fire earlier.
func (s *Signal[T]) Subscribe(fn func(T)) Subscription {
	n := s.live()
	id := s.st.subscribe(n, func(v any) { fn(v.(T)) })
	return Subscription{st: s.st, node: n, id: id}
}

// SubscribeNow invokes fn with the current value immediately, then
// subscribes it for future changes.
func (s *Signal[T]) SubscribeNow(fn func(T)) Subscription {
	n := s.live()
	fn(n.value.(T))
	return s.Subscribe(fn)
}

// Version returns the cell's version counter. It starts at 1 and advances
// by one on every committed write, so two reads straddling any change
// observe different versions.
func (s *Signal[T]) Version() uint64 {
	return s.live().version
}

// Clone returns a new handle sharing the same cell. Each clone must be
// released independently.
func (s *Signal[T]) Clone() *Signal[T] {
	n := s.live()
	s.st.retain(n)
	return &Signal[T]{st: s.st, node: n}
}

// Release drops this handle's share of the cell. The last release destroys
// the cell and detaches its subscribers. Releasing twice is a no-op; any
// other use after release panics with ErrHandleReleased.
func (s *Signal[T]) Release() {
	if s.released {
		return
	}
	s.released = true
	s.st.release(s.node)
}

func (s *Signal[T]) live() *node {
	if s.released || s.node.destroyed {
		panic(ErrHandleReleased)
	}
	return s.node
}

func (s *Signal[T]) handle() (*Store, *node) {
	return s.st, s.live()
}
