package reactive

// Value is the read side shared by Signal and Derived handles. Derivations
// accept any Value as a source, so computed values compose freely over
// cells and other derivations.
type Value[T any] interface {
	// Get returns the current value, recomputing lazily if stale.
	Get() T
	// Version returns the version counter of the underlying cell.
	Version() uint64
	// Subscribe registers fn for future committed changes.
	Subscribe(fn func(T)) Subscription
	// SubscribeNow delivers the current value, then subscribes.
	SubscribeNow(fn func(T)) Subscription

	handle() (*Store, *node)
}

var (
	_ Value[int] = (*Signal[int])(nil)
	_ Value[int] = (*Derived[int])(nil)
)

// Derived is a handle onto a computed cell: a memoized function of an
// ordered list of source values. The computation runs lazily on read and
// at most once per propagation pass, after its sources are up to date.
// A derivation holds a share of each source, so sources outlive it.
type Derived[T any] struct {
	st       *Store
	node     *node
	released bool
}

// Derive creates a derivation over one source.
func Derive[S, T any](src Value[S], fn func(S) T) *Derived[T] {
	st, sn := src.handle()
	n := newDerivedNode(st, sn)
	n.compute = func() any { return fn(loadNode[S](st, sn)) }
	return &Derived[T]{st: st, node: n}
}

// Derive2 creates a derivation over two sources.
func Derive2[S1, S2, T any](s1 Value[S1], s2 Value[S2], fn func(S1, S2) T) *Derived[T] {
	st, n1 := s1.handle()
	n2 := sameStore(st, s2)
	n := newDerivedNode(st, n1, n2)
	n.compute = func() any {
		return fn(loadNode[S1](st, n1), loadNode[S2](st, n2))
	}
	return &Derived[T]{st: st, node: n}
}

// Derive3 creates a derivation over three sources.
func Derive3[S1, S2, S3, T any](s1 Value[S1], s2 Value[S2], s3 Value[S3], fn func(S1, S2, S3) T) *Derived[T] {
	st, n1 := s1.handle()
	n2 := sameStore(st, s2)
	n3 := sameStore(st, s3)
	n := newDerivedNode(st, n1, n2, n3)
	n.compute = func() any {
		return fn(loadNode[S1](st, n1), loadNode[S2](st, n2), loadNode[S3](st, n3))
	}
	return &Derived[T]{st: st, node: n}
}

// Derive4 creates a derivation over four sources.
func Derive4[S1, S2, S3, S4, T any](s1 Value[S1], s2 Value[S2], s3 Value[S3], s4 Value[S4], fn func(S1, S2, S3, S4) T) *Derived[T] {
	st, n1 := s1.handle()
	n2 := sameStore(st, s2)
	n3 := sameStore(st, s3)
	n4 := sameStore(st, s4)
	n := newDerivedNode(st, n1, n2, n3, n4)
	n.compute = func() any {
		return fn(loadNode[S1](st, n1), loadNode[S2](st, n2), loadNode[S3](st, n3), loadNode[S4](st, n4))
	}
	return &Derived[T]{st: st, node: n}
}

// WithEquals replaces the derivation's change detector; see
// Signal.WithEquals.
func (d *Derived[T]) WithEquals(eq func(a, b T) bool) *Derived[T] {
	d.live().equals = typedEquals(eq)
	return d
}

// Get returns the derived value, recomputing it if any source changed since
// the last computation. Reading an up-to-date derivation costs a version
// comparison per source, not a recomputation. Get panics with
// ErrCycleDetected if the computation reads itself, directly or through
// other derivations.
func (d *Derived[T]) Get() T {
	n := d.live()
	d.st.validate(n)
	return n.value.(T)
}

// Version returns the version of the derived value, bringing it up to date
// first so the version reflects the value Get would return.
func (d *Derived[T]) Version() uint64 {
	n := d.live()
	d.st.validate(n)
	return n.version
}

// Subscribe registers fn to be called after each pass in which the derived
// value actually changed. Recomputations that produce an equal value do not
// fire. Subscribing materializes the derivation so change detection has a
// baseline value to compare against.
func (d *Derived[T]) Subscribe(fn func(T)) Subscription {
	n := d.live()
	d.st.validate(n)
	id := d.st.subscribe(n, func(v any) { fn(v.(T)) })
	return Subscription{st: d.st, node: n, id: id}
}

// SubscribeNow delivers the current derived value immediately, then
// subscribes fn for future changes.
func (d *Derived[T]) SubscribeNow(fn func(T)) Subscription {
	fn(d.Get())
	return d.Subscribe(fn)
}

// Clone returns a new handle sharing the same derivation.
func (d *Derived[T]) Clone() *Derived[T] {
	n := d.live()
	d.st.retain(n)
	return &Derived[T]{st: d.st, node: n}
}

// Release drops this handle's share. The last release destroys the
// derivation and releases the shares it held on its sources.
func (d *Derived[T]) Release() {
	if d.released {
		return
	}
	d.released = true
	d.st.release(d.node)
}

func (d *Derived[T]) live() *node {
	if d.released || d.node.destroyed {
		panic(ErrHandleReleased)
	}
	return d.node
}

func (d *Derived[T]) handle() (*Store, *node) {
	return d.st, d.live()
}

// newDerivedNode allocates a derivation node wired to its sources: the node
// records source ids and version snapshots, appears in each source's
// dependent list, and holds a share of each source. Snapshots start at zero
// so the first read computes.
func newDerivedNode(st *Store, sources ...*node) *node {
	n := st.newNode(nil, nil)
	n.derived = true
	n.sources = make([]nodeID, len(sources))
	n.snapshots = make([]uint64, len(sources))
	for i, s := range sources {
		n.sources[i] = s.id
		s.dependents = append(s.dependents, n.id)
		st.retain(s)
	}
	return n
}

// loadNode reads a source value from inside a compute function, validating
// a stale derived source first so chains materialize top down.
func loadNode[S any](st *Store, n *node) S {
	if n.derived && n.stale(st) {
		st.validate(n)
	}
	return n.value.(S)
}

// sameStore extracts a source's node and rejects cross-store wiring.
func sameStore[S any](st *Store, src Value[S]) *node {
	sst, n := src.handle()
	if sst != st {
		panic("reactive: derivation sources belong to different stores")
	}
	return n
}
