package reactive

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// nodeID addresses a slot in the store's node arena. Slots are recycled;
// graph edges (source and dependent lists) only ever hold ids of live nodes,
// so an id reachable through an edge is always valid.
type nodeID uint32

// subscriberEntry is one registered callback on a node. Entries are kept in
// insertion order, which is the notification order within a node. Removed
// entries are tombstoned via the live flag so that a notification pass that
// already snapshotted the list skips them safely.
type subscriberEntry struct {
	id   uint64
	fn   func(any)
	live bool
}

// node is a single arena slot: a mutable cell or a derivation. Exclusively
// owned by the store and reachable only through handles.
type node struct {
	id  nodeID
	seq uint64 // creation order, never reused; tie-breaker for scheduling

	value   any
	version uint64 // bumped on every committed write, never on no-ops

	// notified is the version last delivered to subscribers. A pass notifies
	// a node whenever version has advanced past notified, which keeps lazy
	// recomputation inside a batch from swallowing the notification.
	notified uint64

	refs      int
	destroyed bool

	equals func(a, b any) bool

	subs       []*subscriberEntry
	dependents []nodeID // derivations reading this node, in creation order

	// Derivation state. compute reads the committed values of sources and
	// returns the new value; snapshots holds the source versions observed at
	// the last computation. The cached value is valid iff every snapshot
	// still matches its source's current version.
	derived   bool
	sources   []nodeID
	snapshots []uint64
	compute   func() any
}

// stale reports whether any source version advanced past the snapshot
// recorded at the node's last computation.
func (n *node) stale(st *Store) bool {
	for i, src := range n.sources {
		if st.nodes[src].version != n.snapshots[i] {
			return true
		}
	}
	return false
}

// snapshotSources records the current source versions as the validity
// snapshot for the cached value.
func (n *node) snapshotSources(st *Store) {
	for i, src := range n.sources {
		n.snapshots[i] = st.nodes[src].version
	}
}

// Store owns a set of reactive cells and derivations and schedules their
// propagation. A Store is not safe for concurrent use: a single goroutine
// (typically the host event loop) must drive all reads, writes and
// notifications. Construct one explicitly with NewStore and pass it by
// handle; the package keeps no global state.
type Store struct {
	log     *slog.Logger
	metrics *storeMetrics
	tracer  trace.Tracer

	nodes []*node
	free  []nodeID

	nextSeq uint64
	nextSub uint64

	// pending is the root set of the next propagation pass: cells written
	// since the last pass started, deduplicated, in first-write order.
	// Keyed by seq, not slot id, so a recycled slot never collides with a
	// node already pending.
	pending    []*node
	pendingSet map[uint64]struct{}

	batchDepth int
	draining   bool

	// active is the in-progress recomputation stack used for fail-fast
	// cycle detection.
	active    []nodeID
	activeSet map[nodeID]struct{}

	stats Stats
}

// Stats is a point-in-time snapshot of store activity counters.
type Stats struct {
	LiveNodes          int
	Writes             uint64
	Passes             uint64
	Recomputes         uint64
	Notifications      uint64
	SubscriberFailures uint64
}

// NewStore creates an empty reactive store.
func NewStore(opts ...StoreOption) *Store {
	st := &Store{
		pendingSet: make(map[uint64]struct{}),
		activeSet:  make(map[nodeID]struct{}),
	}
	for _, opt := range opts {
		opt(st)
	}
	if st.log == nil {
		st.log = slog.Default()
	}
	return st
}

// Stats returns current activity counters.
func (st *Store) Stats() Stats {
	s := st.stats
	s.LiveNodes = len(st.nodes) - len(st.free)
	return s
}

// newNode allocates an arena slot, recycling a freed one when available.
func (st *Store) newNode(value any, equals func(a, b any) bool) *node {
	st.nextSeq++
	n := &node{
		seq:      st.nextSeq,
		value:    value,
		version:  1,
		notified: 1,
		refs:     1,
		equals:   equals,
	}
	if n.equals == nil {
		n.equals = defaultEquals
	}

	if len(st.free) > 0 {
		id := st.free[len(st.free)-1]
		st.free = st.free[:len(st.free)-1]
		n.id = id
		st.nodes[id] = n
	} else {
		n.id = nodeID(len(st.nodes))
		st.nodes = append(st.nodes, n)
	}

	if st.metrics != nil {
		st.metrics.liveNodes.Inc()
	}
	return n
}

// retain adds a share to a node. Shares come from user handles (Clone) and
// from derivation edges, which keep their sources alive.
func (st *Store) retain(n *node) {
	n.refs++
}

// release drops a share; the last release destroys the node.
func (st *Store) release(n *node) {
	if n.destroyed {
		return
	}
	n.refs--
	if n.refs <= 0 {
		st.destroy(n)
	}
}

// destroy tears a node down: detaches subscribers, unlinks it from its
// sources and releases the source shares it held, then frees the slot.
func (st *Store) destroy(n *node) {
	n.destroyed = true

	for _, e := range n.subs {
		e.live = false
	}
	n.subs = nil

	for _, src := range n.sources {
		sn := st.nodes[src]
		sn.removeDependent(n.id)
		st.release(sn)
	}
	n.sources = nil
	n.compute = nil

	st.nodes[n.id] = nil
	st.free = append(st.free, n.id)

	if st.metrics != nil {
		st.metrics.liveNodes.Dec()
	}
}

// removeDependent unlinks a derivation from this node's reverse-edge list.
func (n *node) removeDependent(id nodeID) {
	for i, d := range n.dependents {
		if d == id {
			n.dependents = append(n.dependents[:i], n.dependents[i+1:]...)
			return
		}
	}
}

// write commits a new value to a cell and schedules propagation. Writes are
// equality-gated: an equal value commits nothing and notifies nobody. The
// returned error aggregates subscriber failures from the passes this write
// drained; a cycle or compute panic aborts draining and is returned
// immediately.
func (st *Store) write(n *node, value any) error {
	if n.destroyed {
		panic(ErrHandleReleased)
	}
	if n.equals(n.value, value) {
		return nil
	}

	n.value = value
	n.version++
	st.stats.Writes++
	if st.metrics != nil {
		st.metrics.writes.Inc()
	}

	st.enqueue(n)

	// Inside a batch the pass runs when the outermost batch ends; inside a
	// notification the active drain loop picks the new pass up in FIFO
	// order. Either way this write returns without recursing.
	if st.batchDepth > 0 || st.draining {
		return nil
	}
	return st.drain()
}

// enqueue adds a cell to the pending root set, collapsing repeated writes
// to the same cell into one entry.
func (st *Store) enqueue(n *node) {
	if _, ok := st.pendingSet[n.seq]; ok {
		return
	}
	st.pendingSet[n.seq] = struct{}{}
	st.pending = append(st.pending, n)
}

// subscribe registers a callback on a node and returns its entry id. The
// first subscriber baselines at the current version: changes committed
// before anyone subscribed are not replayed.
func (st *Store) subscribe(n *node, fn func(any)) uint64 {
	if n.destroyed {
		panic(ErrHandleReleased)
	}
	if len(n.subs) == 0 {
		n.notified = n.version
	}
	st.nextSub++
	n.subs = append(n.subs, &subscriberEntry{id: st.nextSub, fn: fn, live: true})
	return st.nextSub
}

// unsubscribe tombstones and removes a subscriber entry. Safe to call from
// inside a callback: passes re-check liveness before every delivery.
func (st *Store) unsubscribe(n *node, id uint64) {
	if n.destroyed {
		return
	}
	for i, e := range n.subs {
		if e.id == id {
			e.live = false
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			return
		}
	}
}
