package reactive

import (
	"container/heap"
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// drain runs propagation passes until the pending root set is empty. Writes
// performed by subscriber callbacks land in a fresh root set and are picked
// up as the next pass, in FIFO order, so nested updates iterate instead of
// recursing. Subscriber failures accumulate across passes and are joined
// into the returned error; a cycle or compute failure stops draining and is
// returned at once.
func (st *Store) drain() error {
	st.draining = true
	defer func() { st.draining = false }()

	var errs []error
	for len(st.pending) > 0 {
		roots := st.pending
		st.pending = nil
		st.pendingSet = make(map[uint64]struct{})

		subErrs, fatal := st.runPass(roots)
		errs = append(errs, subErrs...)
		if fatal != nil {
			st.log.Error("propagation pass aborted", "error", fatal)
			errs = append(errs, fatal)
			return errors.Join(errs...)
		}
	}
	return errors.Join(errs...)
}

// runPass executes one propagation pass from the given root cells: resolve
// the affected derivations, recompute each at most once in dependency
// order, then notify subscribers of every value that actually changed.
func (st *Store) runPass(roots []*node) (subErrs []error, fatal error) {
	st.stats.Passes++
	start := time.Now()
	recomputesBefore := st.stats.Recomputes

	var span trace.Span
	if st.tracer != nil {
		_, span = st.tracer.Start(context.Background(), "reactive.pass",
			trace.WithAttributes(attribute.Int("reactive.roots", len(roots))))
		defer func() {
			span.SetAttributes(
				attribute.Int64("reactive.recomputes", int64(st.stats.Recomputes-recomputesBefore)),
				attribute.Int("reactive.subscriber_errors", len(subErrs)),
			)
			if fatal != nil {
				span.RecordError(fatal)
				span.SetStatus(codes.Error, fatal.Error())
			}
			span.End()
		}()
	}
	defer func() {
		if st.metrics != nil {
			st.metrics.passes.Inc()
			st.metrics.passDuration.Observe(time.Since(start).Seconds())
		}
	}()

	affected := st.collectAffected(roots)

	order, fatal := st.resolveOrder(affected)
	if fatal != nil {
		return nil, fatal
	}

	for _, n := range order {
		if fatal = st.refresh(n); fatal != nil {
			return nil, fatal
		}
	}

	subErrs = st.notify(roots, order)
	return subErrs, nil
}

// collectAffected walks dependent edges breadth-first from the roots and
// returns the set of derivations that may need recomputation this pass.
func (st *Store) collectAffected(roots []*node) map[nodeID]*node {
	affected := make(map[nodeID]*node)
	queue := make([]*node, 0, len(roots))
	queue = append(queue, roots...)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, id := range n.dependents {
			d := st.nodes[id]
			if _, seen := affected[d.id]; seen {
				continue
			}
			affected[d.id] = d
			queue = append(queue, d)
		}
	}
	return affected
}

// resolveOrder topologically sorts the affected derivations so that every
// derivation is recomputed after all of its affected sources. Ties are
// broken by creation order. A leftover node means the affected subgraph
// contains a cycle, which is fatal.
func (st *Store) resolveOrder(affected map[nodeID]*node) ([]*node, error) {
	indegree := make(map[nodeID]int, len(affected))
	for id, n := range affected {
		deg := 0
		for _, src := range n.sources {
			if _, ok := affected[src]; ok {
				deg++
			}
		}
		indegree[id] = deg
	}

	ready := &nodeHeap{}
	heap.Init(ready)
	for id, n := range affected {
		if indegree[id] == 0 {
			heap.Push(ready, n)
		}
	}

	order := make([]*node, 0, len(affected))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(*node)
		order = append(order, n)
		for _, id := range n.dependents {
			if _, ok := affected[id]; !ok {
				continue
			}
			indegree[id]--
			if indegree[id] == 0 {
				heap.Push(ready, st.nodes[id])
			}
		}
	}

	if len(order) != len(affected) {
		return nil, ErrCycleDetected
	}
	return order, nil
}

// refresh recomputes one derivation whose sources are already up to date.
// It is a no-op when no source version advanced since the last computation,
// and commits nothing when the recomputed value is equal to the cached one.
// A panicking compute function is fatal to the pass.
func (st *Store) refresh(n *node) (fatal error) {
	if n.destroyed || !n.stale(st) {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			fatal = &ComputeError{Err: asError(r)}
		}
	}()

	st.stats.Recomputes++
	if st.metrics != nil {
		st.metrics.recomputes.Inc()
	}

	value := n.compute()
	n.snapshotSources(st)
	if n.equals(n.value, value) {
		return nil
	}
	n.value = value
	n.version++
	return nil
}

// notify delivers changed values to subscribers. Every node whose version
// advanced past its last-notified version fires, in creation order across
// nodes and insertion order within a node. Liveness is re-checked before
// each delivery so a callback can unsubscribe a later entry mid-pass. A
// panicking subscriber is isolated: the failure is recorded and delivery
// continues.
func (st *Store) notify(roots, order []*node) []error {
	changed := make([]*node, 0, len(roots)+len(order))
	for _, n := range roots {
		if !n.destroyed && n.version > n.notified {
			changed = append(changed, n)
		}
	}
	for _, n := range order {
		if !n.destroyed && n.version > n.notified {
			changed = append(changed, n)
		}
	}
	sortNodesBySeq(changed)

	var errs []error
	for _, n := range changed {
		if n.destroyed {
			continue
		}
		n.notified = n.version
		value := n.value

		entries := make([]*subscriberEntry, len(n.subs))
		copy(entries, n.subs)
		for _, e := range entries {
			if !e.live {
				continue
			}
			st.stats.Notifications++
			if st.metrics != nil {
				st.metrics.notifications.Inc()
			}
			if err := st.deliver(e, value); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errs
}

// deliver invokes one subscriber, converting a panic into a SubscriberError.
func (st *Store) deliver(e *subscriberEntry, value any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &SubscriberError{Subscriber: e.id, Err: asError(r)}
			st.stats.SubscriberFailures++
			if st.metrics != nil {
				st.metrics.subscriberFailures.Inc()
			}
			st.log.Error("subscriber panicked",
				"subscriber", e.id,
				"error", err,
			)
		}
	}()
	e.fn(value)
	return nil
}

// validate brings a derivation up to date for a lazy read, recursively
// validating its sources first. Reads outside a pass pay only for the
// stale part of their upstream graph. Re-entering a node that is already
// being validated panics with ErrCycleDetected.
func (st *Store) validate(n *node) {
	if !n.derived {
		return
	}
	if _, ok := st.activeSet[n.id]; ok {
		panic(ErrCycleDetected)
	}

	st.activeSet[n.id] = struct{}{}
	st.active = append(st.active, n.id)
	defer func() {
		delete(st.activeSet, n.id)
		st.active = st.active[:len(st.active)-1]
	}()

	for _, src := range n.sources {
		st.validate(st.nodes[src])
	}
	if !n.stale(st) {
		return
	}

	st.stats.Recomputes++
	if st.metrics != nil {
		st.metrics.recomputes.Inc()
	}

	value := n.compute()
	n.snapshotSources(st)
	if !n.equals(n.value, value) {
		n.value = value
		n.version++
		// A lazy recompute outside any batch or pass has no pass coming
		// to deliver it: the read itself is the observation. Inside a
		// batch or pass the version gap is left open so the pass that
		// caused the staleness still notifies subscribers.
		if !st.draining && st.batchDepth == 0 {
			n.notified = n.version
		}
	}
}

// nodeHeap is a min-heap of nodes ordered by creation sequence, used as the
// ready set during topological resolution.
type nodeHeap []*node

func (h nodeHeap) Len() int            { return len(h) }
func (h nodeHeap) Less(i, j int) bool  { return h[i].seq < h[j].seq }
func (h nodeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x any)         { *h = append(*h, x.(*node)) }
func (h *nodeHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*h = old[:len(old)-1]
	return n
}

// sortNodesBySeq orders the notification list by creation sequence. The list
// is small in the common case; insertion sort keeps it allocation free.
func sortNodesBySeq(nodes []*node) {
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && nodes[j].seq < nodes[j-1].seq; j-- {
			nodes[j], nodes[j-1] = nodes[j-1], nodes[j]
		}
	}
}
