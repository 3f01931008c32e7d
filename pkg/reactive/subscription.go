package reactive

// Subscription identifies one registered callback. Zero value is inert.
type Subscription struct {
	st   *Store
	node *node
	id   uint64
}

// Unsubscribe removes the callback. Safe to call from inside any subscriber
// callback, including the subscription's own: a pass that is mid-delivery
// re-checks liveness before invoking each entry, so an entry removed during
// the pass no longer fires. Unsubscribing twice, or after the underlying
// cell was destroyed, is a no-op.
func (s Subscription) Unsubscribe() {
	if s.st == nil || s.node == nil {
		return
	}
	s.st.unsubscribe(s.node, s.id)
}
