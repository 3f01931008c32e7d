package reactive

// Batch runs fn with propagation deferred: writes inside fn commit
// immediately (reads observe them) but their pass runs once, when the
// outermost batch ends. Repeated writes to one cell collapse into a single
// notification carrying the final value. Batches nest; only the outermost
// drains. The returned error aggregates subscriber failures from the
// deferred passes, like Set.
func Batch(st *Store, fn func()) error {
	st.batchDepth++
	func() {
		defer func() { st.batchDepth-- }()
		fn()
	}()

	if st.batchDepth > 0 || st.draining {
		return nil
	}
	return st.drain()
}
