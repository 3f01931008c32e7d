package reactive

import (
	"errors"
	"fmt"
)

// ErrCycleDetected is reported when a derivation is asked to recompute while
// it is already on the active recomputation stack. Cycles are structural
// programming errors: the pass that hits one is aborted and the error is
// surfaced to the caller of the triggering write immediately.
var ErrCycleDetected = errors.New("reactive: cycle detected in dependency graph")

// ErrHandleReleased is the panic value when a Signal or Derived handle is
// used after its last reference was released. Reads and writes through a
// dead handle fail loudly instead of observing a destroyed cell.
var ErrHandleReleased = errors.New("reactive: use of released handle")

// SubscriberError wraps a panic recovered from a subscriber callback during
// a propagation pass. One failing subscriber does not prevent the remaining
// subscribers of the pass from being notified; all failures are joined and
// returned from the Set or Update call that triggered the pass.
type SubscriberError struct {
	// Subscriber is the id of the failed subscription.
	Subscriber uint64

	// Err is the recovered panic value, wrapped as an error.
	Err error
}

func (e *SubscriberError) Error() string {
	return fmt.Sprintf("reactive: subscriber %d panicked: %v", e.Subscriber, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *SubscriberError) Unwrap() error {
	return e.Err
}

// ComputeError wraps a panic recovered from a derivation's compute function.
// Compute functions are expected to be pure; a panicking compute aborts the
// pass, like a cycle, because downstream values can no longer be trusted.
type ComputeError struct {
	// Err is the recovered panic value, wrapped as an error.
	Err error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("reactive: compute function panicked: %v", e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ComputeError) Unwrap() error {
	return e.Err
}

// asError converts a recovered panic value into an error.
func asError(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	return fmt.Errorf("%v", v)
}
