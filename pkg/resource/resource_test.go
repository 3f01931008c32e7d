package resource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/weft-ui/weft/pkg/reactive"
)

// pump runs dispatched closures on the test goroutine until done returns
// true, standing in for the event loop that owns the store.
func pump(t *testing.T, loop chan func(), done func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !done() {
		select {
		case fn := <-loop:
			fn()
		case <-deadline:
			t.Fatal("timed out waiting for resource")
		}
	}
}

func TestResourceFetchSuccess(t *testing.T) {
	st := reactive.NewStore()
	loop := make(chan func(), 8)

	r := New(st, func(ctx context.Context) (int, error) {
		return 42, nil
	}, WithDispatch[int](func(fn func()) { loop <- fn }))
	defer r.Release()

	if r.State() != Loading {
		t.Errorf("expected Loading after New, got %v", r.State())
	}
	if !r.IsLoading() {
		t.Error("expected IsLoading before first result")
	}
	if r.DataOr(-1) != -1 {
		t.Errorf("expected fallback before ready, got %d", r.DataOr(-1))
	}

	var states []State
	r.StateSignal().Subscribe(func(s State) { states = append(states, s) })

	pump(t, loop, r.IsReady)

	if r.Data() != 42 {
		t.Errorf("expected 42, got %d", r.Data())
	}
	if r.Err() != nil {
		t.Errorf("expected nil error, got %v", r.Err())
	}
	if len(states) != 1 || states[0] != Ready {
		t.Errorf("expected state transitions [ready], got %v", states)
	}
}

func TestResourceFetchFailure(t *testing.T) {
	st := reactive.NewStore()
	loop := make(chan func(), 8)
	boom := errors.New("backend down")

	var reported error
	r := New(st, func(ctx context.Context) (int, error) {
		return 0, boom
	},
		WithDispatch[int](func(fn func()) { loop <- fn }),
		WithOnError[int](func(err error) { reported = err }),
	)
	defer r.Release()

	pump(t, loop, func() bool { return r.State() == Failed })

	if !errors.Is(r.Err(), boom) {
		t.Errorf("expected fetch error, got %v", r.Err())
	}
	if !errors.Is(reported, boom) {
		t.Errorf("expected OnError callback, got %v", reported)
	}
	if r.DataOr(7) != 7 {
		t.Errorf("failed resource should fall back, got %d", r.DataOr(7))
	}
}

func TestResourceRetry(t *testing.T) {
	st := reactive.NewStore()
	loop := make(chan func(), 8)

	var calls atomic.Int64
	r := New(st, func(ctx context.Context) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	},
		WithDispatch[string](func(fn func()) { loop <- fn }),
		WithRetry[string](5, time.Millisecond),
	)
	defer r.Release()

	pump(t, loop, r.IsReady)

	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	if r.Data() != "ok" {
		t.Errorf("expected %q, got %q", "ok", r.Data())
	}
}

func TestResourceRefetchSupersedes(t *testing.T) {
	st := reactive.NewStore()
	loop := make(chan func(), 8)
	results := make(chan int, 2)

	r := New(st, func(ctx context.Context) (int, error) {
		select {
		case v := <-results:
			return v, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}, WithDispatch[int](func(fn func()) { loop <- fn }))
	defer r.Release()

	// Supersede the first fetch before it produces anything, then let both
	// complete. Only the second may commit.
	r.Refetch()
	results <- 2
	results <- 2

	pump(t, loop, r.IsReady)

	if r.Data() != 2 {
		t.Errorf("expected superseding fetch to win, got %d", r.Data())
	}
	if r.Err() != nil {
		t.Errorf("cancelled fetch must not surface its error, got %v", r.Err())
	}
}

func TestResourceStaleTime(t *testing.T) {
	st := reactive.NewStore()
	loop := make(chan func(), 8)

	var calls atomic.Int64
	r := New(st, func(ctx context.Context) (int, error) {
		return int(calls.Add(1)), nil
	},
		WithDispatch[int](func(fn func()) { loop <- fn }),
		WithStaleTime[int](time.Hour),
	)
	defer r.Release()

	pump(t, loop, r.IsReady)

	// Fresh data: Fetch is a no-op, Refetch is not.
	r.Fetch()
	if got := calls.Load(); got != 1 {
		t.Errorf("Fetch within stale window should not refetch, got %d calls", got)
	}

	r.Invalidate()
	r.Fetch()
	pump(t, loop, func() bool { return r.Data() == 2 })
}

func TestResourceMutate(t *testing.T) {
	st := reactive.NewStore()
	loop := make(chan func(), 8)

	r := New(st, func(ctx context.Context) ([]string, error) {
		return []string{"a"}, nil
	}, WithDispatch[[]string](func(fn func()) { loop <- fn }))
	defer r.Release()

	pump(t, loop, r.IsReady)

	r.Mutate(func(items []string) []string { return append(items, "b") })
	if got := r.Data(); len(got) != 2 || got[1] != "b" {
		t.Errorf("expected optimistic update, got %v", got)
	}
}

func TestResourceJSON(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"weft","count":3}`))
	}))
	defer srv.Close()

	st := reactive.NewStore()
	loop := make(chan func(), 8)

	r := New(st, JSON[payload](srv.Client(), srv.URL),
		WithDispatch[payload](func(fn func()) { loop <- fn }),
		WithTimeout[payload](5*time.Second),
	)
	defer r.Release()

	pump(t, loop, r.IsReady)

	if got := r.Data(); got.Name != "weft" || got.Count != 3 {
		t.Errorf("unexpected payload %+v", got)
	}
}

func TestResourceJSONStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	st := reactive.NewStore()
	loop := make(chan func(), 8)

	r := New(st, JSON[int](srv.Client(), srv.URL),
		WithDispatch[int](func(fn func()) { loop <- fn }),
	)
	defer r.Release()

	pump(t, loop, func() bool { return r.State() == Failed })

	if r.Err() == nil {
		t.Error("expected non-200 response to surface as error")
	}
}
