package reactive

import (
	"errors"
	"testing"
)

func TestDiamondRecomputesOnce(t *testing.T) {
	st := NewStore()
	a := NewSignal(st, 1)
	b := Derive(a, func(x int) int { return x + 1 })
	c := Derive(a, func(x int) int { return x * 2 })

	computes := 0
	d := Derive2(b, c, func(x, y int) int {
		computes++
		return x + y
	})

	var got []int
	d.Subscribe(func(n int) { got = append(got, n) })
	if computes != 1 {
		t.Fatalf("expected 1 compute after subscribe, got %d", computes)
	}

	a.Set(3)

	if computes != 2 {
		t.Errorf("diamond join must recompute exactly once per pass, computed %d times", computes-1)
	}
	if len(got) != 1 || got[0] != 10 {
		t.Errorf("expected single notification [10], got %v", got)
	}
}

func TestNoGlitchObservedBySubscribers(t *testing.T) {
	st := NewStore()
	a := NewSignal(st, 1)
	b := Derive(a, func(x int) int { return x + 1 })
	c := Derive(a, func(x int) int { return x * 2 })
	d := Derive2(b, c, func(x, y int) int { return x + y })

	// Every observation of d must satisfy the invariant (a+1)+(a*2).
	a.Subscribe(func(n int) {
		if want := (n + 1) + (n * 2); d.Get() != want {
			t.Errorf("subscriber observed glitched value %d, want %d", d.Get(), want)
		}
	})
	d.Subscribe(func(n int) {
		av := a.Get()
		if want := (av + 1) + (av * 2); n != want {
			t.Errorf("notified value %d inconsistent with source %d", n, av)
		}
	})

	a.Set(3)
	a.Set(10)
}

func TestBatchCollapsesWrites(t *testing.T) {
	st := NewStore()
	a := NewSignal(st, 1)
	b := NewSignal(st, 2)
	sum := Derive2(a, b, func(x, y int) int { return x + y })

	computes := 0
	counted := Derive(sum, func(s int) int {
		computes++
		return s
	})

	var got []int
	counted.Subscribe(func(n int) { got = append(got, n) })
	base := computes

	err := Batch(st, func() {
		a.Set(10)
		b.Set(20)
		a.Set(11)
	})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}

	if computes != base+1 {
		t.Errorf("batched writes must recompute once, computed %d times", computes-base)
	}
	if len(got) != 1 || got[0] != 31 {
		t.Errorf("expected single notification [31], got %v", got)
	}
}

func TestBatchReadsSeeCommittedWrites(t *testing.T) {
	st := NewStore()
	a := NewSignal(st, 1)
	b := NewSignal(st, 2)
	sum := Derive2(a, b, func(x, y int) int { return x + y })

	var got []int
	sum.Subscribe(func(n int) { got = append(got, n) })

	Batch(st, func() {
		a.Set(5)
		if a.Get() != 5 {
			t.Errorf("write inside batch must be readable, got %d", a.Get())
		}
		if sum.Get() != 7 {
			t.Errorf("derived read inside batch must see the write, got %d", sum.Get())
		}
	})

	// The lazy mid-batch read must not swallow the notification.
	if len(got) != 1 || got[0] != 7 {
		t.Errorf("expected notification [7] after batch, got %v", got)
	}
}

func TestBatchNests(t *testing.T) {
	st := NewStore()
	a := NewSignal(st, 0)

	fired := 0
	a.Subscribe(func(int) { fired++ })

	Batch(st, func() {
		a.Set(1)
		Batch(st, func() {
			a.Set(2)
		})
		if fired != 0 {
			t.Errorf("inner batch must not drain, fired %d times", fired)
		}
	})

	if fired != 1 {
		t.Errorf("expected 1 notification after outer batch, got %d", fired)
	}
	if a.Get() != 2 {
		t.Errorf("expected final value 2, got %d", a.Get())
	}
}

func TestReentrantWriteRunsNextPass(t *testing.T) {
	st := NewStore()
	a := NewSignal(st, 0)
	b := NewSignal(st, 0)

	var order []string
	a.Subscribe(func(n int) {
		order = append(order, "a1")
		if n == 1 {
			b.Set(10)
			// Committed immediately, notified in the next pass.
			if b.Get() != 10 {
				t.Errorf("reentrant write must commit immediately, got %d", b.Get())
			}
		}
	})
	a.Subscribe(func(int) { order = append(order, "a2") })
	b.Subscribe(func(int) { order = append(order, "b") })

	if err := a.Set(1); err != nil {
		t.Fatalf("Set: %v", err)
	}

	want := []string{"a1", "a2", "b"}
	if len(order) != len(want) {
		t.Fatalf("expected order %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
}

func TestUnsubscribeOtherMidNotification(t *testing.T) {
	st := NewStore()
	a := NewSignal(st, 0)

	var second Subscription
	firstFired, secondFired := 0, 0

	a.Subscribe(func(int) {
		firstFired++
		second.Unsubscribe()
	})
	second = a.Subscribe(func(int) { secondFired++ })

	a.Set(1)

	if firstFired != 1 {
		t.Errorf("expected first subscriber to fire once, got %d", firstFired)
	}
	if secondFired != 0 {
		t.Errorf("subscriber removed mid-pass must not fire, got %d", secondFired)
	}
}

func TestUnsubscribeSelfMidNotification(t *testing.T) {
	st := NewStore()
	a := NewSignal(st, 0)

	var self Subscription
	selfFired, otherFired := 0, 0

	self = a.Subscribe(func(int) {
		selfFired++
		self.Unsubscribe()
	})
	a.Subscribe(func(int) { otherFired++ })

	a.Set(1)
	a.Set(2)

	if selfFired != 1 {
		t.Errorf("self-unsubscribing callback should fire once, got %d", selfFired)
	}
	if otherFired != 2 {
		t.Errorf("remaining subscriber should keep firing, got %d", otherFired)
	}
}

func TestSubscriberPanicIsolated(t *testing.T) {
	st := NewStore()
	a := NewSignal(st, 0)

	a.Subscribe(func(int) { panic("boom") })
	fired := 0
	a.Subscribe(func(int) { fired++ })

	err := a.Set(1)
	if err == nil {
		t.Fatal("expected subscriber failure to surface from Set")
	}
	var subErr *SubscriberError
	if !errors.As(err, &subErr) {
		t.Errorf("expected SubscriberError, got %v", err)
	}

	if fired != 1 {
		t.Errorf("panic must not stop delivery, second subscriber fired %d times", fired)
	}
	if a.Get() != 1 {
		t.Errorf("write must stay committed, got %d", a.Get())
	}

	// The store keeps working afterwards.
	if err := a.Set(2); err == nil || fired != 2 {
		t.Errorf("expected ongoing delivery with surfaced failure, fired=%d err=%v", fired, err)
	}
}

func TestNotificationOrderFollowsCreation(t *testing.T) {
	st := NewStore()
	a := NewSignal(st, 0)
	b := NewSignal(st, 0)
	sum := Derive2(a, b, func(x, y int) int { return x + y })

	var order []string
	a.Subscribe(func(int) { order = append(order, "a") })
	b.Subscribe(func(int) { order = append(order, "b") })
	sum.Subscribe(func(int) { order = append(order, "sum") })

	Batch(st, func() {
		b.Set(2)
		a.Set(1)
	})

	want := []string{"a", "b", "sum"}
	if len(order) != len(want) {
		t.Fatalf("expected order %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
}

func TestComputePanicAbortsPass(t *testing.T) {
	st := NewStore()
	a := NewSignal(st, 1)
	bad := Derive(a, func(x int) int {
		if x > 1 {
			panic("compute exploded")
		}
		return x
	})
	bad.Get()

	fired := 0
	a.Subscribe(func(int) { fired++ })

	err := a.Set(2)
	if err == nil {
		t.Fatal("expected compute failure to surface from Set")
	}
	var compErr *ComputeError
	if !errors.As(err, &compErr) {
		t.Errorf("expected ComputeError, got %v", err)
	}
	if fired != 0 {
		t.Errorf("aborted pass must not notify, fired %d times", fired)
	}
	if a.Get() != 2 {
		t.Errorf("write commits before the pass, got %d", a.Get())
	}
}

func TestStats(t *testing.T) {
	st := NewStore()
	a := NewSignal(st, 0)
	double := Derive(a, func(x int) int { return x * 2 })
	double.Subscribe(func(int) {})

	a.Set(1)
	a.Set(2)
	a.Set(2) // gated

	s := st.Stats()
	if s.LiveNodes != 2 {
		t.Errorf("expected 2 live nodes, got %d", s.LiveNodes)
	}
	if s.Writes != 2 {
		t.Errorf("expected 2 committed writes, got %d", s.Writes)
	}
	if s.Passes != 2 {
		t.Errorf("expected 2 passes, got %d", s.Passes)
	}
	if s.Recomputes != 3 {
		t.Errorf("expected 3 recomputes, got %d", s.Recomputes)
	}
	if s.Notifications != 2 {
		t.Errorf("expected 2 notifications, got %d", s.Notifications)
	}
}
