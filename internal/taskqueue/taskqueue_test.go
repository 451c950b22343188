package taskqueue

import (
	"sync"
	"testing"
	"time"
)

func TestTryPushAndPopOrderWithinProducer(t *testing.T) {
	q := New(4)
	var got []int
	for i := 0; i < 3; i++ {
		n := i
		if err := q.TryPush("gw", func() { got = append(got, n) }); err != nil {
			t.Fatalf("TryPush: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		task, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop: queue unexpectedly empty")
		}
		task()
	}
	want := []int{0, 1, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestTryPushFullReturnsErrFull(t *testing.T) {
	q := New(1)
	if err := q.TryPush("mac", func() {}); err != nil {
		t.Fatalf("TryPush first: %v", err)
	}
	if err := q.TryPush("mac", func() {}); err != ErrFull {
		t.Fatalf("TryPush second: err = %v, want ErrFull", err)
	}
}

func TestRoundRobinAcrossProducers(t *testing.T) {
	q := New(4)
	var popped []string
	record := func(label string) Task { return func() { popped = append(popped, label) } }

	_ = q.TryPush("a", record("a1"))
	_ = q.TryPush("a", record("a2"))
	_ = q.TryPush("b", record("b1"))

	// Round-robin drains one task per producer per cursor sweep: a1, then b1
	// (cursor advances past "a" after a1), then back to a for a2.
	for i := 0; i < 3; i++ {
		task, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop %d: queue unexpectedly empty", i)
		}
		task()
	}
	want := []string{"a1", "b1", "a2"}
	if len(popped) != len(want) {
		t.Fatalf("popped = %v, want %v", popped, want)
	}
	for i := range want {
		if popped[i] != want[i] {
			t.Fatalf("popped = %v, want %v", popped, want)
		}
	}
}

func TestWaitPopBlocksUntilPush(t *testing.T) {
	q := New(4)
	done := make(chan struct{})
	go func() {
		task, ok := q.WaitPop()
		if ok {
			task()
		}
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	fired := false
	var mu sync.Mutex
	_ = q.TryPush("gw", func() {
		mu.Lock()
		fired = true
		mu.Unlock()
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("WaitPop did not return after push")
	}
	mu.Lock()
	defer mu.Unlock()
	if !fired {
		t.Fatalf("task was not executed")
	}
}

func TestCloseUnblocksWaitPop(t *testing.T) {
	q := New(4)
	done := make(chan bool)
	go func() {
		_, ok := q.WaitPop()
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()
	select {
	case ok := <-done:
		if ok {
			t.Fatalf("WaitPop returned ok=true after Close")
		}
	case <-time.After(time.Second):
		t.Fatalf("WaitPop did not unblock after Close")
	}
}
