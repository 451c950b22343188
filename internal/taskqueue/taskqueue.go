// Package taskqueue implements the Task Queue (spec.md §5): a bounded
// multi-producer/single-consumer queue of deferred callables, partitioned
// into per-producer sub-queues drained in round-robin by the stack thread.
//
// Grounded on the mutex-guarded-structure idiom of the teacher's
// internal/sbi/controller/scheduler.go: no third-party queue/broker library
// exists anywhere in the retrieved pack to ground a different choice on, so
// this stays on sync primitives and channels.
package taskqueue

import (
	"errors"
	"sync"
)

// Task is a deferred callable posted by any producer.
type Task func()

// ErrFull is returned by TryPush when a producer's sub-queue is at
// capacity; callers translate this into a warn-and-drop per spec.md §5.
var ErrFull = errors.New("taskqueue: sub-queue full")

// Queue is a bounded MPSC queue partitioned by producer name.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	cap      int
	order    []string           // producer registration order, fixed round-robin ring
	sub      map[string][]Task  // per-producer pending tasks, FIFO within a producer
	cursor   int                // round-robin position into order
	closed   bool
}

// New constructs a queue where each producer's sub-queue holds at most
// capacity pending tasks.
func New(capacity int) *Queue {
	q := &Queue{cap: capacity, sub: make(map[string][]Task)}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// TryPush enqueues fn under producer, registering producer on first use.
// Returns ErrFull if that producer's sub-queue is already at capacity.
func (q *Queue) TryPush(producer string, fn Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errors.New("taskqueue: closed")
	}
	if _, ok := q.sub[producer]; !ok {
		q.sub[producer] = nil
		q.order = append(q.order, producer)
	}
	if len(q.sub[producer]) >= q.cap {
		return ErrFull
	}
	q.sub[producer] = append(q.sub[producer], fn)
	q.notEmpty.Signal()
	return nil
}

// WaitPop blocks until a task is available (round-robin across
// non-empty sub-queues, advancing one producer per call) or the queue is
// closed, in which case ok is false.
func (q *Queue) WaitPop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if t, ok := q.popLocked(); ok {
			return t, true
		}
		if q.closed {
			return nil, false
		}
		q.notEmpty.Wait()
	}
}

// TryPop returns a task without blocking, or ok=false if every sub-queue
// is currently empty.
func (q *Queue) TryPop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

func (q *Queue) popLocked() (Task, bool) {
	n := len(q.order)
	for i := 0; i < n; i++ {
		idx := (q.cursor + i) % n
		producer := q.order[idx]
		tasks := q.sub[producer]
		if len(tasks) == 0 {
			continue
		}
		t := tasks[0]
		q.sub[producer] = tasks[1:]
		q.cursor = (idx + 1) % n
		return t, true
	}
	return nil, false
}

// Close unblocks any pending WaitPop, causing it to return ok=false.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notEmpty.Broadcast()
}

// Len reports the total number of pending tasks across all producers.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, tasks := range q.sub {
		n += len(tasks)
	}
	return n
}
