// Package clock implements the Timer Service (spec.md §4.2): monotonic
// millisecond timers with per-id callbacks, stepped once per TTI.
package clock

import (
	"sort"
	"sync"
)

// ID identifies a single timer arming.
type ID uint64

type timer struct {
	id       ID
	seq      uint64 // registration order, for fire-order tiebreaking
	duration int
	elapsed  int
	running  bool
	callback func()
}

// Service owns every armed timer in the engine. All methods are safe for
// concurrent use, but per spec.md §5 only the stack thread calls StepAll;
// producers on other threads only ever arm/stop timers via the stack
// thread's task queue.
type Service struct {
	mu     sync.Mutex
	timers map[ID]*timer
	nextID ID
	seq    uint64
}

// New constructs an empty timer service.
func New() *Service {
	return &Service{timers: make(map[ID]*timer)}
}

// DeferCallback schedules a one-shot timer that fires cb after ms
// milliseconds of StepAll advancement, then removes itself.
func (s *Service) DeferCallback(ms int, cb func()) ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armLocked(ms, cb)
}

// UniqueTimer is a reusable timer handle whose Set rearms it, following
// spec.md §4.2's get_unique_timer/set contract.
type UniqueTimer struct {
	svc *Service
	id  ID
}

// GetUniqueTimer allocates a handle with no initial arming.
func (s *Service) GetUniqueTimer() *UniqueTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	return &UniqueTimer{svc: s, id: id}
}

// ID returns the stable identifier backing this handle, for event
// correlation (spec.md §4.6 distinguishes the retry timer from the
// overall timeout by id).
func (t *UniqueTimer) ID() ID { return t.id }

// Set (re)arms the timer for ms milliseconds, replacing any pending
// callback and resetting elapsed time to zero.
func (t *UniqueTimer) Set(ms int, cb func()) {
	t.svc.mu.Lock()
	defer t.svc.mu.Unlock()
	t.svc.seq++
	t.svc.timers[t.id] = &timer{
		id:       t.id,
		seq:      t.svc.seq,
		duration: ms,
		running:  true,
		callback: cb,
	}
}

// Stop deactivates the timer without firing its callback. Idempotent:
// stopping an already-stopped or never-armed timer is a no-op.
func (t *UniqueTimer) Stop() {
	t.svc.Stop(t.id)
}

// IsRunning reports whether the timer is currently armed.
func (t *UniqueTimer) IsRunning() bool {
	t.svc.mu.Lock()
	defer t.svc.mu.Unlock()
	tm, ok := t.svc.timers[t.id]
	return ok && tm.running
}

// Elapsed reports milliseconds elapsed since the last Set, or 0 if not
// running.
func (t *UniqueTimer) Elapsed() int {
	t.svc.mu.Lock()
	defer t.svc.mu.Unlock()
	tm, ok := t.svc.timers[t.id]
	if !ok || !tm.running {
		return 0
	}
	return tm.elapsed
}

// Stop deactivates the timer identified by id. Idempotent.
func (s *Service) Stop(id ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tm, ok := s.timers[id]; ok {
		tm.running = false
	}
}

// ArmedCount reports the number of currently running timers, for metrics.
func (s *Service) ArmedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, tm := range s.timers {
		if tm.running {
			n++
		}
	}
	return n
}

// StepAll advances every running timer by deltaMS and fires callbacks for
// every timer whose elapsed reaches its duration in this step, in
// registration order on ties (spec.md §4.2). Must be called exactly once
// per TTI by the stack thread; callbacks run synchronously on the caller's
// goroutine, after the current procedure step has already returned, per
// spec.md §5's ordering guarantee.
func (s *Service) StepAll(deltaMS int) {
	s.mu.Lock()
	var fired []*timer
	for _, tm := range s.timers {
		if !tm.running {
			continue
		}
		tm.elapsed += deltaMS
		if tm.elapsed >= tm.duration {
			tm.running = false
			fired = append(fired, tm)
		}
	}
	sort.Slice(fired, func(i, j int) bool { return fired[i].seq < fired[j].seq })
	s.mu.Unlock()

	for _, tm := range fired {
		if tm.callback != nil {
			tm.callback()
		}
	}
}

// armLocked registers a new timer; caller holds s.mu.
func (s *Service) armLocked(ms int, cb func()) ID {
	id := s.nextID
	s.nextID++
	s.seq++
	s.timers[id] = &timer{id: id, seq: s.seq, duration: ms, running: true, callback: cb}
	return id
}
