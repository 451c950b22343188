// Package proc implements the generic Procedure Runtime (spec.md §4.1):
// launch, step, react-to-event, then-on-completion, enforcing at-most-one
// live instance per procedure handle.
//
// No coroutine/procedure analogue exists in the teacher; shape is grounded
// on the mutex-guarded-struct idiom shared by every stateful teacher type
// (internal/sbi/controller/scheduler.go, internal/sbi/agent/agent.go), and
// id-stamping is grounded on agent.go's generateToken() idiom, implemented
// here with the pack's github.com/google/uuid instead of hand-rolled hex
// random bytes.
package proc

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/ranstack/rrcue/internal/event"
	"github.com/ranstack/rrcue/internal/logging"
	"github.com/ranstack/rrcue/internal/metrics"
)

// Outcome is the tri-state result a procedure reports from Init/Step/React,
// per spec.md §3's Procedure contract.
type Outcome int

const (
	Yield Outcome = iota
	Success
	Errored
)

// Result is the terminal value or error a procedure produced.
type Result[Out any] struct {
	Value Out
	Err   error
}

func (r Result[Out]) IsError() bool { return r.Err != nil }

// Procedure is any component conforming to spec.md §3's
// {init, step, react, then} contract. Env is the borrowed context handed
// to every call (the engine's ports and shared state); it is never stored
// by the procedure itself past the call, per spec.md §9's back-pointer
// redesign note.
type Procedure[Env, Args, Out any] interface {
	Init(env Env, args Args) Outcome
	Step(env Env) Outcome
	React(env Env, ev event.Event) Outcome
	Then(env Env, result Result[Out])
	Result() Result[Out]
}

var (
	// ErrBusy is returned by Launch when the handle is not idle.
	ErrBusy = errors.New("proc: handle busy")
	// ErrNotRunning names the case of a handle with no live instance.
	// Trigger and Run report that case with a false return, not an error.
	ErrNotRunning = errors.New("proc: handle not running")
)

type handleState int

const (
	stateIdle handleState = iota
	stateRunning
)

// Handle is spec.md §3's ProcedureHandle<T>: a typed slot representing
// at-most-one active instance of a procedure.
type Handle[Env, Args, Out any] struct {
	name    string
	newProc func() Procedure[Env, Args, Out]
	metrics *metrics.Collector
	log     logging.Logger
	tracer  trace.Tracer

	st         handleState
	cur        Procedure[Env, Args, Out]
	env        Env
	future     *Future[Out]
	generation string
	span       trace.Span
	launchedAt time.Time
}

// Deps bundles the cross-cutting collaborators every handle accepts.
type Deps struct {
	Metrics *metrics.Collector
	Log     logging.Logger
	Tracer  trace.Tracer
}

// New constructs an idle handle. newProc must return a fresh procedure
// instance on every call, since spec.md §8 requires a relaunch to begin
// from fresh Init state.
func New[Env, Args, Out any](name string, newProc func() Procedure[Env, Args, Out], deps Deps) *Handle[Env, Args, Out] {
	log := deps.Log
	if log == nil {
		log = logging.Noop()
	}
	return &Handle[Env, Args, Out]{
		name:    name,
		newProc: newProc,
		metrics: deps.Metrics,
		log:     log.With(logging.String("procedure", name)),
		tracer:  deps.Tracer,
		st:      stateIdle,
	}
}

// Name returns the procedure name this handle was constructed with.
func (h *Handle[Env, Args, Out]) Name() string { return h.name }

// IsIdle reports whether the handle can currently be launched.
func (h *Handle[Env, Args, Out]) IsIdle() bool { return h.st == stateIdle }

// IsRunning reports whether a procedure instance is currently in flight.
func (h *Handle[Env, Args, Out]) IsRunning() bool { return h.st == stateRunning }

// Generation returns the id stamped on the current (or most recent)
// launch, used by subscribers (e.g. the PHY facade) to reject delivery
// to a since-completed-or-relaunched instance.
func (h *Handle[Env, Args, Out]) Generation() string { return h.generation }

// Launch starts a fresh procedure instance if idle, or returns ErrBusy.
// If Init completes synchronously (Success or Errored), Then fires and the
// handle returns to idle before Launch returns.
func (h *Handle[Env, Args, Out]) Launch(ctx context.Context, env Env, args Args) (*Future[Out], error) {
	if h.st != stateIdle {
		h.recordLaunch("busy")
		return nil, ErrBusy
	}

	gen := uuid.NewString()
	h.cur = h.newProc()
	h.env = env
	h.generation = gen
	h.st = stateRunning
	h.launchedAt = time.Now()
	h.future = newFuture[Out](gen)
	h.recordLaunch("ok")

	if h.tracer != nil {
		ctx, h.span = h.tracer.Start(ctx, h.name)
	}

	outcome := h.cur.Init(env, args)
	h.settle(ctx, outcome)
	return h.future, nil
}

// Run steps the current instance once, following the same outcome rules
// as Launch. Returns true iff the handle is still running afterward.
func (h *Handle[Env, Args, Out]) Run(ctx context.Context) bool {
	if h.st != stateRunning {
		return false
	}
	outcome := h.cur.Step(h.env)
	h.settle(ctx, outcome)
	return h.st == stateRunning
}

// Trigger delivers an event to the running instance. Returns false (and
// logs a warning) if the handle is not running.
func (h *Handle[Env, Args, Out]) Trigger(ctx context.Context, ev event.Event) bool {
	if h.st != stateRunning {
		h.log.Warn(ctx, "event dropped: procedure not running", logging.Any("event", ev.Kind()))
		if h.metrics != nil {
			h.metrics.RecordDroppedEvent(string(ev.Kind()))
		}
		return false
	}
	outcome := h.cur.React(h.env, ev)
	h.settle(ctx, outcome)
	return true
}

// TriggerIfCurrent delivers ev only if gen matches the handle's current
// generation and it is still running, dropping (with a logged warning)
// otherwise. This is how the PHY facade and other completion sources
// route events per spec.md §4.4 without holding a direct reference into
// a possibly-stale instance.
func (h *Handle[Env, Args, Out]) TriggerIfCurrent(ctx context.Context, gen string, ev event.Event) bool {
	if h.st != stateRunning || gen != h.generation {
		h.log.Warn(ctx, "event dropped: stale or completed subscriber",
			logging.Any("event", ev.Kind()), logging.String("generation", gen))
		if h.metrics != nil {
			h.metrics.RecordDroppedEvent(string(ev.Kind()))
		}
		return false
	}
	outcome := h.cur.React(h.env, ev)
	h.settle(ctx, outcome)
	return true
}

// settle applies the shared completion rules for Init/Step/React outcomes.
func (h *Handle[Env, Args, Out]) settle(ctx context.Context, outcome Outcome) {
	if outcome == Yield {
		return
	}

	result := h.cur.Result()
	h.cur.Then(h.env, result)
	h.future.complete(result)

	if h.metrics != nil {
		out := "success"
		if outcome == Errored || result.IsError() {
			out = "error"
		}
		h.metrics.RecordCompletion(h.name, out, time.Since(h.launchedAt).Seconds())
	}
	if h.span != nil {
		h.span.End()
		h.span = nil
	}

	var zero Env
	h.cur = nil
	h.env = zero
	h.st = stateIdle
}

func (h *Handle[Env, Args, Out]) recordLaunch(result string) {
	if h.metrics != nil {
		h.metrics.RecordLaunch(h.name, result)
	}
}
