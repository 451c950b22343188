package procedures

import (
	"context"

	"github.com/ranstack/rrcue/internal/clock"
	"github.com/ranstack/rrcue/internal/event"
	"github.com/ranstack/rrcue/internal/proc"
	"github.com/ranstack/rrcue/internal/rrcenv"
	"github.com/ranstack/rrcue/internal/rrcstate"
)

// GoIdleProc implements spec.md §4.12: waits for the RLC SRBs to flush
// (or a timeout) before tearing the connection down to IDLE.
type GoIdleProc struct {
	res        proc.Result[struct{}]
	flushTimer *clock.UniqueTimer
}

// NewGoIdleProc constructs a fresh go-idle instance.
func NewGoIdleProc() proc.Procedure[*rrcenv.Env, struct{}, struct{}] { return &GoIdleProc{} }

func (p *GoIdleProc) Init(env *rrcenv.Env, _ struct{}) proc.Outcome {
	if env.State.Current() == rrcstate.IDLE {
		p.res = proc.Result[struct{}]{}
		return proc.Success
	}

	p.flushTimer = env.Clock.GetUniqueTimer()
	p.flushTimer.Set(env.Config.RLCFlushTimeoutMS, func() {
		env.Procs.GoIdle.TriggerIfCurrent(context.Background(), env.Procs.GoIdle.Generation(),
			event.TimerExpired{TimerID: p.flushTimer.ID()})
	})
	return proc.Yield
}

func (p *GoIdleProc) Step(env *rrcenv.Env) proc.Outcome {
	if env.State.Current() == rrcstate.IDLE {
		p.res = proc.Result[struct{}]{}
		return proc.Success
	}
	if env.RLC.GetMetrics().AllSRBsFlushed {
		return p.leaveConnected(env)
	}
	return proc.Yield
}

func (p *GoIdleProc) React(env *rrcenv.Env, ev event.Event) proc.Outcome {
	e, ok := ev.(event.TimerExpired)
	if !ok || p.flushTimer == nil || e.TimerID != p.flushTimer.ID() {
		return proc.Yield
	}
	return p.leaveConnected(env)
}

func (p *GoIdleProc) leaveConnected(env *rrcenv.Env) proc.Outcome {
	if env.State.Current() != rrcstate.IDLE {
		_ = env.State.ToIdle()
	}
	p.res = proc.Result[struct{}]{}
	return proc.Success
}

func (p *GoIdleProc) Then(env *rrcenv.Env, result proc.Result[struct{}]) {
	if p.flushTimer != nil {
		p.flushTimer.Stop()
	}
	if env.NAS.IsAttached() && env.Procs.CellReselect.IsIdle() {
		if fut, err := env.Procs.CellReselect.Launch(context.Background(), env, struct{}{}); err == nil {
			_ = fut
			env.CallbackList.Add(env.Procs.CellReselect)
		}
	}
}

func (p *GoIdleProc) Result() proc.Result[struct{}] { return p.res }
