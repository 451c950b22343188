package procedures

import (
	"context"
	"errors"

	"github.com/ranstack/rrcue/internal/clock"
	"github.com/ranstack/rrcue/internal/event"
	"github.com/ranstack/rrcue/internal/logging"
	"github.com/ranstack/rrcue/internal/proc"
	"github.com/ranstack/rrcue/internal/rrcenv"
	"github.com/ranstack/rrcue/internal/si"
)

// ErrSIB1Required is returned when sib_index >= 1 is requested before
// SIB1 has been decoded (spec.md §4.6).
var ErrSIB1Required = errors.New("procedures: sib1 required before higher sibs")

// ErrNotScheduled is returned when the requested SIB has no entry in
// the serving cell's sched_info_list (spec.md §4.3, §4.6).
var ErrNotScheduled = errors.New("procedures: sib not scheduled")

// SIAcquireProc implements spec.md §4.6.
type SIAcquireProc struct {
	sibIndex   int
	res        proc.Result[struct{}]
	retryTimer *clock.UniqueTimer
	timeout    *clock.UniqueTimer
}

// NewSIAcquireProc constructs a fresh SI-acquire instance.
func NewSIAcquireProc() proc.Procedure[*rrcenv.Env, int, struct{}] { return &SIAcquireProc{} }

func (p *SIAcquireProc) Init(env *rrcenv.Env, sibIndex int) proc.Outcome {
	p.sibIndex = sibIndex
	if sibIndex >= 1 && !env.Cells.HasSIB1() {
		p.res = proc.Result[struct{}]{Err: ErrSIB1Required}
		return proc.Errored
	}
	if env.Cells.HasSIB(sibIndex) {
		return proc.Success
	}

	serving := env.Cells.Serving()
	_, _, ok := si.ComputePeriodicityAndIdx(sibIndex, sib1Of(serving))
	if sibIndex >= 1 && !ok {
		p.res = proc.Result[struct{}]{Err: ErrNotScheduled}
		return proc.Errored
	}

	p.retryTimer = env.Clock.GetUniqueTimer()
	p.timeout = env.Clock.GetUniqueTimer()
	p.timeout.Set(env.Config.SIBSearchTimeoutMS, func() {
		env.Procs.SIAcquire.TriggerIfCurrent(context.Background(), env.Procs.SIAcquire.Generation(),
			event.TimerExpired{TimerID: p.timeout.ID()})
	})
	p.startSIAcquire(env)
	return proc.Yield
}

func (p *SIAcquireProc) startSIAcquire(env *rrcenv.Env) {
	tti := env.CurrentTTI()
	serving := env.Cells.Serving()
	win, ok := si.ComputeWindow(tti, p.sibIndex, sib1Of(serving))
	if !ok {
		env.Log.Warn(context.Background(), "sib no longer scheduled", logging.Int("sib_index", p.sibIndex))
		return
	}
	if win.Start < tti {
		env.Log.Warn(context.Background(), "si window already elapsed, waiting for retry",
			logging.Int("sib_index", p.sibIndex), logging.Int("si_win_start", win.Start), logging.Int("tti", tti))
	} else {
		env.MAC.BCCHStartRx(win.Start, win.Length)
	}

	period, _, _ := si.ComputePeriodicityAndIdx(p.sibIndex, sib1Of(serving))
	retryFrames := period * 5
	if p.sibIndex == 0 {
		retryFrames = 20
	}
	retryMS := retryFrames*10 + (win.Start - tti)
	if retryMS < 1 {
		retryMS = 1
	}
	p.retryTimer.Set(retryMS, func() {
		env.Procs.SIAcquire.TriggerIfCurrent(context.Background(), env.Procs.SIAcquire.Generation(),
			event.TimerExpired{TimerID: p.retryTimer.ID()})
	})
}

func (p *SIAcquireProc) Step(env *rrcenv.Env) proc.Outcome { return proc.Yield }

func (p *SIAcquireProc) React(env *rrcenv.Env, ev event.Event) proc.Outcome {
	switch e := ev.(type) {
	case event.SIBReceived:
		if env.Cells.HasSIB(p.sibIndex) {
			p.res = proc.Result[struct{}]{}
			return proc.Success
		}
		return proc.Yield
	case event.TimerExpired:
		switch e.TimerID {
		case p.retryTimer.ID():
			p.startSIAcquire(env)
			return proc.Yield
		case p.timeout.ID():
			p.res = proc.Result[struct{}]{Err: ErrLowerLayerFailure}
			return proc.Errored
		}
	}
	return proc.Yield
}

func (p *SIAcquireProc) Then(env *rrcenv.Env, result proc.Result[struct{}]) {
	if p.retryTimer != nil {
		p.retryTimer.Stop()
	}
	if p.timeout != nil {
		p.timeout.Stop()
	}
}

func (p *SIAcquireProc) Result() proc.Result[struct{}] { return p.res }
