package procedures

import (
	"context"

	"github.com/ranstack/rrcue/internal/clock"
	"github.com/ranstack/rrcue/internal/event"
	"github.com/ranstack/rrcue/internal/proc"
	"github.com/ranstack/rrcue/internal/rrcenv"
	"github.com/ranstack/rrcue/internal/rrcstate"
)

// CellReselectionProc implements spec.md §4.13: the periodic background
// watcher go-idle's Then launches as a callback-list member. Each round
// drives a fresh cell-selection (spec.md §4.8) to completion and, while
// the UE remains IDLE and NAS-attached, rearms itself after
// cell_reselection_periodicity_ms; once neither condition holds it
// completes, so go-idle can relaunch it cleanly on the next episode.
type CellReselectionProc struct {
	res       proc.Result[struct{}]
	selFuture *proc.Future[rrcenv.CellSelectionOut]
	periodic  *clock.UniqueTimer
}

// NewCellReselectionProc constructs a fresh cell-reselection instance.
func NewCellReselectionProc() proc.Procedure[*rrcenv.Env, struct{}, struct{}] {
	return &CellReselectionProc{}
}

func (p *CellReselectionProc) Init(env *rrcenv.Env, _ struct{}) proc.Outcome {
	return p.launchRound(env)
}

func (p *CellReselectionProc) launchRound(env *rrcenv.Env) proc.Outcome {
	fut, err := env.Procs.CellSelection.Launch(context.Background(), env, struct{}{})
	if err != nil {
		p.res = proc.Result[struct{}]{Err: err}
		return proc.Errored
	}
	p.selFuture = fut
	return proc.Yield
}

func (p *CellReselectionProc) Step(env *rrcenv.Env) proc.Outcome {
	if p.selFuture != nil {
		env.Procs.CellSelection.Run(context.Background())
		result, ok := p.selFuture.Value()
		if !ok {
			return proc.Yield
		}
		p.selFuture = nil
		if result.Err != nil {
			p.res = proc.Result[struct{}]{Err: result.Err}
			return proc.Errored
		}

		switch result.Value.Outcome {
		case rrcenv.ChangedCell:
			if env.State.Current() == rrcstate.IDLE {
				env.MAC.PCCHStartRx()
			}
		case rrcenv.NoCell:
			env.Log.Warn(context.Background(), "cell reselection found no cell")
		case rrcenv.SameCell:
			if !env.PHY.CellIsCamping() {
				env.Log.Warn(context.Background(), "cell reselection kept serving cell but UE is not camping")
			}
		}
		return p.armOrFinish(env)
	}
	return proc.Yield
}

// armOrFinish rearms the periodic timer while the UE is still IDLE and
// NAS-attached, otherwise completes so a future go-idle episode can
// relaunch this handle fresh.
func (p *CellReselectionProc) armOrFinish(env *rrcenv.Env) proc.Outcome {
	if env.State.Current() != rrcstate.IDLE || !env.NAS.IsAttached() {
		p.res = proc.Result[struct{}]{}
		return proc.Success
	}
	p.periodic = env.Clock.GetUniqueTimer()
	p.periodic.Set(env.Config.CellReselectionPeriodMS, func() {
		env.Procs.CellReselect.TriggerIfCurrent(context.Background(), env.Procs.CellReselect.Generation(),
			event.TimerExpired{TimerID: p.periodic.ID()})
	})
	return proc.Yield
}

func (p *CellReselectionProc) React(env *rrcenv.Env, ev event.Event) proc.Outcome {
	e, ok := ev.(event.TimerExpired)
	if !ok || p.periodic == nil || e.TimerID != p.periodic.ID() {
		return proc.Yield
	}
	if env.State.Current() != rrcstate.IDLE || !env.NAS.IsAttached() {
		p.res = proc.Result[struct{}]{}
		return proc.Success
	}
	return p.launchRound(env)
}

func (p *CellReselectionProc) Then(env *rrcenv.Env, result proc.Result[struct{}]) {
	if p.periodic != nil {
		p.periodic.Stop()
	}
}

func (p *CellReselectionProc) Result() proc.Result[struct{}] { return p.res }
