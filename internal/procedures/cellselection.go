package procedures

import (
	"context"

	"github.com/ranstack/rrcue/internal/event"
	"github.com/ranstack/rrcue/internal/proc"
	"github.com/ranstack/rrcue/internal/rrcenv"
)

type cellSelectionState int

const (
	selWaitServingSelect cellSelectionState = iota
	selWaitNeighbourSelect
	selWaitCellSearch
	selWaitSCellConfig
	selDone
)

// CellSelectionProc implements spec.md §4.8.
type CellSelectionProc struct {
	state         cellSelectionState
	reusedServing bool
	res           proc.Result[rrcenv.CellSelectionOut]
	csFuture      *proc.Future[rrcenv.CellSearchOut]
	scFuture      *proc.Future[struct{}]
}

// NewCellSelectionProc constructs a fresh cell-selection instance.
func NewCellSelectionProc() proc.Procedure[*rrcenv.Env, struct{}, rrcenv.CellSelectionOut] {
	return &CellSelectionProc{}
}

func (p *CellSelectionProc) Init(env *rrcenv.Env, _ struct{}) proc.Outcome {
	serving := env.Cells.Serving()

	if len(env.Cells.Neighbours()) == 0 && env.PHY.IsInSync() && env.PHY.CellIsCamping() {
		return p.finish(rrcenv.SameCell)
	}

	if meetsSelectionCriteria(serving, env.Config.CellSelectionRSRPThreshold) {
		if !env.PHY.StartCellSelect(context.Background(), serving.ID(), env.Procs.CellSelection) {
			p.res = proc.Result[rrcenv.CellSelectionOut]{Err: ErrLowerLayerFailure}
			return proc.Errored
		}
		p.state = selWaitServingSelect
		return proc.Yield
	}
	return p.tryNextNeighbour(env)
}

func (p *CellSelectionProc) tryNextNeighbour(env *rrcenv.Env) proc.Outcome {
	for _, n := range env.Cells.Neighbours() {
		if meetsSelectionCriteria(n, env.Config.CellSelectionRSRPThreshold) {
			env.Cells.PromoteToServing(n)
			if !env.PHY.StartCellSelect(context.Background(), n.ID(), env.Procs.CellSelection) {
				p.res = proc.Result[rrcenv.CellSelectionOut]{Err: ErrLowerLayerFailure}
				return proc.Errored
			}
			p.state = selWaitNeighbourSelect
			return proc.Yield
		}
	}

	fut, err := env.Procs.CellSearch.Launch(context.Background(), env, struct{}{})
	if err != nil {
		p.res = proc.Result[rrcenv.CellSelectionOut]{Err: err}
		return proc.Errored
	}
	p.csFuture = fut
	p.state = selWaitCellSearch
	return proc.Yield
}

func (p *CellSelectionProc) launchSCellConfig(env *rrcenv.Env) proc.Outcome {
	fut, err := env.Procs.SCellConfig.Launch(context.Background(), env, env.RequiredSIBs)
	if err != nil {
		p.res = proc.Result[rrcenv.CellSelectionOut]{Err: err}
		return proc.Errored
	}
	p.scFuture = fut
	p.state = selWaitSCellConfig
	return proc.Yield
}

func (p *CellSelectionProc) finish(outcome rrcenv.CellSelectionOutcome) proc.Outcome {
	p.state = selDone
	p.res = proc.Result[rrcenv.CellSelectionOut]{Value: rrcenv.CellSelectionOut{Outcome: outcome}}
	return proc.Success
}

func (p *CellSelectionProc) Step(env *rrcenv.Env) proc.Outcome {
	switch p.state {
	case selWaitCellSearch:
		env.Procs.CellSearch.Run(context.Background())
		result, ok := p.csFuture.Value()
		if !ok {
			return proc.Yield
		}
		if result.Err != nil {
			p.res = proc.Result[rrcenv.CellSelectionOut]{Err: result.Err}
			return proc.Errored
		}
		if !result.Value.Found {
			return p.finish(rrcenv.NoCell)
		}
		return p.launchSCellConfig(env)
	case selWaitSCellConfig:
		env.Procs.SCellConfig.Run(context.Background())
		result, ok := p.scFuture.Value()
		if !ok {
			return proc.Yield
		}
		if result.Err != nil {
			p.res = proc.Result[rrcenv.CellSelectionOut]{Err: result.Err}
			return proc.Errored
		}
		if p.reusedServing {
			return p.finish(rrcenv.SameCell)
		}
		return p.finish(rrcenv.ChangedCell)
	default:
		return proc.Yield
	}
}

func (p *CellSelectionProc) React(env *rrcenv.Env, ev event.Event) proc.Outcome {
	res, ok := ev.(event.CellSelectResult)
	if !ok {
		return proc.Yield
	}
	switch p.state {
	case selWaitServingSelect:
		if res.Synced {
			p.reusedServing = true
			return p.launchSCellConfig(env)
		}
		if serving := env.Cells.Serving(); serving != nil {
			serving.RSRP = negInfRSRP
		}
		return p.tryNextNeighbour(env)
	case selWaitNeighbourSelect:
		if res.Synced {
			p.reusedServing = false
			return p.launchSCellConfig(env)
		}
		if serving := env.Cells.Serving(); serving != nil {
			serving.RSRP = negInfRSRP
		}
		return p.tryNextNeighbour(env)
	default:
		return proc.Yield
	}
}

func (p *CellSelectionProc) Then(env *rrcenv.Env, result proc.Result[rrcenv.CellSelectionOut]) {}

func (p *CellSelectionProc) Result() proc.Result[rrcenv.CellSelectionOut] { return p.res }
