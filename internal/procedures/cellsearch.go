// Package procedures implements the §4.5–§4.15 procedure state machines,
// each an explicit tagged state machine per spec.md §9's redesign note
// (no hidden coroutine stack). Logic is grounded against
// original_source/srsue/src/stack/rrc/rrc_procedures.cc where spec.md
// is silent on a detail; shape is grounded on the mutex-guarded
// struct-with-maps style of internal/sbi/controller/scheduler.go.
package procedures

import (
	"context"
	"errors"
	"math"

	"github.com/ranstack/rrcue/internal/cell"
	"github.com/ranstack/rrcue/internal/event"
	"github.com/ranstack/rrcue/internal/proc"
	"github.com/ranstack/rrcue/internal/rrcenv"
)

var ErrLowerLayerFailure = errors.New("procedures: lower-layer failure")

type cellSearchState int

const (
	csPhyCellSearch cellSearchState = iota
	csPhyCellSelect
	csWaitMeasurement
	csSIAcquire
)

// CellSearchProc implements spec.md §4.5.
type CellSearchProc struct {
	state    cellSearchState
	res      proc.Result[rrcenv.CellSearchOut]
	siFuture *proc.Future[struct{}]
	lastFreq event.LastFreq
}

// NewCellSearchProc constructs a fresh cell-search instance.
func NewCellSearchProc() proc.Procedure[*rrcenv.Env, struct{}, rrcenv.CellSearchOut] {
	return &CellSearchProc{}
}

func (p *CellSearchProc) Init(env *rrcenv.Env, _ struct{}) proc.Outcome {
	p.state = csPhyCellSearch
	if !env.PHY.StartCellSearch(context.Background(), env.Procs.CellSearch) {
		p.res = proc.Result[rrcenv.CellSearchOut]{Err: ErrLowerLayerFailure}
		return proc.Errored
	}
	return proc.Yield
}

func (p *CellSearchProc) Step(env *rrcenv.Env) proc.Outcome {
	switch p.state {
	case csWaitMeasurement:
		serving := env.Cells.Serving()
		if serving == nil || math.IsNaN(serving.RSRP) {
			return proc.Yield
		}
		if serving.HasSIB1() {
			p.res = proc.Result[rrcenv.CellSearchOut]{Value: rrcenv.CellSearchOut{Found: true, Cell: serving.ID(), LastFreq: p.lastFreq}}
			return proc.Success
		}
		fut, err := env.Procs.SIAcquire.Launch(context.Background(), env, 0)
		if err != nil {
			p.res = proc.Result[rrcenv.CellSearchOut]{Err: err}
			return proc.Errored
		}
		p.siFuture = fut
		p.state = csSIAcquire
		return proc.Yield
	case csSIAcquire:
		env.Procs.SIAcquire.Run(context.Background())
		result, ok := p.siFuture.Value()
		if !ok {
			return proc.Yield
		}
		if result.Err != nil {
			p.res = proc.Result[rrcenv.CellSearchOut]{Err: result.Err}
			return proc.Errored
		}
		serving := env.Cells.Serving()
		p.res = proc.Result[rrcenv.CellSearchOut]{Value: rrcenv.CellSearchOut{Found: true, Cell: serving.ID(), LastFreq: p.lastFreq}}
		return proc.Success
	default:
		return proc.Yield
	}
}

func (p *CellSearchProc) React(env *rrcenv.Env, ev event.Event) proc.Outcome {
	switch p.state {
	case csPhyCellSearch:
		res, ok := ev.(event.CellSearchResult)
		if !ok {
			return proc.Yield
		}
		switch res.Ret {
		case event.CellNotFound:
			p.lastFreq = res.LastFreq
			p.res = proc.Result[rrcenv.CellSearchOut]{Value: rrcenv.CellSearchOut{Found: false, LastFreq: p.lastFreq}}
			return proc.Success
		case event.CellSearchError:
			p.res = proc.Result[rrcenv.CellSearchOut]{Err: ErrLowerLayerFailure}
			return proc.Errored
		case event.CellFound:
			p.lastFreq = res.LastFreq
			id := cell.ID{EARFCN: res.EARFCN, PCI: res.PCI}
			found, err := env.Cells.GetOrCreateNeighbour(id)
			if err != nil {
				p.res = proc.Result[rrcenv.CellSearchOut]{Err: err}
				return proc.Errored
			}
			env.Cells.PromoteToServing(found)
			if !env.PHY.StartCellSelect(context.Background(), id, env.Procs.CellSearch) {
				p.res = proc.Result[rrcenv.CellSearchOut]{Err: ErrLowerLayerFailure}
				return proc.Errored
			}
			p.state = csPhyCellSelect
			return proc.Yield
		}
		return proc.Yield
	case csPhyCellSelect:
		res, ok := ev.(event.CellSelectResult)
		if !ok {
			return proc.Yield
		}
		if !res.Synced {
			p.res = proc.Result[rrcenv.CellSearchOut]{Err: ErrLowerLayerFailure}
			return proc.Errored
		}
		serving := env.Cells.Serving()
		if env.PHY.CellIsCamping() && serving != nil && math.IsNaN(serving.RSRP) {
			p.state = csWaitMeasurement
			return proc.Yield
		}
		if serving != nil && !math.IsNaN(serving.RSRP) && serving.HasSIB1() {
			p.res = proc.Result[rrcenv.CellSearchOut]{Value: rrcenv.CellSearchOut{Found: true, Cell: serving.ID(), LastFreq: p.lastFreq}}
			return proc.Success
		}
		p.res = proc.Result[rrcenv.CellSearchOut]{Err: ErrLowerLayerFailure}
		return proc.Errored
	default:
		return proc.Yield
	}
}

func (p *CellSearchProc) Then(env *rrcenv.Env, result proc.Result[rrcenv.CellSearchOut]) {}

func (p *CellSearchProc) Result() proc.Result[rrcenv.CellSearchOut] { return p.res }
