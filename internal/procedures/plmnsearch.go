package procedures

import (
	"context"

	"github.com/ranstack/rrcue/internal/cell"
	"github.com/ranstack/rrcue/internal/event"
	"github.com/ranstack/rrcue/internal/proc"
	"github.com/ranstack/rrcue/internal/rrcenv"
)

// PLMNSearchProc implements spec.md §4.9: repeated cell-search across
// frequencies, accumulating every (plmn_id, tac) of each found cell's
// SIB1 up to MaxFoundPLMNs, until PHY reports no more frequencies.
type PLMNSearchProc struct {
	found    []cell.PLMNTAC
	csFuture *proc.Future[rrcenv.CellSearchOut]
	res      proc.Result[[]cell.PLMNTAC]
}

// NewPLMNSearchProc constructs a fresh PLMN-search instance.
func NewPLMNSearchProc() proc.Procedure[*rrcenv.Env, struct{}, []cell.PLMNTAC] {
	return &PLMNSearchProc{}
}

func (p *PLMNSearchProc) Init(env *rrcenv.Env, _ struct{}) proc.Outcome {
	return p.launchNext(env)
}

func (p *PLMNSearchProc) launchNext(env *rrcenv.Env) proc.Outcome {
	fut, err := env.Procs.CellSearch.Launch(context.Background(), env, struct{}{})
	if err != nil {
		env.NAS.PLMNSearchCompleted(nil, -1)
		p.res = proc.Result[[]cell.PLMNTAC]{Err: err}
		return proc.Errored
	}
	p.csFuture = fut
	return proc.Yield
}

func (p *PLMNSearchProc) Step(env *rrcenv.Env) proc.Outcome {
	env.Procs.CellSearch.Run(context.Background())
	result, ok := p.csFuture.Value()
	if !ok {
		return proc.Yield
	}
	if result.Err != nil {
		env.NAS.PLMNSearchCompleted(nil, -1)
		p.res = proc.Result[[]cell.PLMNTAC]{Err: result.Err}
		return proc.Errored
	}

	if result.Value.Found {
		if serving := env.Cells.Serving(); serving != nil && serving.HasSIB1() {
			for _, pt := range serving.PLMNList {
				if len(p.found) >= env.Config.MaxFoundPLMNs {
					break
				}
				p.found = append(p.found, pt)
			}
		}
	}

	if result.Value.LastFreq == event.NoMoreFreqs {
		env.NAS.PLMNSearchCompleted(p.found, len(p.found))
		p.res = proc.Result[[]cell.PLMNTAC]{Value: p.found}
		return proc.Success
	}
	return p.launchNext(env)
}

func (p *PLMNSearchProc) React(env *rrcenv.Env, ev event.Event) proc.Outcome { return proc.Yield }

func (p *PLMNSearchProc) Then(env *rrcenv.Env, result proc.Result[[]cell.PLMNTAC]) {}

func (p *PLMNSearchProc) Result() proc.Result[[]cell.PLMNTAC] { return p.res }
