package procedures

import (
	"context"

	"github.com/ranstack/rrcue/internal/event"
	"github.com/ranstack/rrcue/internal/proc"
	"github.com/ranstack/rrcue/internal/rrcenv"
	"github.com/ranstack/rrcue/internal/rrcstate"
)

type pcchState int

const (
	pcchNextRecord pcchState = iota
	pcchNASPaging
	pcchSCellConfig
)

// ProcessPCCHProc implements spec.md §4.11: walks a decoded Paging
// message's records in order, forwarding a matching S-TMSI to NAS and
// reconfiguring the serving cell whenever a record carries
// sys_info_mod_present. A matching S-TMSI yields in a dedicated NAS-
// paging wait state until event.PagingComplete reports the outcome,
// rather than treating nas.Paging's launch-accepted return as the
// paging outcome itself.
type ProcessPCCHProc struct {
	paging rrcenv.Paging
	idx    int
	state  pcchState
	res    proc.Result[struct{}]

	scFuture *proc.Future[struct{}]
}

// NewProcessPCCHProc constructs a fresh process-PCCH instance.
func NewProcessPCCHProc() proc.Procedure[*rrcenv.Env, rrcenv.Paging, struct{}] {
	return &ProcessPCCHProc{}
}

func (p *ProcessPCCHProc) Init(env *rrcenv.Env, paging rrcenv.Paging) proc.Outcome {
	p.paging = paging
	p.idx = 0
	p.state = pcchNextRecord
	return p.advance(env)
}

// advance processes records[idx:] until one requires a yield (NAS paging
// in flight, or a serving cell reconfiguration in flight) or the record
// list is exhausted.
func (p *ProcessPCCHProc) advance(env *rrcenv.Env) proc.Outcome {
	for p.idx < len(p.paging.Records) {
		rec := p.paging.Records[p.idx]

		if rec.HasSTMSI && rec.STMSI == env.UEIdentity && env.State.Current() == rrcstate.IDLE {
			if !env.NAS.Paging(rec.STMSI) {
				p.res = proc.Result[struct{}]{Err: ErrLowerLayerFailure}
				return proc.Errored
			}
			p.state = pcchNASPaging
			return proc.Yield
		}

		if rec.SysInfoModPresent {
			env.Cells.ResetSIBs()
			fut, err := env.Procs.SCellConfig.Launch(context.Background(), env, env.RequiredSIBs)
			if err != nil {
				p.res = proc.Result[struct{}]{Err: err}
				return proc.Errored
			}
			p.scFuture = fut
			p.state = pcchSCellConfig
			return proc.Yield
		}

		p.idx++
	}

	p.res = proc.Result[struct{}]{}
	return proc.Success
}

func (p *ProcessPCCHProc) Step(env *rrcenv.Env) proc.Outcome {
	if p.state != pcchSCellConfig || p.scFuture == nil {
		return proc.Yield
	}
	env.Procs.SCellConfig.Run(context.Background())
	result, ok := p.scFuture.Value()
	if !ok {
		return proc.Yield
	}
	p.scFuture = nil
	if result.Err != nil {
		p.res = proc.Result[struct{}]{Err: result.Err}
		return proc.Errored
	}
	p.idx++
	p.state = pcchNextRecord
	return p.advance(env)
}

func (p *ProcessPCCHProc) React(env *rrcenv.Env, ev event.Event) proc.Outcome {
	e, ok := ev.(event.PagingComplete)
	if !ok || p.state != pcchNASPaging {
		return proc.Yield
	}
	if !e.OK {
		p.res = proc.Result[struct{}]{Err: ErrLowerLayerFailure}
		return proc.Errored
	}
	p.idx++
	p.state = pcchNextRecord
	return p.advance(env)
}

func (p *ProcessPCCHProc) Then(env *rrcenv.Env, result proc.Result[struct{}]) {}

func (p *ProcessPCCHProc) Result() proc.Result[struct{}] { return p.res }
