package procedures

import (
	"context"

	"github.com/ranstack/rrcue/internal/cell"
	"github.com/ranstack/rrcue/internal/event"
	"github.com/ranstack/rrcue/internal/proc"
	"github.com/ranstack/rrcue/internal/rrcenv"
	"github.com/ranstack/rrcue/internal/si"
)

// ServingCellConfigProc implements spec.md §4.7: applies each required
// SIB in order, launching SI-acquire for any that is missing.
type ServingCellConfigProc struct {
	required []int
	idx      int
	res      proc.Result[struct{}]
	siFuture *proc.Future[struct{}]
}

// NewServingCellConfigProc constructs a fresh serving-cell-config
// instance.
func NewServingCellConfigProc() proc.Procedure[*rrcenv.Env, []int, struct{}] {
	return &ServingCellConfigProc{}
}

func (p *ServingCellConfigProc) Init(env *rrcenv.Env, required []int) proc.Outcome {
	p.required = required
	p.idx = 0
	return p.advance(env)
}

func (p *ServingCellConfigProc) Step(env *rrcenv.Env) proc.Outcome {
	if p.siFuture == nil {
		return proc.Yield
	}
	env.Procs.SIAcquire.Run(context.Background())
	result, ok := p.siFuture.Value()
	if !ok {
		return proc.Yield
	}
	p.siFuture = nil
	if result.Err != nil && p.required[p.idx] < 2 {
		p.res = proc.Result[struct{}]{Err: result.Err}
		return proc.Errored
	}
	p.idx++
	return p.advance(env)
}

// advance applies or schedules acquisition of required[idx:], returning
// Success once the vector is exhausted. Failure to acquire a SIB is
// fatal only when required_sib < 2 (spec.md §4.7); any other SIB is
// skipped and the vector continues.
func (p *ServingCellConfigProc) advance(env *rrcenv.Env) proc.Outcome {
	for p.idx < len(p.required) {
		sibIndex := p.required[p.idx]
		if env.Cells.HasSIB(sibIndex) {
			applySIB(env.Cells.Serving(), sibIndex)
			p.idx++
			continue
		}

		serving := env.Cells.Serving()
		scheduled := sibIndex == 0 || !env.Cells.HasSIB1()
		if !scheduled {
			_, _, ok := si.ComputePeriodicityAndIdx(sibIndex, sib1Of(serving))
			scheduled = ok
		}
		if !scheduled {
			if sibIndex < 2 {
				p.res = proc.Result[struct{}]{Err: ErrNotScheduled}
				return proc.Errored
			}
			p.idx++
			continue
		}

		fut, err := env.Procs.SIAcquire.Launch(context.Background(), env, sibIndex)
		if err != nil {
			if sibIndex < 2 {
				p.res = proc.Result[struct{}]{Err: err}
				return proc.Errored
			}
			p.idx++
			continue
		}
		p.siFuture = fut
		return proc.Yield
	}
	p.res = proc.Result[struct{}]{}
	return proc.Success
}

func (p *ServingCellConfigProc) React(env *rrcenv.Env, ev event.Event) proc.Outcome { return proc.Yield }

func (p *ServingCellConfigProc) Then(env *rrcenv.Env, result proc.Result[struct{}]) {}

func (p *ServingCellConfigProc) Result() proc.Result[struct{}] { return p.res }

// applySIB applies a SIB already present on the serving cell
// (sib2 → handle_sib2; sib13 → handle_sib13; others no-op per
// spec.md §4.7). The decoded payload's effect on MAC/RLC/PDCP
// configuration is an out-of-scope ASN.1/RRC-message concern
// (spec.md §1); this engine only tracks application.
func applySIB(serving *cell.Cell, sibIndex int) {
	if serving == nil {
		return
	}
	switch sibIndex {
	case 1: // SIB2
		serving.HandleSIB2()
	case 12: // SIB13
		serving.HandleSIB13()
	}
}
