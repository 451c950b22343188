package procedures

import (
	"context"
	"fmt"

	"github.com/ranstack/rrcue/internal/clock"
	"github.com/ranstack/rrcue/internal/event"
	"github.com/ranstack/rrcue/internal/proc"
	"github.com/ranstack/rrcue/internal/rrcenv"
	"github.com/ranstack/rrcue/internal/rrcstate"
)

// maxRadioBearers bounds the RLC logical channels reestablishment
// suspends (spec.md §4.14 "suspend every RLC bearer >= 1"): SRB1, SRB2,
// and up to 8 DRBs, lcid 1..10.
const maxRadioBearers = 10

type reestState int

const (
	reestCellReselection reestState = iota
	reestCellConfiguration
)

// ReestablishmentProc implements spec.md §4.14. "cell-reselector" in the
// spec prose is driven here as repeated launches of CellSelection
// (spec.md §4.8): the dedicated periodic CellReselection handle
// (spec.md §4.13) is a self-rearming background watcher owned by
// go-idle and unsuitable for a T311-bounded retry loop that needs its
// own per-round outcome.
type ReestablishmentProc struct {
	state reestState

	cause      string
	sourcePCI  uint16
	sourceFreq uint32
	rnti       uint32

	t311 *clock.UniqueTimer
	t301 *clock.UniqueTimer

	selFuture *proc.Future[rrcenv.CellSelectionOut]
	scFuture  *proc.Future[struct{}]

	// triedThisRound guards cellCriteria against running more than once
	// for the same reselection round; launchReselector clears it when a
	// fresh round starts.
	triedThisRound bool

	res proc.Result[rrcenv.ReestOut]
}

// NewReestablishmentProc constructs a fresh connection-reestablishment
// instance.
func NewReestablishmentProc() proc.Procedure[*rrcenv.Env, rrcenv.ReestArgs, rrcenv.ReestOut] {
	return &ReestablishmentProc{}
}

func (p *ReestablishmentProc) Init(env *rrcenv.Env, args rrcenv.ReestArgs) proc.Outcome {
	sec := env.State.Security()
	rntis := env.MAC.GetRNTIs()
	if !sec.Activated || env.State.Current() != rrcstate.CONNECTED || rntis.CRNTI == 0 {
		p.launchGoIdle(env)
		p.res = proc.Result[rrcenv.ReestOut]{Value: rrcenv.ReestOut{Attempted: false}}
		return proc.Success
	}

	p.cause = args.Cause
	p.sourcePCI = args.SourcePCI
	p.sourceFreq = args.SourceEARFCN
	p.rnti = args.RNTI

	if env.T310 != nil {
		env.T310.Stop()
	}
	p.t311 = env.Clock.GetUniqueTimer()
	p.t311.Set(env.Config.T311MS, func() {
		env.Procs.Reestablish.TriggerIfCurrent(context.Background(), env.Procs.Reestablish.Generation(),
			event.TimerExpired{TimerID: p.t311.ID()})
	})

	for lcid := 1; lcid <= maxRadioBearers; lcid++ {
		if env.RLC.HasBearer(lcid) {
			env.RLC.SuspendBearer(lcid)
		}
	}
	env.MAC.Reset()
	// PHY PUCCH/SRS defaults and dedicated MAC defaults are out-of-scope
	// RRC-message configuration effects (spec.md §1), tracked the same
	// way applySIB tracks SIB application: presence only, no payload.

	return p.launchReselector(env)
}

func (p *ReestablishmentProc) launchGoIdle(env *rrcenv.Env) {
	if env.Procs.GoIdle.IsIdle() {
		if _, err := env.Procs.GoIdle.Launch(context.Background(), env, struct{}{}); err == nil {
			env.CallbackList.Add(env.Procs.GoIdle)
		}
	}
}

func (p *ReestablishmentProc) launchReselector(env *rrcenv.Env) proc.Outcome {
	p.triedThisRound = false
	fut, err := env.Procs.CellSelection.Launch(context.Background(), env, struct{}{})
	if err != nil {
		p.res = proc.Result[rrcenv.ReestOut]{Err: err}
		return proc.Errored
	}
	p.selFuture = fut
	p.state = reestCellReselection
	return proc.Yield
}

func (p *ReestablishmentProc) Step(env *rrcenv.Env) proc.Outcome {
	switch p.state {
	case reestCellReselection:
		if p.selFuture == nil {
			return proc.Yield
		}
		env.Procs.CellSelection.Run(context.Background())
		result, ok := p.selFuture.Value()
		if !ok {
			return proc.Yield
		}
		p.selFuture = nil
		if result.Err != nil {
			p.res = proc.Result[rrcenv.ReestOut]{Err: result.Err}
			return proc.Errored
		}
		return p.onReselectionRound(env)
	case reestCellConfiguration:
		if p.scFuture == nil {
			return proc.Yield
		}
		env.Procs.SCellConfig.Run(context.Background())
		result, ok := p.scFuture.Value()
		if !ok {
			return proc.Yield
		}
		p.scFuture = nil
		return p.afterCellConfiguration(env, result.Err)
	default:
		return proc.Yield
	}
}

// onReselectionRound is spec.md §4.14's "state cell_reselection: ...
// when done" branch.
func (p *ReestablishmentProc) onReselectionRound(env *rrcenv.Env) proc.Outcome {
	if !p.t311.IsRunning() {
		return p.aborted(env)
	}
	if env.PHY.IsInSync() && hasSIBs123(env) {
		return p.cellCriteria(env)
	}
	if env.PHY.IsInSync() {
		fut, err := env.Procs.SCellConfig.Launch(context.Background(), env, []int{0, 1, 2})
		if err != nil {
			p.res = proc.Result[rrcenv.ReestOut]{Err: err}
			return proc.Errored
		}
		p.scFuture = fut
		p.state = reestCellConfiguration
		return proc.Yield
	}
	return p.launchReselector(env)
}

// afterCellConfiguration is spec.md §4.14's "state cell_configuration:
// ... on finish" branch.
func (p *ReestablishmentProc) afterCellConfiguration(env *rrcenv.Env, scErr error) proc.Outcome {
	if !p.t311.IsRunning() {
		return p.aborted(env)
	}
	if env.PHY.IsInSync() && hasSIBs123(env) {
		return p.cellCriteria(env)
	}
	if env.PHY.IsInSync() {
		p.res = proc.Result[rrcenv.ReestOut]{Err: ErrLowerLayerFailure}
		return proc.Errored
	}
	if scErr != nil {
		p.res = proc.Result[rrcenv.ReestOut]{Err: scErr}
		return proc.Errored
	}
	return p.launchReselector(env)
}

// cellCriteria is spec.md §4.14's cell_criteria(). triedThisRound keeps
// this from running twice for the same reselection round: a caller that
// reaches cellCriteria a second time before launchReselector starts a
// fresh round falls straight through to the failure branch instead of
// re-evaluating the RSRP criterion and resending the reestablishment
// request.
func (p *ReestablishmentProc) cellCriteria(env *rrcenv.Env) proc.Outcome {
	if p.triedThisRound {
		if !p.t311.IsRunning() {
			return p.aborted(env)
		}
		return p.launchReselector(env)
	}
	p.triedThisRound = true

	serving := env.Cells.Serving()
	if meetsSelectionCriteria(serving, env.Config.CellSelectionRSRPThreshold) {
		p.t311.Stop()
		p.t301 = env.Clock.GetUniqueTimer()
		p.t301.Set(env.Config.T301MS, func() {})
		// ASN.1 encode of RRCConnectionReestablishmentRequest is out of
		// scope (spec.md §1); the payload carries cause/rnti/source_pci
		// the way connection-request's dedicatedInfoNAS is handed
		// straight to PDCP without an encoder this engine owns.
		env.PDCP.WriteSDU(0, []byte(fmt.Sprintf("reest cause=%s rnti=%d source_pci=%d", p.cause, p.rnti, p.sourcePCI)), false)
		p.res = proc.Result[rrcenv.ReestOut]{Value: rrcenv.ReestOut{Attempted: true}}
		return proc.Success
	}
	if !p.t311.IsRunning() {
		return p.aborted(env)
	}
	return p.launchReselector(env)
}

func (p *ReestablishmentProc) aborted(env *rrcenv.Env) proc.Outcome {
	p.launchGoIdle(env)
	p.res = proc.Result[rrcenv.ReestOut]{Value: rrcenv.ReestOut{Attempted: true, Aborted: true}}
	return proc.Success
}

func (p *ReestablishmentProc) React(env *rrcenv.Env, ev event.Event) proc.Outcome {
	e, ok := ev.(event.TimerExpired)
	if !ok || p.t311 == nil || e.TimerID != p.t311.ID() {
		return proc.Yield
	}
	return p.aborted(env)
}

func (p *ReestablishmentProc) Then(env *rrcenv.Env, result proc.Result[rrcenv.ReestOut]) {
	if p.t311 != nil {
		p.t311.Stop()
	}
}

func (p *ReestablishmentProc) Result() proc.Result[rrcenv.ReestOut] { return p.res }

func hasSIBs123(env *rrcenv.Env) bool {
	return env.Cells.HasSIB(0) && env.Cells.HasSIB(1) && env.Cells.HasSIB(2)
}
