package procedures

import (
	"context"
	"errors"

	"github.com/ranstack/rrcue/internal/clock"
	"github.com/ranstack/rrcue/internal/event"
	"github.com/ranstack/rrcue/internal/proc"
	"github.com/ranstack/rrcue/internal/rrcenv"
	"github.com/ranstack/rrcue/internal/rrcstate"
)

// ErrNotIdle is returned when connection-request is launched outside
// UE state IDLE (spec.md §4.10 precondition). PLMN-selection and T302
// barring are NAS-owned preconditions outside this engine's state
// (spec.md §1); only the RRC state precondition is enforced here.
var ErrNotIdle = errors.New("procedures: connection-request requires state idle")

// ErrConnectionRejected is returned when an RRCConnectionReject arrives
// while waiting on T300 (spec.md §4.10 step 4, branch (c)). Distinct from
// ErrLowerLayerFailure: MAC is reset but RLC is not reestablished, since
// the network — not the radio link — declined the request.
var ErrConnectionRejected = errors.New("procedures: connection request rejected")

type connRequestState int

const (
	crCellSelection connRequestState = iota
	crConfigServingCell
	crWaitT300
)

// ConnectionRequestProc implements spec.md §4.10.
type ConnectionRequestProc struct {
	state connRequestState
	args  rrcenv.ConnRequestArgs
	res   proc.Result[struct{}]

	selFuture *proc.Future[rrcenv.CellSelectionOut]
	scFuture  *proc.Future[struct{}]
	t300      *clock.UniqueTimer
}

// NewConnectionRequestProc constructs a fresh connection-request
// instance.
func NewConnectionRequestProc() proc.Procedure[*rrcenv.Env, rrcenv.ConnRequestArgs, struct{}] {
	return &ConnectionRequestProc{}
}

func (p *ConnectionRequestProc) Init(env *rrcenv.Env, args rrcenv.ConnRequestArgs) proc.Outcome {
	if env.State.Current() != rrcstate.IDLE {
		p.res = proc.Result[struct{}]{Err: ErrNotIdle}
		return proc.Errored
	}
	p.args = args
	if err := env.State.ToConnecting(); err != nil {
		p.res = proc.Result[struct{}]{Err: err}
		return proc.Errored
	}
	return p.launchCellSelection(env)
}

func (p *ConnectionRequestProc) launchCellSelection(env *rrcenv.Env) proc.Outcome {
	if env.Procs.CellSelection.IsIdle() {
		fut, err := env.Procs.CellSelection.Launch(context.Background(), env, struct{}{})
		if err != nil {
			p.res = proc.Result[struct{}]{Err: err}
			return proc.Errored
		}
		p.selFuture = fut
		env.CallbackList.Add(env.Procs.CellSelection)
	}
	p.state = crCellSelection
	return proc.Yield
}

func (p *ConnectionRequestProc) Step(env *rrcenv.Env) proc.Outcome {
	switch p.state {
	case crCellSelection:
		if p.selFuture == nil {
			return proc.Yield
		}
		result, ok := p.selFuture.Value()
		if !ok {
			return proc.Yield
		}
		if result.Err != nil || !env.PHY.CellIsCamping() {
			p.res = proc.Result[struct{}]{Err: ErrLowerLayerFailure}
			return proc.Errored
		}
		env.Log.Debug(context.Background(), "applying PHY/MAC defaults after cell selection")
		fut, err := env.Procs.SCellConfig.Launch(context.Background(), env, env.RequiredSIBs)
		if err != nil {
			p.res = proc.Result[struct{}]{Err: err}
			return proc.Errored
		}
		p.scFuture = fut
		p.state = crConfigServingCell
		return proc.Yield
	case crConfigServingCell:
		env.Procs.SCellConfig.Run(context.Background())
		result, ok := p.scFuture.Value()
		if !ok {
			return proc.Yield
		}
		if result.Err != nil {
			p.res = proc.Result[struct{}]{Err: result.Err}
			return proc.Errored
		}
		return p.sendConnectionRequest(env)
	default:
		return proc.Yield
	}
}

func (p *ConnectionRequestProc) sendConnectionRequest(env *rrcenv.Env) proc.Outcome {
	p.t300 = env.Clock.GetUniqueTimer()
	p.t300.Set(env.Config.T300MS, func() {
		env.Procs.ConnRequest.TriggerIfCurrent(context.Background(), env.Procs.ConnRequest.Generation(),
			event.TimerExpired{TimerID: p.t300.ID()})
	})
	env.PDCP.WriteSDU(0, p.args.DedicatedInfoNAS, false)
	p.state = crWaitT300
	return proc.Yield
}

func (p *ConnectionRequestProc) React(env *rrcenv.Env, ev event.Event) proc.Outcome {
	switch e := ev.(type) {
	case event.TimerExpired:
		if p.state != crWaitT300 || p.t300 == nil || e.TimerID != p.t300.ID() {
			return proc.Yield
		}
		env.MAC.Reset()
		env.RLC.Reestablish()
		p.res = proc.Result[struct{}]{Err: ErrLowerLayerFailure}
		return proc.Errored
	case event.RRCConnectionSetupReceived:
		if p.state != crWaitT300 {
			return proc.Yield
		}
		p.t300.Stop()
		if err := env.State.ToConnected(); err != nil {
			p.res = proc.Result[struct{}]{Err: err}
			return proc.Errored
		}
		p.res = proc.Result[struct{}]{}
		return proc.Success
	case event.RRCConnectionReject:
		if p.state != crWaitT300 {
			return proc.Yield
		}
		p.t300.Stop()
		env.MAC.Reset()
		p.res = proc.Result[struct{}]{Err: ErrConnectionRejected}
		return proc.Errored
	}
	return proc.Yield
}

func (p *ConnectionRequestProc) Then(env *rrcenv.Env, result proc.Result[struct{}]) {
	p.args = rrcenv.ConnRequestArgs{}
	env.NAS.ConnectionRequestCompleted(result.Err == nil)
	if result.Err != nil && env.State.Current() != rrcstate.IDLE {
		env.State.ToIdle()
	}
}

func (p *ConnectionRequestProc) Result() proc.Result[struct{}] { return p.res }
