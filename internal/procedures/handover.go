package procedures

import (
	"context"
	"errors"

	"github.com/ranstack/rrcue/internal/cell"
	"github.com/ranstack/rrcue/internal/clock"
	"github.com/ranstack/rrcue/internal/event"
	"github.com/ranstack/rrcue/internal/logging"
	"github.com/ranstack/rrcue/internal/ports"
	"github.com/ranstack/rrcue/internal/proc"
	"github.com/ranstack/rrcue/internal/rrcenv"
)

// ErrInvalidHandoverTarget is returned when the commanded target cell is
// not a usable handover target (spec.md §4.15 validation).
var ErrInvalidHandoverTarget = errors.New("procedures: invalid handover target")

// ErrKeyChangeNotSupported is returned when a handover's security config
// requests a key-change indication (spec.md §4.15 fatal case).
var ErrKeyChangeNotSupported = errors.New("procedures: handover key_change_ind not supported")

type hoState int

const (
	hoLaunchPhyCellSelect hoState = iota
	hoWaitPhyCellSelect
	hoWaitRACompletion
)

// HandoverProc implements spec.md §4.15.
type HandoverProc struct {
	state hoState
	mci   rrcenv.MobilityControlInfo

	srcCell cell.ID
	srcRNTI uint32
	target  cell.ID

	t304     *clock.UniqueTimer
	pendingUL []byte

	res proc.Result[struct{}]
}

// NewHandoverProc constructs a fresh handover instance.
func NewHandoverProc() proc.Procedure[*rrcenv.Env, rrcenv.HandoverArgs, struct{}] {
	return &HandoverProc{}
}

func (p *HandoverProc) Init(env *rrcenv.Env, args rrcenv.HandoverArgs) proc.Outcome {
	p.mci = args.MobilityControlInfo

	serving := env.Cells.Serving()
	if serving == nil {
		return p.reconfigFailed(env, "no serving cell")
	}
	targetEARFCN := p.mci.CarrierFreq
	if targetEARFCN == 0 {
		targetEARFCN = serving.EARFCN
	}
	p.target = cell.ID{EARFCN: targetEARFCN, PCI: p.mci.TargetPCI}

	if p.mci.TargetPCI == serving.PCI {
		return p.reconfigFailed(env, "target pci equals serving pci")
	}
	if _, ok := env.Cells.FindNeighbour(p.target); !ok {
		return p.reconfigFailed(env, "target cell not in neighbour list")
	}

	p.srcCell = serving.ID()
	p.srcRNTI = env.MAC.GetRNTIs().CRNTI

	if env.T310 != nil {
		env.T310.Stop()
	}
	t304ms := p.mci.T304MS
	if t304ms <= 0 {
		t304ms = env.Config.T304MS
	}
	p.t304 = env.Clock.GetUniqueTimer()
	p.t304.Set(t304ms, func() {
		env.Procs.Handover.TriggerIfCurrent(context.Background(), env.Procs.Handover.Generation(),
			event.TimerExpired{TimerID: p.t304.ID()})
	})

	return p.launchPhyCellSelect(env)
}

func (p *HandoverProc) reconfigFailed(env *rrcenv.Env, reason string) proc.Outcome {
	// con_reconfig_failed has no downward port of its own (spec.md §1
	// scopes the RRC-message/NAS signalling boundary out); logging at
	// Error is the observable side effect this engine owns.
	env.Log.Error(context.Background(), "RRCConnectionReconfiguration failed", logging.String("reason", reason))
	p.res = proc.Result[struct{}]{Err: ErrInvalidHandoverTarget}
	return proc.Errored
}

func (p *HandoverProc) launchPhyCellSelect(env *rrcenv.Env) proc.Outcome {
	env.PDCP.Reestablish()
	env.RLC.Reestablish()
	env.MAC.WaitUplink()
	env.MAC.ClearRNTIs()
	env.MAC.Reset()
	env.PHY.Reset()
	env.MAC.SetHORNTI(p.mci.NewCRNTI, p.mci.TargetPCI)
	// rr_cfg_common / dedicated rr config application is the same
	// out-of-scope decoded-message-effect boundary as applySIB; only
	// presence (RRCfgDedPresent) influences control flow here.

	if !env.PHY.StartCellSelect(context.Background(), p.target, env.Procs.Handover) {
		p.res = proc.Result[struct{}]{Err: ErrLowerLayerFailure}
		return proc.Errored
	}
	p.state = hoWaitPhyCellSelect
	return proc.Yield
}

func (p *HandoverProc) Step(env *rrcenv.Env) proc.Outcome { return proc.Yield }

func (p *HandoverProc) React(env *rrcenv.Env, ev event.Event) proc.Outcome {
	switch p.state {
	case hoWaitPhyCellSelect:
		res, ok := ev.(event.CellSelectResult)
		if !ok {
			return proc.Yield
		}
		return p.onCellSelectResult(env, res)
	case hoWaitRACompletion:
		switch e := ev.(type) {
		case event.TimerExpired:
			if p.t304 != nil && e.TimerID == p.t304.ID() {
				p.res = proc.Result[struct{}]{Err: ErrLowerLayerFailure}
				return proc.Errored
			}
		case event.RACompleted:
			return p.onRACompleted(env, e.OK)
		}
	}
	return proc.Yield
}

func (p *HandoverProc) onCellSelectResult(env *rrcenv.Env, res event.CellSelectResult) proc.Outcome {
	neighbour, ok := env.Cells.FindNeighbour(p.target)
	if !ok {
		p.res = proc.Result[struct{}]{Err: ErrInvalidHandoverTarget}
		return proc.Errored
	}
	if !res.Synced {
		neighbour.RSRP = negInfRSRP
		p.res = proc.Result[struct{}]{Err: ErrLowerLayerFailure}
		return proc.Errored
	}

	env.Cells.PromoteToServing(neighbour)
	// SCell configuration application (p.mci.SCellCfgPresent) is the
	// same out-of-scope decoded-message-effect boundary as applySIB.

	if p.mci.RACHCfgDedPresent {
		env.MAC.StartNonContHO(p.mci.Preamble, p.mci.Mask)
	} else {
		env.MAC.StartContHO()
	}

	if p.mci.SecurityCfgHOPresent {
		if p.mci.KeyChangeIndicator {
			p.res = proc.Result[struct{}]{Err: ErrKeyChangeNotSupported}
			return proc.Errored
		}
		if err := p.rederiveSecurity(env); err != nil {
			p.res = proc.Result[struct{}]{Err: err}
			return proc.Errored
		}
	}

	// RRCReconfigurationComplete is built now but held until Msg3 of the
	// RA procedure that follows, per original_source's hold-for-Msg3
	// ordering (SPEC_FULL.md).
	p.pendingUL = []byte("RRCReconfigurationComplete")
	p.state = hoWaitRACompletion
	return proc.Yield
}

func (p *HandoverProc) rederiveSecurity(env *rrcenv.Env) error {
	sec := env.State.Security()
	if p.mci.CipherAlgo != "" {
		sec.CipherAlgo = p.mci.CipherAlgo
	}
	if p.mci.IntegrityAlgo != "" {
		sec.IntegrityAlgo = p.mci.IntegrityAlgo
	}

	serving := env.Cells.Serving()
	derived, err := env.USIM.GenerateASKeysHO(p.mci.TargetPCI, serving.EARFCN, p.mci.NCC)
	if err != nil {
		return err
	}
	sec.KRRCEnc, sec.KRRCInt, sec.KUPEnc = derived.KRRCEnc, derived.KRRCInt, derived.KUPEnc
	sec.NCC = p.mci.NCC
	sec.Activate()
	env.State.SetSecurity(sec)

	env.PDCP.ConfigSecurityAll(ports.SecurityConfig{
		CipherAlgo:    sec.CipherAlgo,
		IntegrityAlgo: sec.IntegrityAlgo,
		KRRCEnc:       sec.KRRCEnc,
		KRRCInt:       sec.KRRCInt,
		KUPEnc:        sec.KUPEnc,
		NCC:           sec.NCC,
	})
	return nil
}

func (p *HandoverProc) onRACompleted(env *rrcenv.Env, ok bool) proc.Outcome {
	if !ok {
		p.res = proc.Result[struct{}]{Err: ErrLowerLayerFailure}
		return proc.Errored
	}
	// measConfig referencing the source earfcn is parsed by the
	// out-of-scope ASN.1 decoder; this engine only needs the fact that
	// handover completed against p.srcCell for logging/metrics.
	env.PDCP.WriteSDU(1, p.pendingUL, false)
	env.Log.Debug(context.Background(), "handover complete",
		logging.Any("source_cell", p.srcCell), logging.Any("target_cell", p.target))
	p.res = proc.Result[struct{}]{}
	return proc.Success
}

func (p *HandoverProc) Then(env *rrcenv.Env, result proc.Result[struct{}]) {
	if p.t304 == nil {
		return
	}
	if result.Err == nil {
		p.t304.Stop()
		return
	}
	// On failure, T304 is left running if it hasn't already fired: its
	// eventual expiry is the external signal that drives reestablishment
	// (spec.md §4.15 then, §7 taxonomy).
}

func (p *HandoverProc) Result() proc.Result[struct{}] { return p.res }
