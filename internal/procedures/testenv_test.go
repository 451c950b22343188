package procedures

import (
	"testing"

	"github.com/ranstack/rrcue/internal/cell"
	"github.com/ranstack/rrcue/internal/clock"
	"github.com/ranstack/rrcue/internal/config"
	"github.com/ranstack/rrcue/internal/logging"
	"github.com/ranstack/rrcue/internal/phyfacade"
	"github.com/ranstack/rrcue/internal/ports"
	"github.com/ranstack/rrcue/internal/proc"
	"github.com/ranstack/rrcue/internal/rrcenv"
	"github.com/ranstack/rrcue/internal/rrcstate"
)

// testFakes bundles every downward-port fake newTestEnv wires in.
type testFakes struct {
	phy  *ports.FakePHY
	mac  *ports.FakeMAC
	rlc  *ports.FakeRLC
	pdcp *ports.FakePDCP
	gw   *ports.FakeGW
	usim *ports.FakeUSIM
	nas  *ports.FakeNAS
}

// newTestEnv wires a bare rrcenv.Env the same way engine.New wires the
// stack's, minus the task queue and metrics/tracing: PHY completions are
// delivered synchronously (phyfacade.New's post=nil mode), so a test can
// drive a single procedure's Init/Step/React/Then without a stack-thread
// goroutine or a drain loop.
func newTestEnv(t *testing.T) (*rrcenv.Env, testFakes) {
	t.Helper()
	tf := testFakes{
		phy:  ports.NewFakePHY(),
		mac:  ports.NewFakeMAC(),
		rlc:  ports.NewFakeRLC(),
		pdcp: ports.NewFakePDCP(),
		gw:   ports.NewFakeGW(),
		usim: ports.NewFakeUSIM(),
		nas:  ports.NewFakeNAS(),
	}
	cfg := config.Default()
	clk := clock.New()
	facade := phyfacade.New(tf.phy, nil, logging.Noop(), nil)

	procs := &rrcenv.Procedures{
		CellSearch:    proc.New("cell_search", NewCellSearchProc, proc.Deps{}),
		SIAcquire:     proc.New("si_acquire", NewSIAcquireProc, proc.Deps{}),
		SCellConfig:   proc.New("serving_cell_config", NewServingCellConfigProc, proc.Deps{}),
		CellSelection: proc.New("cell_selection", NewCellSelectionProc, proc.Deps{}),
		PLMNSearch:    proc.New("plmn_search", NewPLMNSearchProc, proc.Deps{}),
		ConnRequest:   proc.New("connection_request", NewConnectionRequestProc, proc.Deps{}),
		ProcessPCCH:   proc.New("process_pcch", NewProcessPCCHProc, proc.Deps{}),
		GoIdle:        proc.New("go_idle", NewGoIdleProc, proc.Deps{}),
		CellReselect:  proc.New("cell_reselection", NewCellReselectionProc, proc.Deps{}),
		Reestablish:   proc.New("reestablishment", NewReestablishmentProc, proc.Deps{}),
		Handover:      proc.New("handover", NewHandoverProc, proc.Deps{}),
	}

	env := &rrcenv.Env{
		Log:          logging.Noop(),
		Config:       cfg,
		Clock:        clk,
		Cells:        cell.New(cfg.MaxNeighbours),
		State:        rrcstate.New(),
		T310:         clk.GetUniqueTimer(),
		PHY:          facade,
		MAC:          tf.mac,
		RLC:          tf.rlc,
		PDCP:         tf.pdcp,
		GW:           tf.gw,
		USIM:         tf.usim,
		NAS:          tf.nas,
		CurrentTTI:   func() int { return 0 },
		UEIdentity:   [2]uint32{1, 2},
		RequiredSIBs: []int{0, 1, 2},
		Procs:        procs,
		CallbackList: &rrcenv.CallbackList{},
	}
	return env, tf
}

// seedCampedCell registers a serving cell already carrying SIB1/SIB2/SIB3
// and marks PHY as in-sync and camping on it.
func seedCampedCell(t *testing.T, env *rrcenv.Env, tf testFakes, id cell.ID) *cell.Cell {
	t.Helper()
	tf.phy.InSync = true
	tf.phy.Camping = true
	c, err := env.Cells.GetOrCreateNeighbour(id)
	if err != nil {
		t.Fatalf("GetOrCreateNeighbour: %v", err)
	}
	env.Cells.PromoteToServing(c)
	c.RSRP = -80
	c.HandleSIB1(&cell.SIB1{})
	c.HandleSIB(1)
	c.HandleSIB(2)
	return c
}
