package procedures

import (
	"context"
	"testing"

	"github.com/ranstack/rrcue/internal/cell"
	"github.com/ranstack/rrcue/internal/event"
)

// Note: cell-search threads LastFreq through on found and not-found
// results alike; every test below sends MoreFreqs (the zero value) on
// its found rounds and finishes on a not-found round carrying
// event.NoMoreFreqs. A found cell becomes the serving cell.

func TestPLMNSearchAccumulatesAcrossFoundCells(t *testing.T) {
	env, tf := newTestEnv(t)

	fut, err := env.Procs.PLMNSearch.Launch(context.Background(), env, struct{}{})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if !env.Procs.CellSearch.IsRunning() {
		t.Fatalf("plmn-search did not launch a cell-search")
	}

	tf.phy.FireCellSearch(event.CellSearchResult{Ret: event.CellFound, EARFCN: 6400, PCI: 1})
	first := env.Cells.Serving()
	if first == nil || first.ID() != (cell.ID{EARFCN: 6400, PCI: 1}) {
		t.Fatalf("found cell not made serving")
	}
	first.RSRP = -80
	first.PLMNList = []cell.PLMNTAC{{PLMNID: "00101", TAC: 1}}
	first.HandleSIB1(&cell.SIB1{})
	tf.phy.FireCellSelect(event.CellSelectResult{Synced: true})
	env.Procs.PLMNSearch.Run(context.Background())

	if fut.IsComplete() {
		t.Fatalf("plmn-search completed after only one cell-found round")
	}
	if !env.Procs.CellSearch.IsRunning() {
		t.Fatalf("plmn-search did not launch a second cell-search")
	}

	tf.phy.FireCellSearch(event.CellSearchResult{Ret: event.CellFound, EARFCN: 6450, PCI: 2})
	second := env.Cells.Serving()
	if second == nil || second.ID() != (cell.ID{EARFCN: 6450, PCI: 2}) {
		t.Fatalf("second found cell not made serving")
	}
	second.RSRP = -85
	second.PLMNList = []cell.PLMNTAC{{PLMNID: "00202", TAC: 2}}
	second.HandleSIB1(&cell.SIB1{})
	tf.phy.FireCellSelect(event.CellSelectResult{Synced: true})
	env.Procs.PLMNSearch.Run(context.Background())

	if fut.IsComplete() {
		t.Fatalf("plmn-search completed before PHY reported no more frequencies")
	}

	// third round: PHY has run out of frequencies to search.
	tf.phy.FireCellSearch(event.CellSearchResult{Ret: event.CellNotFound, LastFreq: event.NoMoreFreqs})
	env.Procs.PLMNSearch.Run(context.Background())

	result, ok := fut.Value()
	if !ok || result.Err != nil {
		t.Fatalf("result = %+v ok=%v, want success", result, ok)
	}
	if len(result.Value) != 2 {
		t.Fatalf("found = %v, want 2 entries", result.Value)
	}
	if tf.nas.PLMNCount != 2 {
		t.Fatalf("nas.PLMNCount = %d, want 2", tf.nas.PLMNCount)
	}
}

func TestPLMNSearchStopsAtMaxFoundPLMNs(t *testing.T) {
	env, tf := newTestEnv(t)
	env.Config.MaxFoundPLMNs = 1

	fut, err := env.Procs.PLMNSearch.Launch(context.Background(), env, struct{}{})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}

	tf.phy.FireCellSearch(event.CellSearchResult{Ret: event.CellFound, EARFCN: 6400, PCI: 1})
	first := env.Cells.Serving()
	if first == nil || first.ID() != (cell.ID{EARFCN: 6400, PCI: 1}) {
		t.Fatalf("found cell not made serving")
	}
	first.RSRP = -80
	first.PLMNList = []cell.PLMNTAC{{PLMNID: "00101", TAC: 1}, {PLMNID: "00202", TAC: 2}}
	first.HandleSIB1(&cell.SIB1{})
	tf.phy.FireCellSelect(event.CellSelectResult{Synced: true})
	env.Procs.PLMNSearch.Run(context.Background())

	tf.phy.FireCellSearch(event.CellSearchResult{Ret: event.CellNotFound, LastFreq: event.NoMoreFreqs})
	env.Procs.PLMNSearch.Run(context.Background())

	result, ok := fut.Value()
	if !ok || result.Err != nil {
		t.Fatalf("result = %+v ok=%v, want success", result, ok)
	}
	if len(result.Value) != 1 {
		t.Fatalf("found = %v, want capped at MaxFoundPLMNs=1", result.Value)
	}
}

func TestPLMNSearchCompletesWithNoCellsFound(t *testing.T) {
	env, tf := newTestEnv(t)

	fut, err := env.Procs.PLMNSearch.Launch(context.Background(), env, struct{}{})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}

	tf.phy.FireCellSearch(event.CellSearchResult{Ret: event.CellNotFound, LastFreq: event.NoMoreFreqs})
	env.Procs.PLMNSearch.Run(context.Background())

	result, ok := fut.Value()
	if !ok || result.Err != nil {
		t.Fatalf("result = %+v ok=%v, want success with no PLMNs", result, ok)
	}
	if len(result.Value) != 0 {
		t.Fatalf("found = %v, want empty", result.Value)
	}
	if tf.nas.PLMNCount != 0 {
		t.Fatalf("nas.PLMNCount = %d, want 0", tf.nas.PLMNCount)
	}
}
