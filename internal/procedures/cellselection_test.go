package procedures

import (
	"context"
	"testing"

	"github.com/ranstack/rrcue/internal/cell"
	"github.com/ranstack/rrcue/internal/event"
)

func TestCellSelectionReusesCampedCellWithNoNeighbours(t *testing.T) {
	env, tf := newTestEnv(t)
	seedCampedCell(t, env, tf, cell.ID{EARFCN: 6400, PCI: 1})

	fut, err := env.Procs.CellSelection.Launch(context.Background(), env, struct{}{})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	result, ok := fut.Value()
	if !ok || result.Err != nil {
		t.Fatalf("result = %+v ok=%v, want immediate success", result, ok)
	}
	if result.Value.Outcome != 1 { // SameCell
		t.Fatalf("Outcome = %v, want SameCell", result.Value.Outcome)
	}
}

func TestCellSelectionReselectsServingCellMeetingCriteria(t *testing.T) {
	env, tf := newTestEnv(t)
	serving, err := env.Cells.GetOrCreateNeighbour(cell.ID{EARFCN: 6400, PCI: 1})
	if err != nil {
		t.Fatalf("GetOrCreateNeighbour: %v", err)
	}
	env.Cells.PromoteToServing(serving)
	serving.RSRP = -80
	serving.HandleSIB1(&cell.SIB1{})
	serving.HandleSIB(1)
	serving.HandleSIB(2)
	// a neighbour exists so the "no neighbours, already camping" shortcut
	// doesn't fire; serving alone must clear the RSRP gate.
	if _, err := env.Cells.GetOrCreateNeighbour(cell.ID{EARFCN: 6400, PCI: 2}); err != nil {
		t.Fatalf("GetOrCreateNeighbour: %v", err)
	}

	fut, err := env.Procs.CellSelection.Launch(context.Background(), env, struct{}{})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if fut.IsComplete() {
		t.Fatalf("cell-selection completed before PHY cell-select settled")
	}

	tf.phy.FireCellSelect(event.CellSelectResult{Synced: true})
	// serving-cell-config's required SIBs are all already present, so its
	// nested launch settles synchronously; one more Run picks that up.
	env.Procs.CellSelection.Run(context.Background())

	result, ok := fut.Value()
	if !ok || result.Err != nil {
		t.Fatalf("result = %+v ok=%v, want success", result, ok)
	}
	if result.Value.Outcome != 1 { // SameCell: reusedServing was set
		t.Fatalf("Outcome = %v, want SameCell", result.Value.Outcome)
	}
}

func TestCellSelectionFallsBackToCellSearchWithNoSuitableCell(t *testing.T) {
	env, tf := newTestEnv(t)

	fut, err := env.Procs.CellSelection.Launch(context.Background(), env, struct{}{})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if fut.IsComplete() {
		t.Fatalf("cell-selection completed with no candidates and no cell-search result yet")
	}
	if !env.Procs.CellSearch.IsRunning() {
		t.Fatalf("cell-selection did not fall back to cell-search")
	}

	tf.phy.FireCellSearch(event.CellSearchResult{Ret: event.CellNotFound, LastFreq: event.NoMoreFreqs})
	env.Procs.CellSelection.Run(context.Background())

	result, ok := fut.Value()
	if !ok || result.Err != nil {
		t.Fatalf("result = %+v ok=%v, want success", result, ok)
	}
	if result.Value.Outcome != 0 { // NoCell
		t.Fatalf("Outcome = %v, want NoCell", result.Value.Outcome)
	}
}
