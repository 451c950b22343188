package cell

import (
	"math"
	"testing"
)

func TestNewMeasCellListHasNoServing(t *testing.T) {
	m := New(4)
	if m.HasServing() {
		t.Fatalf("HasServing() = true on empty list")
	}
}

func TestGetOrCreateNeighbourStartsUnmeasured(t *testing.T) {
	m := New(4)
	id := ID{EARFCN: 6400, PCI: 2}
	c, err := m.GetOrCreateNeighbour(id)
	if err != nil {
		t.Fatalf("GetOrCreateNeighbour: %v", err)
	}
	if !math.IsNaN(c.RSRP) {
		t.Fatalf("RSRP = %v, want NaN", c.RSRP)
	}
	c2, err := m.GetOrCreateNeighbour(id)
	if err != nil || c2 != c {
		t.Fatalf("GetOrCreateNeighbour not idempotent: %v %v", c2, err)
	}
}

func TestNeighboursUniqueAndBounded(t *testing.T) {
	m := New(2)
	for i := 0; i < 2; i++ {
		if _, err := m.GetOrCreateNeighbour(ID{EARFCN: 6400, PCI: uint16(i)}); err != nil {
			t.Fatalf("GetOrCreateNeighbour %d: %v", i, err)
		}
	}
	if _, err := m.GetOrCreateNeighbour(ID{EARFCN: 6400, PCI: 99}); err != ErrNeighboursFull {
		t.Fatalf("GetOrCreateNeighbour over capacity: err = %v, want ErrNeighboursFull", err)
	}
}

func TestPromoteToServingDemotesPriorServingAsNeighbour(t *testing.T) {
	m := New(4)
	first := &Cell{EARFCN: 6400, PCI: 1, RSRP: -80}
	m.PromoteToServing(first)

	second := &Cell{EARFCN: 6400, PCI: 2, RSRP: -90}
	m.PromoteToServing(second)

	if m.Serving().ID() != second.ID() {
		t.Fatalf("Serving() = %+v, want second", m.Serving())
	}
	if _, ok := m.FindNeighbour(first.ID()); !ok {
		t.Fatalf("prior serving cell was discarded instead of demoted")
	}
}

func TestResetSIBsClearsServingOnly(t *testing.T) {
	m := New(4)
	serving := &Cell{EARFCN: 6400, PCI: 1}
	serving.HandleSIB1(&SIB1{})
	serving.HandleSIB(1)
	m.PromoteToServing(serving)

	m.ResetSIBs()
	if m.HasSIB1() {
		t.Fatalf("HasSIB1() = true after ResetSIBs")
	}
	if m.HasSIB(1) {
		t.Fatalf("HasSIB(1) = true after ResetSIBs")
	}
}

func TestHandleSIB1ThenHasSIB1TrueOthersFalse(t *testing.T) {
	c := &Cell{EARFCN: 6400, PCI: 1}
	c.HandleSIB1(&SIB1{SIWinLen: 10})
	if !c.HasSIB1() {
		t.Fatalf("HasSIB1() = false after HandleSIB1")
	}
	for i := 1; i <= 12; i++ {
		if c.HasSIB(i) {
			t.Fatalf("HasSIB(%d) = true unexpectedly", i)
		}
	}
}

func TestPromoteNeighbourToServingNotFound(t *testing.T) {
	m := New(4)
	if _, err := m.PromoteNeighbourToServing(ID{EARFCN: 1, PCI: 1}); err != ErrNeighbourNotFound {
		t.Fatalf("err = %v, want ErrNeighbourNotFound", err)
	}
}
