// Package cell implements the Serving-Cell Model (spec.md §3): the
// current serving cell plus a bounded neighbour set, RSRP, SIB presence
// flags, and PLMN/TAC bookkeeping.
//
// Grounded on internal/sim/state/state.go's mutex-guarded-map +
// sentinel-error idiom (ErrPlatformExists/ErrPlatformNotFound generalized
// here to ErrNeighbourExists/ErrNeighbourNotFound).
package cell

import (
	"errors"
	"math"
	"sync"
)

var (
	ErrNoServingCell     = errors.New("cell: no serving cell")
	ErrNeighbourExists    = errors.New("cell: neighbour already present")
	ErrNeighbourNotFound  = errors.New("cell: neighbour not found")
	ErrNeighboursFull     = errors.New("cell: neighbour set at capacity")
)

// ID identifies a cell by (earfcn, pci), spec.md §3.
type ID struct {
	EARFCN uint32
	PCI    uint16
}

// PLMNTAC is one (plmn_id, tac) pair reported by a cell's SIB1, used by
// PLMN-search (spec.md §4.9).
type PLMNTAC struct {
	PLMNID string
	TAC    uint16
}

// SchedInfo is one sched_info_list entry of a decoded SIB1 (spec.md §4.3).
type SchedInfo struct {
	SIPeriodicity int
	SIBMapInfo    []int // raw SIB type numbers, e.g. 3 for SIB3
}

// SIB1 is the subset of a decoded SIB1 the SI Scheduling and
// Serving-Cell-Config components need (spec.md §4.3, §4.7). Full ASN.1
// decoding is out of scope (spec.md §1); callers construct this from the
// out-of-scope decoder's output.
type SIB1 struct {
	SchedInfoList []SchedInfo
	SIWinLen      int
}

// Bitmap tracks SIB1..SIB13 presence as bit 0..12.
type Bitmap uint16

// Has reports whether SIB(i+1) is present, using spec.md §4.3's sib_index
// convention (i==0 is SIB1).
func (b Bitmap) Has(i int) bool {
	if i < 0 || i > 12 {
		return false
	}
	return b&(1<<uint(i)) != 0
}

func (b *Bitmap) Set(i int) {
	if i < 0 || i > 12 {
		return
	}
	*b |= 1 << uint(i)
}

func (b *Bitmap) ResetAll() { *b = 0 }

// Cell is one cell entry in a MeasCellList.
type Cell struct {
	EARFCN   uint32
	PCI      uint16
	RSRP     float64 // NaN if never measured
	PLMNList []PLMNTAC
	TAC      uint16
	SIBs     Bitmap
	SIB1     *SIB1 // cached decoded SIB1, nil until HandleSIB1

	// RadioResourceConfigApplied and EmergencyNotificationSeen record
	// SIB2/SIB13 application (spec.md §4.7's handle_sib2/handle_sib13
	// dispatch). Their payloads (cell-reselection parameters, ETWS/CMAS
	// notification config) are out-of-scope ASN.1 content (spec.md §1);
	// only application is tracked.
	RadioResourceConfigApplied bool
	EmergencyNotificationSeen  bool
}

// ID returns this cell's (earfcn, pci) key.
func (c *Cell) ID() ID { return ID{EARFCN: c.EARFCN, PCI: c.PCI} }

// HasSIB1 reports whether SIB1 has been decoded for this cell.
func (c *Cell) HasSIB1() bool { return c.SIBs.Has(0) }

// HasSIB reports presence of SIB(i+1) for i >= 0 (i==0 is SIB1).
func (c *Cell) HasSIB(i int) bool { return c.SIBs.Has(i) }

// HandleSIB1 records a decoded SIB1 on this cell.
func (c *Cell) HandleSIB1(sib1 *SIB1) {
	c.SIB1 = sib1
	c.SIBs.Set(0)
}

// HandleSIB marks SIB(i+1) present, for i >= 1 (SIB2 and above don't carry
// a cached struct in this model; procedures apply their effects directly).
func (c *Cell) HandleSIB(i int) {
	if i > 0 {
		c.SIBs.Set(i)
	}
}

// ResetSIBs clears every SIB presence flag and the cached SIB1, per
// spec.md §3's reset_sibs invariant.
func (c *Cell) ResetSIBs() {
	c.SIBs.ResetAll()
	c.SIB1 = nil
	c.RadioResourceConfigApplied = false
	c.EmergencyNotificationSeen = false
}

// HandleSIB2 applies a decoded SIB2 (spec.md §4.7 handle_sib2).
func (c *Cell) HandleSIB2() { c.RadioResourceConfigApplied = true }

// HandleSIB13 applies a decoded SIB13 (spec.md §4.7 handle_sib13).
func (c *Cell) HandleSIB13() { c.EmergencyNotificationSeen = true }

func newUnmeasured(id ID) *Cell {
	return &Cell{EARFCN: id.EARFCN, PCI: id.PCI, RSRP: math.NaN()}
}

// MeasCellList is spec.md §3's bounded measurement set: one serving cell
// plus a bounded, (earfcn,pci)-unique neighbour set.
type MeasCellList struct {
	mu            sync.RWMutex
	serving       *Cell
	neighbours    []*Cell
	maxNeighbours int
}

// New constructs an empty MeasCellList. No serving cell exists until the
// first PromoteToServing call — spec.md §8's S1 scenario starts from an
// empty meas_cells.
func New(maxNeighbours int) *MeasCellList {
	return &MeasCellList{maxNeighbours: maxNeighbours}
}

// HasServing reports whether a serving cell has ever been set.
func (m *MeasCellList) HasServing() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.serving != nil
}

// Serving returns the current serving cell, or nil if none has been set
// yet.
func (m *MeasCellList) Serving() *Cell {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.serving
}

// Neighbours returns a snapshot of the current neighbour set in insertion
// order.
func (m *MeasCellList) Neighbours() []*Cell {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Cell, len(m.neighbours))
	copy(out, m.neighbours)
	return out
}

// FindNeighbour looks up a neighbour by id.
func (m *MeasCellList) FindNeighbour(id ID) (*Cell, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.neighbours {
		if c.ID() == id {
			return c, true
		}
	}
	return nil, false
}

// GetOrCreateNeighbour returns the existing neighbour with id, or
// allocates a fresh unmeasured (RSRP=NaN) one and adds it to the
// neighbour set. Returns ErrNeighboursFull if the set is already at
// capacity and id is not already present.
func (m *MeasCellList) GetOrCreateNeighbour(id ID) (*Cell, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.serving != nil && m.serving.ID() == id {
		return m.serving, nil
	}
	for _, c := range m.neighbours {
		if c.ID() == id {
			return c, nil
		}
	}
	if len(m.neighbours) >= m.maxNeighbours {
		return nil, ErrNeighboursFull
	}
	c := newUnmeasured(id)
	m.neighbours = append(m.neighbours, c)
	return c, nil
}

// PromoteToServing makes cell the serving cell. If a different cell was
// previously serving, it is demoted into the neighbour set (space
// permitting) rather than discarded, per spec.md §4.5 step 1. cell itself
// is removed from the neighbour set if it was there.
func (m *MeasCellList) PromoteToServing(cell *Cell) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.serving
	m.serving = cell
	m.removeNeighbourLocked(cell.ID())

	if prev == nil || prev.ID() == cell.ID() {
		return
	}
	for _, c := range m.neighbours {
		if c.ID() == prev.ID() {
			return // already present
		}
	}
	if len(m.neighbours) < m.maxNeighbours {
		m.neighbours = append(m.neighbours, prev)
	}
}

// PromoteNeighbourToServing promotes an existing neighbour by id to
// serving. Returns ErrNeighbourNotFound if id is not a current neighbour.
func (m *MeasCellList) PromoteNeighbourToServing(id ID) (*Cell, error) {
	m.mu.Lock()
	var target *Cell
	for _, c := range m.neighbours {
		if c.ID() == id {
			target = c
			break
		}
	}
	m.mu.Unlock()
	if target == nil {
		return nil, ErrNeighbourNotFound
	}
	m.PromoteToServing(target)
	return target, nil
}

func (m *MeasCellList) removeNeighbourLocked(id ID) {
	for i, c := range m.neighbours {
		if c.ID() == id {
			m.neighbours = append(m.neighbours[:i], m.neighbours[i+1:]...)
			return
		}
	}
}

// ResetSIBs clears the serving cell's SIB presence flags atomically, per
// spec.md §3. No-op if there is no serving cell.
func (m *MeasCellList) ResetSIBs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.serving != nil {
		m.serving.ResetSIBs()
	}
}

// HasSIB1 reports whether the serving cell has a decoded SIB1.
func (m *MeasCellList) HasSIB1() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.serving != nil && m.serving.HasSIB1()
}

// HasSIB reports whether the serving cell has SIB(i+1), false if there is
// no serving cell.
func (m *MeasCellList) HasSIB(i int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.serving != nil && m.serving.HasSIB(i)
}

// Count returns the number of unique cells (serving + neighbours).
func (m *MeasCellList) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.neighbours)
	if m.serving != nil {
		n++
	}
	return n
}
