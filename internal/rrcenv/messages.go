package rrcenv

import (
	"github.com/ranstack/rrcue/internal/cell"
	"github.com/ranstack/rrcue/internal/event"
	"github.com/ranstack/rrcue/internal/proc"
)

// CellSearchOut is cell-search's result (spec.md §4.5): either a found
// cell or "no cell" (a successful outcome, not an error). LastFreq
// survives from the triggering cell_srch_res so PLMN-search (spec.md
// §4.9) can decide whether to repeat the search.
type CellSearchOut struct {
	Found    bool
	Cell     cell.ID
	LastFreq event.LastFreq
}

// CellSelectionOutcome is spec.md §4.8's outcome enum.
type CellSelectionOutcome int

const (
	NoCell CellSelectionOutcome = iota
	SameCell
	ChangedCell
)

// CellSelectionOut is cell-selection's result.
type CellSelectionOut struct {
	Outcome CellSelectionOutcome
}

// ConnRequestArgs carries the NAS-provided payload for
// connection-request (spec.md §4.10).
type ConnRequestArgs struct {
	DedicatedInfoNAS []byte
}

// PagingRecord is one record of a decoded Paging message (spec.md §4.11).
type PagingRecord struct {
	STMSI             [2]uint32
	HasSTMSI          bool
	SysInfoModPresent bool
}

// Paging is the decoded Paging message process-PCCH consumes.
type Paging struct {
	Records []PagingRecord
}

// ReestArgs carries the trigger cause for connection-reestablishment
// (spec.md §4.14).
type ReestArgs struct {
	Cause        string
	SourcePCI    uint16
	SourceEARFCN uint32
	RNTI         uint32
}

// ReestOut is connection-reestablishment's result.
type ReestOut struct {
	Attempted bool
	Aborted   bool
}

// MobilityControlInfo is the subset of an RRCConnectionReconfiguration's
// mobilityControlInfo handover needs (spec.md §4.15).
type MobilityControlInfo struct {
	TargetPCI           uint16
	CarrierFreq          uint32 // 0 means "use serving earfcn"
	NewCRNTI             uint32 // newUE-Identity: the C-RNTI to use on the target cell
	T304MS               int
	RACHCfgDedPresent    bool
	Preamble             uint8
	Mask                 uint32
	SCellCfgPresent      bool
	RRCfgDedPresent      bool
	SecurityCfgHOPresent bool
	KeyChangeIndicator   bool
	CipherAlgo           string
	IntegrityAlgo        string
	NCC                  uint8
}

// HandoverArgs is handover's launch argument.
type HandoverArgs struct {
	MobilityControlInfo MobilityControlInfo
}

// Procedures bundles a handle for every named procedure (spec.md §4.5–
// §4.15), so any procedure can launch a sibling as a sub-procedure
// without the procedures package importing itself. Populated once by
// the engine.
type Procedures struct {
	CellSearch     *proc.Handle[*Env, struct{}, CellSearchOut]
	SIAcquire      *proc.Handle[*Env, int, struct{}]
	SCellConfig    *proc.Handle[*Env, []int, struct{}]
	CellSelection  *proc.Handle[*Env, struct{}, CellSelectionOut]
	PLMNSearch     *proc.Handle[*Env, struct{}, []cell.PLMNTAC]
	ConnRequest    *proc.Handle[*Env, ConnRequestArgs, struct{}]
	ProcessPCCH    *proc.Handle[*Env, Paging, struct{}]
	GoIdle         *proc.Handle[*Env, struct{}, struct{}]
	CellReselect   *proc.Handle[*Env, struct{}, struct{}]
	Reestablish    *proc.Handle[*Env, ReestArgs, ReestOut]
	Handover       *proc.Handle[*Env, HandoverArgs, struct{}]
}
