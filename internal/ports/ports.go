// Package ports declares the downward interfaces the engine consumes
// (spec.md §6): PHY, MAC, RLC, PDCP, GW, USIM, NAS. Each is a named
// collaborator with no implementation here beyond the in-memory fakes
// used by tests (fakes.go) — ASN.1 decode, crypto, and the raw radio
// drivers behind these ports are out of scope (spec.md §1).
//
// Grounded on internal/sbi/types.go's interface-plus-in-memory-impl
// idiom.
package ports

import (
	"github.com/ranstack/rrcue/internal/cell"
	"github.com/ranstack/rrcue/internal/event"
)

// PHY is the physical-layer port. StartCellSearch and StartCellSelect are
// non-blocking: onResult is invoked exactly once, from whatever thread
// PHY completes on, carrying the completion event (spec.md §4.4).
type PHY interface {
	StartCellSearch(onResult func(event.CellSearchResult)) bool
	StartCellSelect(target cell.ID, onResult func(event.CellSelectResult)) bool
	IsInSync() bool
	CellIsCamping() bool
	Reset()
}

// RNTIs reports the identifiers MAC currently holds (spec.md §6
// get_rntis).
type RNTIs struct {
	CRNTI uint32
}

// MAC is the medium-access-control port.
type MAC interface {
	BCCHStartRx(tti, length int)
	PCCHStartRx()
	Reset()
	ClearRNTIs()
	SetHORNTI(rnti uint32, pci uint16)
	StartContHO()
	StartNonContHO(preamble uint8, mask uint32)
	WaitUplink()
	GetRNTIs() RNTIs
}

// RLCMetrics is the subset of RLC metrics the engine inspects.
type RLCMetrics struct {
	AllSRBsFlushed bool
}

// RLC is the radio-link-control port.
type RLC interface {
	Reestablish()
	SuspendBearer(lcid int)
	HasBearer(lcid int) bool
	Stop()
	GetMetrics() RLCMetrics
}

// SecurityConfig is the AS security material applied to PDCP (spec.md §3
// SecurityContext, §4.15).
type SecurityConfig struct {
	CipherAlgo    string
	IntegrityAlgo string
	KRRCEnc       []byte
	KRRCInt       []byte
	KUPEnc        []byte
	NCC           uint8
}

// PDCP is the packet-data-convergence-protocol port.
type PDCP interface {
	Reestablish()
	ConfigSecurityAll(sec SecurityConfig)
	WriteSDU(lcid int, buf []byte, blocking bool) error
}

// GW is the IP gateway port.
type GW interface {
	SetupIfAddr(lcid int, pdnType string, ipv4, ipv6 string) error
}

// USIM is the subscriber-identity-module port. Key derivation is out of
// scope for this engine's own logic (spec.md §1); it only calls through.
type USIM interface {
	GenerateASKeysHO(targetPCI uint16, earfcn uint32, ncc uint8) (SecurityConfig, error)
}

// BarringKind identifies which access-barring class NAS should apply.
type BarringKind int

const (
	BarringNone BarringKind = iota
	BarringMO
	BarringMT
)

// NAS is the non-access-stratum upper layer port.
type NAS interface {
	PLMNSearchCompleted(found []cell.PLMNTAC, n int)
	ConnectionRequestCompleted(ok bool)
	// Paging launches NAS paging for sTMSI, reporting only whether the
	// request was accepted. The actual paging outcome arrives later,
	// asynchronously, as an event.PagingComplete.
	Paging(sTMSI [2]uint32) bool
	SetBarring(kind BarringKind)
	IsAttached() bool
}
