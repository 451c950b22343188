// Package event defines the typed events the Event Router (spec.md §4.1,
// §9) dispatches to in-flight procedures: PHY completions, timer
// expiries, and received messages. Procedures that do not recognize an
// event kind ignore it, following spec.md §9's "typed event enum and a
// per-procedure switch" redesign note in place of type-dispatched react
// overloads.
package event

import "github.com/ranstack/rrcue/internal/clock"

// Kind identifies the shape of an Event's payload.
type Kind string

const (
	KindCellSearchResult Kind = "cell_srch_res"
	KindCellSelectResult Kind = "cell_select_res"
	KindSIBReceived      Kind = "sib_received"
	KindTimerExpired     Kind = "timer_expired"
	KindPagingComplete   Kind = "paging_complete"
	KindRACompleted      Kind = "ra_completed"
	KindConnectionSetup  Kind = "rrc_connection_setup"
	KindConnectionReject Kind = "rrc_connection_reject"
	KindBackgroundResult Kind = "background_task_result"
)

// Event is any typed payload the router can dispatch.
type Event interface {
	Kind() Kind
}

// LastFreq reports whether PHY has more candidate frequencies to search
// (spec.md §4.9).
type LastFreq int

const (
	MoreFreqs LastFreq = iota
	NoMoreFreqs
)

// CellSearchRet mirrors the three-way cs_ret used by spec.md §4.4/§4.5/§4.9.
type CellSearchRet int

const (
	CellFound CellSearchRet = iota
	CellNotFound
	CellSearchError
)

// CellSearchResult is PHY's cell_srch_res completion (spec.md §4.4).
type CellSearchResult struct {
	Ret      CellSearchRet
	EARFCN   uint32
	PCI      uint16
	LastFreq LastFreq
}

func (CellSearchResult) Kind() Kind { return KindCellSearchResult }

// CellSelectResult is PHY's boolean cs_ret completion (spec.md §4.4).
type CellSelectResult struct {
	Synced bool
}

func (CellSelectResult) Kind() Kind { return KindCellSelectResult }

// SIBReceived indicates MAC/RLC delivered a new SIB to the serving cell
// (spec.md §4.6).
type SIBReceived struct {
	SIBIndex int
}

func (SIBReceived) Kind() Kind { return KindSIBReceived }

// TimerExpired identifies which armed timer fired (spec.md §4.6, §4.10,
// §4.12, §4.14, §4.15).
type TimerExpired struct {
	TimerID clock.ID
}

func (TimerExpired) Kind() Kind { return KindTimerExpired }

// PagingComplete is NAS's response to nas.paging() (spec.md §4.11).
type PagingComplete struct {
	OK bool
}

func (PagingComplete) Kind() Kind { return KindPagingComplete }

// RACompleted is MAC's random-access outcome during handover (spec.md §4.15).
type RACompleted struct {
	OK bool
}

func (RACompleted) Kind() Kind { return KindRACompleted }

// RRCConnectionSetupReceived signals that a decoded RRCConnectionSetup
// arrived for the connection-request instance awaiting one (spec.md
// §4.10 step 4: "T300 stopped by RRCConnectionSetup"). Decoding the
// message itself is the out-of-scope ASN.1 boundary (spec.md §1); this
// event carries only the fact of arrival.
type RRCConnectionSetupReceived struct{}

func (RRCConnectionSetupReceived) Kind() Kind { return KindConnectionSetup }

// RRCConnectionReject signals that a decoded RRCConnectionReject arrived
// for the connection-request instance awaiting RRCConnectionSetup (spec.md
// §4.10 step 4, branch (c): "T300 stopped with state not CONNECTED").
// Decoding the message itself is the out-of-scope ASN.1 boundary (spec.md
// §1); this event carries only the fact of arrival.
type RRCConnectionReject struct{}

func (RRCConnectionReject) Kind() Kind { return KindConnectionReject }

// BackgroundResult carries a background_tasks pool completion back onto
// the stack thread (spec.md §5).
type BackgroundResult struct {
	TaskID string
	Err    error
}

func (BackgroundResult) Kind() Kind { return KindBackgroundResult }
