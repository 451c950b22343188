// Package rrcenv defines Env, the borrowed context every procedure
// receives at each call (spec.md §9's "explicit context object passed
// by borrow, never stored" redesign note for the source's parent↔child
// RRC back-pointers). Env bundles the shared ports, state, and sibling
// procedure handles a procedure may need to drive sub-procedures or
// inspect shared state; it is never retained by a procedure past the
// call that received it.
package rrcenv

import (
	"context"

	"github.com/ranstack/rrcue/internal/cell"
	"github.com/ranstack/rrcue/internal/clock"
	"github.com/ranstack/rrcue/internal/config"
	"github.com/ranstack/rrcue/internal/logging"
	"github.com/ranstack/rrcue/internal/phyfacade"
	"github.com/ranstack/rrcue/internal/ports"
	"github.com/ranstack/rrcue/internal/rrcstate"
	"github.com/ranstack/rrcue/internal/taskqueue"
)

// Env is the engine-owned root passed explicitly to every procedure call,
// per spec.md §9's "global mutable state... treat as an owned root
// passed explicitly, not a global" redesign note.
type Env struct {
	Log    logging.Logger
	Config config.Engine

	Clock *clock.Service
	Cells *cell.MeasCellList
	State *rrcstate.Machine

	// T310 is the shared radio-link-failure detection timer (spec.md
	// GLOSSARY, §4.14, §4.15): armed by the engine on a PHY
	// out-of-sync indication and stopped on in-sync, per spec.md §6's
	// upward out_of_sync()/in_sync() interface. Reestablishment and
	// handover only ever stop it, never arm it, since RLF detection
	// itself is driven by the out-of-scope PHY sync boundary.
	T310 *clock.UniqueTimer

	PHY  *phyfacade.Facade
	MAC  ports.MAC
	RLC  ports.RLC
	PDCP ports.PDCP
	GW   ports.GW
	USIM ports.USIM
	NAS  ports.NAS

	Tasks *taskqueue.Queue

	// CurrentTTI returns the stack thread's current TTI (spec.md §6
	// get_current_tti), advanced by run_tti.
	CurrentTTI func() int

	// UEIdentity is this UE's S-TMSI, matched against incoming paging
	// records (spec.md §4.11).
	UEIdentity [2]uint32

	// RequiredSIBs is the ordered list of SIB indices
	// serving-cell-config applies on every (re)camp (spec.md §4.7).
	RequiredSIBs []int

	// Procs holds handles to every named procedure, so a procedure can
	// launch a sibling/child sub-procedure (cell-selection launches
	// cell-search; reestablishment launches cell-selection then
	// serving-cell-config). Populated once by the engine after every
	// handle is constructed.
	Procs *Procedures

	// CallbackList owns fire-and-forget child procedures scheduled by
	// parents (spec.md §4.1): go-idle's post-completion cell-reselector
	// launch, and connection-request's cell-selector launch.
	CallbackList *CallbackList
}

// Stepper is any live procedure handle the callback list can drive
// without knowing its concrete Args/Out types.
type Stepper interface {
	Run(ctx context.Context) bool
	IsRunning() bool
}

// CallbackList owns fire-and-forget child procedures scheduled by
// parents (spec.md §4.1): the engine steps every member once per turn
// and removes completed entries.
type CallbackList struct {
	members []Stepper
}

// Add registers s as a fire-and-forget child.
func (c *CallbackList) Add(s Stepper) { c.members = append(c.members, s) }

// StepAll runs every member once, dropping those no longer running.
func (c *CallbackList) StepAll(ctx context.Context) {
	live := c.members[:0]
	for _, m := range c.members {
		if m.Run(ctx) {
			live = append(live, m)
		}
	}
	c.members = live
}

// Len reports the number of live callback-list members.
func (c *CallbackList) Len() int { return len(c.members) }
