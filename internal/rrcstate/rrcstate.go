// Package rrcstate implements the UE RRC state machine and
// SecurityContext (spec.md §3): IDLE/CONNECTING/CONNECTED with
// transitions restricted to the procedures spec.md §4 names.
//
// Grounded on internal/sim/state/state.go's mutex-guarded-field idiom,
// generalized from a map of named entities to a single enum field with
// an explicit transition-validating setter.
package rrcstate

import (
	"errors"
	"sync"
)

// State is the UE's RRC connectivity state.
type State int

const (
	IDLE State = iota
	CONNECTING
	CONNECTED
)

func (s State) String() string {
	switch s {
	case IDLE:
		return "IDLE"
	case CONNECTING:
		return "CONNECTING"
	case CONNECTED:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// ErrInvalidTransition is returned by Machine's transition methods when
// called from a state that does not permit them (spec.md §3).
var ErrInvalidTransition = errors.New("rrcstate: invalid transition")

// SecurityContext is spec.md §3's AS security material. Activated is
// monotonic false→true within one connection; ResetForNewConnection
// clears it back to false for the next CONNECTING episode.
type SecurityContext struct {
	CipherAlgo    string
	IntegrityAlgo string
	KRRCEnc       []byte
	KRRCInt       []byte
	KUPEnc        []byte
	NCC           uint8
	Activated     bool
}

// Activate flips Activated to true. Idempotent.
func (s *SecurityContext) Activate() { s.Activated = true }

// ResetForNewConnection clears all security material, for reuse across
// connection episodes.
func (s *SecurityContext) ResetForNewConnection() { *s = SecurityContext{} }

// Machine owns the current RRC state and security context, guarded by a
// mutex since timer callbacks and procedure steps both read/write it on
// the single stack thread but tests may probe it concurrently.
type Machine struct {
	mu       sync.Mutex
	state    State
	security SecurityContext
}

// New constructs a Machine in IDLE, per spec.md §3's "created at stack
// init" lifecycle.
func New() *Machine { return &Machine{state: IDLE} }

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Security returns a copy of the current security context.
func (m *Machine) Security() SecurityContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.security
}

// SetSecurity replaces the current security context.
func (m *Machine) SetSecurity(sec SecurityContext) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.security = sec
}

// ActivateSecurity flips the current security context's Activated flag.
func (m *Machine) ActivateSecurity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.security.Activate()
}

// ToConnecting transitions IDLE → CONNECTING, as driven only by
// connection-request (spec.md §3, §4.10).
func (m *Machine) ToConnecting() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != IDLE {
		return ErrInvalidTransition
	}
	m.state = CONNECTING
	return nil
}

// ToConnected transitions CONNECTING → CONNECTED, as driven only on
// RRCConnectionSetup (spec.md §3, §4.10).
func (m *Machine) ToConnected() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != CONNECTING {
		return ErrInvalidTransition
	}
	m.state = CONNECTED
	return nil
}

// ToIdle transitions CONNECTED → IDLE via go-idle or
// reestablishment-abort (spec.md §3, §4.12, §4.14). Also permits
// CONNECTING → IDLE, covering connection-request failure paths (spec.md
// §4.10 step 4's T300-expiry/reject error outcomes, which must return
// the UE to IDLE without ever having reached CONNECTED).
func (m *Machine) ToIdle() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != CONNECTED && m.state != CONNECTING {
		return ErrInvalidTransition
	}
	m.state = IDLE
	m.security.ResetForNewConnection()
	return nil
}
