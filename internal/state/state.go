package state

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Status represents a session lifecycle status.
type Status string

const (
	Created         Status = "created"
	Initializing    Status = "initializing"
	AwaitingPairing Status = "awaiting_pairing"
	Authenticated   Status = "authenticated"
	Connected       Status = "connected"
	Disconnected    Status = "disconnected"
	Reconnecting    Status = "reconnecting"
	Error           Status = "error"
	Removed         Status = "removed"
)

// validTransitions defines allowed status transitions. Removed is reachable
// from every status (explicit deletion) and terminal.
var validTransitions = map[Status][]Status{
	Created:         {Initializing, Error, Removed},
	Initializing:    {AwaitingPairing, Authenticated, Connected, Disconnected, Error, Removed},
	AwaitingPairing: {Authenticated, Connected, Disconnected, Error, Removed},
	Authenticated:   {Connected, Disconnected, Error, Removed},
	Connected:       {Disconnected, Error, Removed},
	Disconnected:    {Reconnecting, Initializing, Error, Removed},
	Reconnecting:    {Initializing, Disconnected, Error, Removed},
	Error:           {Initializing, Removed},
	Removed:         {},
}

// aliases maps legacy status spellings to their canonical form. The store
// boundary runs every status string through Canonical so "connected" has
// exactly one representation everywhere.
var aliases = map[string]Status{
	"qr":           AwaitingPairing,
	"ready":        Connected,
	"open":         Connected,
	"auth_failure": Error,
	"failed":       Error,
}

// Canonical normalizes a raw status string. Unknown values map to Error so a
// corrupted row is visibly broken rather than silently "connected".
func Canonical(raw string) Status {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if s == "" {
		return Created
	}
	if canon, ok := aliases[string(s)]; ok {
		return canon
	}
	if _, ok := validTransitions[s]; ok {
		return s
	}
	return Error
}

// Resting maps live-only statuses down to Disconnected. A session loaded
// from the store without a running client cannot actually be initializing or
// connected, whatever its last persisted status says.
func Resting(s Status) Status {
	switch s {
	case Initializing, AwaitingPairing, Authenticated, Connected, Reconnecting:
		return Disconnected
	}
	return s
}

// Machine tracks and enforces lifecycle transitions for a single session.
type Machine struct {
	mu      sync.RWMutex
	current Status
}

// NewMachine creates a state machine starting in the given status.
func NewMachine(initial Status) *Machine {
	return &Machine{current: initial}
}

// Current returns the current status.
func (m *Machine) Current() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new status. Returns an error if the
// transition is not allowed; the current status is left unchanged.
func (m *Machine) Transition(to Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	m.current = to
	return nil
}

// CanSend reports whether outbound dispatch is allowed in this status.
func (m *Machine) CanSend() bool {
	return m.Current() == Connected
}
