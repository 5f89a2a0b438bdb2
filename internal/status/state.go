// Package status tracks the daemon's connectivity to the remote feed.
package status

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/messageai/tacsync/internal/bus"
)

// State represents the daemon's connectivity state.
type State string

const (
	Booting    State = "BOOTING"
	Offline    State = "OFFLINE"
	Connecting State = "CONNECTING"
	Online     State = "ONLINE"
	Error      State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:    {Connecting, Offline, Error},
	Connecting: {Online, Offline, Error},
	Online:     {Offline, Error},
	Offline:    {Connecting, Error},
	Error:      {Booting},
}

// Machine tracks and enforces connectivity state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	changed chan struct{} // closed and replaced on every transition
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		changed: make(chan struct{}),
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		from := m.current
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	from := m.current
	m.current = to
	close(m.changed)
	m.changed = make(chan struct{})
	m.mu.Unlock()

	m.bus.Publish(bus.Event{
		Kind: bus.KindStatusChanged,
		Payload: StatusChange{
			From: from,
			To:   to,
		},
	})
	return nil
}

// Watch returns a channel closed on the next transition.
func (m *Machine) Watch() <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.changed
}

// WaitFor blocks until the machine is in state want or ctx is done.
func (m *Machine) WaitFor(ctx context.Context, want State) error {
	for {
		m.mu.RLock()
		cur, changed := m.current, m.changed
		m.mu.RUnlock()
		if cur == want {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
