package chat

import (
	"fmt"
	"sync"

	"github.com/samlabs/sam-gateway/internal/store"
	"github.com/samlabs/sam-gateway/internal/types"
)

// validTransitions is the explicit transition table for the
// conversational phase machine. Every turn starts and ends at IDLE.
// IDLE→SPEAKING is reserved for the device-availability warning.
var validTransitions = map[types.Phase][]types.Phase{
	types.PhaseIdle:      {types.PhaseListening, types.PhaseThinking, types.PhaseSpeaking},
	types.PhaseListening: {types.PhaseThinking, types.PhaseIdle},
	types.PhaseThinking:  {types.PhaseSpeaking, types.PhaseIdle},
	types.PhaseSpeaking:  {types.PhaseIdle},
}

// machine serializes phase transitions against the session store so an
// illegal transition can never be observed, regardless of which
// goroutine requests it.
type machine struct {
	mu    sync.Mutex
	store *store.Store
}

func newMachine(s *store.Store) *machine {
	return &machine{store: s}
}

// transition moves the phase to target if the transition table allows
// it from the current phase. Re-entering the current phase is rejected,
// so a second turn can never slip past the guard while one is already
// in flight.
func (m *machine) transition(target types.Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(m.store.Phase(), target)
}

// transitionFrom moves to target only when the phase is exactly from.
// The device-check warning claims SPEAKING this way so it never
// preempts a turn already underway.
func (m *machine) transitionFrom(from, target types.Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current := m.store.Phase(); current != from {
		return fmt.Errorf("invalid phase transition %s -> %s", current, target)
	}
	return m.transitionLocked(from, target)
}

func (m *machine) transitionLocked(current, target types.Phase) error {
	for _, allowed := range validTransitions[current] {
		if allowed == target {
			m.store.SetPhase(target)
			return nil
		}
	}
	return fmt.Errorf("invalid phase transition %s -> %s", current, target)
}

// forceIdle resets the phase unconditionally. Error-recovery and
// teardown paths use this to guarantee every exit lands at IDLE.
func (m *machine) forceIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store.SetPhase(types.PhaseIdle)
}

// phase returns the current phase.
func (m *machine) phase() types.Phase {
	return m.store.Phase()
}
