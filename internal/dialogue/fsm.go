// Package dialogue drives the slot-filling booking conversation.
package dialogue

import "salonbot/internal/model"

// FSM holds the allowed session state transitions.
type FSM struct {
	transitions map[model.State][]model.State
}

// NewFSM creates the booking dialogue state machine.
//
//	IDLE -> COLLECTING -> READY -> COMMITTING -> IDLE
//
// A commit failure goes back to COLLECTING, and every state may drop to IDLE on reset.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[model.State][]model.State{
			model.StateIdle:       {model.StateCollecting},
			model.StateCollecting: {model.StateCollecting, model.StateReady, model.StateIdle},
			model.StateReady:      {model.StateCommitting, model.StateCollecting, model.StateIdle},
			model.StateCommitting: {model.StateIdle, model.StateCollecting},
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to model.State) bool {
	for _, s := range f.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition updates the session state if the transition is allowed.
func (f *FSM) Transition(s *model.Session, to model.State) bool {
	if !f.CanTransition(s.State, to) {
		return false
	}
	s.State = to
	return true
}
