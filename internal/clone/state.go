// Package clone tracks clone cells through their lifecycle.
//
// A clone cell is created Enabled, may be toggled between Enabled and
// Disabled any number of times, and may be deleted only while Disabled.
// Deleted is terminal. Created is held only while the create request is
// in flight.
//
// Preconditions are checked locally before any request reaches the
// conductor, so an illegal transition never costs a round trip.
package clone

import "fmt"

// State is the lifecycle state of a clone cell.
type State string

const (
	StateCreated  State = "created"
	StateEnabled  State = "enabled"
	StateDisabled State = "disabled"
	StateDeleted  State = "deleted"
)

var transitions = map[State][]State{
	StateCreated:  {StateEnabled},
	StateEnabled:  {StateDisabled},
	StateDisabled: {StateEnabled, StateDeleted},
	StateDeleted:  nil,
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether from → to is a legal transition.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ParseState parses a stored state name.
func ParseState(s string) (State, error) {
	st := State(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown clone state %q", s)
	}
	return st, nil
}
