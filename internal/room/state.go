// Package room runs one speech session per voice room: a coalescer and a
// bounded queue feeding a single worker that synthesizes and plays one
// utterance at a time.
package room

import "fmt"

// State is the lifecycle state of a room worker.
type State string

const (
	StateIdle         State = "idle"
	StateDraining     State = "draining"
	StateSynthesizing State = "synthesizing"
	StatePlaying      State = "playing"
	StateStuck        State = "stuck"
	StateShuttingDown State = "shutting_down"
)

var validTransitions = map[State][]State{
	StateIdle:         {StateDraining, StateShuttingDown},
	StateDraining:     {StateSynthesizing, StateIdle, StateShuttingDown},
	StateSynthesizing: {StatePlaying, StateDraining, StateShuttingDown},
	StatePlaying:      {StateDraining, StateStuck, StateShuttingDown},
	StateStuck:        {StateDraining, StateShuttingDown},
}

// CanTransition reports whether from -> to is a legal worker transition.
func CanTransition(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s has no outgoing transitions.
func (s State) Terminal() bool { return s == StateShuttingDown }

// InvalidTransitionError reports an illegal state change.
type InvalidTransitionError struct {
	From, To State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid room state transition %s -> %s", e.From, e.To)
}
