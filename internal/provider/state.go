package provider

import "fmt"

// State is the lifecycle position of a provider session.
//
//	Idle -> Navigated -> Authenticated -> Composed -> Sent
//
// Failed is absorbing and reachable from every non-terminal state.
type State string

const (
	StateIdle          State = "Idle"
	StateNavigated     State = "Navigated"
	StateAuthenticated State = "Authenticated"
	StateComposed      State = "Composed"
	StateSent          State = "Sent"
	StateFailed        State = "Failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSent || s == StateFailed
}

var forward = map[State]State{
	StateIdle:          StateNavigated,
	StateNavigated:     StateAuthenticated,
	StateAuthenticated: StateComposed,
	StateComposed:      StateSent,
}

func isAllowedTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	return forward[from] == to
}

// TransitionError reports a disallowed state change.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("disallowed transition: %s -> %s", e.From, e.To)
}
