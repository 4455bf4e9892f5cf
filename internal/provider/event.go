package provider

import "time"

// EventKind classifies session events.
type EventKind string

const (
	EventTransition EventKind = "transition"
	EventAttempt    EventKind = "attempt"
	EventStep       EventKind = "step"
)

// Event is emitted for every state transition, selector attempt and login
// step, in the order they happen.
type Event struct {
	Provider string
	Kind     EventKind
	Time     time.Time

	// Transition
	From State
	To   State

	// Attempt
	Target   Target
	Selector string
	Attempt  int

	// Step, or failure detail on a transition to Failed
	Message string
}

// Observer receives session events. It is called synchronously.
type Observer func(Event)
