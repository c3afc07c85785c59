// Package fsm defines the per-connection exchange state machine.
package fsm

import "fmt"

type State string

type Event string

const (
	StateAwaitingRequest State = "awaiting_request"
	StateDecoding        State = "decoding"
	StateEmittingInterim State = "emitting_interim"
	StateDispatching     State = "dispatching"
	StateEmittingFinal   State = "emitting_final"
	StateClosed          State = "closed"
	StateFailed          State = "failed"
)

const (
	EventReceived   Event = "received"
	EventDecoded    Event = "decoded"
	EventInterim    Event = "interim"
	EventInterimEnd Event = "interim_end"
	EventDispatched Event = "dispatched"
	EventFinalSent  Event = "final_sent"
	EventFail       Event = "fail"
)

// Transition returns the state reached from current on event.
func Transition(current State, event Event) (State, error) {
	if event == EventFail {
		if current == StateClosed {
			return current, invalidTransition(current, event)
		}
		return StateFailed, nil
	}

	switch current {
	case StateAwaitingRequest:
		switch event {
		case EventReceived:
			return StateDecoding, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateDecoding:
		switch event {
		case EventDecoded:
			return StateEmittingInterim, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateEmittingInterim:
		switch event {
		case EventInterim:
			return StateEmittingInterim, nil
		case EventInterimEnd:
			return StateDispatching, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateDispatching:
		switch event {
		case EventDispatched:
			return StateEmittingFinal, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateEmittingFinal:
		switch event {
		case EventFinalSent:
			return StateClosed, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateClosed, StateFailed:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

// Machine tracks one exchange and records the path it took.
type Machine struct {
	state State
	trail []State
}

func New() *Machine {
	return &Machine{state: StateAwaitingRequest, trail: []State{StateAwaitingRequest}}
}

func (m *Machine) State() State {
	return m.state
}

// Trail returns every state entered, in order, starting with AwaitingRequest.
func (m *Machine) Trail() []State {
	return append([]State(nil), m.trail...)
}

// Fire applies event and records the new state.
func (m *Machine) Fire(event Event) error {
	next, err := Transition(m.state, event)
	if err != nil {
		return err
	}
	m.state = next
	m.trail = append(m.trail, next)
	return nil
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
