// Package lifecycle models the connection state machine. The transition
// function is pure so the gate logic can be tested without a live transport:
// the broker feeds it events and executes the returned effects.
package lifecycle

// State is the position of one connection in its lifecycle. There is no valid
// transition out of Closed.
type State uint8

const (
	// Connecting is the limbo between transport accept and identity
	// validation; no session exists yet.
	Connecting State = iota
	// Identified means login validation succeeded and a session was created.
	Identified
	// Closed is terminal.
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Identified:
		return "identified"
	case Closed:
		return "closed"
	default:
		return "invalid"
	}
}

// Event is an input to the state machine.
type Event uint8

const (
	// EventLoginValidated fires when a login request passed every check.
	EventLoginValidated Event = iota
	// EventLoginRejected fires when validation failed.
	EventLoginRejected
	// EventTransportClosed fires when the transport reports peer-initiated
	// closure or a local problem.
	EventTransportClosed
	// EventKicked fires when the server removes the connection itself.
	EventKicked
	// EventInvalidMessage fires when an unidentified connection sends
	// anything other than a login request.
	EventInvalidMessage
)

// Effect instructs the broker what to do after a transition.
type Effect uint8

const (
	// EffectCreateSession registers the session and runs the login handshake
	// sequence (map names, roster, state snapshot, bulletin, connect notice).
	EffectCreateSession Effect = iota
	// EffectDenyAndClose sends a single denial notice and force-closes the
	// connection with its rejection reason.
	EffectDenyAndClose
	// EffectRemoveSession tears the session down and broadcasts the
	// disconnect notice to the remaining players.
	EffectRemoveSession
	// EffectCloseInvalid force-closes a connection that misbehaved before
	// identifying.
	EffectCloseInvalid
)

// Transition applies an event to a state and returns the next state plus the
// effects the caller must execute. Unexpected combinations leave the state
// unchanged with no effects; Closed never transitions anywhere.
func Transition(state State, event Event) (State, []Effect) {
	if state == Closed {
		return Closed, nil
	}
	switch state {
	case Connecting:
		switch event {
		case EventLoginValidated:
			return Identified, []Effect{EffectCreateSession}
		case EventLoginRejected:
			return Closed, []Effect{EffectDenyAndClose}
		case EventInvalidMessage:
			return Closed, []Effect{EffectCloseInvalid}
		case EventTransportClosed:
			// Died in limbo; nothing to announce.
			return Closed, nil
		}
	case Identified:
		switch event {
		case EventTransportClosed, EventKicked:
			return Closed, []Effect{EffectRemoveSession}
		}
	}
	return state, nil
}
