package session

// State is the lifecycle state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// StateChange is the data of EventStateChange.
type StateChange struct {
	From State
	To   State
}

// Lifecycle events published through Session.On.
const (
	EventConnected        = "connected"
	EventDisconnected     = "disconnected"
	EventStateChange      = "state-change"
	EventConnectionFailed = "connection-failed"
	// EventMessage carries every dispatched protocol.Message.
	EventMessage = "message"
	// EventError carries a TransportError for every failure that ends a
	// connection.
	EventError = "error"
)
