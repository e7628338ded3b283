package s7client

// State represents the client session lifecycle state.
type State int32

const (
	// DisconnectedState indicates no session. The initial state, and the
	// terminal state after Disconnect or a fatal error.
	DisconnectedState State = iota
	// ConnectingState indicates the TCP dial and transport handshake are in
	// progress.
	ConnectingState
	// NegotiatingState indicates the communication parameter exchange is in
	// progress.
	NegotiatingState
	// ReadyState indicates an established session accepting requests.
	ReadyState
)

func (s State) String() string {
	switch s {
	case DisconnectedState:
		return "disconnected"
	case ConnectingState:
		return "connecting"
	case NegotiatingState:
		return "negotiating"
	case ReadyState:
		return "ready"
	default:
		return "unknown"
	}
}
