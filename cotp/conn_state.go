package cotp

// ConnState represents the stage of a COTP connection.
type ConnState uint32

const (
	// IdleState indicates that no connection request has been sent yet.
	IdleState ConnState = iota
	// AwaitConnectConfirmState indicates that a connection request is in
	// flight and the peer's confirm is pending.
	AwaitConnectConfirmState
	// ConnectedState indicates that the handshake completed and data transfer
	// units may be exchanged.
	ConnectedState
	// ClosedState indicates that the connection is finished; it is terminal.
	ClosedState
)

// IsConnected returns if the current state is connected.
func (cs ConnState) IsConnected() bool { return cs == ConnectedState }

// IsClosed returns if the current state is closed.
func (cs ConnState) IsClosed() bool { return cs == ClosedState }

// String returns string representation of the current state.
func (cs ConnState) String() string {
	switch cs {
	case IdleState:
		return "idle"
	case AwaitConnectConfirmState:
		return "await-connect-confirm"
	case ConnectedState:
		return "connected"
	case ClosedState:
		return "closed"
	default:
		return "unknown"
	}
}
