package cotp

import "errors"

var (
	// ErrInvalidTransition is returned when an operation is attempted in a
	// connection state that does not allow it.
	ErrInvalidTransition = errors.New("invalid connection state transition")

	// ErrConnClosed indicates that the transport connection is closed.
	ErrConnClosed = errors.New("transport connection closed")

	// ErrConnectionRejected indicates that the peer answered the connection
	// request with a disconnect instead of a connection confirm.
	ErrConnectionRejected = errors.New("connection request rejected by peer")

	// ErrDisconnectReceived indicates that the peer sent a disconnect-request
	// while the connection was established.
	ErrDisconnectReceived = errors.New("disconnect request received")

	// ErrUnexpectedPDU indicates that a PDU type arrived that is not valid in
	// the current connection state.
	ErrUnexpectedPDU = errors.New("unexpected transport PDU")

	// ErrReassemblyOverflow indicates that the reassembled payload of a
	// fragmented data transfer exceeded the negotiated maximum PDU length.
	ErrReassemblyOverflow = errors.New("data transfer reassembly exceeds negotiated maximum")

	// ErrPDUTooShort indicates a transport PDU shorter than its fixed header.
	ErrPDUTooShort = errors.New("transport PDU too short")

	// ErrUnknownParameter indicates an unrecognized parameter code in a
	// connection request or confirm.
	ErrUnknownParameter = errors.New("unknown connection parameter code")

	// ErrBadTPDUSize indicates a TPDU size code outside the defined 128..8192 range.
	ErrBadTPDUSize = errors.New("invalid TPDU size code")
)
