package s7client

import "errors"

var (
	// ErrAlreadyConnected indicates a Connect call on a client that is
	// already connecting or connected.
	ErrAlreadyConnected = errors.New("client already connected")

	// ErrDisconnected indicates an operation on a client without an
	// established session.
	ErrDisconnected = errors.New("client disconnected")

	// ErrNegotiationFailed indicates that the PLC granted a PDU length below
	// the minimum the client can operate with.
	ErrNegotiationFailed = errors.New("PDU length negotiation failed")

	// ErrItemTooLarge indicates a single item whose request or response can
	// never fit the negotiated PDU length.
	ErrItemTooLarge = errors.New("item exceeds negotiated PDU length")

	// ErrValueSizeMismatch indicates a write item whose data length disagrees
	// with its address.
	ErrValueSizeMismatch = errors.New("write data length does not match address")

	// ErrProtocolDesync indicates a response whose reference number does not
	// match the outstanding request. The session cannot recover and is torn
	// down.
	ErrProtocolDesync = errors.New("response reference mismatch")

	// ErrRequestTimeout indicates that a request could not be scheduled
	// within the configured request timeout.
	ErrRequestTimeout = errors.New("request timed out")
)
