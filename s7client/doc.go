// Package s7client provides the client session layer of the S7 stack. A
// Client dials a PLC over TCP, performs the transport handshake and the
// communication parameter negotiation, and then serializes read and write
// jobs over the single connection.
//
// All exported methods are safe for concurrent use. Requests are served
// strictly one at a time in arrival order; a request whose items exceed the
// negotiated PDU length is transparently split into multiple exchanges.
package s7client
