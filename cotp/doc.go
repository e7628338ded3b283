// Package cotp implements the ISO 8073 class-0 connection-oriented transport
// layer (COTP) used by the S7 protocol stack on top of TPKT framing.
//
// The layer performs a connection-request/connection-confirm handshake that
// carries the two peer transport service access points (TSAPs, encoding
// rack/slot addressing) and a maximum TPDU size negotiation, then exchanges
// data-transfer (DT) units. A payload larger than the negotiated TPDU size is
// fragmented across multiple DT units; all but the last carry a cleared
// end-of-transmission flag, and the receiver reassembles them into one
// upper-layer PDU.
//
// A connection walks through the states
// Idle → AwaitConnectConfirm → Connected → Closed; a received
// disconnect-request or any framing failure moves it to Closed.
package cotp
