// Package tpkt implements the ISO transport service on top of TCP (RFC 1006) framing
// used by the S7 protocol stack.
//
// A TPKT frame is a fixed 4-byte header followed by an opaque payload:
//
//	+--------+--------+----------------+
//	| 0x03   | 0x00   | length (u16 BE)|
//	+--------+--------+----------------+
//	|            payload               |
//	+----------------------------------+
//
// The length field covers the whole frame, header included. The codec performs
// no interpretation of the payload; the COTP layer above owns its content.
package tpkt
