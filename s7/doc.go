// Package s7 implements the S7 application protocol layer: the PDU header,
// the setup-communication, read-variable and write-variable job bodies, and
// the textual variable address model.
//
// The package is a pure codec. It never touches the network; the transport
// layers below (cotp, tpkt) carry its encoded PDUs, and the session layer
// above (s7client) drives request/response exchanges.
//
// Addresses use the conventional Step7 notation: "DB5.DBW10" reads a word at
// byte 10 of data block 5, "M100.3" addresses bit 3 of flag byte 100, "IW0"
// a word of the process input image. See ParseAddress for the full grammar.
package s7
