package cotp

import "fmt"

// TSAPSize is the encoded size of a transport service access point in bytes.
const TSAPSize = 2

// TSAP is a transport service access point identifying one endpoint of a
// COTP connection. For S7 devices it encodes the connection type in the first
// byte and the CPU's rack/slot pair in the second.
type TSAP struct {
	Rack uint8
	Slot uint8
}

// Encode returns the 2-byte wire representation: {0x01, rack<<5 | slot}.
func (t TSAP) Encode() []byte {
	return []byte{0x01, t.Rack<<5 | t.Slot&0x1f}
}

// DecodeTSAP parses a 2-byte wire TSAP back into a rack/slot pair.
func DecodeTSAP(data []byte) (TSAP, error) {
	if len(data) != TSAPSize {
		return TSAP{}, fmt.Errorf("%w: tsap length %d", ErrPDUTooShort, len(data))
	}

	return TSAP{
		Rack: data[1] >> 5,
		Slot: data[1] & 0x1f,
	}, nil
}

func (t TSAP) String() string {
	return fmt.Sprintf("rack=%d slot=%d", t.Rack, t.Slot)
}
