package cotp

import "fmt"

// TPDUSize is the log2-coded maximum TPDU size negotiated during connection
// setup (RFC 905 §13.3.4). Only 128..8192 octets are representable; 8192 and
// 4096 are not allowed in class 0 but are still decodable.
type TPDUSize byte

const (
	TPDUSize128  TPDUSize = 0x07
	TPDUSize256  TPDUSize = 0x08
	TPDUSize512  TPDUSize = 0x09
	TPDUSize1024 TPDUSize = 0x0a
	TPDUSize2048 TPDUSize = 0x0b
	TPDUSize4096 TPDUSize = 0x0c
	TPDUSize8192 TPDUSize = 0x0d
)

// Valid reports whether the code maps to a defined TPDU size.
func (s TPDUSize) Valid() bool {
	return s >= TPDUSize128 && s <= TPDUSize8192
}

// Octets returns the TPDU size in bytes, or 0 for an invalid code.
func (s TPDUSize) Octets() int {
	if !s.Valid() {
		return 0
	}
	return 1 << uint(s)
}

func (s TPDUSize) String() string {
	if !s.Valid() {
		return fmt.Sprintf("invalid(0x%02x)", byte(s))
	}
	return fmt.Sprintf("%d", s.Octets())
}

// Connection parameter codes carried in CR/CC PDUs.
const (
	paramCodeTPDUSize = 0xc0
	paramCodeSrcTSAP  = 0xc1
	paramCodeDstTSAP  = 0xc2

	// Some S7-200 CPUs emit a proprietary 0x02 parameter; it carries nothing
	// useful and is skipped on decode.
	paramCodeUnknown = 0x02
)

// connParams holds the decoded parameter set of a CR or CC PDU.
type connParams struct {
	tpduSize    TPDUSize
	hasTPDUSize bool
	srcTSAP     []byte
	dstTSAP     []byte
}

// appendParam serializes one {code, length, data...} parameter.
func appendParam(dst []byte, code byte, data ...byte) []byte {
	dst = append(dst, code, byte(len(data)))
	return append(dst, data...)
}

// decodeParams walks the parameter section of a CR/CC body.
//
// Quirks carried over from field experience with S7-200 CPUs: a 0x02
// parameter is skipped, and a lone trailing 0xc2 byte with no length field
// terminates the walk instead of failing.
func decodeParams(data []byte) (*connParams, error) {
	params := &connParams{}

	for len(data) > 0 {
		if len(data) == 1 && data[0] == paramCodeDstTSAP {
			break
		}
		if len(data) < 2 {
			return nil, fmt.Errorf("%w: parameter header", ErrPDUTooShort)
		}

		code := data[0]
		length := int(data[1])
		if len(data) < 2+length {
			return nil, fmt.Errorf("%w: parameter 0x%02x claims %d bytes, %d remain",
				ErrPDUTooShort, code, length, len(data)-2)
		}
		value := data[2 : 2+length]
		data = data[2+length:]

		switch code {
		case paramCodeTPDUSize:
			if length != 1 {
				return nil, fmt.Errorf("%w: tpdu size length %d", ErrBadTPDUSize, length)
			}
			size := TPDUSize(value[0])
			if !size.Valid() {
				return nil, fmt.Errorf("%w: 0x%02x", ErrBadTPDUSize, value[0])
			}
			params.tpduSize = size
			params.hasTPDUSize = true

		case paramCodeSrcTSAP:
			params.srcTSAP = append([]byte(nil), value...)

		case paramCodeDstTSAP:
			params.dstTSAP = append([]byte(nil), value...)

		case paramCodeUnknown:
			// skip

		default:
			return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownParameter, code)
		}
	}

	return params, nil
}
