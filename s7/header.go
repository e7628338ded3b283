package s7

import (
	"encoding/binary"
	"fmt"
)

// PDU is a decoded S7 PDU: its header fields plus the raw parameter and data
// segments. The segment slices alias the decode input.
type PDU struct {
	Type   PDUType
	Ref    uint16
	Params []byte
	Data   []byte

	// HeaderErr is the PLC-reported header error of an acknowledgement PDU,
	// or nil when the error class and code are both zero.
	HeaderErr *HeaderError
}

// EncodeJob serializes a job PDU with the given reference number, parameter
// segment and data segment.
func EncodeJob(ref uint16, params, data []byte) []byte {
	buf := make([]byte, 0, JobHeaderSize+len(params)+len(data))

	buf = append(buf, ProtocolID, byte(PDUTypeJob))
	buf = binary.BigEndian.AppendUint16(buf, 0) // reserved
	buf = binary.BigEndian.AppendUint16(buf, ref)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(params)))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(data)))
	buf = append(buf, params...)
	buf = append(buf, data...)

	return buf
}

// DecodePDU parses an S7 PDU received from the transport. It validates the
// protocol identifier, the PDU type and the declared segment lengths against
// the buffer, and splits off the parameter and data segments.
func DecodePDU(data []byte) (*PDU, error) {
	if len(data) < JobHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes, want at least %d", ErrMalformedPDU, len(data), JobHeaderSize)
	}
	if data[0] != ProtocolID {
		return nil, fmt.Errorf("%w: protocol id 0x%02x", ErrMalformedPDU, data[0])
	}

	pdu := &PDU{
		Type: PDUType(data[1]),
		Ref:  binary.BigEndian.Uint16(data[4:6]),
	}

	headerSize := JobHeaderSize
	switch pdu.Type {
	case PDUTypeJob, PDUTypeUserData:
	case PDUTypeAck, PDUTypeAckData:
		headerSize = AckDataHeaderSize
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedPDUType, data[1])
	}
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes, want at least %d", ErrMalformedPDU, len(data), headerSize)
	}

	paramLen := int(binary.BigEndian.Uint16(data[6:8]))
	dataLen := int(binary.BigEndian.Uint16(data[8:10]))
	if headerSize+paramLen+dataLen != len(data) {
		return nil, fmt.Errorf("%w: declared %d+%d segment bytes in a %d byte PDU",
			ErrMalformedPDU, paramLen, dataLen, len(data))
	}

	if headerSize == AckDataHeaderSize {
		if class, code := data[10], data[11]; class != errClassNone || code != 0 {
			pdu.HeaderErr = &HeaderError{Class: class, Code: code}
		}
	}

	pdu.Params = data[headerSize : headerSize+paramLen]
	pdu.Data = data[headerSize+paramLen:]

	return pdu, nil
}
