package cotp

import (
	"encoding/binary"
	"fmt"
)

// PDUType identifies a COTP TPDU.
type PDUType byte

const (
	// PDUTypeConnectRequest is sent by the initiator to open a connection.
	PDUTypeConnectRequest PDUType = 0xe0
	// PDUTypeConnectConfirm is the peer's positive answer to a connection request.
	PDUTypeConnectConfirm PDUType = 0xd0
	// PDUTypeDisconnectRequest tears the connection down.
	PDUTypeDisconnectRequest PDUType = 0x80
	// PDUTypeDataTransfer carries one fragment of an upper-layer PDU.
	PDUTypeDataTransfer PDUType = 0xf0
)

func (t PDUType) String() string {
	switch t {
	case PDUTypeConnectRequest:
		return "connect.req"
	case PDUTypeConnectConfirm:
		return "connect.cnf"
	case PDUTypeDisconnectRequest:
		return "disconnect.req"
	case PDUTypeDataTransfer:
		return "data"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}

const (
	// dtHeaderSize is the fixed size of a data-transfer TPDU header:
	// length indicator, PDU type, and the EOT/number byte.
	dtHeaderSize = 3

	// connFixedSize is the fixed part of a CR/CC body after the PDU type:
	// destination reference (2), source reference (2), class/options (1).
	connFixedSize = 5

	eotMask  = 0x80
	numMask  = 0x7f
	classAny = 0x00
)

// ConnectPDU is a connection-request or connection-confirm TPDU.
type ConnectPDU struct {
	Type     PDUType
	DstRef   uint16
	SrcRef   uint16
	Class    byte
	SrcTSAP  TSAP
	DstTSAP  TSAP
	TPDUSize TPDUSize
}

// Encode serializes the PDU with its length indicator prepended.
func (p *ConnectPDU) Encode() []byte {
	body := make([]byte, 0, 2+connFixedSize+3+2+TSAPSize+2+TSAPSize)
	body = append(body, 0, byte(p.Type)) // length indicator patched below
	body = binary.BigEndian.AppendUint16(body, p.DstRef)
	body = binary.BigEndian.AppendUint16(body, p.SrcRef)
	body = append(body, p.Class)

	body = appendParam(body, paramCodeTPDUSize, byte(p.TPDUSize))
	body = appendParam(body, paramCodeSrcTSAP, p.SrcTSAP.Encode()...)
	body = appendParam(body, paramCodeDstTSAP, p.DstTSAP.Encode()...)

	body[0] = byte(len(body) - 1) // length indicator excludes itself
	return body
}

// decodeConnect parses the body of a CR/CC TPDU (after length and type bytes).
func decodeConnect(pduType PDUType, body []byte) (*ConnectPDU, error) {
	if len(body) < connFixedSize {
		return nil, fmt.Errorf("%w: %s body %d bytes", ErrPDUTooShort, pduType, len(body))
	}

	pdu := &ConnectPDU{
		Type:   pduType,
		DstRef: binary.BigEndian.Uint16(body[0:2]),
		SrcRef: binary.BigEndian.Uint16(body[2:4]),
		Class:  body[4] >> 4,
	}

	params, err := decodeParams(body[connFixedSize:])
	if err != nil {
		return nil, err
	}

	if params.hasTPDUSize {
		pdu.TPDUSize = params.tpduSize
	}
	if len(params.srcTSAP) == TSAPSize {
		if pdu.SrcTSAP, err = DecodeTSAP(params.srcTSAP); err != nil {
			return nil, err
		}
	}
	if len(params.dstTSAP) == TSAPSize {
		if pdu.DstTSAP, err = DecodeTSAP(params.dstTSAP); err != nil {
			return nil, err
		}
	}

	return pdu, nil
}

// DisconnectPDU is a disconnect-request TPDU.
type DisconnectPDU struct {
	DstRef uint16
	SrcRef uint16
	Reason byte
}

// Encode serializes the PDU with its length indicator prepended.
func (p *DisconnectPDU) Encode() []byte {
	body := make([]byte, 0, 2+connFixedSize)
	body = append(body, 0, byte(PDUTypeDisconnectRequest))
	body = binary.BigEndian.AppendUint16(body, p.DstRef)
	body = binary.BigEndian.AppendUint16(body, p.SrcRef)
	body = append(body, p.Reason)
	body[0] = byte(len(body) - 1)

	return body
}

func decodeDisconnect(body []byte) (*DisconnectPDU, error) {
	if len(body) < connFixedSize {
		return nil, fmt.Errorf("%w: disconnect body %d bytes", ErrPDUTooShort, len(body))
	}

	return &DisconnectPDU{
		DstRef: binary.BigEndian.Uint16(body[0:2]),
		SrcRef: binary.BigEndian.Uint16(body[2:4]),
		Reason: body[4],
	}, nil
}

// DataPDU is one data-transfer unit. EndOfUnit marks the final fragment of an
// upper-layer PDU; class 0 connections always use TPDU number 0.
type DataPDU struct {
	EndOfUnit bool
	Number    byte
	Payload   []byte
}

// Encode serializes the DT header followed by the payload fragment.
func (p *DataPDU) Encode() []byte {
	merge := p.Number & numMask
	if p.EndOfUnit {
		merge |= eotMask
	}

	out := make([]byte, dtHeaderSize+len(p.Payload))
	out[0] = dtHeaderSize - 1 // length indicator covers type + number bytes
	out[1] = byte(PDUTypeDataTransfer)
	out[2] = merge
	copy(out[dtHeaderSize:], p.Payload)

	return out
}

// Decode parses one COTP TPDU from a TPKT payload.
//
// It returns one of *ConnectPDU, *DisconnectPDU, or *DataPDU. For data
// transfers the returned payload aliases data.
func Decode(data []byte) (any, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: %d bytes", ErrPDUTooShort, len(data))
	}

	headerLen := int(data[0]) + 1 // length indicator excludes itself
	if headerLen < 2 || len(data) < headerLen {
		return nil, fmt.Errorf("%w: header claims %d bytes, have %d", ErrPDUTooShort, headerLen, len(data))
	}

	pduType := PDUType(data[1])
	switch pduType {
	case PDUTypeConnectRequest, PDUTypeConnectConfirm:
		return decodeConnect(pduType, data[2:headerLen])

	case PDUTypeDisconnectRequest:
		return decodeDisconnect(data[2:headerLen])

	case PDUTypeDataTransfer:
		if headerLen < dtHeaderSize {
			return nil, fmt.Errorf("%w: data header %d bytes", ErrPDUTooShort, headerLen)
		}
		merge := data[2]
		return &DataPDU{
			EndOfUnit: merge&eotMask != 0,
			Number:    merge & numMask,
			Payload:   data[headerLen:],
		}, nil

	default:
		return nil, fmt.Errorf("%w: type 0x%02x", ErrUnexpectedPDU, byte(pduType))
	}
}
