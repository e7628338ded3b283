package s7

import (
	"encoding/binary"
	"fmt"
)

// SetupParams carries the communication parameters negotiated by the
// setup-communication exchange.
type SetupParams struct {
	MaxAMQCalling uint16
	MaxAMQCalled  uint16
	PDULength     uint16
}

const setupParamsSize = 8

func (p SetupParams) encode() []byte {
	buf := make([]byte, 0, setupParamsSize)
	buf = append(buf, FuncSetupComm, 0x00)
	buf = binary.BigEndian.AppendUint16(buf, p.MaxAMQCalling)
	buf = binary.BigEndian.AppendUint16(buf, p.MaxAMQCalled)
	buf = binary.BigEndian.AppendUint16(buf, p.PDULength)

	return buf
}

// EncodeSetupRequest serializes a setup-communication job proposing the given
// parameters.
func EncodeSetupRequest(ref uint16, p SetupParams) []byte {
	return EncodeJob(ref, p.encode(), nil)
}

// DecodeSetupResponse extracts the PLC's granted parameters from a
// setup-communication acknowledgement. A header error reported by the PLC is
// returned as a *HeaderError.
func DecodeSetupResponse(pdu *PDU) (SetupParams, error) {
	if pdu.Type != PDUTypeAckData {
		return SetupParams{}, fmt.Errorf("%w: setup response has PDU type %s", ErrMalformedPDU, pdu.Type)
	}
	if pdu.HeaderErr != nil {
		return SetupParams{}, pdu.HeaderErr
	}
	if len(pdu.Params) != setupParamsSize || pdu.Params[0] != FuncSetupComm {
		return SetupParams{}, fmt.Errorf("%w: setup response parameters", ErrMalformedPDU)
	}

	return SetupParams{
		MaxAMQCalling: binary.BigEndian.Uint16(pdu.Params[2:4]),
		MaxAMQCalled:  binary.BigEndian.Uint16(pdu.Params[4:6]),
		PDULength:     binary.BigEndian.Uint16(pdu.Params[6:8]),
	}, nil
}
