package s7

import (
	"encoding/binary"
	"fmt"
)

// ItemResult is the outcome of one item of a read or write job. Data is only
// populated for successful read items.
//
// LocalErr reports a client-side validation failure that kept the item off
// the wire; such items carry no PLC return code.
type ItemResult struct {
	Code     ReturnCode
	Data     []byte
	LocalErr error
}

// Err returns nil when the item succeeded. Items rejected before any I/O
// return their LocalErr; items the PLC failed return an *ItemError.
func (r ItemResult) Err() error {
	if r.LocalErr != nil {
		return r.LocalErr
	}
	return r.Code.Err()
}

// WriteItem pairs an address with the value bytes to store there. Data must
// be exactly Address.DataSize() bytes; for bit addresses it is a single byte
// holding 0 or 1.
type WriteItem struct {
	Address Address
	Data    []byte
}

// appendItemSpec serializes one S7ANY item specification.
func appendItemSpec(buf []byte, addr Address) []byte {
	buf = append(buf, anySpecType, anyLength, anySyntaxID, addr.ElementType.transportSize())
	buf = binary.BigEndian.AppendUint16(buf, addr.Count)
	buf = binary.BigEndian.AppendUint16(buf, addr.DBNumber)
	buf = append(buf, addr.Area.code())

	bitAddr := addr.bitAddress()
	buf = append(buf, byte(bitAddr>>16), byte(bitAddr>>8), byte(bitAddr))

	return buf
}

// EncodeReadRequest serializes a read-variable job for the given addresses.
func EncodeReadRequest(ref uint16, addrs []Address) []byte {
	params := make([]byte, 0, 2+len(addrs)*ItemSpecSize)
	params = append(params, FuncRead, byte(len(addrs)))
	for _, addr := range addrs {
		params = appendItemSpec(params, addr)
	}

	return EncodeJob(ref, params, nil)
}

// EncodeWriteRequest serializes a write-variable job for the given items.
func EncodeWriteRequest(ref uint16, items []WriteItem) []byte {
	params := make([]byte, 0, 2+len(items)*ItemSpecSize)
	params = append(params, FuncWrite, byte(len(items)))
	for _, item := range items {
		params = appendItemSpec(params, item.Address)
	}

	var dataSize int
	for _, item := range items {
		dataSize += 4 + len(item.Data) + len(item.Data)%2
	}
	data := make([]byte, 0, dataSize)
	for i, item := range items {
		transport := byte(dataTransportByte)
		length := len(item.Data) * 8
		if item.Address.ElementType == ElemBit {
			transport = dataTransportBit
			length = int(item.Address.Count)
		}

		data = append(data, 0x00, transport)
		data = binary.BigEndian.AppendUint16(data, uint16(length))
		data = append(data, item.Data...)

		// Odd-length items are padded to an even offset, except the last.
		if len(item.Data)%2 != 0 && i != len(items)-1 {
			data = append(data, 0x00)
		}
	}

	return EncodeJob(ref, params, data)
}

// dataLengthBytes converts a data item's declared length to a byte count.
// The bit-oriented transport codes measure length in bits; the rest in bytes.
func dataLengthBytes(transport byte, length int) (int, error) {
	switch transport {
	case dataTransportNull:
		return 0, nil
	case dataTransportBit:
		return (length + 7) / 8, nil
	case dataTransportByte, dataTransportInt:
		if length%8 != 0 {
			return 0, fmt.Errorf("%w: data item length %d bits is not byte aligned", ErrMalformedPDU, length)
		}
		return length / 8, nil
	default:
		return length, nil
	}
}

// DecodeReadResponse parses a read-variable acknowledgement into per-item
// results. count is the number of items the matching request carried. A
// header error reported by the PLC is returned as a *HeaderError.
func DecodeReadResponse(pdu *PDU, count int) ([]ItemResult, error) {
	if err := checkAckParams(pdu, FuncRead, count); err != nil {
		return nil, err
	}

	results := make([]ItemResult, 0, count)
	data := pdu.Data
	for i := 0; i < count; i++ {
		if len(data) < 4 {
			return nil, fmt.Errorf("%w: read response truncated at item %d", ErrMalformedPDU, i)
		}
		code := ReturnCode(data[0])
		transport := data[1]
		length := int(binary.BigEndian.Uint16(data[2:4]))
		data = data[4:]

		result := ItemResult{Code: code}
		if code == ReturnOK {
			size, err := dataLengthBytes(transport, length)
			if err != nil {
				return nil, err
			}
			if len(data) < size {
				return nil, fmt.Errorf("%w: read response item %d declares %d bytes, %d remain",
					ErrMalformedPDU, i, size, len(data))
			}
			result.Data = data[:size]
			data = data[size:]

			// Odd-length items are followed by a pad byte, except the last.
			if size%2 != 0 && i != count-1 {
				if len(data) < 1 {
					return nil, fmt.Errorf("%w: read response missing pad byte after item %d", ErrMalformedPDU, i)
				}
				data = data[1:]
			}
		}
		results = append(results, result)
	}
	if len(data) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after read response items", ErrMalformedPDU, len(data))
	}

	return results, nil
}

// DecodeWriteResponse parses a write-variable acknowledgement, whose data
// segment is one return code byte per item.
func DecodeWriteResponse(pdu *PDU, count int) ([]ItemResult, error) {
	if err := checkAckParams(pdu, FuncWrite, count); err != nil {
		return nil, err
	}
	if len(pdu.Data) != count {
		return nil, fmt.Errorf("%w: write response has %d result bytes, want %d",
			ErrMalformedPDU, len(pdu.Data), count)
	}

	results := make([]ItemResult, count)
	for i, code := range pdu.Data {
		results[i] = ItemResult{Code: ReturnCode(code)}
	}

	return results, nil
}

// checkAckParams validates the acknowledgement envelope shared by read and
// write responses: PDU type, header error, function code and item count.
func checkAckParams(pdu *PDU, function byte, count int) error {
	if pdu.Type != PDUTypeAckData {
		return fmt.Errorf("%w: response has PDU type %s", ErrMalformedPDU, pdu.Type)
	}
	if pdu.HeaderErr != nil {
		return pdu.HeaderErr
	}
	if len(pdu.Params) != 2 || pdu.Params[0] != function {
		return fmt.Errorf("%w: response parameters", ErrMalformedPDU)
	}
	if got := int(pdu.Params[1]); got != count {
		return fmt.Errorf("%w: response reports %d items, request had %d", ErrMalformedPDU, got, count)
	}

	return nil
}

// Sizing helpers used to fit batched requests within the negotiated PDU
// length. Response sizes assume the worst case where every item succeeds.

// ReadRequestSize returns the serialized size of a read job with n items.
func ReadRequestSize(n int) int {
	return JobHeaderSize + 2 + n*ItemSpecSize
}

// ReadResponseItemSize returns the response bytes one read item occupies,
// including its pad byte when the data length is odd.
func ReadResponseItemSize(addr Address) int {
	size := addr.DataSize()
	return 4 + size + size%2
}

// ReadResponseSize returns the serialized size of a fully successful read
// acknowledgement for the given addresses.
func ReadResponseSize(addrs []Address) int {
	total := AckDataHeaderSize + 2
	for _, addr := range addrs {
		total += ReadResponseItemSize(addr)
	}
	return total
}

// WriteRequestItemSize returns the request bytes one write item occupies:
// its item specification plus its padded data item.
func WriteRequestItemSize(item WriteItem) int {
	return ItemSpecSize + 4 + len(item.Data) + len(item.Data)%2
}

// WriteRequestSize returns the serialized size of a write job.
func WriteRequestSize(items []WriteItem) int {
	total := JobHeaderSize + 2
	for _, item := range items {
		total += WriteRequestItemSize(item)
	}
	return total
}

// WriteResponseSize returns the serialized size of a write acknowledgement
// with n items.
func WriteResponseSize(n int) int {
	return AckDataHeaderSize + 2 + n
}
