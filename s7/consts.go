package s7

// ProtocolID is the fixed first byte of every S7 PDU header.
const ProtocolID = 0x32

// PDUType identifies the kind of an S7 PDU.
type PDUType byte

const (
	// PDUTypeJob is a request that expects an acknowledgement.
	PDUTypeJob PDUType = 0x01
	// PDUTypeAck is an acknowledgement without a data segment.
	PDUTypeAck PDUType = 0x02
	// PDUTypeAckData is an acknowledgement carrying parameter and data segments.
	PDUTypeAckData PDUType = 0x03
	// PDUTypeUserData carries the extended user-data protocol.
	PDUTypeUserData PDUType = 0x07
)

func (t PDUType) String() string {
	switch t {
	case PDUTypeJob:
		return "job"
	case PDUTypeAck:
		return "ack"
	case PDUTypeAckData:
		return "ack-data"
	case PDUTypeUserData:
		return "user-data"
	default:
		return "unknown"
	}
}

// Function codes of the job parameter segment.
const (
	FuncSetupComm = 0xf0
	FuncRead      = 0x04
	FuncWrite     = 0x05
)

// Memory area codes used in item specifications.
const (
	areaCodeInput   = 0x81
	areaCodeOutput  = 0x82
	areaCodeMerker  = 0x83
	areaCodeDB      = 0x84
	areaCodeCounter = 0x1c
	areaCodeTimer   = 0x1d
)

// Transport size codes used in item specifications.
const (
	tsBit   = 0x01
	tsByte  = 0x02
	tsChar  = 0x03
	tsWord  = 0x04
	tsInt   = 0x05
	tsDWord = 0x06
	tsDInt  = 0x07
	tsReal  = 0x08
)

// Transport size codes used in response/write data items. Their length field
// counts bits for the bit-oriented codes and bytes for octet strings.
const (
	dataTransportNull  = 0x00
	dataTransportBit   = 0x03
	dataTransportByte  = 0x04
	dataTransportInt   = 0x05
	dataTransportDInt  = 0x06
	dataTransportReal  = 0x07
	dataTransportOctet = 0x09
)

// S7ANY item specification constants.
const (
	anySpecType = 0x12
	anyLength   = 0x0a
	anySyntaxID = 0x10
)

// ItemSpecSize is the serialized size of one S7ANY item specification,
// including its two-byte prefix.
const ItemSpecSize = 12

// Fixed header sizes.
const (
	// JobHeaderSize is the S7 header size of a job or user-data PDU.
	JobHeaderSize = 10
	// AckDataHeaderSize is the S7 header size of an acknowledgement PDU,
	// which appends the error class and error code bytes.
	AckDataHeaderSize = 12
)
