package s7

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedPDU indicates that a PDU's declared segment lengths disagree
	// with the actual buffer, or a segment is structurally invalid.
	ErrMalformedPDU = errors.New("malformed S7 PDU")

	// ErrUnsupportedPDUType indicates an unrecognized PDU type byte.
	ErrUnsupportedPDUType = errors.New("unsupported S7 PDU type")

	// ErrInvalidAddress indicates a variable address string that the grammar
	// does not accept.
	ErrInvalidAddress = errors.New("invalid S7 address")
)

// S7 header error classes reported in acknowledgement PDUs.
const (
	errClassNone        = 0x00
	errClassAppRelation = 0x81
	errClassObjDef      = 0x82
	errClassResource    = 0x83
	errClassService     = 0x84
	errClassNoResource  = 0x85
	errClassAccess      = 0x87
)

// HeaderError is a PLC-reported error carried in the header of an
// acknowledgement PDU. It applies to the whole request, not to single items.
type HeaderError struct {
	Class byte
	Code  byte
}

func (e *HeaderError) Error() string {
	switch e.Class {
	case errClassNone:
		return "no error"
	case errClassAppRelation:
		return fmt.Sprintf("application relationship error (code %d)", e.Code)
	case errClassObjDef:
		return fmt.Sprintf("object definition error (code %d)", e.Code)
	case errClassResource:
		return fmt.Sprintf("resource error (code %d)", e.Code)
	case errClassService:
		return fmt.Sprintf("service error (code %d)", e.Code)
	case errClassNoResource:
		return fmt.Sprintf("no resource available - request may exceed PDU size (code %d)", e.Code)
	case errClassAccess:
		return fmt.Sprintf("access error (code %d)", e.Code)
	default:
		return fmt.Sprintf("S7 error class 0x%02x code %d", e.Class, e.Code)
	}
}

// ReturnCode is the per-item result code of a read or write response.
type ReturnCode byte

const (
	ReturnOK                ReturnCode = 0xff
	ReturnReserved          ReturnCode = 0x00
	ReturnHardwareFault     ReturnCode = 0x01
	ReturnAccessDenied      ReturnCode = 0x03
	ReturnAddressOutOfRange ReturnCode = 0x05
	ReturnTypeNotSupported  ReturnCode = 0x06
	ReturnTypeInconsistent  ReturnCode = 0x07
	ReturnObjectNotExist    ReturnCode = 0x0a
)

func (rc ReturnCode) String() string {
	switch rc {
	case ReturnOK:
		return "ok"
	case ReturnHardwareFault:
		return "hardware fault"
	case ReturnAccessDenied:
		return "access denied"
	case ReturnAddressOutOfRange:
		return "address out of range"
	case ReturnTypeNotSupported:
		return "data type not supported"
	case ReturnTypeInconsistent:
		return "data type/size inconsistent"
	case ReturnObjectNotExist:
		return "object does not exist"
	default:
		return fmt.Sprintf("return code 0x%02x", byte(rc))
	}
}

// Err maps the return code onto the item error taxonomy. It returns nil for
// ReturnOK and an *ItemError for every other code.
func (rc ReturnCode) Err() error {
	if rc == ReturnOK {
		return nil
	}
	return &ItemError{Code: rc}
}

// ItemError is a PLC-reported failure local to a single item of a batched
// request. Sibling items in the same response remain usable.
type ItemError struct {
	Code ReturnCode
}

func (e *ItemError) Error() string {
	return e.Code.String()
}

// Is matches two item errors by return code, enabling errors.Is against the
// exported sentinel values below.
func (e *ItemError) Is(target error) bool {
	t, ok := target.(*ItemError)
	return ok && t.Code == e.Code
}

// Sentinel item errors for the well-known return codes.
var (
	ErrAddressOutOfRange = &ItemError{Code: ReturnAddressOutOfRange}
	ErrTypeNotSupported  = &ItemError{Code: ReturnTypeNotSupported}
	ErrTypeInconsistent  = &ItemError{Code: ReturnTypeInconsistent}
	ErrObjectNotExist    = &ItemError{Code: ReturnObjectNotExist}
	ErrAccessDenied      = &ItemError{Code: ReturnAccessDenied}
	ErrHardwareFault     = &ItemError{Code: ReturnHardwareFault}
)
