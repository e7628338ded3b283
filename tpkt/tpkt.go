package tpkt

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// Version is the TPKT version tag carried in the first header byte.
	Version = 0x03
	// HeaderSize is the size of the TPKT header in bytes.
	HeaderSize = 4
	// MaxFrameSize is the maximum total frame size, header included.
	MaxFrameSize = 65535
	// MaxPayloadSize is the maximum payload size a single frame can carry.
	MaxPayloadSize = MaxFrameSize - HeaderSize
)

// Encode wraps payload in a TPKT frame and returns the framed bytes.
//
// It returns ErrFrameTooLarge if the framed length would exceed MaxFrameSize.
func Encode(payload []byte) ([]byte, error) {
	total := HeaderSize + len(payload)
	if total > MaxFrameSize {
		return nil, fmt.Errorf("%w: payload %d bytes", ErrFrameTooLarge, len(payload))
	}

	frame := make([]byte, total)
	frame[0] = Version
	frame[1] = 0x00
	binary.BigEndian.PutUint16(frame[2:4], uint16(total))
	copy(frame[HeaderSize:], payload)

	return frame, nil
}

// Decode reads exactly one TPKT frame from r and returns its payload.
//
// It reads the 4-byte header first, validates the version tag and the declared
// length, then reads exactly length-4 payload bytes. A header with an unknown
// version tag fails with ErrBadVersion; a declared length below HeaderSize
// fails with ErrBadLength. Short reads surface the underlying I/O error.
func Decode(r io.Reader) ([]byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read tpkt header: %w", err)
	}

	if header[0] != Version {
		return nil, fmt.Errorf("%w: 0x%02x", ErrBadVersion, header[0])
	}

	total := int(binary.BigEndian.Uint16(header[2:4]))
	if total < HeaderSize {
		return nil, fmt.Errorf("%w: %d", ErrBadLength, total)
	}

	payload := make([]byte, total-HeaderSize)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read tpkt payload: %w", err)
	}

	return payload, nil
}

// Write encodes payload and writes the resulting frame to w in one call.
func Write(w io.Writer, payload []byte) error {
	frame, err := Encode(payload)
	if err != nil {
		return err
	}

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write tpkt frame: %w", err)
	}

	return nil
}
