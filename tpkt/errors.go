package tpkt

import "errors"

var (
	// ErrFrameTooLarge indicates that a payload would exceed the 65535-byte TPKT frame limit.
	ErrFrameTooLarge = errors.New("tpkt frame exceeds maximum size")

	// ErrBadVersion indicates that a frame header carries an unrecognized version tag.
	ErrBadVersion = errors.New("tpkt bad version tag")

	// ErrBadLength indicates that a frame header declares a total length smaller than the header itself.
	ErrBadLength = errors.New("tpkt bad length field")
)
