// File: protocol/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import "errors"

// Framing violations reported by the decoder.
var (
	ErrReservedBits           = errors.New("reserved bits set without negotiated extension")
	ErrFrameTooLarge          = errors.New("frame payload exceeds maximum allowed size")
	ErrMessageTooLarge        = errors.New("message payload exceeds maximum allowed size")
	ErrControlFragmented      = errors.New("fragmented control frame")
	ErrControlTooLong         = errors.New("control frame payload longer than 125 bytes")
	ErrUnexpectedContinuation = errors.New("continuation frame without message in progress")
	ErrIncompleteMessage      = errors.New("new data frame before fragmented message completed")
	ErrInvalidUTF8            = errors.New("text payload is not valid UTF-8")
	ErrInvalidClosePayload    = errors.New("malformed close frame payload")
	ErrUnmaskedFrame          = errors.New("unmasked frame from client")
	ErrMaskedFrame            = errors.New("masked frame from server")
	ErrAlreadySplit           = errors.New("connection already split")
)

// FramingError reports a failure to produce the next message: the transport
// read failed or the bytes violated the framing rules.
type FramingError struct {
	Op  string
	Err error
}

func (e *FramingError) Error() string {
	return "protocol: " + e.Op + ": " + e.Err.Error()
}

func (e *FramingError) Unwrap() error {
	return e.Err
}

// WriteError reports a failure to hand an encoded message to the transport.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return "protocol: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
