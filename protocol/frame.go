// Package protocol
// Author: momentics <momentics@gmail.com>
//
// WebSocket frame decoding and masking logic for streaming parsing.

package protocol

import (
	"bytes"
	"encoding/binary"
	"io"
)

// maxPrealloc is the largest payload allocated up front when no size limit
// applies.
const maxPrealloc = 64 << 10

// WSFrame represents a decoded WebSocket frame.
type WSFrame struct {
	IsFinal    bool  // FIN bit
	Opcode     byte  // Operation code
	Masked     bool  // Whether the frame was masked
	PayloadLen int64 // Actual payload length
	MaskKey    [4]byte
	Payload    []byte // Unmasked payload, owned by the caller
}

// DecodeFrame parses one WebSocket frame header and payload from r.
// maxPayload bounds the payload length; zero disables the check.
// A clean end of stream before the first header byte yields io.EOF,
// a stream cut inside a frame yields io.ErrUnexpectedEOF.
func DecodeFrame(r io.Reader, maxPayload int64) (*WSFrame, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	if hdr[0]&RsvBits != 0 {
		return nil, ErrReservedBits
	}

	f := &WSFrame{
		IsFinal: hdr[0]&FinBit != 0,
		Opcode:  hdr[0] & 0x0F,
		Masked:  hdr[1]&MaskBit != 0,
	}
	payloadLen := int64(hdr[1] & 0x7F)

	switch payloadLen {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, unexpected(err)
		}
		payloadLen = int64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, unexpected(err)
		}
		n := binary.BigEndian.Uint64(ext[:])
		if n>>63 != 0 {
			return nil, ErrFrameTooLarge
		}
		payloadLen = int64(n)
	}

	if isControl(f.Opcode) {
		if !f.IsFinal {
			return nil, ErrControlFragmented
		}
		if payloadLen > MaxControlPayloadLen {
			return nil, ErrControlTooLong
		}
	}
	if maxPayload > 0 && payloadLen > maxPayload {
		return nil, ErrFrameTooLarge
	}

	if f.Masked {
		if _, err := io.ReadFull(r, f.MaskKey[:]); err != nil {
			return nil, unexpected(err)
		}
	}

	f.PayloadLen = payloadLen
	if maxPayload > 0 || payloadLen <= maxPrealloc {
		f.Payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return nil, unexpected(err)
		}
	} else {
		// unbounded: grow with the bytes that actually arrive instead of
		// trusting the declared length
		var buf bytes.Buffer
		if _, err := io.CopyN(&buf, r, payloadLen); err != nil {
			return nil, unexpected(err)
		}
		f.Payload = buf.Bytes()
	}
	if f.Masked {
		maskBytes(f.Payload, f.MaskKey)
	}
	return f, nil
}

// unexpected turns a clean EOF in the middle of a frame into ErrUnexpectedEOF.
func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// maskBytes applies XOR on buf using key. Masking and unmasking are the same operation.
func maskBytes(buf []byte, key [4]byte) {
	for i := range buf {
		buf[i] ^= key[i&3]
	}
}
