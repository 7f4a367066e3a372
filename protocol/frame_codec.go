// File: protocol/frame_codec.go
// Package protocol implements frame and message encoding with size enforcement.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Data messages larger than MaxFramePayload are split into continuation
// frames so every frame we emit stays within the limit we accept ourselves.

package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// MaxFramePayload defines the default maximum payload size of a single frame.
const MaxFramePayload = 1 << 20 // 1 MiB

// MaxMessagePayload defines the default maximum size of an assembled message.
const MaxMessagePayload = 4 << 20 // 4 MiB

// AppendFrame serializes f onto dst and returns the extended slice.
// With mask set a fresh random key is drawn and the copied payload is masked;
// f.Payload itself is never modified.
func AppendFrame(dst []byte, f *WSFrame, mask bool) ([]byte, error) {
	plen := len(f.Payload)
	if isControl(f.Opcode) && plen > MaxControlPayloadLen {
		return dst, ErrControlTooLong
	}

	b0 := f.Opcode & 0x0F
	if f.IsFinal {
		b0 |= FinBit
	}
	var maskBit byte
	if mask {
		maskBit = MaskBit
	}

	var hdr [MaxFrameHeaderLen]byte
	hdr[0] = b0
	n := 2
	switch {
	case plen <= 125:
		hdr[1] = byte(plen) | maskBit
	case plen <= 0xFFFF:
		hdr[1] = 126 | maskBit
		binary.BigEndian.PutUint16(hdr[2:], uint16(plen))
		n += 2
	default:
		hdr[1] = 127 | maskBit
		binary.BigEndian.PutUint64(hdr[2:], uint64(plen))
		n += 8
	}

	var key [4]byte
	if mask {
		if _, err := rand.Read(key[:]); err != nil {
			return dst, fmt.Errorf("generate mask key: %w", err)
		}
		copy(hdr[n:], key[:])
		n += 4
	}

	dst = append(dst, hdr[:n]...)
	start := len(dst)
	dst = append(dst, f.Payload...)
	if mask {
		maskBytes(dst[start:], key)
	}
	return dst, nil
}

// AppendMessage serializes m onto dst. Data messages are fragmented at
// MaxFramePayload; control messages must fit a single frame.
func AppendMessage(dst []byte, m Message, mask bool) ([]byte, error) {
	payload := m.payload
	if isControl(m.opcode) {
		return AppendFrame(dst, &WSFrame{IsFinal: true, Opcode: m.opcode, Payload: payload}, mask)
	}

	opcode := m.opcode
	for {
		chunk := payload
		final := true
		if len(chunk) > MaxFramePayload {
			chunk = chunk[:MaxFramePayload]
			final = false
		}
		var err error
		dst, err = AppendFrame(dst, &WSFrame{IsFinal: final, Opcode: opcode, Payload: chunk}, mask)
		if err != nil {
			return dst, err
		}
		if final {
			return dst, nil
		}
		payload = payload[len(chunk):]
		opcode = OpcodeContinuation
	}
}

// EncodeText produces the unmasked wire bytes of a Text message, the form a
// server sends. DecodeMessage(EncodeText(p)) yields Text(p).
func EncodeText(payload string) []byte {
	// text messages never trip the control-frame limit and the unmasked
	// path draws no randomness, so the error is always nil here.
	out, _ := AppendMessage(nil, TextMessage(payload), false)
	return out
}
