// File: protocol/message.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// MessageKind classifies a decoded message.
type MessageKind uint8

const (
	// KindOther covers binary, ping, pong and reserved opcodes.
	KindOther MessageKind = iota
	KindText
	KindClose
)

func (k MessageKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindClose:
		return "close"
	default:
		return "other"
	}
}

// CloseFrame is the status carried by a Close message.
type CloseFrame struct {
	Code   uint16
	Reason string
}

func (c CloseFrame) String() string {
	if c.Reason == "" {
		return fmt.Sprintf("%d", c.Code)
	}
	return fmt.Sprintf("%d %q", c.Code, c.Reason)
}

// Message is one application-level unit: a complete (reassembled) data
// message or a single control frame.
type Message struct {
	kind    MessageKind
	opcode  byte
	payload []byte
	text    string
	close   *CloseFrame
}

// TextMessage builds an outbound Text message.
func TextMessage(s string) Message {
	return Message{kind: KindText, opcode: OpcodeText, payload: []byte(s), text: s}
}

// CloseMessage builds an outbound Close message. CloseNoStatusRcvd sends an
// empty close payload, as that code must never appear on the wire.
func CloseMessage(code uint16, reason string) Message {
	if code == CloseNoStatusRcvd {
		return Message{kind: KindClose, opcode: OpcodeClose}
	}
	cf := &CloseFrame{Code: code, Reason: reason}
	return Message{kind: KindClose, opcode: OpcodeClose, payload: closePayload(cf), close: cf}
}

// Kind reports the message category.
func (m Message) Kind() MessageKind { return m.kind }

// Opcode reports the opcode of the first frame of the message.
func (m Message) Opcode() byte { return m.opcode }

// Text returns the payload of a Text message, "" otherwise.
func (m Message) Text() string { return m.text }

// Payload returns the raw payload bytes.
func (m Message) Payload() []byte { return m.payload }

// CloseFrame returns the close status; ok is false for non-Close messages
// and for Close messages without a status code.
func (m Message) CloseFrame() (cf CloseFrame, ok bool) {
	if m.close == nil {
		return CloseFrame{}, false
	}
	return *m.close, true
}

func (m Message) String() string {
	switch m.kind {
	case KindText:
		return fmt.Sprintf("Text(%q)", m.text)
	case KindClose:
		if m.close == nil {
			return "Close()"
		}
		return "Close(" + m.close.String() + ")"
	default:
		return fmt.Sprintf("Other(opcode=%#x, %d bytes)", m.opcode, len(m.payload))
	}
}

// dataMessage classifies a complete data payload.
func dataMessage(opcode byte, payload []byte) (Message, error) {
	if opcode != OpcodeText {
		return Message{kind: KindOther, opcode: opcode, payload: payload}, nil
	}
	if !utf8.Valid(payload) {
		return Message{}, ErrInvalidUTF8
	}
	return Message{kind: KindText, opcode: opcode, payload: payload, text: string(payload)}, nil
}

// controlMessage classifies a control frame.
func controlMessage(opcode byte, payload []byte) (Message, error) {
	if opcode != OpcodeClose {
		return Message{kind: KindOther, opcode: opcode, payload: payload}, nil
	}
	cf, err := parseClosePayload(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{kind: KindClose, opcode: opcode, payload: payload, close: cf}, nil
}

func parseClosePayload(p []byte) (*CloseFrame, error) {
	switch {
	case len(p) == 0:
		return nil, nil
	case len(p) == 1:
		return nil, ErrInvalidClosePayload
	}
	code := binary.BigEndian.Uint16(p)
	if !validCloseCode(code) {
		return nil, fmt.Errorf("%w: code %d", ErrInvalidClosePayload, code)
	}
	if !utf8.Valid(p[2:]) {
		return nil, ErrInvalidUTF8
	}
	return &CloseFrame{Code: code, Reason: string(p[2:])}, nil
}

func closePayload(cf *CloseFrame) []byte {
	p := make([]byte, 2, 2+len(cf.Reason))
	binary.BigEndian.PutUint16(p, cf.Code)
	return append(p, cf.Reason...)
}

// validCloseCode reports whether code may appear in a close frame on the wire.
func validCloseCode(code uint16) bool {
	switch {
	case code >= 3000 && code <= 4999:
		return true
	case code < 1000 || code > 1011:
		return false
	case code == 1004, code == CloseNoStatusRcvd, code == CloseAbnormalClosure:
		return false
	}
	return true
}
