// File: protocol/decoder.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Decoder turns an ordered byte stream into complete messages, reassembling
// fragmented data messages and surfacing control frames as they arrive.

package protocol

import (
	"bufio"
	"bytes"
	"io"

	"github.com/eapache/queue"
)

// DecoderOption customizes a Decoder.
type DecoderOption func(*Decoder)

// WithRole enforces the masking rule of the given side.
func WithRole(r Role) DecoderOption {
	return func(d *Decoder) {
		d.role = r
	}
}

// WithMaxFramePayload overrides MaxFramePayload. Zero or less disables the
// limit; payloads are then buffered as they arrive, so memory still grows
// with whatever the peer sends.
func WithMaxFramePayload(n int64) DecoderOption {
	return func(d *Decoder) {
		d.maxFrame = n
	}
}

// WithMaxMessagePayload overrides MaxMessagePayload. Zero or less disables the limit.
func WithMaxMessagePayload(n int64) DecoderOption {
	return func(d *Decoder) {
		d.maxMessage = n
	}
}

// withFrameHook observes every frame read off the wire.
func withFrameHook(fn func(*WSFrame)) DecoderOption {
	return func(d *Decoder) {
		d.onFrame = fn
	}
}

// Decoder reads messages from a stream. It is not safe for concurrent use.
type Decoder struct {
	r          *bufio.Reader
	role       Role
	maxFrame   int64
	maxMessage int64
	onFrame    func(*WSFrame)

	// fragmented message in progress
	inProgress bool
	fragOpcode byte
	fragSize   int64
	fragments  *queue.Queue
}

// NewDecoder builds a Decoder over r. A *bufio.Reader is used as is, so
// bytes it already buffered (e.g. behind a handshake) are not lost.
func NewDecoder(r io.Reader, opts ...DecoderOption) *Decoder {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	d := &Decoder{
		r:          br,
		maxFrame:   MaxFramePayload,
		maxMessage: MaxMessagePayload,
		fragments:  queue.New(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Next consumes frames until one message is complete. Any transport or
// format failure comes back as *FramingError; the decoder must not be used
// after an error.
func (d *Decoder) Next() (Message, error) {
	for {
		f, err := DecodeFrame(d.r, d.maxFrame)
		if err != nil {
			return Message{}, &FramingError{Op: "read frame", Err: err}
		}
		if err := d.checkMask(f); err != nil {
			return Message{}, &FramingError{Op: "read frame", Err: err}
		}
		if d.onFrame != nil {
			d.onFrame(f)
		}

		var (
			msg  Message
			done bool
		)
		switch {
		case isControl(f.Opcode):
			msg, err = controlMessage(f.Opcode, f.Payload)
			done = true
		case f.Opcode == OpcodeContinuation:
			msg, done, err = d.continuation(f)
		default:
			msg, done, err = d.start(f)
		}
		if err != nil {
			d.reset()
			return Message{}, &FramingError{Op: "decode message", Err: err}
		}
		if done {
			return msg, nil
		}
	}
}

func (d *Decoder) checkMask(f *WSFrame) error {
	switch {
	case d.role == RoleServer && !f.Masked:
		return ErrUnmaskedFrame
	case d.role == RoleClient && f.Masked:
		return ErrMaskedFrame
	}
	return nil
}

// start handles the first frame of a data message.
func (d *Decoder) start(f *WSFrame) (Message, bool, error) {
	if d.inProgress {
		return Message{}, false, ErrIncompleteMessage
	}
	if f.IsFinal {
		if d.maxMessage > 0 && f.PayloadLen > d.maxMessage {
			return Message{}, false, ErrMessageTooLarge
		}
		msg, err := dataMessage(f.Opcode, f.Payload)
		return msg, err == nil, err
	}
	d.inProgress = true
	d.fragOpcode = f.Opcode
	return Message{}, false, d.push(f.Payload)
}

// continuation handles a follow-up fragment.
func (d *Decoder) continuation(f *WSFrame) (Message, bool, error) {
	if !d.inProgress {
		return Message{}, false, ErrUnexpectedContinuation
	}
	if err := d.push(f.Payload); err != nil {
		return Message{}, false, err
	}
	if !f.IsFinal {
		return Message{}, false, nil
	}

	var buf bytes.Buffer
	buf.Grow(int(d.fragSize))
	for d.fragments.Length() > 0 {
		buf.Write(d.fragments.Remove().([]byte))
	}
	opcode := d.fragOpcode
	d.reset()
	msg, err := dataMessage(opcode, buf.Bytes())
	return msg, err == nil, err
}

func (d *Decoder) push(p []byte) error {
	d.fragSize += int64(len(p))
	if d.maxMessage > 0 && d.fragSize > d.maxMessage {
		return ErrMessageTooLarge
	}
	d.fragments.Add(p)
	return nil
}

func (d *Decoder) reset() {
	for d.fragments.Length() > 0 {
		d.fragments.Remove()
	}
	d.inProgress = false
	d.fragOpcode = 0
	d.fragSize = 0
}

// DecodeMessage decodes the first message in b without role enforcement.
func DecodeMessage(b []byte) (Message, error) {
	return NewDecoder(bytes.NewReader(b)).Next()
}
