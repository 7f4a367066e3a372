package protocol_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-talk/protocol"
)

// frame encodes one frame for hand-built test streams.
func frame(t *testing.T, fin bool, opcode byte, payload string, mask bool) []byte {
	t.Helper()
	out, err := protocol.AppendFrame(nil, &protocol.WSFrame{IsFinal: fin, Opcode: opcode, Payload: []byte(payload)}, mask)
	require.NoError(t, err)
	return out
}

func stream(parts ...[]byte) io.Reader {
	return bytes.NewReader(bytes.Join(parts, nil))
}

func requireFramingError(t *testing.T, err error, target error) {
	t.Helper()
	require.Error(t, err)
	var fe *protocol.FramingError
	require.True(t, errors.As(err, &fe), "expected *FramingError, got %T", err)
	assert.ErrorIs(t, err, target)
}

func TestDecoderReassemblesFragments(t *testing.T) {
	dec := protocol.NewDecoder(stream(
		frame(t, false, protocol.OpcodeText, "hel", false),
		frame(t, false, protocol.OpcodeContinuation, "lo ", false),
		frame(t, true, protocol.OpcodePing, "p", false),
		frame(t, true, protocol.OpcodeContinuation, "world", false),
		frame(t, true, protocol.OpcodeText, "next", false),
	))

	ping, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, protocol.KindOther, ping.Kind(), "interleaved control frames come out first")
	assert.Equal(t, byte(protocol.OpcodePing), ping.Opcode())

	msg, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "hello world", msg.Text())

	msg, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "next", msg.Text())

	_, err = dec.Next()
	requireFramingError(t, err, io.EOF)
}

func TestDecoderOtherKinds(t *testing.T) {
	dec := protocol.NewDecoder(stream(
		frame(t, true, protocol.OpcodeBinary, "\x00\x01", false),
		frame(t, true, protocol.OpcodePong, "", false),
		frame(t, true, 0x3, "reserved", false),
	))
	for i := 0; i < 3; i++ {
		msg, err := dec.Next()
		require.NoError(t, err)
		assert.Equal(t, protocol.KindOther, msg.Kind())
		assert.Empty(t, msg.Text())
	}
}

func TestDecoderCloseFrames(t *testing.T) {
	msg, err := protocol.DecodeMessage(frame(t, true, protocol.OpcodeClose, "", false))
	require.NoError(t, err)
	assert.Equal(t, protocol.KindClose, msg.Kind())
	_, ok := msg.CloseFrame()
	assert.False(t, ok)

	msg, err = protocol.DecodeMessage(frame(t, true, protocol.OpcodeClose, "\x03\xe8done", false))
	require.NoError(t, err)
	cf, ok := msg.CloseFrame()
	require.True(t, ok)
	assert.Equal(t, protocol.CloseFrame{Code: protocol.CloseNormalClosure, Reason: "done"}, cf)
	assert.Equal(t, `Close(1000 "done")`, msg.String())

	_, err = protocol.DecodeMessage(frame(t, true, protocol.OpcodeClose, "\x03", false))
	requireFramingError(t, err, protocol.ErrInvalidClosePayload)

	_, err = protocol.DecodeMessage(frame(t, true, protocol.OpcodeClose, "\x03\xed", false)) // 1005
	requireFramingError(t, err, protocol.ErrInvalidClosePayload)
}

func TestDecoderViolations(t *testing.T) {
	cases := []struct {
		name   string
		data   []byte
		target error
	}{
		{"unexpected continuation", frame(t, true, protocol.OpcodeContinuation, "x", false), protocol.ErrUnexpectedContinuation},
		{"interrupted fragment", bytes.Join([][]byte{
			frame(t, false, protocol.OpcodeText, "a", false),
			frame(t, true, protocol.OpcodeText, "b", false),
		}, nil), protocol.ErrIncompleteMessage},
		{"reserved bits", []byte{0x81 | 0x40, 0x00}, protocol.ErrReservedBits},
		{"fragmented control", []byte{protocol.OpcodePing, 0x00}, protocol.ErrControlFragmented},
		{"long control", append([]byte{0x89, 126, 0x00, 0x7E}, make([]byte, 126)...), protocol.ErrControlTooLong},
		{"invalid utf8", frame(t, true, protocol.OpcodeText, "\xff\xfe", false), protocol.ErrInvalidUTF8},
		{"truncated payload", []byte{0x81, 0x05, 'a', 'b'}, io.ErrUnexpectedEOF},
		{"truncated header", []byte{0x81}, io.ErrUnexpectedEOF},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := protocol.DecodeMessage(c.data)
			requireFramingError(t, err, c.target)
		})
	}
}

func TestDecoderSizeLimits(t *testing.T) {
	dec := protocol.NewDecoder(stream(frame(t, true, protocol.OpcodeText, strings.Repeat("a", 11), false)),
		protocol.WithMaxFramePayload(10))
	_, err := dec.Next()
	requireFramingError(t, err, protocol.ErrFrameTooLarge)

	dec = protocol.NewDecoder(stream(
		frame(t, false, protocol.OpcodeText, "12345", false),
		frame(t, true, protocol.OpcodeContinuation, "67890", false),
	), protocol.WithMaxMessagePayload(8))
	_, err = dec.Next()
	requireFramingError(t, err, protocol.ErrMessageTooLarge)
}

func TestDecoderRoleEnforcement(t *testing.T) {
	server := protocol.NewDecoder(stream(frame(t, true, protocol.OpcodeText, "x", false)), protocol.WithRole(protocol.RoleServer))
	_, err := server.Next()
	requireFramingError(t, err, protocol.ErrUnmaskedFrame)

	client := protocol.NewDecoder(stream(frame(t, true, protocol.OpcodeText, "x", true)), protocol.WithRole(protocol.RoleClient))
	_, err = client.Next()
	requireFramingError(t, err, protocol.ErrMaskedFrame)

	server = protocol.NewDecoder(stream(frame(t, true, protocol.OpcodeText, "masked ok", true)), protocol.WithRole(protocol.RoleServer))
	msg, err := server.Next()
	require.NoError(t, err)
	assert.Equal(t, "masked ok", msg.Text())
}

func TestMessageStrings(t *testing.T) {
	assert.Equal(t, `Text("hi")`, protocol.TextMessage("hi").String())
	assert.Equal(t, "text", protocol.KindText.String())
	assert.Equal(t, "close", protocol.KindClose.String())
	assert.Equal(t, "other", protocol.KindOther.String())
	assert.Equal(t, "server", protocol.RoleServer.String())
}

func TestDecodeFrameUnlimitedDoesNotTrustLength(t *testing.T) {
	// claims 1 TiB, delivers 3 bytes
	data := []byte{0x82, 127, 0, 0, 0x01, 0, 0, 0, 0, 0, 'a', 'b', 'c'}
	_, err := protocol.DecodeFrame(bytes.NewReader(data), 0)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	big := strings.Repeat("y", 100<<10)
	f, err := protocol.DecodeFrame(bytes.NewReader(frame(t, true, protocol.OpcodeBinary, big, false)), 0)
	require.NoError(t, err)
	assert.Equal(t, big, string(f.Payload))
}
