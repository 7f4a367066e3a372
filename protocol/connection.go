// File: protocol/connection.go
// Package protocol implements the core WebSocket connection handling.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection owns one transport stream and splits it into a read half and a
// write half that can be driven from different goroutines.

package protocol

import (
	"bufio"
	"net"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-talk/api"
	"github.com/momentics/hioload-talk/pool"
)

const readBufferSize = 4096

// ConnOption customizes a Connection.
type ConnOption func(*connConfig)

type connConfig struct {
	readTimeout  time.Duration
	writeTimeout time.Duration
	maxFrame     int64
	maxMessage   int64
	pool         *pool.BytePool
}

// WithReadTimeout sets an idle deadline for each ReadMessage call. Zero disables it.
func WithReadTimeout(d time.Duration) ConnOption {
	return func(c *connConfig) {
		c.readTimeout = d
	}
}

// WithWriteTimeout bounds each write on the write half. Zero disables it.
func WithWriteTimeout(d time.Duration) ConnOption {
	return func(c *connConfig) {
		c.writeTimeout = d
	}
}

// WithMessageLimits overrides the inbound frame and message size limits.
func WithMessageLimits(maxFrame, maxMessage int64) ConnOption {
	return func(c *connConfig) {
		c.maxFrame = maxFrame
		c.maxMessage = maxMessage
	}
}

// WithBufferPool sets the pool used for encode buffers.
func WithBufferPool(p *pool.BytePool) ConnOption {
	return func(c *connConfig) {
		if p != nil {
			c.pool = p
		}
	}
}

// Connection encapsulates a full-duplex WebSocket session over one stream.
type Connection struct {
	stream api.Stream
	reader *bufio.Reader
	role   Role
	cfg    connConfig
	split  atomic.Bool

	bytesReceived  atomic.Int64
	bytesSent      atomic.Int64
	framesReceived atomic.Int64
	framesSent     atomic.Int64
}

// NewConnection takes exclusive ownership of stream.
func NewConnection(stream api.Stream, role Role, opts ...ConnOption) *Connection {
	return NewConnectionWithReader(stream, bufio.NewReaderSize(stream, readBufferSize), role, opts...)
}

// NewConnectionWithReader is NewConnection for a stream whose handshake was
// already read through br.
func NewConnectionWithReader(stream api.Stream, br *bufio.Reader, role Role, opts ...ConnOption) *Connection {
	cfg := connConfig{
		maxFrame:   MaxFramePayload,
		maxMessage: MaxMessagePayload,
		pool:       pool.Shared(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	return &Connection{
		stream: stream,
		reader: br,
		role:   role,
		cfg:    cfg,
	}
}

// RemoteAddr returns the peer address of the underlying stream.
func (c *Connection) RemoteAddr() net.Addr {
	return c.stream.RemoteAddr()
}

// Split partitions the connection into its read and write halves.
// It succeeds once; later calls return ErrAlreadySplit.
func (c *Connection) Split() (*ReadHalf, *WriteHalf, error) {
	if !c.split.CompareAndSwap(false, true) {
		return nil, nil, ErrAlreadySplit
	}
	dec := NewDecoder(c.reader,
		WithRole(c.role),
		WithMaxFramePayload(c.cfg.maxFrame),
		WithMaxMessagePayload(c.cfg.maxMessage),
		withFrameHook(func(f *WSFrame) {
			c.framesReceived.Add(1)
			c.bytesReceived.Add(f.PayloadLen)
		}),
	)
	return &ReadHalf{conn: c, dec: dec}, &WriteHalf{conn: c, mask: c.role == RoleClient}, nil
}

// Stats returns a snapshot of connection statistics for metrics reporting.
func (c *Connection) Stats() map[string]int64 {
	return map[string]int64{
		"bytes_received":  c.bytesReceived.Load(),
		"bytes_sent":      c.bytesSent.Load(),
		"frames_received": c.framesReceived.Load(),
		"frames_sent":     c.framesSent.Load(),
	}
}

// ReadHalf produces decoded messages in wire order.
type ReadHalf struct {
	conn *Connection
	dec  *Decoder
}

// ReadMessage blocks until one complete message is available.
// Failures, including a closed peer, are returned as *FramingError.
func (r *ReadHalf) ReadMessage() (Message, error) {
	if t := r.conn.cfg.readTimeout; t > 0 {
		if err := r.conn.stream.SetReadDeadline(time.Now().Add(t)); err != nil {
			return Message{}, &FramingError{Op: "set read deadline", Err: err}
		}
	}
	return r.dec.Next()
}

// RemoteAddr returns the peer address.
func (r *ReadHalf) RemoteAddr() net.Addr {
	return r.conn.RemoteAddr()
}

// WriteHalf transmits messages. It is not safe for concurrent use; callers
// sharing one serialize access themselves (see package registry).
type WriteHalf struct {
	conn   *Connection
	mask   bool
	closed atomic.Bool
}

// WriteText sends a Text message and returns once the bytes are handed to the transport.
func (w *WriteHalf) WriteText(payload string) error {
	return w.write("write text", TextMessage(payload))
}

// WriteMessage sends any message.
func (w *WriteHalf) WriteMessage(m Message) error {
	return w.write("write message", m)
}

func (w *WriteHalf) write(op string, m Message) error {
	if w.closed.Load() {
		return &WriteError{Op: op, Err: api.ErrTransportClosed}
	}

	bp := w.conn.cfg.pool
	buf := bp.GetBuffer()
	defer bp.PutBuffer(buf)

	out, err := AppendMessage(*buf, m, w.mask)
	if err != nil {
		return &WriteError{Op: op, Err: err}
	}
	*buf = out

	if t := w.conn.cfg.writeTimeout; t > 0 {
		if err := w.conn.stream.SetWriteDeadline(time.Now().Add(t)); err != nil {
			return &WriteError{Op: op, Err: err}
		}
	}
	if _, err := w.conn.stream.Write(out); err != nil {
		return &WriteError{Op: op, Err: err}
	}
	w.conn.framesSent.Add(1)
	w.conn.bytesSent.Add(int64(len(m.payload)))
	return nil
}

// Close shuts the underlying stream, which also unblocks the read half.
// Only the first call has an effect.
func (w *WriteHalf) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	return w.conn.stream.Close()
}

// RemoteAddr returns the peer address.
func (w *WriteHalf) RemoteAddr() net.Addr {
	return w.conn.RemoteAddr()
}
