// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Defines the byte-stream capability the protocol layer runs on.

package api

import (
	"net"
	"time"
)

// Stream abstracts an ordered, reliable, full-duplex byte stream.
// Reads and writes travel in independent directions and may be driven
// from different goroutines. net.Conn satisfies it.
type Stream interface {
	// Read reads into a preallocated buffer
	Read(p []byte) (n int, err error)

	// Write writes buffer contents into the stream
	Write(p []byte) (n int, err error)

	// Close shuts down both directions
	Close() error

	// RemoteAddr identifies the peer
	RemoteAddr() net.Addr

	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

var _ Stream = (net.Conn)(nil)
