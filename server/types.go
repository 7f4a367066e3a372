// File: server/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"time"

	"github.com/momentics/hioload-talk/api"
	"github.com/momentics/hioload-talk/protocol"
)

// DefaultListenAddr is the bind address used when none is configured.
const DefaultListenAddr = "127.0.0.1:5555"

// Config holds all server-side configuration parameters.
type Config struct {
	ListenAddr        string        // TCP bind address, e.g. "127.0.0.1:5555"
	ReadTimeout       time.Duration // idle limit between inbound messages (0 = none)
	WriteTimeout      time.Duration // per-write deadline (0 = none)
	HandshakeTimeout  time.Duration // bound on the HTTP upgrade exchange
	ShutdownTimeout   time.Duration // graceful shutdown budget used by the binary
	MaxFramePayload   int64         // inbound single frame limit
	MaxMessagePayload int64         // inbound reassembled message limit
	ReusePort         bool          // SO_REUSEPORT on the listener
	NoDelay           bool          // TCP_NODELAY on accepted connections
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:        DefaultListenAddr,
		ReadTimeout:       0,
		WriteTimeout:      10 * time.Second,
		HandshakeTimeout:  5 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		MaxFramePayload:   protocol.MaxFramePayload,
		MaxMessagePayload: protocol.MaxMessagePayload,
		NoDelay:           true,
	}
}

// Validate reports the first invalid field as an *api.Error.
func (c *Config) Validate() error {
	invalid := func(field string, value any) error {
		return api.NewError(api.ErrCodeInvalidArgument, "server: invalid configuration").
			WithContext("field", field).
			WithContext("value", value)
	}
	switch {
	case c.ListenAddr == "":
		return invalid("ListenAddr", c.ListenAddr)
	case c.ReadTimeout < 0:
		return invalid("ReadTimeout", c.ReadTimeout)
	case c.WriteTimeout < 0:
		return invalid("WriteTimeout", c.WriteTimeout)
	case c.HandshakeTimeout < 0:
		return invalid("HandshakeTimeout", c.HandshakeTimeout)
	case c.ShutdownTimeout < 0:
		return invalid("ShutdownTimeout", c.ShutdownTimeout)
	case c.MaxFramePayload <= 0:
		return invalid("MaxFramePayload", c.MaxFramePayload)
	case c.MaxMessagePayload < c.MaxFramePayload:
		return invalid("MaxMessagePayload", c.MaxMessagePayload)
	}
	return nil
}
