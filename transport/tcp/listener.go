// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package tcp

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"
)

// ListenerConfig holds configuration for the TCP listener.
type ListenerConfig struct {
	Addr      string        // TCP address to bind (e.g., "127.0.0.1:5555")
	ReusePort bool          // SO_REUSEPORT where the platform supports it
	NoDelay   bool          // TCP_NODELAY on accepted connections
	KeepAlive time.Duration // keep-alive period; zero uses the Go default, negative disables
}

// Listen binds cfg.Addr. Accepted connections are *net.TCPConn with
// NoDelay applied.
func Listen(ctx context.Context, cfg ListenerConfig) (net.Listener, error) {
	lc := net.ListenConfig{
		KeepAlive: cfg.KeepAlive,
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = setSockOpts(fd, cfg.ReusePort)
			}); err != nil {
				return err
			}
			return sockErr
		},
	}
	ln, err := lc.Listen(ctx, "tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("tcp listen %s: %w", cfg.Addr, err)
	}
	return &listener{Listener: ln, noDelay: cfg.NoDelay}, nil
}

type listener struct {
	net.Listener
	noDelay bool
}

func (l *listener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(l.noDelay)
	}
	return c, nil
}
