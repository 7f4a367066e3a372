// File: client/client.go
// Package client provides a native WebSocket client for hioload-talk.
// Author: momentics <momentics.com>
// License: Apache-2.0
//
// The client dials TCP, performs the RFC 6455 upgrade with a random key and
// accept validation, then sends masked frames over a protocol.Connection.

package client

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-talk/api"
	"github.com/momentics/hioload-talk/protocol"
)

// Option customizes Dial.
type Option func(*config)

type config struct {
	dialTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// WithDialTimeout bounds the TCP dial plus handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(c *config) { c.dialTimeout = d }
}

// WithReadTimeout sets an idle deadline for each ReadMessage call.
func WithReadTimeout(d time.Duration) Option {
	return func(c *config) { c.readTimeout = d }
}

// WithWriteTimeout bounds each write.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *config) { c.writeTimeout = d }
}

// Client is one WebSocket connection. ReadMessage may run concurrently with
// the send methods; sends are serialized internally.
type Client struct {
	conn      net.Conn
	c         *protocol.Connection
	rh        *protocol.ReadHalf
	wh        *protocol.WriteHalf
	mu        sync.Mutex
	closeSent atomic.Bool
	closed    atomic.Bool
}

// Dial connects to addr, which is a ws:// URL or a bare host:port.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	cfg := config{dialTimeout: 10 * time.Second}
	for _, o := range opts {
		o(&cfg)
	}

	u, err := parseAddr(addr)
	if err != nil {
		return nil, err
	}
	if cfg.dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.dialTimeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", u.Host, err)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	br, err := handshake(conn, u)
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})

	c := protocol.NewConnectionWithReader(conn, br, protocol.RoleClient,
		protocol.WithReadTimeout(cfg.readTimeout),
		protocol.WithWriteTimeout(cfg.writeTimeout),
	)
	rh, wh, err := c.Split()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Client{conn: conn, c: c, rh: rh, wh: wh}, nil
}

func handshake(conn net.Conn, u *url.URL) (*bufio.Reader, error) {
	key, err := protocol.NewClientKey()
	if err != nil {
		return nil, err
	}
	req := protocol.NewHandshakeRequest(u, key)
	if err := protocol.WriteHandshakeRequest(conn, req); err != nil {
		return nil, err
	}
	br := bufio.NewReader(conn)
	if err := protocol.DoClientHandshake(br, req, key); err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	return br, nil
}

// parseAddr accepts ws:// URLs or bare host:port.
func parseAddr(addr string) (*url.URL, error) {
	if !strings.Contains(addr, "://") {
		addr = "ws://" + addr + "/"
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "ws" {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "client: unsupported scheme").
			WithContext("scheme", u.Scheme)
	}
	if u.Host == "" {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "client: missing host").
			WithContext("addr", addr)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u, nil
}

// SendText sends a masked Text message.
func (c *Client) SendText(s string) error {
	return c.Send(protocol.TextMessage(s))
}

// Send sends any message. Once a Close message went out, Close does not
// send another one.
func (c *Client) Send(m protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.wh.WriteMessage(m); err != nil {
		return err
	}
	if m.Kind() == protocol.KindClose {
		c.closeSent.Store(true)
	}
	return nil
}

// ReadMessage blocks for the next message from the server.
func (c *Client) ReadMessage() (protocol.Message, error) {
	return c.rh.ReadMessage()
}

// Close sends a Close frame with code and reason unless one was already
// sent, then closes the connection. Only the first call has an effect.
func (c *Client) Close(code uint16, reason string) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	var sendErr error
	if !c.closeSent.Load() {
		sendErr = c.Send(protocol.CloseMessage(code, reason))
	}
	closeErr := c.wh.Close()
	if sendErr != nil {
		return sendErr
	}
	return closeErr
}

// LocalAddr returns the client side address, which is the server's key for us.
func (c *Client) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Stats returns connection counters.
func (c *Client) Stats() map[string]int64 {
	return c.c.Stats()
}
