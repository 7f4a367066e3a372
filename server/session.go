// File: server/session.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Session driver: Connecting -> Active -> Closed for one connection.
// The driver keeps the read half; the write half lives in the registry and
// every write, echoes included, goes through it.

package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-talk/api"
	"github.com/momentics/hioload-talk/control"
	"github.com/momentics/hioload-talk/internal/session"
	"github.com/momentics/hioload-talk/protocol"
	"github.com/momentics/hioload-talk/registry"
)

const handshakeBufferSize = 4096

type driver struct {
	srv  *Server
	key  string
	conn net.Conn
	sess *session.Session
	log  logrus.FieldLogger

	removeOnce sync.Once
}

// handle owns conn until the session ends. Nothing escapes it.
func (s *Server) handle(conn net.Conn) {
	key := conn.RemoteAddr().String()
	sess := s.sessions.Create(key, conn)
	defer s.sessions.Delete(sess)
	if s.closing.Load() {
		_ = sess.Cancel()
	}

	d := &driver{
		srv:  s,
		key:  key,
		conn: conn,
		sess: sess,
		log:  s.log.WithField("peer", key),
	}
	rh, ok := d.connect()
	if !ok {
		return
	}
	d.serve(rh)
}

// connect performs the handshake and registers the write half.
func (d *driver) connect() (*protocol.ReadHalf, bool) {
	cfg := d.srv.cfg
	if cfg.HandshakeTimeout > 0 {
		_ = d.conn.SetDeadline(time.Now().Add(cfg.HandshakeTimeout))
	}

	br := bufio.NewReaderSize(d.conn, handshakeBufferSize)
	hdr, err := protocol.DoHandshakeCore(br)
	switch {
	case err == nil:
		err = protocol.WriteHandshakeResponse(d.conn, hdr)
	case isTimeout(err):
		// a silent peer gets no answer
		err = handshakeTimeout(err, cfg.HandshakeTimeout)
	default:
		_ = protocol.WriteHandshakeRejection(d.conn, http.StatusBadRequest, err.Error())
	}
	if err != nil {
		d.fail(err)
		return nil, false
	}
	_ = d.conn.SetDeadline(time.Time{})

	c := protocol.NewConnectionWithReader(d.conn, br, protocol.RoleServer,
		protocol.WithReadTimeout(cfg.ReadTimeout),
		protocol.WithWriteTimeout(cfg.WriteTimeout),
		protocol.WithMessageLimits(cfg.MaxFramePayload, cfg.MaxMessagePayload),
		protocol.WithBufferPool(d.srv.pool),
	)
	rh, wh, err := c.Split()
	if err != nil {
		d.fail(err)
		return nil, false
	}

	size := d.srv.registry.Insert(d.key, wh)
	d.sess.SetState(session.StateActive)
	d.log.WithField("size", size).Info("connect")
	return rh, true
}

// fail ends a session that never reached Active. The registry is not touched.
func (d *driver) fail(err error) {
	d.srv.metrics.Inc(control.ConnectionsRejected)
	d.sess.SetState(session.StateClosed)
	_ = d.conn.Close()
	d.log.WithError(err).Warn("handshake failed")
}

// serve reads until the peer closes or the connection fails.
func (d *driver) serve(rh *protocol.ReadHalf) {
	defer d.remove()
	m := d.srv.metrics

	for {
		msg, err := rh.ReadMessage()
		if err != nil {
			d.readFailed(err)
			return
		}

		switch msg.Kind() {
		case protocol.KindText:
			m.Inc(control.MessagesReceived)
			if !d.echo(msg.Text()) {
				return
			}
		case protocol.KindClose:
			code := uint16(protocol.CloseNormalClosure)
			if cf, ok := msg.CloseFrame(); ok {
				code = cf.Code
			}
			d.sendClose(code, "")
			d.log.WithField("close", msg.String()).Debug("peer closed")
			return
		default:
			m.Inc(control.FramesIgnored)
			d.log.WithField("opcode", msg.Opcode()).Debug("ignoring frame")
		}
	}
}

// echo writes payload back through the registry. It reports false when the
// session must end.
func (d *driver) echo(payload string) bool {
	found, err := d.srv.registry.WithWriter(d.key, func(w registry.Writer) error {
		return w.WriteText(payload)
	})
	switch {
	case !found:
		d.srv.metrics.Inc(control.EchoDropped)
		d.log.Debug("echo dropped: connection no longer registered")
		return true
	case err != nil:
		d.srv.metrics.Inc(control.SessionsFailed)
		d.log.WithError(err).Warn("echo failed")
		return false
	}
	d.srv.metrics.Inc(control.MessagesEchoed)
	return true
}

// sendClose is best effort; the session ends either way.
func (d *driver) sendClose(code uint16, reason string) {
	_, err := d.srv.registry.WithWriter(d.key, func(w registry.Writer) error {
		return w.WriteMessage(protocol.CloseMessage(code, reason))
	})
	if err != nil {
		d.log.WithError(err).Debug("close reply failed")
	}
}

func (d *driver) readFailed(err error) {
	if isDisconnect(err) {
		d.log.WithError(err).Debug("connection closed")
		return
	}
	d.srv.metrics.Inc(control.SessionsFailed)
	d.log.WithError(err).Warn("read failed")
	if code, ok := closeCodeFor(err); ok {
		d.sendClose(code, "")
	}
}

// remove deregisters the session exactly once.
func (d *driver) remove() {
	d.removeOnce.Do(func() {
		size := d.srv.registry.Remove(d.key)
		d.sess.SetState(session.StateClosed)
		d.log.WithField("size", size).Info("disconnect")
	})
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// handshakeTimeout reports an upgrade that did not finish within d.
func handshakeTimeout(cause error, d time.Duration) error {
	return api.NewError(api.ErrCodeTimeout, "server: handshake timed out").
		WithContext("timeout", d).
		WithContext("cause", cause.Error())
}

// isDisconnect reports a plain transport end rather than a failure.
func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}

// closeCodeFor maps a protocol violation to the close code sent before
// dropping the peer.
func closeCodeFor(err error) (uint16, bool) {
	switch {
	case errors.Is(err, protocol.ErrInvalidUTF8):
		return protocol.CloseInvalidPayloadData, true
	case errors.Is(err, protocol.ErrFrameTooLarge), errors.Is(err, protocol.ErrMessageTooLarge):
		return protocol.CloseMessageTooBig, true
	case errors.Is(err, protocol.ErrReservedBits),
		errors.Is(err, protocol.ErrControlFragmented),
		errors.Is(err, protocol.ErrControlTooLong),
		errors.Is(err, protocol.ErrUnexpectedContinuation),
		errors.Is(err, protocol.ErrIncompleteMessage),
		errors.Is(err, protocol.ErrInvalidClosePayload),
		errors.Is(err, protocol.ErrUnmaskedFrame),
		errors.Is(err, protocol.ErrMaskedFrame):
		return protocol.CloseProtocolError, true
	}
	return 0, false
}
