// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server accepts TCP connections and runs one session driver goroutine per
// connection. The registry is the only state shared between sessions.

package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-talk/control"
	"github.com/momentics/hioload-talk/internal/logging"
	"github.com/momentics/hioload-talk/internal/session"
	"github.com/momentics/hioload-talk/pool"
	"github.com/momentics/hioload-talk/registry"
	"github.com/momentics/hioload-talk/transport/tcp"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("server: closed")

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Server is the echo server facade.
type Server struct {
	cfg      *Config
	log      logrus.FieldLogger
	registry *registry.Registry
	metrics  *control.Metrics
	probes   *control.DebugProbes
	sessions *session.Store
	pool     *pool.BytePool

	mu       sync.Mutex
	listener net.Listener
	closing  atomic.Bool
	wg       sync.WaitGroup
}

// NewServer builds the Server facade. A nil cfg means DefaultConfig.
func NewServer(cfg *Config, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if err := c.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      &c,
		log:      logging.Discard(),
		sessions: session.NewStore(),
		pool:     pool.Shared(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.registry == nil {
		s.registry = registry.New(registry.WithLogger(s.log), registry.WithMetrics(s.metrics))
	}
	if s.probes != nil {
		s.registerProbes(s.probes)
	}
	return s, nil
}

func (s *Server) registerProbes(dp *control.DebugProbes) {
	dp.RegisterProbe("registry.size", func() any { return s.registry.Len() })
	dp.RegisterProbe("registry.peers", func() any { return s.registry.Keys() })
	dp.RegisterProbe("sessions", func() any { return s.sessions.Snapshot() })
}

// ListenAndServe binds cfg.ListenAddr and serves until ctx is done or
// Shutdown is called. A bind failure is returned as is.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := tcp.Listen(ctx, tcp.ListenerConfig{
		Addr:      s.cfg.ListenAddr,
		ReusePort: s.cfg.ReusePort,
		NoDelay:   s.cfg.NoDelay,
	})
	if err != nil {
		return err
	}
	s.log.WithField("addr", ln.Addr().String()).Info("listening")
	return s.Serve(ctx, ln)
}

// Serve runs the accept loop on ln. It returns ErrServerClosed after
// Shutdown, ctx.Err() once ctx is done, or the accept error that closed ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closing.Load() {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			switch {
			case s.closing.Load():
				return ErrServerClosed
			case ctx.Err() != nil:
				return ctx.Err()
			case errors.Is(err, net.ErrClosed):
				return err
			}
			if backoff == 0 {
				backoff = minAcceptBackoff
			} else if backoff *= 2; backoff > maxAcceptBackoff {
				backoff = maxAcceptBackoff
			}
			s.log.WithError(err).WithField("retry_in", backoff).Warn("accept failed")
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		s.mu.Lock()
		if s.closing.Load() {
			s.mu.Unlock()
			conn.Close()
			return ErrServerClosed
		}
		s.wg.Add(1)
		s.mu.Unlock()

		s.metrics.Inc(control.ConnectionsAccepted)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

// Shutdown closes the listener, cancels every live session and waits for
// their drivers to deregister, or for ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing.Store(true)
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	n := s.sessions.CancelAll()
	s.log.WithField("sessions", n).Info("shutting down")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Registry exposes the connection registry.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// Config returns a copy of the effective configuration.
func (s *Server) Config() Config {
	return *s.cfg
}

// Stats returns the metric counters plus live registry and session counts.
func (s *Server) Stats() map[string]int64 {
	out := s.metrics.GetSnapshot()
	out["registry.size"] = int64(s.registry.Len())
	out["sessions"] = int64(s.sessions.Len())
	return out
}
