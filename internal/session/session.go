// File: internal/session/session.go
// Package session
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Core session record with lifecycle state and cancellation.

package session

import (
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// State is the lifecycle phase of a session.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session holds per-connection lifecycle state. It never owns the write
// path; Cancel only closes the transport so the driver notices and exits.
type Session struct {
	id      string
	started time.Time
	state   atomic.Int32
	closer  io.Closer
	done    chan struct{}
	once    sync.Once
}

// newSession creates a session in StateConnecting.
func newSession(id string, closer io.Closer) *Session {
	return &Session{
		id:      id,
		started: time.Now(),
		closer:  closer,
		done:    make(chan struct{}),
	}
}

// ID returns the peer key.
func (s *Session) ID() string {
	return s.id
}

// Started returns the time the session was created.
func (s *Session) Started() time.Time {
	return s.started
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	return State(s.state.Load())
}

// SetState moves the session to st. Closed is terminal.
func (s *Session) SetState(st State) {
	for {
		cur := s.state.Load()
		if State(cur) == StateClosed {
			return
		}
		if s.state.CompareAndSwap(cur, int32(st)) {
			return
		}
	}
}

// Cancel signals session teardown and closes the transport; idempotent.
func (s *Session) Cancel() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		if s.closer != nil {
			err = s.closer.Close()
		}
	})
	return err
}

// Done returns a channel closed upon cancellation.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
