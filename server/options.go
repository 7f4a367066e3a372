// File: server/options.go
// Package server defines functional options for the Server facade.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-talk/control"
	"github.com/momentics/hioload-talk/registry"
)

// ServerOption customizes server initialization.
type ServerOption func(*Server)

// WithLogger sets the logger for the accept loop and every session.
func WithLogger(l logrus.FieldLogger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithRegistry injects the connection registry. By default the server
// creates its own.
func WithRegistry(r *registry.Registry) ServerOption {
	return func(s *Server) {
		s.registry = r
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *control.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithDebugProbes registers the server's probes on dp.
func WithDebugProbes(dp *control.DebugProbes) ServerOption {
	return func(s *Server) {
		s.probes = dp
	}
}
