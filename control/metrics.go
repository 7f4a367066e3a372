// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics collector for the echo path, backed by go-metrics.

package control

import (
	"time"

	metrics "github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
)

// Metric names.
const (
	ConnectionsAccepted = "connections.accepted"
	ConnectionsRejected = "connections.rejected"
	ConnectionsActive   = "connections.active"
	MessagesReceived    = "messages.received"
	MessagesEchoed      = "messages.echoed"
	EchoDropped         = "echo.dropped"
	FramesIgnored       = "frames.ignored"
	SessionsFailed      = "sessions.failed"
)

var counterNames = []string{
	ConnectionsAccepted,
	ConnectionsRejected,
	MessagesReceived,
	MessagesEchoed,
	EchoDropped,
	FramesIgnored,
	SessionsFailed,
}

// Metrics holds the server counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry metrics.Registry
	counters map[string]metrics.Counter
	active   metrics.Gauge
}

// NewMetrics registers all counters in r. A nil r gets a fresh registry.
func NewMetrics(r metrics.Registry) *Metrics {
	if r == nil {
		r = metrics.NewRegistry()
	}
	m := &Metrics{
		registry: r,
		counters: make(map[string]metrics.Counter, len(counterNames)),
		active:   metrics.GetOrRegisterGauge(ConnectionsActive, r),
	}
	for _, name := range counterNames {
		m.counters[name] = metrics.GetOrRegisterCounter(name, r)
	}
	return m
}

// Inc bumps the named counter by one. Unknown names are registered lazily.
func (m *Metrics) Inc(name string) {
	if m == nil {
		return
	}
	c, ok := m.counters[name]
	if !ok {
		c = metrics.GetOrRegisterCounter(name, m.registry)
	}
	c.Inc(1)
}

// SetActive records the current number of registered connections.
func (m *Metrics) SetActive(n int) {
	if m == nil {
		return
	}
	m.active.Update(int64(n))
}

// Registry exposes the underlying go-metrics registry for reporters.
func (m *Metrics) Registry() metrics.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// GetSnapshot returns the current value of every counter and gauge.
func (m *Metrics) GetSnapshot() map[string]int64 {
	out := make(map[string]int64)
	if m == nil {
		return out
	}
	m.registry.Each(func(name string, i interface{}) {
		switch v := i.(type) {
		case metrics.Counter:
			out[name] = v.Count()
		case metrics.Gauge:
			out[name] = v.Value()
		}
	})
	return out
}

// Report logs a snapshot every interval until stop is closed.
func (m *Metrics) Report(log logrus.FieldLogger, interval time.Duration, stop <-chan struct{}) {
	if m == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fields := logrus.Fields{}
			for k, v := range m.GetSnapshot() {
				fields[k] = v
			}
			log.WithFields(fields).Info("metrics")
		case <-stop:
			return
		}
	}
}
