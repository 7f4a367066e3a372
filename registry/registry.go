// registry/registry.go
// Author: momentics <momentics@gmail.com>
//
// The map lock guards membership only. Each entry carries its own lock that
// serializes writes to its handle against retirement, so a slow peer never
// stalls lookups for other peers.

package registry

import (
	"io"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-talk/control"
	"github.com/momentics/hioload-talk/protocol"
)

// Writer is the write capability stored per peer. *protocol.WriteHalf implements it.
type Writer interface {
	WriteText(payload string) error
	WriteMessage(m protocol.Message) error
	Close() error
}

var _ Writer = (*protocol.WriteHalf)(nil)

type entry struct {
	mu      sync.Mutex
	w       Writer
	retired bool
}

// retire closes the handle once any in-flight write has finished.
func (e *entry) retire() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.retired {
		return nil
	}
	e.retired = true
	return e.w.Close()
}

// Option customizes a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for replacement warnings.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMetrics publishes the registry size as the connections.active gauge.
func WithMetrics(m *control.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// Registry maps peer keys to write handles. It is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry

	log     logrus.FieldLogger
	metrics *control.Metrics
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	r := &Registry{
		entries: make(map[string]*entry),
		log:     discard,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Insert associates key with w and returns the resulting size. An existing
// handle under the same key is replaced and retired.
func (r *Registry) Insert(key string, w Writer) int {
	r.mu.Lock()
	old := r.entries[key]
	r.entries[key] = &entry{w: w}
	size := len(r.entries)
	r.metrics.SetActive(size)
	r.mu.Unlock()

	if old != nil {
		r.log.WithFields(logrus.Fields{"peer": key, "size": size}).
			Warn("registry: replacing existing connection")
		if err := old.retire(); err != nil {
			r.log.WithField("peer", key).WithError(err).Debug("registry: close displaced connection")
		}
	}
	return size
}

// Remove deletes key and retires its handle, returning the resulting size.
// Removing an absent key is a no-op. When Remove returns, no write on the
// removed handle is in progress and none will start.
func (r *Registry) Remove(key string) int {
	r.mu.Lock()
	e := r.entries[key]
	if e != nil {
		delete(r.entries, key)
		r.metrics.SetActive(len(r.entries))
	}
	size := len(r.entries)
	r.mu.Unlock()

	if e == nil {
		return size
	}
	if err := e.retire(); err != nil {
		r.log.WithField("peer", key).WithError(err).Debug("registry: close removed connection")
	}
	return size
}

// WithWriter runs fn with exclusive access to the handle registered under
// key. found is false when the key is absent or its handle was retired
// concurrently; fn is not called then. err is whatever fn returned.
func (r *Registry) WithWriter(key string, fn func(Writer) error) (found bool, err error) {
	r.mu.Lock()
	e := r.entries[key]
	r.mu.Unlock()
	if e == nil {
		return false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.retired {
		return false, nil
	}
	return true, fn(e.w)
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Keys returns the registered peer keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	r.mu.Unlock()
	sort.Strings(keys)
	return keys
}
