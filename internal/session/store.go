// File: internal/session/store.go
// Package session
// Author: momentics <momentics@gmail.com>
//
// Thread-safe session store for high concurrency, sharded by
// orcaman/concurrent-map.

package session

import (
	"io"
	"sort"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Store tracks live sessions by peer key.
type Store struct {
	sessions cmap.ConcurrentMap[string, *Session]
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{sessions: cmap.New[*Session]()}
}

// Create registers a new session for id. A stale record under the same id
// is replaced; it is not cancelled, its own driver still owns it.
func (st *Store) Create(id string, closer io.Closer) *Session {
	s := newSession(id, closer)
	st.sessions.Set(id, s)
	return s
}

// Get fetches a session if present.
func (st *Store) Get(id string) (*Session, bool) {
	return st.sessions.Get(id)
}

// Delete removes s if it is still the record stored under its id.
func (st *Store) Delete(s *Session) bool {
	return st.sessions.RemoveCb(s.id, func(_ string, v *Session, exists bool) bool {
		return exists && v == s
	})
}

// Len returns the number of tracked sessions.
func (st *Store) Len() int {
	return st.sessions.Count()
}

// Range applies fn to a snapshot of all sessions.
func (st *Store) Range(fn func(*Session)) {
	for t := range st.sessions.IterBuffered() {
		fn(t.Val)
	}
}

// CancelAll cancels every tracked session and returns how many there were.
// Records stay in the store until their drivers delete them.
func (st *Store) CancelAll() int {
	n := 0
	st.Range(func(s *Session) {
		_ = s.Cancel()
		n++
	})
	return n
}

// Snapshot maps each session id to its state, for debug probes.
func (st *Store) Snapshot() map[string]string {
	out := make(map[string]string, st.sessions.Count())
	st.Range(func(s *Session) {
		out[s.id] = s.State().String()
	})
	return out
}

// IDs returns the tracked ids in sorted order.
func (st *Store) IDs() []string {
	ids := st.sessions.Keys()
	sort.Strings(ids)
	return ids
}
