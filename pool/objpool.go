// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package pool

import (
	"sync"
	"sync/atomic"
)

// ObjectPool is a generic object pool.
type ObjectPool[T any] interface {
	Get() T
	Put(T)
}

var _ ObjectPool[*[]byte] = (*SyncPool[*[]byte])(nil)

// SyncPool is a typed sync.Pool. Objects are passed through reset on the
// way out, so callers always see a clean value.
type SyncPool[T any] struct {
	pool      sync.Pool
	reset     func(T)
	allocated atomic.Int64
}

// NewSyncPool creates a pool. reset may be nil.
func NewSyncPool[T any](creator func() T, reset func(T)) *SyncPool[T] {
	sp := &SyncPool[T]{reset: reset}
	sp.pool.New = func() any {
		sp.allocated.Add(1)
		return creator()
	}
	return sp
}

// Get returns a pooled or freshly created object.
func (sp *SyncPool[T]) Get() T {
	obj := sp.pool.Get().(T)
	if sp.reset != nil {
		sp.reset(obj)
	}
	return obj
}

// Put hands obj back for reuse.
func (sp *SyncPool[T]) Put(obj T) {
	sp.pool.Put(obj)
}

// Allocated reports how many objects the creator has built so far.
func (sp *SyncPool[T]) Allocated() int64 {
	return sp.allocated.Load()
}
