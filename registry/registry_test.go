package registry_test

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-talk/control"
	"github.com/momentics/hioload-talk/protocol"
	"github.com/momentics/hioload-talk/registry"
)

// fakeWriter records writes and flags overlapping or post-close use.
type fakeWriter struct {
	mu       sync.Mutex
	texts    []string
	inFlight atomic.Int32
	overlap  atomic.Bool
	closed   atomic.Bool
	lateUse  atomic.Bool
	delay    time.Duration
}

func (f *fakeWriter) WriteText(s string) error {
	if f.closed.Load() {
		f.lateUse.Store(true)
		return errors.New("closed")
	}
	if f.inFlight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.inFlight.Add(-1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.texts = append(f.texts, s)
	f.mu.Unlock()
	return nil
}

func (f *fakeWriter) WriteMessage(m protocol.Message) error {
	return f.WriteText(m.Text())
}

func (f *fakeWriter) Close() error {
	if f.inFlight.Load() > 0 {
		f.lateUse.Store(true)
	}
	f.closed.Store(true)
	return nil
}

func (f *fakeWriter) got() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func writeText(s string) func(registry.Writer) error {
	return func(w registry.Writer) error { return w.WriteText(s) }
}

func TestInsertRemoveSizes(t *testing.T) {
	m := control.NewMetrics(nil)
	r := registry.New(registry.WithMetrics(m))

	assert.Equal(t, 1, r.Insert("127.0.0.1:1", &fakeWriter{}))
	assert.Equal(t, 2, r.Insert("127.0.0.1:2", &fakeWriter{}))
	assert.EqualValues(t, 2, m.GetSnapshot()[control.ConnectionsActive])
	assert.Equal(t, []string{"127.0.0.1:1", "127.0.0.1:2"}, r.Keys())

	assert.Equal(t, 1, r.Remove("127.0.0.1:1"))
	assert.Equal(t, 1, r.Remove("127.0.0.1:1"), "second removal is a no-op")
	assert.Equal(t, 1, r.Remove("never-there"))
	assert.Equal(t, 0, r.Remove("127.0.0.1:2"))
	assert.Equal(t, 0, r.Len())
	assert.EqualValues(t, 0, m.GetSnapshot()[control.ConnectionsActive])
}

func TestWithWriterMiss(t *testing.T) {
	r := registry.New()
	called := false
	found, err := r.WithWriter("ghost", func(registry.Writer) error {
		called = true
		return nil
	})
	assert.False(t, found)
	assert.NoError(t, err)
	assert.False(t, called)
}

func TestWithWriterReturnsWriteError(t *testing.T) {
	r := registry.New()
	r.Insert("peer", &fakeWriter{})
	boom := errors.New("boom")

	found, err := r.WithWriter("peer", func(registry.Writer) error { return boom })
	assert.True(t, found)
	assert.ErrorIs(t, err, boom)
}

func TestRemoveRetiresHandle(t *testing.T) {
	r := registry.New()
	w := &fakeWriter{}
	r.Insert("peer", w)
	r.Remove("peer")

	assert.True(t, w.closed.Load())
	found, err := r.WithWriter("peer", writeText("late"))
	assert.False(t, found)
	assert.NoError(t, err)
	assert.Empty(t, w.got())
}

func TestInsertReplacesAndRetires(t *testing.T) {
	r := registry.New()
	first, second := &fakeWriter{}, &fakeWriter{}
	assert.Equal(t, 1, r.Insert("peer", first))
	assert.Equal(t, 1, r.Insert("peer", second))

	assert.True(t, first.closed.Load())
	found, err := r.WithWriter("peer", writeText("hi"))
	require.True(t, found)
	require.NoError(t, err)
	assert.Empty(t, first.got())
	assert.Equal(t, []string{"hi"}, second.got())
}

func TestWritesAreExclusive(t *testing.T) {
	r := registry.New()
	w := &fakeWriter{delay: time.Millisecond}
	r.Insert("peer", w)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = r.WithWriter("peer", writeText(fmt.Sprint(i)))
		}(i)
	}
	wg.Wait()
	assert.False(t, w.overlap.Load())
	assert.Len(t, w.got(), 16)
}

func TestSlowWriterDoesNotBlockOthers(t *testing.T) {
	r := registry.New()
	slow := &fakeWriter{delay: 200 * time.Millisecond}
	fast := &fakeWriter{}
	r.Insert("slow", slow)
	r.Insert("fast", fast)

	go func() { _, _ = r.WithWriter("slow", writeText("x")) }()
	time.Sleep(10 * time.Millisecond)

	start := time.Now()
	found, err := r.WithWriter("fast", writeText("y"))
	require.True(t, found)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, 2, r.Len())
}

func TestRemoveWaitsForInFlightWrite(t *testing.T) {
	r := registry.New()
	w := &fakeWriter{delay: 50 * time.Millisecond}
	r.Insert("peer", w)

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.WithWriter("peer", func(wr registry.Writer) error {
			close(started)
			return wr.WriteText("in flight")
		})
	}()
	<-started
	r.Remove("peer")
	<-done

	assert.False(t, w.lateUse.Load(), "handle closed during a write")
	assert.Equal(t, []string{"in flight"}, w.got())
}

func TestConcurrentRemoveAndWrite(t *testing.T) {
	r := registry.New()
	writers := make([]*fakeWriter, 32)
	for i := range writers {
		writers[i] = &fakeWriter{}
		r.Insert(fmt.Sprint(i), writers[i])
	}

	var wg sync.WaitGroup
	for i := range writers {
		key := fmt.Sprint(i)
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, _ = r.WithWriter(key, writeText("m"))
			}
		}()
		go func() { defer wg.Done(); r.Remove(key) }()
		go func() { defer wg.Done(); r.Remove(key) }()
	}
	wg.Wait()

	assert.Equal(t, 0, r.Len())
	for _, w := range writers {
		assert.False(t, w.lateUse.Load())
		assert.True(t, w.closed.Load())
	}
}
