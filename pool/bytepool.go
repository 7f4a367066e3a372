// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

// DefaultBufferSize is the initial capacity of buffers handed out by the
// shared pool. It covers a full frame header plus a typical chat line.
const DefaultBufferSize = 4096

// maxRetained caps the capacity of buffers returned to the pool; larger
// ones are left to the GC so one huge message does not pin memory.
const maxRetained = 1 << 20

// BytePool hands out reusable byte slices with zero length.
type BytePool struct {
	pool *SyncPool[*[]byte]
	size int
}

// NewBytePool returns a pool whose fresh buffers have capacity size.
func NewBytePool(size int) *BytePool {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &BytePool{
		pool: NewSyncPool(
			func() *[]byte {
				b := make([]byte, 0, size)
				return &b
			},
			func(b *[]byte) { *b = (*b)[:0] },
		),
		size: size,
	}
}

// GetBuffer returns an empty buffer from the pool.
func (b *BytePool) GetBuffer() *[]byte {
	return b.pool.Get()
}

// PutBuffer returns a buffer to the pool.
func (b *BytePool) PutBuffer(buf *[]byte) {
	if buf == nil || cap(*buf) > maxRetained {
		return
	}
	b.pool.Put(buf)
}

// Allocated reports how many buffers were created rather than reused.
func (b *BytePool) Allocated() int64 {
	return b.pool.Allocated()
}

// Size reports the initial capacity of fresh buffers.
func (b *BytePool) Size() int {
	return b.size
}

var shared = NewBytePool(DefaultBufferSize)

// Shared returns the process-wide pool used when no pool is configured.
func Shared() *BytePool {
	return shared
}
