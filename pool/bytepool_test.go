package pool_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-talk/pool"
)

func TestBytePoolReturnsEmptyBuffers(t *testing.T) {
	bp := pool.NewBytePool(128)
	assert.Equal(t, 128, bp.Size())

	b1 := bp.GetBuffer()
	require.NotNil(t, b1)
	assert.Len(t, *b1, 0)
	assert.GreaterOrEqual(t, cap(*b1), 128)

	*b1 = append(*b1, "payload"...)
	bp.PutBuffer(b1)

	b2 := bp.GetBuffer()
	assert.Len(t, *b2, 0, "reused buffer must be reset")
}

func TestBytePoolDropsOversizedBuffers(t *testing.T) {
	bp := pool.NewBytePool(0)
	assert.Equal(t, pool.DefaultBufferSize, bp.Size())

	big := make([]byte, 0, 4<<20)
	bp.PutBuffer(&big)
	bp.PutBuffer(nil)

	got := bp.GetBuffer()
	assert.Less(t, cap(*got), 4<<20)
}

func TestSyncPoolResetsOnGet(t *testing.T) {
	sp := pool.NewSyncPool(
		func() *int {
			v := 7
			return &v
		},
		func(v *int) { *v = 0 },
	)
	v := sp.Get()
	assert.Equal(t, 0, *v)
	*v = 42
	sp.Put(v)

	assert.Equal(t, 0, *sp.Get())
	assert.GreaterOrEqual(t, sp.Allocated(), int64(1))
}
