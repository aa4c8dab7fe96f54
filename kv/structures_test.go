package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/mmstore/memory"
)

func newHeap(t *testing.T) memory.Memory {
	t.Helper()

	mem, err := memory.NewHeap(memory.WithMaxSize(1 << 22))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })

	return mem
}

func TestBitMaskMap(t *testing.T) {
	mem := newHeap(t)

	m, err := NewBitMaskMap(mem)
	require.NoError(t, err)

	assert.Zero(t, m.Len())
	assert.True(t, m.Test(5))

	require.NoError(t, m.Clear(5))
	assert.Equal(t, uint64(64), m.Len())
	assert.False(t, m.Test(5))
	assert.True(t, m.Test(4))
	assert.True(t, m.Test(6))

	require.NoError(t, m.Clear(200))
	assert.Equal(t, uint64(256), m.Len())
	assert.True(t, m.Test(199))
	assert.Equal(t, uint64(2), m.Count(m.Len()))
	assert.Equal(t, uint64(1), m.Count(100))

	require.NoError(t, m.Set(5))
	assert.True(t, m.Test(5))

	again, err := NewBitMaskMap(mem)
	require.NoError(t, err)
	assert.Equal(t, m.Len(), again.Len())
	assert.False(t, again.Test(200))
}

func TestFixedChunkMap(t *testing.T) {
	mem := newHeap(t)

	m, err := NewFixedChunkMap(mem, 24)
	require.NoError(t, err)

	assert.Nil(t, m.Get(0))

	require.NoError(t, m.Ensure(0))
	assert.Equal(t, uint64(minChunkGrowth), m.Len())

	copy(m.Get(3), "chunk three")

	require.NoError(t, m.Ensure(1000))
	assert.Equal(t, uint64(1001), m.Len())
	assert.Len(t, m.Get(1000), 24)
	assert.Equal(t, "chunk three", string(m.Get(3)[:11]))

	_, err = NewFixedChunkMap(mem, 32)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = NewFixedChunkMap(newHeap(t), 12)
	assert.Error(t, err)
}
