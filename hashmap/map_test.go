package hashmap

import (
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/mmstore/memory"
)

type pair struct {
	A uint64
	B uint64
}

func newHeapMemory(t *testing.T) memory.Memory {
	t.Helper()

	mem, err := memory.NewHeap(memory.WithMaxSize(1 << 26))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })

	return mem
}

func TestMap_Basic(t *testing.T) {
	m, err := New[uint64, pair](newHeapMemory(t), 100)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, m.Capacity(), 100+128)

	inserted, err := m.Emplace(7, pair{1, 2})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = m.Emplace(7, pair{3, 4})
	require.NoError(t, err)
	assert.False(t, inserted)

	v, ok := m.Find(7)
	require.True(t, ok)
	assert.Equal(t, pair{1, 2}, v)

	require.NoError(t, m.Upsert(7, pair{5, 6}))
	v, _ = m.Find(7)
	assert.Equal(t, pair{5, 6}, v)

	require.NoError(t, m.Upsert(8, pair{9, 9}))
	assert.Equal(t, 2, m.Len())

	_, ok = m.Find(9)
	assert.False(t, ok)
	assert.Nil(t, m.FindPtr(9))

	p := m.FindPtr(8)
	require.NotNil(t, p)
	p.A = 42
	v, _ = m.Find(8)
	assert.Equal(t, uint64(42), v.A)
}

func TestMap_FindOrConstruct(t *testing.T) {
	m, err := New[uint32, uint64](newHeapMemory(t), 10)
	require.NoError(t, err)

	calls := 0
	init := func(v *uint64) {
		calls++
		*v = 99
	}

	p, inserted, err := m.FindOrConstruct(1, init)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, uint64(99), *p)

	p2, inserted, err := m.FindOrConstruct(1, init)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, p, p2)
	assert.Equal(t, 1, calls)
}

func TestMap_Collisions(t *testing.T) {
	m, err := New[uint64, uint64](newHeapMemory(t), 64, WithHasher(func(uint64) uint64 { return 5 }))
	require.NoError(t, err)

	for i := range uint64(64) {
		inserted, err := m.Emplace(i, i*10)
		require.NoError(t, err)
		require.True(t, inserted)
	}

	for i := range uint64(64) {
		v, ok := m.Find(i)
		require.True(t, ok, "key %d", i)
		assert.Equal(t, i*10, v)
	}

	seen := 0
	m.Range(func(k uint64, v *uint64) bool {
		assert.Equal(t, k*10, *v)
		seen++
		return true
	})
	assert.Equal(t, 64, seen)
}

func TestMap_Full(t *testing.T) {
	m, err := New[uint64, uint64](newHeapMemory(t), 0)
	require.NoError(t, err)

	// Slot 0 is never handed out.
	usable := m.Capacity() - 1
	for i := range usable {
		_, err := m.Emplace(uint64(i), 0)
		require.NoError(t, err)
	}

	_, err = m.Emplace(uint64(usable), 0)
	assert.ErrorIs(t, err, ErrFull)
	assert.Equal(t, usable, m.Len())
}

func TestMap_InvalidTypes(t *testing.T) {
	_, err := New[string, uint64](newHeapMemory(t), 10)
	assert.ErrorIs(t, err, ErrInvalidType)

	_, err = New[uint64, []byte](newHeapMemory(t), 10)
	assert.ErrorIs(t, err, ErrInvalidType)

	type padded struct {
		A uint8
		B uint64
	}

	_, err = New[padded, uint64](newHeapMemory(t), 10)
	assert.ErrorIs(t, err, ErrInvalidType)

	// Padding is fine in values.
	_, err = New[uint64, padded](newHeapMemory(t), 10)
	assert.NoError(t, err)
}

func TestMap_FloatKeysRejected(t *testing.T) {
	// +0 and -0 compare equal but hash apart.
	_, err := New[float64, uint64](newHeapMemory(t), 10)
	assert.ErrorIs(t, err, ErrInvalidType)

	_, err = New[[2]float32, uint64](newHeapMemory(t), 10)
	assert.ErrorIs(t, err, ErrInvalidType)

	type point struct {
		X, Y complex64
	}

	_, err = New[point, uint64](newHeapMemory(t), 10)
	assert.ErrorIs(t, err, ErrInvalidType)

	// Floats are fine in values.
	m, err := New[uint64, float64](newHeapMemory(t), 10)
	require.NoError(t, err)

	inserted, err := m.Emplace(1, -0.5)
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestMap_ConcurrentSameKey(t *testing.T) {
	for round := range 20 {
		m, err := New[uint64, uint64](newHeapMemory(t), 16)
		require.NoError(t, err)

		var (
			g       errgroup.Group
			winners atomic.Int32
			winner  atomic.Uint64
		)

		for i := range uint64(32) {
			g.Go(func() error {
				inserted, err := m.Emplace(uint64(round), i+1)
				if err != nil {
					return err
				}

				if inserted {
					winners.Add(1)
					winner.Store(i + 1)
				}

				return nil
			})
		}

		require.NoError(t, g.Wait())
		assert.Equal(t, int32(1), winners.Load())
		assert.Equal(t, 1, m.Len())

		v, ok := m.Find(uint64(round))
		require.True(t, ok)
		assert.Equal(t, winner.Load(), v)

		entries := 0
		m.Range(func(uint64, *uint64) bool {
			entries++
			return true
		})
		assert.Equal(t, 1, entries)
	}
}

func TestMap_ConcurrentDistinctKeys(t *testing.T) {
	const (
		workers = 8
		perKey  = 500
	)

	m, err := New[uint64, uint64](newHeapMemory(t), workers*perKey)
	require.NoError(t, err)

	var g errgroup.Group
	for w := range uint64(workers) {
		g.Go(func() error {
			for i := range uint64(perKey) {
				// Every key is inserted by two workers.
				key := (w/2)*perKey + i
				if _, err := m.Emplace(key, key); err != nil {
					return err
				}
			}

			return nil
		})
	}

	require.NoError(t, g.Wait())
	assert.Equal(t, workers/2*perKey, m.Len())

	for key := range uint64(workers / 2 * perKey) {
		v, ok := m.Find(key)
		require.True(t, ok)
		require.Equal(t, key, v)
	}
}

func TestMap_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys")

	mem, err := memory.OpenMMap(path, memory.WithMaxSize(1<<24))
	require.NoError(t, err)

	m, err := New[uint64, uint32](mem, 1000)
	require.NoError(t, err)

	for i := range uint64(100) {
		_, err := m.Emplace(i, uint32(i)+1)
		require.NoError(t, err)
	}

	require.NoError(t, m.Dump())
	require.NoError(t, mem.Close())

	ro, err := memory.OpenMMap(path, memory.WithReadOnly())
	require.NoError(t, err)
	defer ro.Close()

	m, err = New[uint64, uint32](ro, 0)
	require.NoError(t, err)
	assert.Equal(t, 100, m.Len())

	v, ok := m.Find(42)
	require.True(t, ok)
	assert.Equal(t, uint32(43), v)

	_, err = m.Emplace(1000, 1)
	assert.ErrorIs(t, err, memory.ErrReadOnly)

	_, err = New[uint64, pair](ro, 0)
	assert.ErrorIs(t, err, ErrCorruptHeader)
}
