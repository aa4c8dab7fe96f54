package memory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/mmstore/metrics"
)

const testMaxSize = 1 << 24

func openTestMMap(t *testing.T, path string, opts ...Option) *MMap {
	t.Helper()

	opts = append([]Option{WithMaxSize(testMaxSize), WithInitialSize(4096), WithExpandSize(4096)}, opts...)
	m, err := OpenMMap(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	return m
}

func TestMMap_AllocateAligned(t *testing.T) {
	m := openTestMMap(t, filepath.Join(t.TempDir(), "data"))

	assert.Equal(t, KindMMap, m.Kind())
	assert.True(t, Empty(m))
	assert.Equal(t, uint64(StartOffset), m.Allocated())

	off, err := m.Allocate(3)
	require.NoError(t, err)
	assert.Equal(t, uint64(FirstOffset), off)

	off2, err := m.Allocate(16)
	require.NoError(t, err)
	assert.Equal(t, uint64(16), off2)
	assert.Equal(t, uint64(32), m.Allocated())
	assert.False(t, Empty(m))
}

func TestMMap_Grow(t *testing.T) {
	collector := &metrics.Basic{}
	m := openTestMMap(t, filepath.Join(t.TempDir(), "data"), WithMetrics(collector))

	first, err := m.Allocate(8)
	require.NoError(t, err)
	copy(m.Bytes(first, 8), "stable!!")
	ptr := m.Pointer(first)

	off, err := m.Allocate(10000)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, m.Capacity(), off+10000)
	assert.Equal(t, int64(1), collector.GetStats().Grows)

	// Growth never moves earlier addresses.
	assert.Equal(t, ptr, m.Pointer(first))
	assert.Equal(t, "stable!!", string(m.Bytes(first, 8)))

	buf := m.Bytes(off, 10000)
	buf[9999] = 0xff
	assert.Equal(t, byte(0xff), m.Bytes(off+9999, 1)[0])
}

func TestMMap_OutOfSpace(t *testing.T) {
	m := openTestMMap(t, filepath.Join(t.TempDir(), "data"))

	off, err := m.Allocate(testMaxSize)
	assert.ErrorIs(t, err, ErrOutOfSpace)
	assert.Zero(t, off)

	// A failed allocation leaves the high-water mark untouched.
	assert.Equal(t, uint64(StartOffset), m.Allocated())
}

func TestMMap_DumpReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")

	m, err := OpenMMap(path, WithMaxSize(testMaxSize), WithInitialSize(8192))
	require.NoError(t, err)

	off, err := m.Allocate(6)
	require.NoError(t, err)
	copy(m.Bytes(off, 6), "string")

	require.NoError(t, m.Dump())
	assert.Equal(t, m.Allocated(), m.Capacity())
	require.NoError(t, m.Close())

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(off+6), fi.Size())

	meta, err := LoadMeta(path)
	require.NoError(t, err)
	assert.Equal(t, "mmap", meta.Type)
	assert.Equal(t, off+6, meta.Allocated)
	assert.Equal(t, off+6, meta.Capacity)

	ro, err := OpenMMap(path, WithReadOnly())
	require.NoError(t, err)
	defer ro.Close()

	assert.True(t, ro.ReadOnly())
	assert.Equal(t, "string", string(ro.Bytes(off, 6)))

	_, err = ro.Allocate(1)
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.ErrorIs(t, ro.Reset(), ErrReadOnly)
	assert.ErrorIs(t, ro.Dump(), ErrReadOnly)
}

func TestMMap_ReopenWritableContinues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")

	m, err := OpenMMap(path, WithMaxSize(testMaxSize))
	require.NoError(t, err)
	first, err := m.Allocate(8)
	require.NoError(t, err)
	require.NoError(t, m.Dump())
	require.NoError(t, m.Close())

	m = openTestMMap(t, path)
	second, err := m.Allocate(8)
	require.NoError(t, err)
	assert.Greater(t, second, first)
}

func TestMMap_MissingSidecar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	_, err := OpenMMap(path, WithMaxSize(testMaxSize))
	assert.ErrorIs(t, err, ErrCorruptMeta)
}

func TestMMap_Reset(t *testing.T) {
	m := openTestMMap(t, filepath.Join(t.TempDir(), "data"))

	off, err := m.Allocate(4)
	require.NoError(t, err)
	copy(m.Bytes(off, 4), "abcd")

	require.NoError(t, m.Reset())
	assert.Equal(t, uint64(StartOffset), m.Allocated())
	assert.Equal(t, []byte{0, 0, 0, 0}, m.Bytes(off, 4))

	again, err := m.Allocate(4)
	require.NoError(t, err)
	assert.Equal(t, off, again)
}

func TestHeap(t *testing.T) {
	h, err := NewHeap(WithMaxSize(1<<20), WithInitialSize(0), WithExpandSize(1024))
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, KindHeap, h.Kind())

	off, err := h.Allocate(2000)
	require.NoError(t, err)
	assert.Equal(t, uint64(FirstOffset), off)
	assert.GreaterOrEqual(t, h.Capacity(), uint64(2008))

	h.Bytes(off, 2000)[1999] = 9
	assert.NoError(t, h.Dump())

	_, err = h.Allocate(1 << 20)
	assert.ErrorIs(t, err, ErrOutOfSpace)

	require.NoError(t, h.Close())
	_, err = h.Allocate(1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestKind(t *testing.T) {
	for _, k := range []Kind{KindHeap, KindMMap} {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}

	_, err := ParseKind("vector")
	assert.Error(t, err)
}
