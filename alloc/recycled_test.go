package alloc

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/mmstore/memory"
	"github.com/hupe1980/mmstore/metrics"
)

func testConfig() Config {
	return Config{
		MinMemSize:     8,
		MaxMemSize:     1 << 16,
		Rate:           1.5,
		ExpandFactor:   1.5,
		DelayTime:      time.Second,
		DelayQueueSize: 4,
	}
}

func newRecycled(t *testing.T, cfg Config, optFns ...Option) (*Recycled, *clock.Mock) {
	t.Helper()

	mock := clock.NewMock()
	r, err := NewRecycled(newHeapMemory(t), cfg, append([]Option{WithClock(mock)}, optFns...)...)
	require.NoError(t, err)

	return r, mock
}

func TestConfig_Levels(t *testing.T) {
	sizes := testConfig().levels()

	assert.Equal(t, uint64(8), sizes[0])
	assert.Equal(t, uint64(1<<16), sizes[len(sizes)-1])

	for i := 1; i < len(sizes); i++ {
		assert.Greater(t, sizes[i], sizes[i-1])
		assert.Zero(t, sizes[i]%8)
	}
}

func TestConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"rate", Config{MinMemSize: 8, MaxMemSize: 64, Rate: 1}},
		{"max below min", Config{MinMemSize: 128, MaxMemSize: 64, Rate: 2}},
		{"negative delay", Config{MinMemSize: 8, MaxMemSize: 64, Rate: 2, DelayTime: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRecycled(newHeapMemory(t), tt.cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestRecycled_LevelMonotonic(t *testing.T) {
	r, _ := newRecycled(t, testConfig())

	prev := 0
	for size := uint64(0); size <= 1<<16; size += 7 {
		l, err := r.LevelOf(size)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, l, prev)
		assert.GreaterOrEqual(t, r.LevelSize(l), size)
		if l > 0 {
			assert.Less(t, r.LevelSize(l-1), size)
		}

		prev = l
	}

	_, err := r.LevelOf(1<<16 + 1)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = r.Allocate(1<<16 + 1)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestRecycled_AllocateRoundsToLevel(t *testing.T) {
	r, _ := newRecycled(t, testConfig())

	off, err := r.Allocate(100)
	require.NoError(t, err)

	l, err := r.LevelOf(100)
	require.NoError(t, err)
	assert.Equal(t, r.LevelSize(l), r.Size(off))
	assert.Zero(t, off%8)
}

func TestRecycled_DelaySafety(t *testing.T) {
	r, mock := newRecycled(t, testConfig())

	x, err := r.Allocate(100)
	require.NoError(t, err)
	copy(r.Bytes(x), "payload")

	require.NoError(t, r.Deallocate(x))

	// Still inside the delay window.
	y, err := r.Allocate(100)
	require.NoError(t, err)
	assert.NotEqual(t, x, y)
	assert.Equal(t, "payload", string(r.Bytes(x)[:7]))

	mock.Add(999 * time.Millisecond)
	z, err := r.Allocate(100)
	require.NoError(t, err)
	assert.NotEqual(t, x, z)

	mock.Add(time.Millisecond)
	reused, err := r.Allocate(100)
	require.NoError(t, err)
	assert.Equal(t, x, reused)

	// Reused blocks come back zeroed.
	assert.Equal(t, make([]byte, r.Size(x)), r.Bytes(x))
}

func TestRecycled_LevelWindow(t *testing.T) {
	r, mock := newRecycled(t, testConfig())

	big, err := r.Allocate(1000)
	require.NoError(t, err)
	bigLevel, err := r.LevelOf(1000)
	require.NoError(t, err)

	require.NoError(t, r.Deallocate(big))
	mock.Add(time.Second)

	// 100 * 1.5 stays far below the level of 1000.
	small, err := r.Allocate(100)
	require.NoError(t, err)
	assert.NotEqual(t, big, small)

	// A request one level below, whose expanded level reaches bigLevel, reuses it.
	below := r.LevelSize(bigLevel - 1)
	l, err := r.LevelOf(below)
	require.NoError(t, err)
	require.Equal(t, bigLevel-1, l)
	require.GreaterOrEqual(t, r.upperLevel(below), bigLevel)

	got, err := r.Allocate(below)
	require.NoError(t, err)
	assert.Equal(t, big, got)
}

func TestRecycled_QueueGrowth(t *testing.T) {
	r, mock := newRecycled(t, testConfig())

	var offs []uint64
	for range 10 {
		off, err := r.Allocate(32)
		require.NoError(t, err)
		offs = append(offs, off)
	}

	for _, off := range offs {
		require.NoError(t, r.Deallocate(off))
	}

	s := r.Stats()
	assert.Equal(t, uint64(10), s.Delayed)
	assert.Zero(t, s.FreeBlocks)

	mock.Add(time.Second)

	seen := make(map[uint64]bool)
	for range 10 {
		off, err := r.Allocate(32)
		require.NoError(t, err)
		seen[off] = true
	}

	for _, off := range offs {
		assert.True(t, seen[off], "offset %d not reused", off)
	}

	s = r.Stats()
	assert.Zero(t, s.Delayed)
	assert.Zero(t, s.FreeBlocks)
}

func TestRecycled_BorrowedAndRelease(t *testing.T) {
	r, _ := newRecycled(t, testConfig())

	off, err := r.Allocate(16)
	require.NoError(t, err)

	r.SetBorrowed(off, true)
	require.NoError(t, r.Deallocate(off))
	assert.Zero(t, r.Stats().Delayed)

	require.NoError(t, r.Release(off))
	assert.Equal(t, uint64(1), r.Stats().Delayed)
	assert.False(t, r.Borrowed(off))
}

func TestRecycled_ReclaimHook(t *testing.T) {
	var reclaimed []uint64

	r, mock := newRecycled(t, testConfig(), WithReclaimHook(func(off uint64, block []byte) {
		reclaimed = append(reclaimed, off)
		assert.Equal(t, byte(7), block[8])
	}))

	off, err := r.Allocate(16)
	require.NoError(t, err)
	r.Bytes(off)[8] = 7

	require.NoError(t, r.Deallocate(off))
	assert.Empty(t, reclaimed)

	mock.Add(time.Second)
	_, err = r.Allocate(1024)
	require.NoError(t, err)

	assert.Equal(t, []uint64{off}, reclaimed)
	assert.Equal(t, uint64(1), r.Stats().FreeBlocks)
}

func TestRecycled_Metrics(t *testing.T) {
	collector := &metrics.Basic{}
	r, mock := newRecycled(t, testConfig(), WithMetrics(collector))

	off, err := r.Allocate(8)
	require.NoError(t, err)
	require.NoError(t, r.Deallocate(off))
	mock.Add(time.Second)
	_, err = r.Allocate(8)
	require.NoError(t, err)

	s := collector.GetStats()
	assert.Equal(t, int64(2), s.Allocs)
	assert.Equal(t, int64(1), s.ReusedAllocs)
	assert.Equal(t, int64(1), s.Frees)
}

func TestRecycled_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heap")

	mem, err := memory.OpenMMap(path, memory.WithMaxSize(1<<24))
	require.NoError(t, err)

	mock := clock.NewMock()
	r, err := NewRecycled(mem, testConfig(), WithClock(mock))
	require.NoError(t, err)

	kept, err := r.Allocate(20)
	require.NoError(t, err)
	copy(r.Bytes(kept), "kept")

	freed, err := r.Allocate(20)
	require.NoError(t, err)
	require.NoError(t, r.Deallocate(freed))

	require.NoError(t, r.Dump())
	require.NoError(t, mem.Close())

	mem, err = memory.OpenMMap(path, memory.WithMaxSize(1<<24))
	require.NoError(t, err)
	defer mem.Close()

	other := DefaultConfig()
	r, err = NewRecycled(mem, other, WithClock(mock))
	require.NoError(t, err)

	assert.Equal(t, testConfig(), r.Config())
	assert.Equal(t, "kept", string(r.Bytes(kept)[:4]))
	assert.Equal(t, uint64(1), r.Stats().Delayed)

	mock.Add(time.Second)
	got, err := r.Allocate(20)
	require.NoError(t, err)
	assert.Equal(t, freed, got)
}

func TestRecycled_ReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heap")

	mem, err := memory.OpenMMap(path, memory.WithMaxSize(1<<24))
	require.NoError(t, err)
	r, err := NewRecycled(mem, testConfig())
	require.NoError(t, err)
	off, err := r.Allocate(8)
	require.NoError(t, err)
	require.NoError(t, r.Dump())
	require.NoError(t, mem.Close())

	ro, err := memory.OpenMMap(path, memory.WithReadOnly())
	require.NoError(t, err)
	defer ro.Close()

	r, err = NewRecycled(ro, testConfig())
	require.NoError(t, err)

	_, err = r.Allocate(8)
	assert.ErrorIs(t, err, memory.ErrReadOnly)
	assert.ErrorIs(t, r.Deallocate(off), memory.ErrReadOnly)
	assert.Equal(t, uint64(8), r.Size(off))
}

func TestRecycled_CorruptMeta(t *testing.T) {
	mem := newHeapMemory(t)

	off, err := mem.Allocate(256)
	require.NoError(t, err)
	copy(mem.Bytes(off, 8), "garbage!")

	_, err = NewRecycled(mem, testConfig())
	assert.ErrorIs(t, err, ErrCorruptMeta)
}
