package bitmap

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/mmstore/alloc"
	"github.com/hupe1980/mmstore/index"
)

func TestBackend_Growth(t *testing.T) {
	al := alloc.NewHeap()
	b := New()

	var m index.PostingMeta

	added, err := b.Add(al, &m, index.Posting{ID: 5})
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, uint64(64), m.MaxID)
	assert.Equal(t, uint64(1), m.Size)

	first := m.Offset

	added, err = b.Add(al, &m, index.Posting{ID: 5})
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, uint64(1), m.Size)

	_, err = b.Add(al, &m, index.Posting{ID: 300})
	require.NoError(t, err)
	assert.Equal(t, uint64(512), m.MaxID)
	assert.NotEqual(t, first, m.Offset)
	assert.Equal(t, 1, al.Len())

	assert.True(t, b.Exist(al, m, 5))
	assert.True(t, b.Exist(al, m, 300))
	assert.False(t, b.Exist(al, m, 6))
	assert.False(t, b.Exist(al, m, 1<<40))

	removed, err := b.Remove(al, &m, 5)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = b.Remove(al, &m, 1<<40)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, uint64(1), m.Size)
}

func TestBackend_BulkLoadGrowsOnce(t *testing.T) {
	al := alloc.NewHeap()
	b := New()

	var m index.PostingMeta

	n, err := b.BulkLoad(al, &m, []index.Posting{{ID: 1}, {ID: 999}, {ID: 64}, {ID: 1}})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, uint64(1024), m.MaxID)
	assert.Equal(t, 1, al.Len())

	n, err = b.BulkLoad(al, &m, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIterator_MatchesReference(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 9))

	ws := make([]uint64, 40)
	for i := range ws {
		// Leave long runs of zero words.
		if rng.IntN(3) == 0 {
			ws[i] = rng.Uint64() & rng.Uint64()
		}
	}

	var want []uint64
	for id := range uint64(len(ws) * 64) {
		if ws[id/64]&(1<<(id%64)) != 0 {
			want = append(want, id)
		}
	}

	it := NewIterator(ws)
	assert.Equal(t, want, index.Collect(it))

	var back []uint64
	for ok := it.SeekLast(); ok; ok = it.Prev() {
		back = append([]uint64{it.ID()}, back...)
	}

	assert.Equal(t, want, back)

	for range 200 {
		target := rng.Uint64N(uint64(len(ws)*64) + 10)

		i := 0
		for i < len(want) && want[i] < target {
			i++
		}

		if i == len(want) {
			assert.False(t, it.SeekTo(target))
			continue
		}

		require.True(t, it.SeekTo(target))
		assert.Equal(t, want[i], it.ID())
	}
}

func TestIterator_Boundaries(t *testing.T) {
	it := NewIterator([]uint64{1, 1 << 63})

	require.True(t, it.SeekLast())
	assert.Equal(t, uint64(127), it.ID())
	assert.False(t, it.Next())
	assert.False(t, it.Valid())

	require.True(t, it.SeekFirst())
	assert.Equal(t, uint64(0), it.ID())
	assert.False(t, it.Prev())

	empty := NewIterator(nil)
	assert.False(t, empty.SeekFirst())
	assert.False(t, empty.SeekLast())
}
