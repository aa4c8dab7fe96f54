package index_test

import (
	"math/rand/v2"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/mmstore/alloc"
	"github.com/hupe1980/mmstore/distance"
	"github.com/hupe1980/mmstore/index"
	"github.com/hupe1980/mmstore/index/bitmap"
	"github.com/hupe1980/mmstore/index/flat"
	"github.com/hupe1980/mmstore/index/roaring"
	"github.com/hupe1980/mmstore/memory"
	"github.com/hupe1980/mmstore/metrics"
	"github.com/hupe1980/mmstore/record"
)

const (
	tagID  = 0
	tagVec = 1
	dim    = 3
)

func testMeta(t *testing.T) *record.RecordMeta {
	t.Helper()

	meta, err := record.ParseYAML([]byte(`
- {name: id, tag: 0, type: uint64}
- {name: embedding, tag: 1, type: float, count: 0}
`))
	require.NoError(t, err)

	return meta
}

func newRecord(t *testing.T, meta *record.RecordMeta, id uint64) *record.Record {
	t.Helper()

	rec, _, err := record.Allocate(record.NewAccessor(meta), alloc.NewHeap())
	require.NoError(t, err)
	require.NoError(t, record.SetField(rec, tagID, id))
	require.NoError(t, rec.BuildVarArray(tagVec, dim))

	for i := range dim {
		require.NoError(t, record.SetFieldAt(rec, tagVec, i, float32(id)+float32(i)))
	}

	return rec
}

type backendCase struct {
	name    string
	backend func(t *testing.T) index.Backend
	opts    []index.Option
}

func backends() []backendCase {
	return []backendCase{
		{name: "bitmap", backend: func(*testing.T) index.Backend { return bitmap.New() }},
		{name: "roaring", backend: func(*testing.T) index.Backend { return roaring.New() }},
		{
			name: "flat",
			backend: func(t *testing.T) index.Backend {
				b, err := flat.New(dim, distance.MetricL2)
				require.NoError(t, err)
				return b
			},
			opts: []index.Option{index.WithVectorField("embedding")},
		},
	}
}

func testOptions(extra ...index.Option) []index.Option {
	return append([]index.Option{index.WithMaxKeys(64), index.WithMaxSize(1 << 24)}, extra...)
}

func TestIndex_PostingListProperties(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			meta := testMeta(t)

			idx, err := index.NewInMemory[uint64](meta, bc.backend(t), testOptions(bc.opts...)...)
			require.NoError(t, err)
			defer idx.Close()

			rng := rand.New(rand.NewPCG(1, 2))
			want := map[uint64]bool{}

			for range 300 {
				id := rng.Uint64N(5000)

				pl, err := idx.List(1)
				require.NoError(t, err)

				before := pl.Size()

				added, err := idx.Add(1, newRecord(t, meta, id))
				require.NoError(t, err)
				assert.Equal(t, !want[id], added)

				want[id] = true

				assert.True(t, pl.Exist(id))
				if added {
					assert.Equal(t, before+1, pl.Size())
				} else {
					assert.Equal(t, before, pl.Size())
				}
			}

			pl, ok := idx.Lookup(1)
			require.True(t, ok)

			ids := make([]uint64, 0, len(want))
			for id := range want {
				ids = append(ids, id)
			}

			slices.Sort(ids)

			it, err := pl.Iterator()
			require.NoError(t, err)
			assert.Equal(t, ids, index.Collect(it))

			for _, id := range ids[:len(ids)/2] {
				removed, err := idx.Remove(1, id)
				require.NoError(t, err)
				assert.True(t, removed)
				assert.False(t, pl.Exist(id))
			}

			removed, err := idx.Remove(1, ids[0])
			require.NoError(t, err)
			assert.False(t, removed)

			it, err = pl.Iterator()
			require.NoError(t, err)
			assert.Equal(t, ids[len(ids)/2:], index.Collect(it))
			assert.Equal(t, uint64(len(ids)-len(ids)/2), pl.Size())

			_, ok = idx.Lookup(99)
			assert.False(t, ok)

			removed, err = idx.Remove(99, 1)
			require.NoError(t, err)
			assert.False(t, removed)
		})
	}
}

func TestIndex_ReadersDuringGrowth(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			meta := testMeta(t)

			idx, err := index.NewInMemory[uint64](meta, bc.backend(t), testOptions(bc.opts...)...)
			require.NoError(t, err)
			defer idx.Close()

			pl, err := idx.List(7)
			require.NoError(t, err)

			var (
				g    errgroup.Group
				done atomic.Bool
			)

			defer func() {
				done.Store(true)
				_ = g.Wait()
			}()

			for range 2 {
				g.Go(func() error {
					for !done.Load() {
						it, err := pl.Iterator()
						if err != nil {
							return err
						}

						ids := index.Collect(it)
						if !slices.IsSorted(ids) || uint64(len(ids)) > 2000 {
							t.Errorf("inconsistent posting list: %d ids", len(ids))
							return nil
						}
					}

					return nil
				})
			}

			// Ascending ids force the list to grow into new blocks.
			for id := range uint64(2000) {
				_, err := idx.Add(7, newRecord(t, meta, id))
				require.NoError(t, err)
			}

			done.Store(true)
			require.NoError(t, g.Wait())
			assert.Equal(t, uint64(2000), pl.Size())
		})
	}
}

func TestIndex_IteratorSeek(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			meta := testMeta(t)

			idx, err := index.NewInMemory[int](meta, bc.backend(t), testOptions(bc.opts...)...)
			require.NoError(t, err)
			defer idx.Close()

			for _, id := range []uint64{3, 64, 65, 200, 1023} {
				_, err := idx.Add(1, newRecord(t, meta, id))
				require.NoError(t, err)
			}

			pl, ok := idx.Lookup(1)
			require.True(t, ok)

			it, err := pl.Iterator()
			require.NoError(t, err)

			require.True(t, it.SeekLast())
			assert.Equal(t, uint64(1023), it.ID())

			var back []uint64
			for ok := true; ok; ok = it.Prev() {
				back = append(back, it.ID())
			}

			assert.Equal(t, []uint64{1023, 200, 65, 64, 3}, back)
			assert.False(t, it.Valid())

			require.True(t, it.SeekTo(66))
			assert.Equal(t, uint64(200), it.ID())

			require.True(t, it.SeekTo(64))
			assert.Equal(t, uint64(64), it.ID())
			require.True(t, it.Next())
			assert.Equal(t, uint64(65), it.ID())

			assert.False(t, it.SeekTo(1024))
			assert.False(t, it.Next())

			require.True(t, it.SeekFirst())
			assert.Equal(t, uint64(3), it.ID())
			assert.False(t, it.Prev())

			empty, err := idx.List(2)
			require.NoError(t, err)

			it, err = empty.Iterator()
			require.NoError(t, err)
			assert.False(t, it.SeekFirst())
			assert.False(t, it.SeekLast())
		})
	}
}

func TestIndex_BulkLoad(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			meta := testMeta(t)

			idx, err := index.NewInMemory[uint64](meta, bc.backend(t), testOptions(bc.opts...)...)
			require.NoError(t, err)
			defer idx.Close()

			_, err = idx.Add(1, newRecord(t, meta, 7))
			require.NoError(t, err)

			var recs []*record.Record
			for _, id := range []uint64{900, 7, 12, 450, 12} {
				recs = append(recs, newRecord(t, meta, id))
			}

			n, err := idx.BulkLoad(1, recs)
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			pl, ok := idx.Lookup(1)
			require.True(t, ok)
			assert.Equal(t, uint64(4), pl.Size())

			it, err := pl.Iterator()
			require.NoError(t, err)
			assert.Equal(t, []uint64{7, 12, 450, 900}, index.Collect(it))
		})
	}
}

func TestIndex_Persistence(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			dir := t.TempDir()
			meta := testMeta(t)

			idx, err := index.Open[uint64](dir, meta, bc.backend(t), testOptions(bc.opts...)...)
			require.NoError(t, err)

			for key := range uint64(10) {
				for id := range key + 1 {
					_, err := idx.Add(key, newRecord(t, meta, id*10))
					require.NoError(t, err)
				}
			}

			require.NoError(t, idx.Dump())
			require.NoError(t, idx.Close())

			ro, err := index.Open[uint64](dir, meta, bc.backend(t), append(bc.opts, index.WithReadOnly())...)
			require.NoError(t, err)
			defer ro.Close()

			assert.Equal(t, 10, ro.Len())

			lists := 0
			ro.Range(func(key uint64, pl *index.PostingList[uint64]) bool {
				lists++
				assert.Equal(t, key+1, pl.Size())
				assert.True(t, pl.Exist(key*10))
				return true
			})
			assert.Equal(t, 10, lists)

			_, err = ro.Add(3, newRecord(t, meta, 1))
			assert.ErrorIs(t, err, memory.ErrReadOnly)

			pl, ok := ro.Lookup(3)
			require.True(t, ok)

			_, err = pl.Remove(0)
			assert.ErrorIs(t, err, memory.ErrReadOnly)
		})
	}
}

func TestIndex_Descriptor(t *testing.T) {
	dir := t.TempDir()
	meta := testMeta(t)

	idx, err := index.Open[uint64](dir, meta, bitmap.New(), testOptions()...)
	require.NoError(t, err)
	require.NoError(t, idx.Dump())
	require.NoError(t, idx.Close())

	_, err = index.Open[uint64](dir, meta, roaring.New(), testOptions()...)
	assert.ErrorIs(t, err, index.ErrBackendMismatch)

	_, err = index.Open[uint64](t.TempDir(), meta, bitmap.New(), index.WithReadOnly())
	assert.Error(t, err)
}

func TestIndex_InvalidBinding(t *testing.T) {
	meta := testMeta(t)

	_, err := index.NewInMemory[int](meta, bitmap.New(), index.WithIDField("nope"))
	assert.ErrorIs(t, err, record.ErrUnknownField)

	_, err = index.NewInMemory[int](meta, bitmap.New(), index.WithIDField("embedding"))
	assert.Error(t, err)

	fb, err := flat.New(dim, distance.MetricL2)
	require.NoError(t, err)

	_, err = index.NewInMemory[int](meta, fb)
	assert.Error(t, err)

	_, err = index.NewInMemory[int](meta, fb, index.WithVectorField("id"))
	assert.Error(t, err)
}

func TestIndex_SchemaMismatch(t *testing.T) {
	idx, err := index.NewInMemory[int](testMeta(t), bitmap.New(), testOptions()...)
	require.NoError(t, err)
	defer idx.Close()

	_, err = idx.Add(1, newRecord(t, testMeta(t), 1))
	assert.ErrorIs(t, err, index.ErrSchemaMismatch)
}

func TestIndex_SearchUnsupported(t *testing.T) {
	meta := testMeta(t)

	idx, err := index.NewInMemory[int](meta, bitmap.New(), testOptions()...)
	require.NoError(t, err)
	defer idx.Close()

	_, err = idx.Add(1, newRecord(t, meta, 1))
	require.NoError(t, err)

	pl, ok := idx.Lookup(1)
	require.True(t, ok)

	_, err = pl.Search([]float32{1, 2, 3}, 1)
	assert.ErrorIs(t, err, index.ErrUnsupported)
}

type countingBackend struct {
	index.Backend
	cleared int
}

func (b *countingBackend) Clear(off uint64, block []byte) {
	b.cleared++
	b.Backend.Clear(off, block)
}

func TestIndex_ReclaimHook(t *testing.T) {
	meta := testMeta(t)
	mock := clock.NewMock()
	backend := &countingBackend{Backend: bitmap.New()}
	collector := &metrics.Basic{}

	idx, err := index.NewInMemory[int](meta, backend,
		testOptions(index.WithClock(mock), index.WithMetrics(collector))...)
	require.NoError(t, err)
	defer idx.Close()

	// Growing from 64 to 128 ids releases the first block.
	_, err = idx.Add(1, newRecord(t, meta, 1))
	require.NoError(t, err)
	_, err = idx.Add(1, newRecord(t, meta, 100))
	require.NoError(t, err)

	assert.Zero(t, backend.cleared)
	assert.Equal(t, uint64(1), idx.Allocator().Stats().Delayed)

	mock.Add(2 * time.Second)

	_, err = idx.Add(2, newRecord(t, meta, 1))
	require.NoError(t, err)

	assert.Equal(t, 1, backend.cleared)
	assert.Zero(t, idx.Allocator().Stats().Delayed)
	assert.Equal(t, int64(3), collector.GetStats().Ops)
}
