package flat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/mmstore/alloc"
	"github.com/hupe1980/mmstore/distance"
	"github.com/hupe1980/mmstore/index"
	"github.com/hupe1980/mmstore/testutil"
)

func TestNew(t *testing.T) {
	_, err := New(0, distance.MetricL2)
	assert.Error(t, err)

	_, err = New(4, distance.Metric(42))
	assert.Error(t, err)

	b, err := New(3, distance.MetricCosine)
	require.NoError(t, err)
	assert.Equal(t, 3, b.Dimension())
	assert.Equal(t, distance.MetricCosine, b.Metric())
	assert.Equal(t, uint64(24), b.stride)
}

func TestBackend_Search(t *testing.T) {
	al := alloc.NewHeap()

	b, err := New(2, distance.MetricL2)
	require.NoError(t, err)

	var m index.PostingMeta

	points := map[uint64][]float32{
		40: {0, 0},
		10: {1, 0},
		30: {5, 5},
		20: {0, 2},
	}

	for id, v := range points {
		added, err := b.Add(al, &m, index.Posting{ID: id, Vector: v})
		require.NoError(t, err)
		assert.True(t, added)
	}

	it, err := b.Iterator(al, m)
	require.NoError(t, err)
	assert.Equal(t, []uint64{10, 20, 30, 40}, index.Collect(it))

	res, err := b.Search(al, m, []float32{0.9, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, uint64(10), res[0].ID)
	assert.Equal(t, uint64(40), res[1].ID)
	assert.InDelta(t, 0.01, res[0].Distance, 1e-5)

	// Replacing a vector keeps the size.
	added, err := b.Add(al, &m, index.Posting{ID: 30, Vector: []float32{1, 0.1}})
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, uint64(4), m.Size)

	res, err = b.Search(al, m, []float32{1, 0.1}, 10)
	require.NoError(t, err)
	require.Len(t, res, 4)
	assert.Equal(t, uint64(30), res[0].ID)
	assert.Zero(t, res[0].Distance)

	_, err = b.Search(al, m, []float32{1}, 1)
	assert.ErrorIs(t, err, index.ErrInvalidPosting)
}

func TestBackend_RemoveAndGrow(t *testing.T) {
	al := alloc.NewHeap()

	b, err := New(1, distance.MetricDot)
	require.NoError(t, err)

	var m index.PostingMeta

	for id := range uint64(40) {
		_, err := b.Add(al, &m, index.Posting{ID: 39 - id, Vector: []float32{float32(id)}})
		require.NoError(t, err)
	}

	assert.Equal(t, uint64(40), m.Size)
	assert.Equal(t, uint64(64), m.MaxID)
	assert.Equal(t, uint64(1), m.Aux)
	assert.Equal(t, 1, al.Len())

	v, ok := b.Vector(al, m, 0)
	require.True(t, ok)
	assert.Equal(t, []float32{39}, v)

	removed, err := b.Remove(al, &m, 0)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, b.Exist(al, m, 0))
	assert.True(t, b.Exist(al, m, 1))

	removed, err = b.Remove(al, &m, 0)
	require.NoError(t, err)
	assert.False(t, removed)

	res, err := b.Search(al, m, []float32{1}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, uint64(1), res[0].ID)

	_, err = b.Add(al, &m, index.Posting{ID: 100, Vector: []float32{1, 2}})
	assert.ErrorIs(t, err, index.ErrInvalidPosting)

	other, err := New(2, distance.MetricDot)
	require.NoError(t, err)

	_, err = other.Add(al, &m, index.Posting{ID: 100, Vector: []float32{1, 2}})
	assert.ErrorIs(t, err, index.ErrInvalidPosting)
}

func TestBackend_BulkLoadMerges(t *testing.T) {
	al := alloc.NewHeap()

	b, err := New(1, distance.MetricL2)
	require.NoError(t, err)

	var m index.PostingMeta

	_, err = b.Add(al, &m, index.Posting{ID: 5, Vector: []float32{5}})
	require.NoError(t, err)

	n, err := b.BulkLoad(al, &m, []index.Posting{
		{ID: 9, Vector: []float32{9}},
		{ID: 5, Vector: []float32{50}},
		{ID: 1, Vector: []float32{1}},
		{ID: 9, Vector: []float32{90}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, uint64(3), m.Size)
	assert.Equal(t, 1, al.Len())

	for id, want := range map[uint64]float32{1: 1, 5: 50, 9: 90} {
		v, ok := b.Vector(al, m, id)
		require.True(t, ok)
		assert.Equal(t, []float32{want}, v)
	}
}

func TestBackend_SearchMatchesBruteForce(t *testing.T) {
	const dim = 16

	rng := testutil.NewRNG(42)
	vecs := rng.UnitVectors(300, dim)
	queries := rng.UnitVectors(5, dim)

	for _, metric := range []distance.Metric{distance.MetricL2, distance.MetricCosine, distance.MetricDot} {
		t.Run(metric.String(), func(t *testing.T) {
			al := alloc.NewHeap()

			b, err := New(dim, metric)
			require.NoError(t, err)

			postings := make([]index.Posting, len(vecs))
			for i, v := range vecs {
				postings[i] = index.Posting{ID: uint64(i), Vector: v}
			}

			var m index.PostingMeta
			_, err = b.BulkLoad(al, &m, postings)
			require.NoError(t, err)

			dist, err := distance.Provider(metric)
			require.NoError(t, err)

			for _, q := range queries {
				want := testutil.BruteForceSearch(vecs, q, 10, dist)

				got, err := b.Search(al, m, q, 10)
				require.NoError(t, err)
				require.Len(t, got, 10)

				approx := make([]testutil.SearchResult, len(got))
				for i, n := range got {
					approx[i] = testutil.SearchResult{ID: n.ID, Distance: n.Distance}
				}

				assert.Equal(t, 1.0, testutil.ComputeRecall(want, approx))
				assert.Equal(t, want[0].ID, got[0].ID)
			}
		})
	}
}
