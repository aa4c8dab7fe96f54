package testutil

import (
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/hupe1980/mmstore/distance"
)

// SearchResult is one exact neighbor. ID is the position in the searched
// slice.
type SearchResult struct {
	ID       uint64
	Distance float32
}

// RNG is a seeded, goroutine-safe random source.
type RNG struct {
	rand *rand.Rand
	seed uint64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed uint64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		seed: seed,
	}
}

// Reset rewinds the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewPCG(r.seed, r.seed^0x9e3779b97f4a7c15))
}

// Seed returns the initial seed.
func (r *RNG) Seed() uint64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.IntN(n)
}

// Uint64N returns a pseudo-random number in [0,n).
func (r *RNG) Uint64N(n uint64) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64N(n)
}

// Float32 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// FillUniform fills dst with random values in range [0, 1).
func (r *RNG) FillUniform(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float32()
	}
}

// UniformVectors generates random vectors with values in range [0, 1),
// sharing one backing array.
func (r *RNG) UniformVectors(num int, dimensions int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dimensions)
	vectors := make([][]float32, num)

	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions]
		for j := range vec {
			vec[j] = r.rand.Float32()
		}
		vectors[i] = vec
	}

	return vectors
}

// UnitVectors generates L2-normalized Gaussian vectors, uniform on the
// hypersphere.
func (r *RNG) UnitVectors(num int, dimensions int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dimensions)
	vectors := make([][]float32, num)

	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions]
		for {
			for j := range vec {
				vec[j] = float32(r.rand.NormFloat64())
			}

			if distance.NormalizeL2InPlace(vec) {
				break
			}
		}
		vectors[i] = vec
	}

	return vectors
}

// DistinctIDs returns n distinct ids below maxID in random order.
func (r *RNG) DistinctIDs(n int, maxID uint64) []uint64 {
	if uint64(n) > maxID {
		n = int(maxID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[uint64]struct{}, n)
	ids := make([]uint64, 0, n)

	for len(ids) < n {
		id := r.rand.Uint64N(maxID)
		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	return ids
}

// BruteForceSearch performs exact search for ground truth. Ties break on
// the smaller position.
func BruteForceSearch(vectors [][]float32, query []float32, k int, dist distance.Func) []SearchResult {
	results := make([]SearchResult, len(vectors))

	for i, v := range vectors {
		results[i] = SearchResult{ID: uint64(i), Distance: dist(query, v)}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})

	if len(results) > k {
		results = results[:k]
	}

	return results
}

// ComputeRecall returns the fraction of groundTruth ids present in
// approximate.
func ComputeRecall(groundTruth, approximate []SearchResult) float64 {
	if len(groundTruth) == 0 {
		return 1
	}

	found := make(map[uint64]struct{}, len(approximate))
	for _, r := range approximate {
		found[r.ID] = struct{}{}
	}

	hits := 0
	for _, r := range groundTruth {
		if _, ok := found[r.ID]; ok {
			hits++
		}
	}

	return float64(hits) / float64(len(groundTruth))
}
