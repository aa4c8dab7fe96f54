// Package testutil provides deterministic data generators and exact-search
// oracles for tests, benchmarks and examples.
//
//	rng := testutil.NewRNG(42)
//	vecs := rng.UnitVectors(1000, 64)
//	ids := rng.DistinctIDs(500, 1<<20)
//
//	want := testutil.BruteForceSearch(vecs, query, 10, distance.SquaredL2)
//	recall := testutil.ComputeRecall(want, got)
package testutil
