// Package distance provides vector distance calculations.
//
// # Supported Metrics
//
//   - MetricL2: Squared Euclidean distance (default)
//   - MetricCosine: Cosine distance (1 - cosine similarity)
//   - MetricDot: Negated dot product (inner product)
//
// Every Func returns smaller values for closer vectors.
//
// # Usage
//
//	dist := distance.SquaredL2(a, b)
//	sim := distance.Dot(a, b)
//	fn, err := distance.Provider(distance.MetricCosine)
package distance
