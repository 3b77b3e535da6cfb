// Package distance defines the distance metrics understood by the VDE engine.
//
// # Supported Metrics
//
//   - MetricCosine: Cosine similarity ("cosine")
//   - MetricEuclidean: Euclidean distance ("euclidean")
//   - MetricDot: Dot product ("dot")
//   - MetricManhattan: Manhattan (L1) distance ("manhattan")
//
// The engine identifies metrics by exact-match names. Use Parse for user input
// and MustParse where an unknown name is a programming error.
//
// # Usage
//
//	m := distance.MustParse("cosine")
//	score := m.Score(a, b)
//	better := m.Better(score, other)
package distance
