package testutil

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/viterin/vek/vek32"

	"github.com/hupe1980/vdego/distance"
	"github.com/hupe1980/vdego/model"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// FillUniform fills dst with random values in range [0, 1).
func (r *RNG) FillUniform(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float32()
	}
}

// UniformVectors generates random dense vectors with values in range [0, 1).
// Uses a single backing array for efficiency.
func (r *RNG) UniformVectors(num int, dimensions int) []model.DenseVector {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dimensions)
	vectors := make([]model.DenseVector, num)

	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions]
		for j := range vec {
			vec[j] = r.rand.Float32()
		}
		vectors[i] = vec
	}

	return vectors
}

// UnitVectors generates L2-normalized random vectors (on the hypersphere).
func (r *RNG) UnitVectors(num int, dimensions int) []model.DenseVector {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dimensions)
	vectors := make([]model.DenseVector, num)

	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions]
		var norm float64
		for j := range vec {
			v := r.rand.NormFloat64()
			vec[j] = float32(v)
			norm += v * v
		}

		if norm == 0 {
			norm = 1
		}

		vek32.MulNumber_Inplace(vec, float32(1.0/math.Sqrt(norm)))
		vectors[i] = vec
	}

	return vectors
}

var payloadColors = []string{"red", "green", "blue", "black"}

// Payload returns a random flat JSON payload document with the given number
// of numeric fields plus a "color" and a "tags" field.
func (r *RNG) Payload(fields int) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := make(map[string]any, fields+2)
	for i := range fields {
		doc[fmt.Sprintf("f%d", i)] = r.rand.Intn(100)
	}
	doc["color"] = payloadColors[r.rand.Intn(len(payloadColors))]
	doc["tags"] = []any{payloadColors[r.rand.Intn(len(payloadColors))]}
	return doc
}

// SearchResult is an exact search hit.
type SearchResult struct {
	Offset model.PointOffset
	Score  float32
}

// BruteForceSearch performs exact search for ground truth. Position i of
// vectors is offset i; ties rank the lower offset first.
func BruteForceSearch(vectors []model.DenseVector, query []float32, k int, metric distance.Metric) []SearchResult {
	results := make([]SearchResult, len(vectors))
	for i, v := range vectors {
		results[i] = SearchResult{Offset: model.PointOffset(i), Score: metric.Score(query, v)}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return metric.Better(results[i].Score, results[j].Score)
		}
		return results[i].Offset < results[j].Offset
	})

	if len(results) > k {
		results = results[:k]
	}
	return results
}

// ComputeRecall calculates the fraction of groundTruth offsets present in approximate.
func ComputeRecall(groundTruth []SearchResult, approximate []model.ScoredPoint) float64 {
	if len(groundTruth) == 0 {
		return 1.0
	}

	truth := make(map[model.PointOffset]struct{}, len(groundTruth))
	for _, r := range groundTruth {
		truth[r.Offset] = struct{}{}
	}

	hits := 0
	for _, r := range approximate {
		if _, ok := truth[r.Offset]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(groundTruth))
}
