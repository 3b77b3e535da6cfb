// Package testutil provides testing utilities for vdego.
//
// This package is intended for use in tests only. It provides seeded
// random vectors and payloads, exact nearest neighbours for checking
// engine results, and a native.Library wrapper that records calls.
//
// # Random Data
//
//	rng := testutil.NewRNG(seed)
//	vecs := rng.UniformVectors(100, 4)
//	doc := rng.Payload(3)
//
// # Call Recording
//
//	rec := testutil.NewRecorder(native.NewMemory())
//	...
//	assert.Zero(t, rec.Count("vde_upsert_vector"))
package testutil
