// Package index adapts the ANN index of a VDE collection to the segment's
// vector index abstraction.
//
// Searches are validated on the host (vector kind, dimension, k) before any
// native call. A filter is serialized to the engine filter grammar and sent
// with the filtered search entry point. Result order is the engine's.
//
// Updates go through UpdateVector only: a vector upserts, nil deletes.
package index
