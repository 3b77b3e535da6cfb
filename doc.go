// Package vdego integrates a segment of a vector database with the VDE
// engine, an external ANN engine reached through a C ABI.
//
// A Segment opens one engine session and one collection and exposes the
// three storage abstractions of a segment on top of it:
//
//   - Index: approximate nearest-neighbour search, optionally filtered
//   - Vectors: raw vector storage with host-side deletion tracking
//   - Payloads: JSON documents with merge, path delete and a read cache
//
// # Quick Start
//
//	ctx := context.Background()
//	seg, _ := vdego.Open(ctx, "./data", vdego.Create(768, distance.MetricCosine))
//	defer seg.Close()
//
//	_ = seg.Vectors().Insert(ctx, 0, model.DenseVector(vec))
//	_ = seg.Payloads().Set(ctx, 0, payload.Payload{"city": "Berlin"})
//
//	f := filter.New(filter.Must(filter.Eq("city", "Berlin")))
//	hits, _ := seg.Index().Search(ctx, []model.Vector{model.DenseVector(query)}, f, 10)
//
// # Engine Library
//
// The engine is loaded from the path given with WithLibraryPath, else from
// $VDE_LIBRARY, $XDG_DATA_HOME/vde/lib, /usr/local/lib and /usr/lib.
// WithLibrary(native.NewMemory()) runs an in-process engine with the same
// file layout, intended for tests.
//
// # Concurrency
//
// Adapters are safe for concurrent use. Calls into the engine pass through
// a gate that admits one call at a time unless WithNativeConcurrency raises
// the limit. Contexts bound the wait for the gate; a native call itself
// cannot be interrupted.
//
// # Durability
//
// Engine state becomes durable when the segment is flushed or closed.
// Close saves the index snapshot and flushes storage exactly once, after
// every adapter has finished.
//
// # Backup
//
// Files lists every file of the segment. Package backup uploads that list
// to a blobstore.Store:
//
//	b := backup.New(blobstore.NewLocalStore("/backups"))
//	m, _ := b.Backup(ctx, seg.Files())
package vdego
