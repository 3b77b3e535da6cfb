// Package model defines core types shared by the vdego adapters.
//
// # Identity Types
//
//   - PointOffset: Dense, segment-local point identifier (uint32)
//   - OffsetRange: Half-open range of point offsets
//
// # Vector Types
//
//   - DenseVector: Fixed-dimension float32 vector (the only kind the engine accepts)
//   - SparseVector: Index/value pairs
//   - MultiDenseVector: Several dense vectors per point
//
// # Search Types
//
//   - ScoredPoint: Offset plus engine-reported score
package model
