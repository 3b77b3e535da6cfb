package model

import (
	"fmt"
)

// PointOffset is a dense, segment-local identifier for a point.
// It is distinct from any client-facing identifier.
type PointOffset uint32

// OffsetRange is the half-open range [Start, End) of point offsets.
type OffsetRange struct {
	Start PointOffset
	End   PointOffset
}

// Len returns the number of offsets in the range.
func (r OffsetRange) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return int(r.End - r.Start)
}

// Contains reports whether offset lies within the range.
func (r OffsetRange) Contains(offset PointOffset) bool {
	return offset >= r.Start && offset < r.End
}

// String returns a string representation of the range.
func (r OffsetRange) String() string {
	return fmt.Sprintf("%d..%d", r.Start, r.End)
}

// VectorKind identifies the representation of a Vector.
type VectorKind uint8

const (
	// KindDense is a fixed-dimension float32 vector.
	KindDense VectorKind = iota
	// KindSparse is a sparse index/value vector.
	KindSparse
	// KindMultiDense is a list of dense vectors.
	KindMultiDense
)

func (k VectorKind) String() string {
	switch k {
	case KindDense:
		return "dense"
	case KindSparse:
		return "sparse"
	case KindMultiDense:
		return "multi-dense"
	default:
		return fmt.Sprintf("Unknown(%d)", k)
	}
}

// Vector is implemented by all vector representations.
type Vector interface {
	Kind() VectorKind
}

// DenseVector is a fixed-dimension float32 vector.
type DenseVector []float32

// Kind implements Vector.
func (DenseVector) Kind() VectorKind { return KindDense }

// Dim returns the number of components.
func (v DenseVector) Dim() int { return len(v) }

// SparseVector stores only non-zero components.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// Kind implements Vector.
func (SparseVector) Kind() VectorKind { return KindSparse }

// MultiDenseVector holds several dense vectors for one point.
type MultiDenseVector [][]float32

// Kind implements Vector.
func (MultiDenseVector) Kind() VectorKind { return KindMultiDense }

// AsDense returns v as a DenseVector if it is dense.
func AsDense(v Vector) (DenseVector, bool) {
	switch d := v.(type) {
	case DenseVector:
		return d, true
	case *DenseVector:
		if d == nil {
			return nil, false
		}
		return *d, true
	default:
		return nil, false
	}
}

// ScoredPoint is a single search hit.
type ScoredPoint struct {
	// Offset is the point offset reported by the engine.
	Offset PointOffset
	// Score is the engine score (metric-dependent, not re-sorted).
	Score float32
}

// String returns a string representation of the ScoredPoint.
func (p ScoredPoint) String() string {
	return fmt.Sprintf("Point(%d:%g)", p.Offset, p.Score)
}
