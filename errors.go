package vdego

import (
	"errors"

	"github.com/hupe1980/vdego/session"
)

// Error types raised by the adapters. They are defined in package session,
// where the native boundary lives, and re-exported here.
type (
	// InitializationError reports a failure to bring up the engine or a collection.
	InitializationError = session.InitializationError

	// ServiceError reports a failed native operation and carries its status code.
	ServiceError = session.ServiceError

	// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
	ErrDimensionMismatch = session.ErrDimensionMismatch
)

var (
	// ErrUnsupportedVectorKind is returned for sparse and multi-dense vectors.
	ErrUnsupportedVectorKind = session.ErrUnsupportedVectorKind

	// ErrCancelled is returned when a bulk load observed a cancelled context.
	ErrCancelled = session.ErrCancelled

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = session.ErrInvalidK

	// ErrClosed is returned when using a closed segment.
	ErrClosed = session.ErrClosed

	// ErrNotFound classifies errors about points that do not exist.
	ErrNotFound = session.ErrNotFound

	// ErrNoLibrary is returned when no engine library was configured or found.
	ErrNoLibrary = errors.New("no VDE library configured or found")

	// ErrNoSchema is returned when opening a segment that was never created
	// without the Create option.
	ErrNoSchema = errors.New("segment has no schema; use Create to create it")
)
