package session

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vdego/model"
)

var (
	// ErrUnsupportedVectorKind is returned for sparse and multi-dense vectors.
	ErrUnsupportedVectorKind = errors.New("only dense vectors are supported")

	// ErrCancelled is returned when a bulk operation observed a cancelled context.
	ErrCancelled = errors.New("operation cancelled")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrClosed is returned when using a released session or closed adapter.
	ErrClosed = errors.New("session closed")

	// ErrNotFound classifies service errors about points that do not exist.
	ErrNotFound = errors.New("not found")

	errNullHandle = errors.New("engine returned a null handle")
)

// InitializationError reports a failure to bring up the engine or a collection.
type InitializationError struct {
	Op   string
	Path string
	Err  error
}

func (e *InitializationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("vde %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("vde %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// ServiceError reports a failed native operation.
//
// Code is the engine status code, or 0 when the failure was detected on the
// host side (for example an update of a point that does not exist).
type ServiceError struct {
	Op      string
	Code    int32
	Message string
	cause   error
}

// NewServiceError returns a host-side ServiceError wrapping cause.
func NewServiceError(op, msg string, cause error) *ServiceError {
	return &ServiceError{Op: op, Message: msg, cause: cause}
}

func statusError(op string, code int32) error {
	if code == 0 {
		return nil
	}
	return &ServiceError{Op: op, Code: code}
}

func (e *ServiceError) Error() string {
	msg := "vde " + e.Op + " failed"
	if e.Code != 0 {
		msg += fmt.Sprintf(" with status %d", e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *ServiceError) Unwrap() error { return e.cause }

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ValidateDense checks that v is a dense vector of dimension dim.
func ValidateDense(v model.Vector, dim int) (model.DenseVector, error) {
	dense, ok := model.AsDense(v)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVectorKind, kindOf(v))
	}
	if len(dense) != dim {
		return nil, &ErrDimensionMismatch{Expected: dim, Actual: len(dense)}
	}
	return dense, nil
}

func kindOf(v model.Vector) string {
	if v == nil {
		return "nil"
	}
	return v.Kind().String()
}
