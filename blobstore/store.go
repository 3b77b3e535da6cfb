package blobstore

import (
	"bytes"
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Store is a flat namespace of immutable blobs.
type Store interface {
	// Put writes the blob name from r. Readers never observe a partial blob.
	Put(ctx context.Context, name string, r io.Reader) error

	// Get opens the blob name for reading.
	Get(ctx context.Context, name string) (io.ReadCloser, error)

	// List returns the sorted names starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the blob name. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
}

// PutBytes writes data as the blob name.
func PutBytes(ctx context.Context, s Store, name string, data []byte) error {
	return s.Put(ctx, name, bytes.NewReader(data))
}

// GetBytes reads the whole blob name.
func GetBytes(ctx context.Context, s Store, name string) ([]byte, error) {
	rc, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}
