// Package blobstore provides the storage abstraction backups are written to.
//
// Store is a flat namespace of immutable blobs addressed by slash-separated
// names. Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: a directory on the local file system
//   - MemoryStore: in-process, for tests
//   - s3.Store: Amazon S3 with multipart uploads
//   - minio.Store: MinIO and other S3-compatible services
//
// # Custom Implementations
//
// Implement the Store interface to support custom storage backends:
//
//	type Store interface {
//	    Put(ctx, name, r) error                   // Atomic write
//	    Get(ctx, name) (io.ReadCloser, error)     // ErrNotFound when absent
//	    List(ctx, prefix) ([]string, error)       // Sorted names
//	    Delete(ctx, name) error                   // Absent names are not an error
//	}
package blobstore
