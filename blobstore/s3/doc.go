// Package s3 provides an Amazon S3 implementation of blobstore.Store.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("backups/"),
//	    s3.WithRegion("eu-central-1"),
//	)
//
//	b := backup.New(store)
//
// # Features
//
//   - Multipart uploads for large segment files
//   - CRC32C integrity checks on upload
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
//
// S3 offers no compare-and-swap, so concurrent backup writers should publish
// through a GenerationLog, which records the latest backup in DynamoDB with
// conditional writes.
package s3
