// Package fs abstracts the filesystem calls used for host-side sidecar
// files so tests can inject faults.
//
// Production code uses fs.Default (LocalFS). Tests wrap it in a FaultyFS:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("_deleted.bits", fs.Fault{FailOnSync: true})
//
// Operations take no context.Context; local file calls are not
// interruptible. Remote transfers go through blobstore instead.
package fs
