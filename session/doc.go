// Package session owns the native engine and collection handles shared by
// the adapters of one segment.
//
// A Session is opened once per working directory. It holds an exclusive
// lock on the directory, the engine handle, and one Collection per name.
// The session is reference counted; the last Release saves a snapshot of
// every collection, flushes it and destroys the engine.
//
// Every native call passes through a gate (a resource.Controller) that
// serializes calls unless a higher concurrency was configured. Non-zero
// status codes are returned as *ServiceError; null handles as
// *InitializationError.
package session
