// Package observability defines the metrics hooks called by the adapters
// and ships three collectors: a no-op, an in-memory one backed by atomics,
// and a Prometheus one.
package observability
