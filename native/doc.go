// Package native describes the fixed C ABI of the VDE vector engine and provides
// two implementations of it.
//
//   - Dylib loads libvde at runtime without cgo (via purego) and forwards every
//     call to the C functions.
//   - Memory is an embedded reference engine with the same observable behaviour
//     (brute-force search, JSON payloads, files in the working directory). It is
//     used by tests and by deployments without the native library.
//
// Every function mirrors one C entry point. Handles are opaque; a zero handle
// means the call failed. Functions returning int32 report StatusOK (0) on
// success; any other value is an engine-defined failure code that callers must
// not interpret beyond "non-zero".
package native
