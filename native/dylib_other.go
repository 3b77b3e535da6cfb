//go:build !(darwin || freebsd || linux)

package native

import (
	"errors"
	"runtime"
)

// LibraryEnv names the environment variable that overrides library discovery.
const LibraryEnv = "VDE_LIBRARY"

// Dylib is unavailable on this platform.
type Dylib struct{}

// Load always fails on platforms without dlopen support.
func Load(string) (*Dylib, error) {
	return nil, errors.New("native VDE library is not supported on " + runtime.GOOS)
}

// FindLibrary always returns "" on this platform.
func FindLibrary() string { return "" }

// Close is a no-op on this platform.
func (*Dylib) Close() error { return nil }
