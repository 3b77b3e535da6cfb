//go:build darwin || freebsd || linux

package session

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

type dirLock struct {
	f *os.File
}

// lockDir takes a non-blocking exclusive flock on path.
func lockDir(path string) (*dirLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s is held by another session", path)
		}
		return nil, fmt.Errorf("failed to acquire lock on %s: %w", path, err)
	}
	return &dirLock{f: f}, nil
}

// release drops the flock by closing the descriptor.
func (l *dirLock) release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
