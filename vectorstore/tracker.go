package vectorstore

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/vdego/internal/compress"
	"github.com/hupe1980/vdego/internal/fs"
	"github.com/hupe1980/vdego/model"
)

// deletedTracker records which offsets were written and which are deleted.
type deletedTracker struct {
	mu      sync.RWMutex
	present *bitset.BitSet
	deleted *bitset.BitSet
	dirty   bool
}

func newDeletedTracker() *deletedTracker {
	return &deletedTracker{
		present: bitset.New(0),
		deleted: bitset.New(0),
	}
}

// markLive records an insert of offset.
func (t *deletedTracker) markLive(offset model.PointOffset) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := uint(offset)
	t.present.Set(i)
	t.deleted.Clear(i)
	t.grow(i)
	t.dirty = true
}

// markDeleted records a delete of offset and returns whether it was live before.
func (t *deletedTracker) markDeleted(offset model.PointOffset) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := uint(offset)
	wasLive := t.present.Test(i) && !t.deleted.Test(i)
	if !t.deleted.Test(i) {
		t.deleted.Set(i)
		t.dirty = true
	}
	t.grow(i)
	return wasLive
}

// grow keeps both bitsets at least i+1 bits long.
func (t *deletedTracker) grow(i uint) {
	n := max(t.present.Len(), t.deleted.Len(), i+1)
	// Set extends a bitset, Clear does not.
	if t.present.Len() < n {
		t.present.Set(n - 1).Clear(n - 1)
	}
	if t.deleted.Len() < n {
		t.deleted.Set(n - 1).Clear(n - 1)
	}
}

func (t *deletedTracker) isDeleted(offset model.PointOffset) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.deleted.Test(uint(offset))
}

func (t *deletedTracker) isPresent(offset model.PointOffset) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.present.Test(uint(offset))
}

func (t *deletedTracker) deletedCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return int(t.deleted.Count())
}

func (t *deletedTracker) snapshot() *bitset.BitSet {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.deleted.Clone()
}

// Sidecar layout: a compressed frame holding the present bitset followed by
// the deleted bitset, each in bitset binary form.

func (t *deletedTracker) save(fsys fs.FileSystem, path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.dirty && fs.Exists(fsys, path) {
		return nil
	}

	var buf bytes.Buffer
	if _, err := t.present.WriteTo(&buf); err != nil {
		return err
	}
	if _, err := t.deleted.WriteTo(&buf); err != nil {
		return err
	}

	frame, err := compress.Encode(buf.Bytes(), compress.ZSTD)
	if err != nil {
		return err
	}
	if err := fs.WriteFileAtomic(fsys, path, frame); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	t.dirty = false
	return nil
}

// load replaces the tracker state from path. A missing file leaves the
// tracker empty.
func (t *deletedTracker) load(fsys fs.FileSystem, path string) error {
	frame, err := fs.ReadFile(fsys, path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	data, err := compress.Decode(frame)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	present, deleted := &bitset.BitSet{}, &bitset.BitSet{}
	r := bytes.NewReader(data)
	if _, err := present.ReadFrom(r); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if _, err := deleted.ReadFrom(r); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.present, t.deleted = present, deleted
	t.dirty = false
	return nil
}
