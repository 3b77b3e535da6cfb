package payload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hupe1980/vdego/codec"
	"github.com/hupe1980/vdego/internal/compress"
	"github.com/hupe1980/vdego/internal/fs"
	"github.com/hupe1980/vdego/model"
	"github.com/hupe1980/vdego/observability"
	"github.com/hupe1980/vdego/session"
)

const (
	// DefaultCacheSize is the number of documents kept in the read cache.
	DefaultCacheSize = 10_000

	// KeysSuffix names the key set file next to the engine files.
	KeysSuffix = "_payload.keys"
)

// Options configures a Storage.
type Options struct {
	Logger  *slog.Logger
	Metrics observability.MetricsCollector
	// Codec encodes documents for the engine. Defaults to codec.Default.
	Codec codec.Codec
	// CacheSize bounds the read cache. Defaults to DefaultCacheSize.
	CacheSize int
	// FS is used for the key set file. Defaults to the local filesystem.
	FS fs.FileSystem
}

// Storage is the payload storage of one collection.
type Storage struct {
	coll    *session.Collection
	codec   codec.Codec
	cache   *lru.Cache[model.PointOffset, Payload]
	fs      fs.FileSystem
	logger  *slog.Logger
	metrics observability.MetricsCollector

	// mu orders cache fills against writes: readers hold it shared while
	// they fetch and cache a document, writers hold it exclusively.
	mu sync.RWMutex

	keysMu    sync.RWMutex
	keys      *roaring.Bitmap
	keysDirty bool
}

// Open returns the payload adapter of coll, loading the key set if one
// exists.
func Open(coll *session.Collection, opts Options) (*Storage, error) {
	logger := opts.Logger
	if logger == nil {
		logger = coll.Session().Logger()
	}
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[model.PointOffset, Payload](size)
	if err != nil {
		return nil, fmt.Errorf("payload cache: %w", err)
	}

	s := &Storage{
		coll:    coll,
		codec:   codec.OrDefault(opts.Codec),
		cache:   cache,
		fs:      fs.OrDefault(opts.FS),
		logger:  logger.With("component", "payload", "collection", coll.Name()),
		metrics: observability.OrNoop(opts.Metrics),
		keys:    roaring.New(),
	}
	if err := s.loadKeys(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Storage) keysPath() string {
	return s.coll.Path(KeysSuffix)
}

// Get returns the document of offset. A point the engine does not know
// yields an empty document. The result is a copy the caller may modify.
func (s *Storage) Get(ctx context.Context, offset model.PointOffset) (Payload, error) {
	p, _, err := s.read(ctx, offset)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// GetSequential is Get for callers walking offsets in order.
func (s *Storage) GetSequential(ctx context.Context, offset model.PointOffset) (Payload, error) {
	return s.Get(ctx, offset)
}

// read is get for callers not holding mu.
func (s *Storage) read(ctx context.Context, offset model.PointOffset) (Payload, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(ctx, offset)
}

// get returns the cached document, which must not be modified, and whether
// the engine has the point.
func (s *Storage) get(ctx context.Context, offset model.PointOffset) (p Payload, found bool, err error) {
	start := time.Now()
	hit := false
	defer func() { s.metrics.RecordPayloadRead(hit, time.Since(start), err) }()

	if p, ok := s.cache.Get(offset); ok {
		hit = true
		return p, true, nil
	}

	raw, err := s.coll.GetPayload(ctx, offset)
	if err != nil {
		var se *session.ServiceError
		if errors.As(err, &se) && se.Code != 0 {
			s.logger.Debug("payload miss", "offset", offset, "code", se.Code)
			return Payload{}, false, nil
		}
		return nil, false, err
	}

	p = Payload{}
	if len(raw) > 0 {
		if err := s.codec.Unmarshal(raw, &p); err != nil {
			return nil, false, session.NewServiceError("get_payload", fmt.Sprintf("decode payload of point %d", offset), err)
		}
	}
	s.cache.Add(offset, p)
	if !p.IsEmpty() {
		s.addKey(offset)
	}
	return p, true, nil
}

// write stores p as the whole document of offset.
func (s *Storage) write(ctx context.Context, offset model.PointOffset, p Payload) (err error) {
	start := time.Now()
	defer func() { s.metrics.RecordPayloadWrite(time.Since(start), err) }()

	if p == nil {
		p = Payload{}
	}
	raw, err := s.codec.Marshal(p)
	if err != nil {
		return session.NewServiceError("upsert_vector", fmt.Sprintf("encode payload of point %d", offset), err)
	}
	if err := s.coll.Upsert(ctx, offset, nil, raw); err != nil {
		return err
	}

	s.cache.Add(offset, p.Clone())
	if p.IsEmpty() {
		s.removeKey(offset)
	} else {
		s.addKey(offset)
	}
	return nil
}

// Overwrite replaces the whole document of offset.
func (s *Storage) Overwrite(ctx context.Context, offset model.PointOffset, p Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.write(ctx, offset, p)
}

// Set merges partial into the document of offset. Nested objects are merged
// recursively, new values win and arrays are replaced.
func (s *Storage) Set(ctx context.Context, offset model.PointOffset, partial Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, _, err := s.get(ctx, offset)
	if err != nil {
		return err
	}
	merged := cur.Clone()
	merged.Merge(partial)
	return s.write(ctx, offset, merged)
}

// SetByKey merges partial into the object found at path, creating it when
// absent. A path with [] merges into every element of the array.
func (s *Storage) SetByKey(ctx context.Context, offset model.PointOffset, partial Payload, path Path) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.raw(ctx, offset)
	if err != nil {
		return err
	}
	doc, err = path.mergeAt(doc, partial, s.codec.Marshal)
	if err != nil {
		return session.NewServiceError("upsert_vector", fmt.Sprintf("set payload key of point %d", offset), err)
	}

	merged := Payload{}
	if err := s.codec.Unmarshal(doc, &merged); err != nil {
		return session.NewServiceError("upsert_vector", fmt.Sprintf("decode payload of point %d", offset), err)
	}
	return s.write(ctx, offset, merged)
}

// Delete removes the values at path from the document of offset and
// returns them. Nothing is written when path addresses no value.
func (s *Storage) Delete(ctx context.Context, offset model.PointOffset, path Path) ([]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.raw(ctx, offset)
	if err != nil {
		return nil, err
	}
	doc, removed, err := path.deleteAt(doc)
	if err != nil {
		return nil, session.NewServiceError("upsert_vector", fmt.Sprintf("delete payload key of point %d", offset), err)
	}
	if len(removed) == 0 {
		return removed, nil
	}

	rest := Payload{}
	if err := s.codec.Unmarshal(doc, &rest); err != nil {
		return nil, session.NewServiceError("upsert_vector", fmt.Sprintf("decode payload of point %d", offset), err)
	}
	if err := s.write(ctx, offset, rest); err != nil {
		return nil, err
	}
	return removed, nil
}

// raw returns the current document of offset re-encoded for path editing.
func (s *Storage) raw(ctx context.Context, offset model.PointOffset) ([]byte, error) {
	cur, _, err := s.get(ctx, offset)
	if err != nil {
		return nil, err
	}
	doc, err := s.codec.Marshal(cur)
	if err != nil {
		return nil, session.NewServiceError("get_payload", fmt.Sprintf("encode payload of point %d", offset), err)
	}
	return doc, nil
}

// Clear writes an empty document for offset and drops it from the cache.
// It returns the previous document, or nil when there was none.
func (s *Storage) Clear(ctx context.Context, offset model.PointOffset) (Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prior, _, err := s.get(ctx, offset)
	if err != nil {
		s.logger.Debug("clear without prior payload", "offset", offset, "error", err)
		prior = nil
	}
	if err := s.write(ctx, offset, Payload{}); err != nil {
		return nil, err
	}
	s.cache.Remove(offset)

	if prior.IsEmpty() {
		return nil, nil
	}
	return prior.Clone(), nil
}

// Iter calls fn for every stored document in ascending offset order until
// fn returns false or an error. Offsets the engine no longer knows are
// skipped and dropped from the key set.
func (s *Storage) Iter(ctx context.Context, fn func(model.PointOffset, Payload) (bool, error)) error {
	s.keysMu.RLock()
	keys := s.keys.Clone()
	s.keysMu.RUnlock()

	it := keys.Iterator()
	for it.HasNext() {
		if err := ctx.Err(); err != nil {
			return err
		}
		offset := model.PointOffset(it.Next())

		p, found, err := s.read(ctx, offset)
		if err != nil {
			return err
		}
		if !found {
			s.removeKey(offset)
			continue
		}
		ok, err := fn(offset, p.Clone())
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	return nil
}

// Len returns the number of offsets with a non-empty document.
func (s *Storage) Len() int {
	s.keysMu.RLock()
	defer s.keysMu.RUnlock()
	return int(s.keys.GetCardinality())
}

// StorageSizeBytes returns the encoded size of all stored documents.
func (s *Storage) StorageSizeBytes(ctx context.Context) (int, error) {
	total := 0
	err := s.Iter(ctx, func(_ model.PointOffset, p Payload) (bool, error) {
		raw, err := s.codec.Marshal(p)
		if err != nil {
			return false, err
		}
		total += len(raw)
		return true, nil
	})
	return total, err
}

// IsOnDisk reports that documents live in engine storage.
func (s *Storage) IsOnDisk() bool { return true }

// Files returns the engine metadata file and the key set file.
func (s *Storage) Files() []string {
	return []string{
		s.coll.Path("_metadata.btr"),
		s.keysPath(),
	}
}

// ClearAll empties the read cache. Stored documents are untouched.
func (s *Storage) ClearAll() {
	s.cache.Purge()
}

// Flusher returns a function persisting the key set. Engine storage is
// flushed when the session is torn down.
func (s *Storage) Flusher() func() error {
	return func() error {
		start := time.Now()
		err := s.saveKeys()
		s.metrics.RecordFlush(time.Since(start), err)
		return err
	}
}

// Close persists the key set.
func (s *Storage) Close() error {
	if err := s.Flusher()(); err != nil {
		return fmt.Errorf("payload close: %w", err)
	}
	return nil
}

func (s *Storage) addKey(offset model.PointOffset) {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	if s.keys.CheckedAdd(uint32(offset)) {
		s.keysDirty = true
	}
}

func (s *Storage) removeKey(offset model.PointOffset) {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	if s.keys.CheckedRemove(uint32(offset)) {
		s.keysDirty = true
	}
}

// The key set file is a compressed frame holding the portable roaring
// serialization.

func (s *Storage) saveKeys() error {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()

	path := s.keysPath()
	if !s.keysDirty && fs.Exists(s.fs, path) {
		return nil
	}

	s.keys.RunOptimize()
	data, err := s.keys.ToBytes()
	if err != nil {
		return err
	}
	frame, err := compress.Encode(data, compress.LZ4)
	if err != nil {
		return err
	}
	if err := fs.WriteFileAtomic(s.fs, path, frame); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	s.keysDirty = false
	return nil
}

func (s *Storage) loadKeys() error {
	path := s.keysPath()
	frame, err := fs.ReadFile(s.fs, path)
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
	keys := roaring.New()
	if err := keys.UnmarshalBinary(data); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	s.keys = keys
	s.keysDirty = false
	return nil
}
