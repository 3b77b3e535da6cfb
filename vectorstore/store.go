package vectorstore

import (
	"context"
	"fmt"
	"iter"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/vdego/distance"
	"github.com/hupe1980/vdego/internal/fs"
	"github.com/hupe1980/vdego/model"
	"github.com/hupe1980/vdego/observability"
	"github.com/hupe1980/vdego/session"
)

// Datatype is the element type of stored vectors.
const Datatype = "float32"

// SidecarSuffix names the deletion tracker file next to the engine files.
const SidecarSuffix = "_deleted.bits"

// Options configures a Store.
type Options struct {
	Logger  *slog.Logger
	Metrics observability.MetricsCollector
	// FS is used for the sidecar file. Defaults to the local filesystem.
	FS fs.FileSystem
}

// Store is the vector storage of one collection.
type Store struct {
	coll *session.Collection

	// writeMu keeps the engine write and the tracker update of one
	// operation together, so the tracker never disagrees with the engine.
	writeMu sync.Mutex
	tracker *deletedTracker
	fs      fs.FileSystem
	logger  *slog.Logger
	metrics observability.MetricsCollector
}

// Open returns the storage adapter of coll, loading the deletion sidecar
// if one exists.
func Open(coll *session.Collection, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = coll.Session().Logger()
	}

	s := &Store{
		coll:    coll,
		tracker: newDeletedTracker(),
		fs:      fs.OrDefault(opts.FS),
		logger:  logger.With("component", "vectorstore", "collection", coll.Name()),
		metrics: observability.OrNoop(opts.Metrics),
	}
	if err := s.tracker.load(s.fs, s.sidecarPath()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) sidecarPath() string {
	return s.coll.Path(SidecarSuffix)
}

// Dimension returns the configured vector dimension.
func (s *Store) Dimension() int { return s.coll.Dimension() }

// Distance returns the collection metric.
func (s *Store) Distance() distance.Metric { return s.coll.Metric() }

// Datatype returns the element type of stored vectors.
func (s *Store) Datatype() string { return Datatype }

// IsOnDisk reports that vectors live in engine storage.
func (s *Store) IsOnDisk() bool { return true }

// Get returns the stored vector of offset, or nil when the engine has none.
func (s *Store) Get(ctx context.Context, offset model.PointOffset) model.DenseVector {
	v, _ := s.GetOpt(ctx, offset)
	return v
}

// GetOpt is like Get but reports whether a vector was found.
func (s *Store) GetOpt(ctx context.Context, offset model.PointOffset) (model.DenseVector, bool) {
	v, err := s.coll.GetVector(ctx, offset)
	if err != nil {
		s.logger.Debug("vector miss", "offset", offset, "error", err)
		return nil, false
	}
	return v, true
}

// Insert stores vec at offset and marks it live.
func (s *Store) Insert(ctx context.Context, offset model.PointOffset, vec model.Vector) (err error) {
	start := time.Now()
	defer func() { s.metrics.RecordInsert(time.Since(start), err) }()

	dense, err := session.ValidateDense(vec, s.coll.Dimension())
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.coll.Upsert(ctx, offset, dense, nil); err != nil {
		return err
	}
	s.tracker.markLive(offset)
	return nil
}

// Update replaces the vector of an existing live point. Unknown and
// deleted offsets fail with a ServiceError matching session.ErrNotFound.
func (s *Store) Update(ctx context.Context, offset model.PointOffset, vec model.Vector) (err error) {
	start := time.Now()
	defer func() { s.metrics.RecordInsert(time.Since(start), err) }()

	dense, err := session.ValidateDense(vec, s.coll.Dimension())
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if !s.exists(ctx, offset) {
		return session.NewServiceError("update", fmt.Sprintf("point %d does not exist", offset), session.ErrNotFound)
	}
	if err := s.coll.Upsert(ctx, offset, dense, nil); err != nil {
		return err
	}
	s.tracker.markLive(offset)
	return nil
}

// exists asks the tracker first and falls back to the engine for points
// written before the tracker existed.
func (s *Store) exists(ctx context.Context, offset model.PointOffset) bool {
	if s.tracker.isDeleted(offset) {
		return false
	}
	if s.tracker.isPresent(offset) {
		return true
	}
	_, ok := s.GetOpt(ctx, offset)
	return ok
}

// Delete removes offset and reports whether it was live before.
// Deleting twice returns false the second time.
func (s *Store) Delete(ctx context.Context, offset model.PointOffset) (wasLive bool, err error) {
	start := time.Now()
	defer func() { s.metrics.RecordDelete(time.Since(start), err) }()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.coll.Delete(ctx, offset); err != nil {
		return false, err
	}
	return s.tracker.markDeleted(offset), nil
}

// UpdateFrom loads vectors in one ordered pass: item i lands at offset i.
// Items flagged deleted are deleted instead of inserted. ctx is checked
// between items; on cancellation the applied prefix stays and the error
// wraps session.ErrCancelled. The returned range is [0, n).
func (s *Store) UpdateFrom(ctx context.Context, seq iter.Seq2[model.Vector, bool]) (model.OffsetRange, error) {
	start := time.Now()
	var (
		n   model.PointOffset
		err error
	)

	for vec, deleted := range seq {
		if cerr := ctx.Err(); cerr != nil {
			err = fmt.Errorf("%w after %d items: %w", session.ErrCancelled, n, cerr)
			break
		}

		if deleted {
			_, err = s.Delete(ctx, n)
		} else {
			err = s.Insert(ctx, n, vec)
		}
		if err != nil {
			// The item may have failed waiting for the native gate.
			if cerr := ctx.Err(); cerr != nil && errors.Is(err, cerr) {
				err = fmt.Errorf("%w after %d items: %w", session.ErrCancelled, n, err)
			} else {
				err = fmt.Errorf("offset %d: %w", n, err)
			}
			break
		}
		n++
	}

	failed := 0
	if err != nil {
		failed = 1
	}
	s.metrics.RecordBatchInsert(int(n), failed, time.Since(start))

	r := model.OffsetRange{Start: 0, End: n}
	if err != nil {
		return r, err
	}
	s.logger.Debug("update from", "range", r.String())
	return r, nil
}

// IsDeleted reports whether offset is marked deleted.
func (s *Store) IsDeleted(offset model.PointOffset) bool {
	return s.tracker.isDeleted(offset)
}

// DeletedCount returns the number of deleted offsets.
func (s *Store) DeletedCount() int {
	return s.tracker.deletedCount()
}

// DeletedBitSlice returns a snapshot of the deletion bitset; bit i is set
// when offset i is deleted. Its length covers every offset seen so far.
func (s *Store) DeletedBitSlice() *bitset.BitSet {
	return s.tracker.snapshot()
}

// TotalVectorCount returns the number of live vectors reported by the engine.
func (s *Store) TotalVectorCount(ctx context.Context) (int, error) {
	n, err := s.coll.VectorCount(ctx)
	return int(n), err
}

// Files returns the engine storage files plus the deletion sidecar.
func (s *Store) Files() []string {
	return []string{
		s.coll.Path("_vectors.btr"),
		s.coll.Path("_index.snapshot"),
		s.sidecarPath(),
	}
}

// Flusher returns a function persisting the deletion sidecar. Engine
// storage is flushed when the session is torn down.
func (s *Store) Flusher() func() error {
	return func() error {
		start := time.Now()
		err := s.tracker.save(s.fs, s.sidecarPath())
		s.metrics.RecordFlush(time.Since(start), err)
		return err
	}
}

// Close persists the deletion sidecar.
func (s *Store) Close() error {
	if err := s.Flusher()(); err != nil {
		return fmt.Errorf("vectorstore close: %w", err)
	}
	return nil
}
