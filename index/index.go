package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hupe1980/vdego/distance"
	"github.com/hupe1980/vdego/filter"
	"github.com/hupe1980/vdego/model"
	"github.com/hupe1980/vdego/native"
	"github.com/hupe1980/vdego/observability"
	"github.com/hupe1980/vdego/session"
)

// Name is the index name reported in telemetry.
const Name = "vde_hnsw"

// Writer applies vector writes on behalf of the index. *vectorstore.Store
// implements it, keeping its deletion tracker in step with the engine.
type Writer interface {
	Insert(ctx context.Context, offset model.PointOffset, vec model.Vector) error
	Delete(ctx context.Context, offset model.PointOffset) (bool, error)
}

// Options configures a VectorIndex.
type Options struct {
	Logger  *slog.Logger
	Metrics observability.MetricsCollector
	// Writer receives UpdateVector calls. Without one the index writes to
	// the engine directly.
	Writer Writer
}

// Telemetry is a snapshot of index counters. The engine exposes none, so
// every counter is zero.
type Telemetry struct {
	IndexName             string
	UnfilteredSearches    uint64
	FilteredSearches      uint64
	UnfilteredExactSearch uint64
	FilteredExactSearch   uint64
}

// VectorIndex is the ANN index of one collection.
type VectorIndex struct {
	coll    *session.Collection
	writer  Writer
	logger  *slog.Logger
	metrics observability.MetricsCollector
}

// New returns the index adapter of coll.
func New(coll *session.Collection, opts Options) *VectorIndex {
	logger := opts.Logger
	if logger == nil {
		logger = coll.Session().Logger()
	}
	return &VectorIndex{
		coll:    coll,
		writer:  opts.Writer,
		logger:  logger.With("component", "index", "collection", coll.Name()),
		metrics: observability.OrNoop(opts.Metrics),
	}
}

// Dimension returns the configured vector dimension.
func (x *VectorIndex) Dimension() int { return x.coll.Dimension() }

// Distance returns the collection metric.
func (x *VectorIndex) Distance() distance.Metric { return x.coll.Metric() }

// Search returns the topK nearest points for every query, in query order.
//
// All queries are checked before the first native call: a non-dense query
// fails with session.ErrUnsupportedVectorKind, a wrong length with
// *session.ErrDimensionMismatch.
func (x *VectorIndex) Search(ctx context.Context, queries []model.Vector, f *filter.Filter, topK int) (res [][]model.ScoredPoint, err error) {
	start := time.Now()
	defer func() { x.metrics.RecordSearch(len(queries), topK, time.Since(start), err) }()

	if topK < 1 {
		return nil, session.ErrInvalidK
	}

	dense := make([]model.DenseVector, len(queries))
	for i, q := range queries {
		v, err := session.ValidateDense(q, x.coll.Dimension())
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
		dense[i] = v
	}

	var filterJSON string
	if !f.IsEmpty() {
		b, err := json.Marshal(f)
		if err != nil {
			return nil, fmt.Errorf("serialize filter: %w", err)
		}
		filterJSON = string(b)
	}

	res = make([][]model.ScoredPoint, len(dense))
	for i, q := range dense {
		var hits []native.SearchResult
		if filterJSON != "" {
			hits, err = x.coll.SearchFiltered(ctx, q, topK, filterJSON)
		} else {
			hits, err = x.coll.Search(ctx, q, topK)
		}
		if err != nil {
			return nil, err
		}

		points := make([]model.ScoredPoint, len(hits))
		for j, h := range hits {
			points[j] = model.ScoredPoint{Offset: model.PointOffset(h.Offset), Score: h.Score}
		}
		res[i] = points
	}

	x.logger.Debug("search", "queries", len(queries), "k", topK, "filtered", filterJSON != "")
	return res, nil
}

// UpdateVector upserts vec at offset, or deletes offset when vec is nil.
func (x *VectorIndex) UpdateVector(ctx context.Context, offset model.PointOffset, vec model.Vector) error {
	if x.writer != nil {
		if vec == nil {
			_, err := x.writer.Delete(ctx, offset)
			return err
		}
		return x.writer.Insert(ctx, offset, vec)
	}

	start := time.Now()

	if vec == nil {
		err := x.coll.Delete(ctx, offset)
		x.metrics.RecordDelete(time.Since(start), err)
		return err
	}

	dense, err := session.ValidateDense(vec, x.coll.Dimension())
	if err == nil {
		err = x.coll.Upsert(ctx, offset, dense, nil)
	}
	x.metrics.RecordInsert(time.Since(start), err)
	return err
}

// Save persists the index snapshot.
func (x *VectorIndex) Save(ctx context.Context) error {
	start := time.Now()
	err := x.coll.SaveSnapshot(ctx)
	x.metrics.RecordFlush(time.Since(start), err)
	return err
}

// IndexedVectorCount returns the number of live vectors in the engine.
func (x *VectorIndex) IndexedVectorCount(ctx context.Context) (int, error) {
	n, err := x.coll.VectorCount(ctx)
	return int(n), err
}

// SizeOfSearchableVectorsInBytes estimates the searchable footprint: raw
// float32 data times two for graph overhead.
func (x *VectorIndex) SizeOfSearchableVectorsInBytes(ctx context.Context) (int, error) {
	n, err := x.IndexedVectorCount(ctx)
	if err != nil {
		return 0, err
	}
	return n * x.coll.Dimension() * 4 * 2, nil
}

// Telemetry returns static counters named after the engine index.
func (x *VectorIndex) Telemetry() Telemetry {
	return Telemetry{IndexName: Name}
}

// Files returns the index snapshot file.
func (x *VectorIndex) Files() []string {
	return []string{x.coll.Path(".vde")}
}

// Close saves a final snapshot.
func (x *VectorIndex) Close() error {
	return x.Save(context.Background())
}
