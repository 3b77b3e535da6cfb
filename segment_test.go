package vdego_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vdego"
	"github.com/hupe1980/vdego/distance"
	"github.com/hupe1980/vdego/filter"
	"github.com/hupe1980/vdego/model"
	"github.com/hupe1980/vdego/native"
	"github.com/hupe1980/vdego/payload"
	"github.com/hupe1980/vdego/testutil"
)

func openTestSegment(t *testing.T, dir string, lib native.Library, opts ...vdego.Option) *vdego.Segment {
	t.Helper()

	opts = append([]vdego.Option{vdego.WithLibrary(lib), vdego.Create(4, distance.MetricEuclidean)}, opts...)
	seg, err := vdego.Open(context.Background(), dir, opts...)
	require.NoError(t, err)
	return seg
}

func TestSegmentRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	vecs := testutil.NewRNG(3).UniformVectors(20, 4)

	seg := openTestSegment(t, dir, native.NewMemory())
	for i, v := range vecs {
		off := model.PointOffset(i)
		require.NoError(t, seg.Vectors().Insert(ctx, off, v))
		color := "red"
		if i%2 == 1 {
			color = "blue"
		}
		require.NoError(t, seg.Payloads().Set(ctx, off, payload.Payload{"color": color, "i": i}))
	}
	_, err := seg.Vectors().Delete(ctx, 4)
	require.NoError(t, err)
	require.NoError(t, seg.Close())

	// Reopen with a fresh engine instance and without Create.
	seg, err = vdego.Open(ctx, dir, vdego.WithLibrary(native.NewMemory()))
	require.NoError(t, err)
	defer seg.Close()

	assert.Equal(t, 4, seg.Dimension())
	assert.Equal(t, distance.MetricEuclidean, seg.Metric())
	assert.Equal(t, vecs[7], seg.Vectors().Get(ctx, 7))
	assert.True(t, seg.Vectors().IsDeleted(4))

	p, err := seg.Payloads().Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "blue", p["color"])

	res, err := seg.Index().Search(ctx, []model.Vector{vecs[4]}, nil, 3)
	require.NoError(t, err)
	for _, hit := range res[0] {
		assert.NotEqual(t, model.PointOffset(4), hit.Offset)
	}

	f := filter.New(filter.Must(filter.Eq("color", "red")))
	res, err = seg.Index().Search(ctx, []model.Vector{vecs[1]}, f, 5)
	require.NoError(t, err)
	require.Len(t, res[0], 5)
	for _, hit := range res[0] {
		assert.Zero(t, hit.Offset%2, "offset %d is not red", hit.Offset)
	}

	n := 0
	require.NoError(t, seg.Payloads().Iter(ctx, func(model.PointOffset, payload.Payload) (bool, error) {
		n++
		return true, nil
	}))
	// Offset 4 lost its payload together with its vector.
	assert.Equal(t, 19, n)
}

func TestSegmentSharesOneEngine(t *testing.T) {
	rec := testutil.NewRecorder(native.NewMemory())
	seg := openTestSegment(t, t.TempDir(), rec)

	ctx := context.Background()
	require.NoError(t, seg.Index().UpdateVector(ctx, 1, model.DenseVector{1, 2, 3, 4}))
	assert.Equal(t, model.DenseVector{1, 2, 3, 4}, seg.Vectors().Get(ctx, 1))
	require.NoError(t, seg.Close())

	assert.Equal(t, 1, rec.Count("vde_engine_create"))
	assert.Equal(t, 1, rec.Count("vde_collection_create"))
	assert.Equal(t, 1, rec.Count("vde_engine_destroy"))
}

func TestOpenWithoutSchema(t *testing.T) {
	dir := t.TempDir()

	_, err := vdego.Open(context.Background(), dir, vdego.WithLibrary(native.NewMemory()))
	var initErr *vdego.InitializationError
	require.ErrorAs(t, err, &initErr)
	assert.ErrorIs(t, err, vdego.ErrNoSchema)

	// The failed open released the directory lock.
	seg := openTestSegment(t, dir, native.NewMemory())
	require.NoError(t, seg.Close())
}

func TestOpenSchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, openTestSegment(t, dir, native.NewMemory()).Close())

	_, err := vdego.Open(context.Background(), dir,
		vdego.WithLibrary(native.NewMemory()),
		vdego.Create(8, distance.MetricEuclidean),
	)
	var dimErr *vdego.ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 4, dimErr.Expected)
	assert.Equal(t, 8, dimErr.Actual)

	_, err = vdego.Open(context.Background(), dir,
		vdego.WithLibrary(native.NewMemory()),
		vdego.Create(4, distance.MetricDot),
	)
	var initErr *vdego.InitializationError
	assert.ErrorAs(t, err, &initErr)
}

func TestOpenMissingLibrary(t *testing.T) {
	_, err := vdego.Open(context.Background(), t.TempDir(),
		vdego.WithLibraryPath(filepath.Join(t.TempDir(), "libvde.so")),
		vdego.Create(4, distance.MetricCosine),
	)
	var initErr *vdego.InitializationError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "load_library", initErr.Op)
}

func TestOpenEngineFailure(t *testing.T) {
	rec := testutil.NewRecorder(native.NewMemory())
	rec.Fail("vde_collection_create", 1)
	rec.Fail("vde_collection_open", 1)

	_, err := vdego.Open(context.Background(), t.TempDir(),
		vdego.WithLibrary(rec),
		vdego.Create(4, distance.MetricCosine),
	)
	var initErr *vdego.InitializationError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "collection_create", initErr.Op)
	assert.Equal(t, 1, rec.Count("vde_engine_destroy"))
}

func TestSegmentFiles(t *testing.T) {
	dir := t.TempDir()
	seg := openTestSegment(t, dir, native.NewMemory(), vdego.WithCollection("docs"))
	defer seg.Close()

	ctx := context.Background()
	require.NoError(t, seg.Vectors().Insert(ctx, 0, model.DenseVector{1, 1, 1, 1}))
	require.NoError(t, seg.Payloads().Overwrite(ctx, 0, payload.Payload{"a": 1}))
	_, err := seg.Vectors().Delete(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, seg.Flush(ctx))

	var names []string
	for _, f := range seg.Files() {
		assert.Equal(t, seg.Dir(), filepath.Dir(f))
		assert.FileExists(t, f)
		names = append(names, filepath.Base(f))
	}
	assert.Equal(t, []string{
		"docs_schema.json",
		"docs.vde",
		"docs_vectors.btr",
		"docs_index.snapshot",
		"docs_deleted.bits",
		"docs_metadata.btr",
		"docs_payload.keys",
	}, names)
}

func TestSegmentClose(t *testing.T) {
	seg := openTestSegment(t, t.TempDir(), native.NewMemory())

	require.NoError(t, seg.Close())
	require.NoError(t, seg.Close())

	err := seg.Vectors().Insert(context.Background(), 0, model.DenseVector{1, 2, 3, 4})
	assert.ErrorIs(t, err, vdego.ErrClosed)
	_, err = seg.Index().Search(context.Background(), []model.Vector{model.DenseVector{1, 2, 3, 4}}, nil, 1)
	assert.ErrorIs(t, err, vdego.ErrClosed)
}

func TestSegmentMetrics(t *testing.T) {
	metrics := &vdego.BasicMetricsCollector{}
	seg := openTestSegment(t, t.TempDir(), native.NewMemory(), vdego.WithMetricsCollector(metrics))
	defer seg.Close()

	ctx := context.Background()
	require.NoError(t, seg.Vectors().Insert(ctx, 0, model.DenseVector{1, 2, 3, 4}))
	_, err := seg.Index().Search(ctx, []model.Vector{model.DenseVector{1, 2, 3, 4}}, nil, 1)
	require.NoError(t, err)
	_, err = seg.Index().Search(ctx, nil, nil, 0)
	assert.ErrorIs(t, err, vdego.ErrInvalidK)

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.InsertCount)
	assert.Equal(t, int64(2), stats.SearchCount)
	assert.Equal(t, int64(1), stats.SearchErrors)
}

func TestIndexDeleteUpdatesTracker(t *testing.T) {
	seg := openTestSegment(t, t.TempDir(), native.NewMemory())
	defer seg.Close()

	ctx := context.Background()
	require.NoError(t, seg.Vectors().Insert(ctx, 1, model.DenseVector{1, 2, 3, 4}))
	require.NoError(t, seg.Index().UpdateVector(ctx, 1, nil))

	assert.True(t, seg.Vectors().IsDeleted(1))
	assert.Equal(t, 1, seg.Vectors().DeletedCount())

	// A deleted point stays deleted for Update.
	err := seg.Vectors().Update(ctx, 1, model.DenseVector{4, 3, 2, 1})
	assert.ErrorIs(t, err, vdego.ErrNotFound)
	_, ok := seg.Vectors().GetOpt(ctx, 1)
	assert.False(t, ok)

	// Upserting through the index revives it.
	require.NoError(t, seg.Index().UpdateVector(ctx, 1, model.DenseVector{4, 3, 2, 1}))
	assert.False(t, seg.Vectors().IsDeleted(1))
	assert.Zero(t, seg.Vectors().DeletedCount())
}

func TestSegmentConcurrentWrites(t *testing.T) {
	seg := openTestSegment(t, t.TempDir(), native.NewMemory(), vdego.WithNativeConcurrency(4))
	defer seg.Close()

	ctx := context.Background()
	vecs := testutil.NewRNG(5).UniformVectors(32, 4)

	var wg sync.WaitGroup
	for i, v := range vecs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			off := model.PointOffset(i)
			assert.NoError(t, seg.Vectors().Insert(ctx, off, v))
			assert.NoError(t, seg.Payloads().Set(ctx, off, payload.Payload{"i": "x"}))
			if i%4 == 0 {
				assert.NoError(t, seg.Index().UpdateVector(ctx, off, nil))
			}
		}()
	}
	wg.Wait()

	n, err := seg.Index().IndexedVectorCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 24, n)
	assert.Equal(t, 8, seg.Vectors().DeletedCount())

	p, err := seg.Payloads().Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "x", p["i"])
}
