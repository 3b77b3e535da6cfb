package vectorstore

import (
	"context"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vdego/distance"
	"github.com/hupe1980/vdego/internal/fs"
	"github.com/hupe1980/vdego/model"
	"github.com/hupe1980/vdego/native"
	"github.com/hupe1980/vdego/resource"
	"github.com/hupe1980/vdego/session"
	"github.com/hupe1980/vdego/testutil"
)

var testConfig = session.CollectionConfig{Dimension: 4, Metric: distance.MetricCosine}

func openSession(t *testing.T, lib native.Library, dir string) (*session.Session, *session.Collection) {
	t.Helper()

	s, err := session.Open(context.Background(), lib, dir)
	require.NoError(t, err)
	coll, err := s.OpenOrCreate(context.Background(), "segment", testConfig)
	require.NoError(t, err)
	return s, coll
}

func newTestStore(t *testing.T) (*Store, *testutil.Recorder) {
	t.Helper()

	rec := testutil.NewRecorder(native.NewMemory())
	s, coll := openSession(t, rec, t.TempDir())
	t.Cleanup(func() { _ = s.Close() })

	store, err := Open(coll, Options{})
	require.NoError(t, err)
	rec.Reset()
	return store, rec
}

func newGatedStore(t *testing.T, concurrency int64) (*Store, *testutil.Recorder, *resource.Controller) {
	t.Helper()

	rec := testutil.NewRecorder(native.NewMemory())
	ctrl := resource.NewController(resource.Config{NativeConcurrency: concurrency})
	s, err := session.Open(context.Background(), rec, t.TempDir(), session.WithController(ctrl))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	coll, err := s.OpenOrCreate(context.Background(), "segment", testConfig)
	require.NoError(t, err)

	store, err := Open(coll, Options{})
	require.NoError(t, err)
	return store, rec, ctrl
}

func items(vecs []model.Vector, deleted map[int]bool) iter.Seq2[model.Vector, bool] {
	return func(yield func(model.Vector, bool) bool) {
		for i, v := range vecs {
			if !yield(v, deleted[i]) {
				return
			}
		}
	}
}

func TestInsertGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, 0, model.DenseVector{1, 2, 3, 4}))

	assert.Equal(t, model.DenseVector{1, 2, 3, 4}, store.Get(ctx, 0))
	assert.False(t, store.IsDeleted(0))

	// Missing points read as the zero value.
	assert.Nil(t, store.Get(ctx, 9))
	_, ok := store.GetOpt(ctx, 9)
	assert.False(t, ok)
}

func TestInsertUpsertsInPlace(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, 100, model.DenseVector{1, 0, 1, 1}))
	require.NoError(t, store.Insert(ctx, 100, model.DenseVector{2, 0, 2, 2}))

	assert.Equal(t, model.DenseVector{2, 0, 2, 2}, store.Get(ctx, 100))
	n, err := store.TotalVectorCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, uint(101), store.DeletedBitSlice().Len())
}

func TestInsertValidation(t *testing.T) {
	store, rec := newTestStore(t)
	ctx := context.Background()

	err := store.Insert(ctx, 0, model.DenseVector{1, 2, 3})
	var dimErr *session.ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 4, dimErr.Expected)
	assert.Equal(t, 3, dimErr.Actual)

	err = store.Insert(ctx, 0, model.SparseVector{Indices: []uint32{0}, Values: []float32{1}})
	assert.ErrorIs(t, err, session.ErrUnsupportedVectorKind)

	assert.Zero(t, rec.Count("vde_upsert_vector"))
	assert.Equal(t, uint(0), store.DeletedBitSlice().Len())
}

func TestDeleteIdempotent(t *testing.T) {
	store, rec := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, 2, model.DenseVector{1, 1, 1, 1}))

	wasLive, err := store.Delete(ctx, 2)
	require.NoError(t, err)
	assert.True(t, wasLive)

	wasLive, err = store.Delete(ctx, 2)
	require.NoError(t, err)
	assert.False(t, wasLive)

	assert.True(t, store.IsDeleted(2))
	assert.Equal(t, 1, store.DeletedCount())
	assert.Nil(t, store.Get(ctx, 2))
	assert.Equal(t, 2, rec.Count("vde_delete_vector"))

	// Deleting an offset never written grows the bitset.
	wasLive, err = store.Delete(ctx, 10)
	require.NoError(t, err)
	assert.False(t, wasLive)
	assert.Equal(t, uint(11), store.DeletedBitSlice().Len())
	assert.Equal(t, 2, store.DeletedCount())
}

func TestDeleteServiceError(t *testing.T) {
	store, rec := newTestStore(t)

	rec.Fail("vde_delete_vector", 3)
	_, err := store.Delete(context.Background(), 1)
	var svcErr *session.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, int32(3), svcErr.Code)
	assert.False(t, store.IsDeleted(1))
	rec.Fail("vde_delete_vector", 0)
}

func TestUpdate(t *testing.T) {
	store, rec := newTestStore(t)
	ctx := context.Background()

	err := store.Update(ctx, 999, model.DenseVector{1, 1, 1, 1})
	var svcErr *session.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Zero(t, rec.Count("vde_upsert_vector"))
	assert.Nil(t, store.Get(ctx, 999))

	require.NoError(t, store.Insert(ctx, 1, model.DenseVector{1, 0, 0, 0}))
	require.NoError(t, store.Update(ctx, 1, model.DenseVector{0, 1, 0, 0}))
	assert.Equal(t, model.DenseVector{0, 1, 0, 0}, store.Get(ctx, 1))

	_, err = store.Delete(ctx, 1)
	require.NoError(t, err)
	err = store.Update(ctx, 1, model.DenseVector{0, 0, 1, 0})
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestUpdateFrom(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	vecs := make([]model.Vector, 5)
	for i, v := range testutil.NewRNG(7).UniformVectors(5, 4) {
		vecs[i] = v
	}

	r, err := store.UpdateFrom(ctx, items(vecs, map[int]bool{3: true}))
	require.NoError(t, err)
	assert.Equal(t, model.OffsetRange{Start: 0, End: 5}, r)
	assert.Equal(t, "0..5", r.String())

	assert.Equal(t, 1, store.DeletedCount())
	assert.True(t, store.IsDeleted(3))
	assert.Equal(t, vecs[4], model.Vector(store.Get(ctx, 4)))

	n, err := store.TotalVectorCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestUpdateFromCancelled(t *testing.T) {
	store, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	vecs := testutil.NewRNG(7).UniformVectors(8, 4)
	seq := func(yield func(model.Vector, bool) bool) {
		for i, v := range vecs {
			if i == 4 {
				cancel()
			}
			if !yield(v, false) {
				return
			}
		}
	}

	r, err := store.UpdateFrom(ctx, seq)
	require.ErrorIs(t, err, session.ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 4, r.Len())

	// The applied prefix stays.
	bg := context.Background()
	assert.NotNil(t, store.Get(bg, 3))
	assert.Nil(t, store.Get(bg, 4))
}

func TestUpdateFromCancelledAtGate(t *testing.T) {
	store, _, ctrl := newGatedStore(t, 1)

	// Hold the only slot so the first item waits at the gate.
	require.NoError(t, ctrl.AcquireNative(context.Background()))
	defer ctrl.ReleaseNative()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	vecs := testutil.NewRNG(7).UniformVectors(2, 4)
	r, err := store.UpdateFrom(ctx, items([]model.Vector{vecs[0], vecs[1]}, nil))
	require.ErrorIs(t, err, session.ErrCancelled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, r.Len())
}

func TestUpdateFromStopsOnError(t *testing.T) {
	store, _ := newTestStore(t)

	vecs := []model.Vector{model.DenseVector{1, 1, 1, 1}, model.DenseVector{1, 1}}
	r, err := store.UpdateFrom(context.Background(), items(vecs, nil))

	var dimErr *session.ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, model.OffsetRange{Start: 0, End: 1}, r)
}

func TestDeletedBitSliceIsSnapshot(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Delete(ctx, 1)
	require.NoError(t, err)

	bits := store.DeletedBitSlice()
	bits.Set(0)
	assert.False(t, store.IsDeleted(0))
	assert.True(t, bits.Test(1))
}

func TestSidecarPersistence(t *testing.T) {
	dir := t.TempDir()
	lib := native.NewMemory()
	ctx := context.Background()

	s, coll := openSession(t, lib, dir)
	store, err := Open(coll, Options{})
	require.NoError(t, err)

	require.NoError(t, store.Insert(ctx, 0, model.DenseVector{1, 0, 0, 0}))
	require.NoError(t, store.Insert(ctx, 1, model.DenseVector{0, 1, 0, 0}))
	_, err = store.Delete(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, store.Close())
	require.NoError(t, s.Close())

	files := store.Files()
	require.Len(t, files, 3)
	for _, f := range files {
		assert.FileExists(t, f)
	}

	s2, coll2 := openSession(t, native.NewMemory(), dir)
	defer s2.Close()
	store2, err := Open(coll2, Options{})
	require.NoError(t, err)

	assert.True(t, store2.IsDeleted(1))
	assert.Equal(t, 1, store2.DeletedCount())
	assert.Equal(t, model.DenseVector{1, 0, 0, 0}, store2.Get(ctx, 0))
	require.NoError(t, store2.Update(ctx, 0, model.DenseVector{0, 0, 1, 0}))
}

func TestFlusherError(t *testing.T) {
	rec := testutil.NewRecorder(native.NewMemory())
	s, coll := openSession(t, rec, t.TempDir())
	defer s.Close()

	ffs := fs.NewFaultyFS(nil)
	store, err := Open(coll, Options{FS: ffs})
	require.NoError(t, err)
	require.NoError(t, store.Insert(context.Background(), 0, model.DenseVector{1, 0, 0, 0}))

	ffs.AddRule(SidecarSuffix, fs.Fault{FailOnSync: true, FailAfterBytes: -1})
	assert.ErrorIs(t, store.Flusher()(), fs.ErrInjected)

	ffs.ClearRules()
	require.NoError(t, store.Flusher()())
	assert.Zero(t, rec.Count("vde_flush"))
}

func TestMetadata(t *testing.T) {
	store, _ := newTestStore(t)

	assert.Equal(t, 4, store.Dimension())
	assert.Equal(t, distance.MetricCosine, store.Distance())
	assert.Equal(t, "float32", store.Datatype())
	assert.True(t, store.IsOnDisk())
}

func TestInsertDeleteInterleaving(t *testing.T) {
	store, rec, _ := newGatedStore(t, 2)
	ctx := context.Background()

	// Stall the insert inside the engine while a delete of the same offset
	// is issued.
	entered := make(chan struct{})
	unblock := make(chan struct{})
	var once sync.Once
	rec.Before("vde_upsert_vector", func() {
		once.Do(func() {
			close(entered)
			<-unblock
		})
	})

	inserted := make(chan error, 1)
	go func() { inserted <- store.Insert(ctx, 7, model.DenseVector{1, 2, 3, 4}) }()
	<-entered

	deleted := make(chan error, 1)
	go func() {
		_, err := store.Delete(ctx, 7)
		deleted <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(unblock)

	require.NoError(t, <-inserted)
	require.NoError(t, <-deleted)

	_, inEngine := store.GetOpt(ctx, 7)
	assert.False(t, inEngine)
	assert.True(t, store.IsDeleted(7))
}

func TestConcurrentWritesKeepTrackerConsistent(t *testing.T) {
	store, _, _ := newGatedStore(t, 4)
	ctx := context.Background()
	const offsets = 16

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				off := model.PointOffset((w*7 + i) % offsets)
				if (w+i)%3 == 0 {
					_, err := store.Delete(ctx, off)
					assert.NoError(t, err)
					continue
				}
				assert.NoError(t, store.Insert(ctx, off, model.DenseVector{float32(w), float32(i), 1, 1}))
			}
		}()
	}
	wg.Wait()

	for off := range model.PointOffset(offsets) {
		_, inEngine := store.GetOpt(ctx, off)
		assert.Equal(t, !inEngine, store.IsDeleted(off), "offset %d", off)
	}
}
