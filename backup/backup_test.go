package backup

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vdego/blobstore"
	"github.com/hupe1980/vdego/internal/fs"
	"github.com/hupe1980/vdego/resource"
)

func writeFiles(t *testing.T, dir string, files map[string][]byte) []string {
	t.Helper()

	var paths []string
	for name, data := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, data, 0o644))
		paths = append(paths, path)
	}
	return paths
}

func TestBackupRestore(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	files := map[string][]byte{
		"docs.vde":            []byte(`{"dimension":4}`),
		"docs_vectors.btr":    bytes.Repeat([]byte("vector"), 10_000),
		"docs_payload.keys":   {},
		"docs_index.snapshot": []byte("[0,1,2]"),
	}
	paths := writeFiles(t, src, files)

	store := blobstore.NewMemoryStore()
	b := New(store, WithController(resource.NewController(resource.Config{MaxTransfers: 2})))

	m, err := b.Backup(ctx, paths)
	require.NoError(t, err)
	assert.Equal(t, ManifestVersion, m.Version)
	require.Len(t, m.Files, 4)
	assert.Equal(t, int64(60_000+15+7), m.TotalSize())

	for _, f := range m.Files {
		if f.Name == "docs_vectors.btr" {
			assert.Less(t, f.StoredSize, f.Size)
		}
		assert.Equal(t, m.ID+"/"+f.Name+".zst", f.Blob)
	}

	latest, err := b.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, m.ID, latest)

	dst := filepath.Join(t.TempDir(), "restored")
	restored, err := b.Restore(ctx, latest, dst)
	require.NoError(t, err)
	assert.Equal(t, m.ID, restored.ID)

	for name, want := range files {
		got, err := os.ReadFile(filepath.Join(dst, name))
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
}

func TestBackupSkipsMissingFiles(t *testing.T) {
	src := t.TempDir()
	paths := writeFiles(t, src, map[string][]byte{"a.vde": []byte("a")})
	paths = append(paths, filepath.Join(src, "absent_deleted.bits"))

	m, err := New(blobstore.NewMemoryStore()).Backup(context.Background(), paths)
	require.NoError(t, err)
	require.Len(t, m.Files, 1)
	assert.Equal(t, "a.vde", m.Files[0].Name)
}

func TestBackupDuplicateNames(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	paths := append(
		writeFiles(t, a, map[string][]byte{"x.vde": []byte("a")}),
		writeFiles(t, b, map[string][]byte{"x.vde": []byte("b")})...,
	)

	_, err := New(blobstore.NewMemoryStore()).Backup(context.Background(), paths)
	assert.ErrorIs(t, err, ErrDuplicateFile)
}

func TestLatestWithoutBackup(t *testing.T) {
	_, err := New(blobstore.NewMemoryStore()).Latest(context.Background())
	assert.ErrorIs(t, err, ErrNoBackup)

	_, err = New(blobstore.NewMemoryStore()).Restore(context.Background(), "nope", t.TempDir())
	assert.ErrorIs(t, err, ErrNoBackup)
}

func TestRestoreDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	paths := writeFiles(t, src, map[string][]byte{"docs.vde": []byte("original content")})

	store := blobstore.NewMemoryStore()
	b := New(store)
	m, err := b.Backup(ctx, paths)
	require.NoError(t, err)

	// Replace the blob with a valid frame of different content.
	other := writeFiles(t, t.TempDir(), map[string][]byte{"docs.vde": []byte("tampered content")})
	m2, err := b.Backup(ctx, other)
	require.NoError(t, err)
	data, err := blobstore.GetBytes(ctx, store, m2.Files[0].Blob)
	require.NoError(t, err)
	require.NoError(t, blobstore.PutBytes(ctx, store, m.Files[0].Blob, data))

	dst := t.TempDir()
	_, err = b.Restore(ctx, m.ID, dst)
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	entries, err := os.ReadDir(dst)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRestoreWriteFailure(t *testing.T) {
	ctx := context.Background()
	paths := writeFiles(t, t.TempDir(), map[string][]byte{"docs.vde": []byte("content")})

	ffs := fs.NewFaultyFS(nil)
	b := New(blobstore.NewMemoryStore(), withFS(ffs))
	m, err := b.Backup(ctx, paths)
	require.NoError(t, err)

	ffs.AddRule("docs.vde", fs.Fault{FailOnRename: true, FailAfterBytes: -1})
	_, err = b.Restore(ctx, m.ID, t.TempDir())
	assert.ErrorIs(t, err, fs.ErrInjected)
}

func TestListAndDelete(t *testing.T) {
	ctx := context.Background()
	paths := writeFiles(t, t.TempDir(), map[string][]byte{"docs.vde": []byte("x")})

	store := blobstore.NewLocalStore(t.TempDir())
	b := New(store)
	m1, err := b.Backup(ctx, paths)
	require.NoError(t, err)
	m2, err := b.Backup(ctx, paths)
	require.NoError(t, err)

	ids, err := b.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{m1.ID, m2.ID}, ids)

	require.NoError(t, b.Delete(ctx, m1.ID))
	ids, err = b.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{m2.ID}, ids)

	latest, err := b.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, m2.ID, latest)
}

type recordingPointer struct {
	ids []string
}

func (p *recordingPointer) Publish(_ context.Context, id string) error {
	p.ids = append(p.ids, id)
	return nil
}

func (p *recordingPointer) Latest(context.Context) (string, error) {
	if len(p.ids) == 0 {
		return "", blobstore.ErrNotFound
	}
	return p.ids[len(p.ids)-1], nil
}

func TestCustomPointer(t *testing.T) {
	ctx := context.Background()
	ptr := &recordingPointer{}
	store := blobstore.NewMemoryStore()
	b := New(store, WithPointer(ptr))

	_, err := b.Latest(ctx)
	assert.ErrorIs(t, err, ErrNoBackup)

	m, err := b.Backup(ctx, writeFiles(t, t.TempDir(), map[string][]byte{"a.vde": []byte("a")}))
	require.NoError(t, err)
	assert.Equal(t, []string{m.ID}, ptr.ids)

	_, err = store.Get(ctx, LatestName)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestBackupLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	b := New(blobstore.NewMemoryStore(), WithLogger(logger))
	m, err := b.Backup(context.Background(), writeFiles(t, t.TempDir(), map[string][]byte{"a.vde": []byte("a")}))
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `"msg":"backup completed"`)
	assert.Contains(t, buf.String(), m.ID)
}
