package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vdego"
	"github.com/hupe1980/vdego/blobstore"
	"github.com/hupe1980/vdego/internal/fs"
	"github.com/hupe1980/vdego/internal/hash"
	"github.com/hupe1980/vdego/resource"
)

// LatestName is the blob holding the id of the newest backup.
const LatestName = "LATEST"

var (
	// ErrNoBackup is returned when no backup has been published.
	ErrNoBackup = errors.New("backup: no backup published")

	// ErrChecksumMismatch is returned when restored content does not match
	// the manifest.
	ErrChecksumMismatch = errors.New("backup: checksum mismatch")

	// ErrDuplicateFile is returned when two files share a base name.
	ErrDuplicateFile = errors.New("backup: duplicate file name")
)

// Pointer publishes and resolves the newest backup id.
// s3.GenerationLog implements Pointer with compare-and-swap semantics.
type Pointer interface {
	Publish(ctx context.Context, id string) error
	Latest(ctx context.Context) (string, error)
}

// Option configures a Backuper.
type Option func(*Backuper)

// WithController sets the controller bounding concurrent transfers and IO
// throughput.
func WithController(rc *resource.Controller) Option {
	return func(b *Backuper) { b.rc = rc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backuper) {
		if l != nil {
			b.logger = &vdego.Logger{Logger: l}
		}
	}
}

// WithPointer replaces the LATEST blob with a custom pointer.
func WithPointer(p Pointer) Option {
	return func(b *Backuper) { b.pointer = p }
}

// WithEncoderLevel sets the zstd compression level.
func WithEncoderLevel(level zstd.EncoderLevel) Option {
	return func(b *Backuper) { b.level = level }
}

func withFS(fsys fs.FileSystem) Option {
	return func(b *Backuper) { b.fs = fsys }
}

// Backuper uploads segment files to a blob store.
type Backuper struct {
	store   blobstore.Store
	rc      *resource.Controller
	logger  *vdego.Logger
	pointer Pointer
	level   zstd.EncoderLevel
	fs      fs.FileSystem
	now     func() time.Time
}

// New creates a Backuper writing to store.
func New(store blobstore.Store, opts ...Option) *Backuper {
	b := &Backuper{
		store: store,
		level: zstd.SpeedDefault,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.rc == nil {
		b.rc = resource.NewController(resource.Config{})
	}
	if b.logger == nil {
		b.logger = vdego.NoopLogger()
	}
	if b.pointer == nil {
		b.pointer = blobPointer{store: store}
	}
	b.fs = fs.OrDefault(b.fs)
	return b
}

// Backup uploads files under a fresh id and publishes it once everything is
// stored. Files that do not exist are skipped.
func (b *Backuper) Backup(ctx context.Context, files []string) (m *Manifest, err error) {
	id := uuid.NewString()
	defer func() {
		n := 0
		if m != nil {
			n = len(m.Files)
		}
		b.logger.LogBackup(ctx, id, n, err)
	}()

	seen := make(map[string]struct{}, len(files))
	var present []string
	for _, path := range files {
		base := filepath.Base(path)
		if _, dup := seen[base]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFile, base)
		}
		seen[base] = struct{}{}

		if _, err := b.fs.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				b.logger.DebugContext(ctx, "backup skipped missing file", "path", path)
				continue
			}
			return nil, err
		}
		present = append(present, path)
	}

	entries := make([]FileEntry, len(present))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range present {
		g.Go(func() error {
			if err := b.rc.AcquireTransfer(gctx); err != nil {
				return err
			}
			defer b.rc.ReleaseTransfer()

			entry, err := b.upload(gctx, id, path)
			if err != nil {
				return fmt.Errorf("backup %s: %w", filepath.Base(path), err)
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m = &Manifest{
		Version:   ManifestVersion,
		ID:        id,
		CreatedAt: b.now().UTC(),
		Files:     entries,
	}
	data, err := encodeManifest(m)
	if err != nil {
		return nil, err
	}
	if err := blobstore.PutBytes(ctx, b.store, manifestName(id), data); err != nil {
		return nil, err
	}
	if err := b.pointer.Publish(ctx, id); err != nil {
		return nil, err
	}
	return m, nil
}

// upload streams one file through the checksum, the rate limiter and the
// compressor into the store.
func (b *Backuper) upload(ctx context.Context, id, path string) (FileEntry, error) {
	f, err := b.fs.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return FileEntry{}, err
	}
	defer func() { _ = f.Close() }()

	src := hash.NewReader(resource.NewRateLimitedReader(ctx, f, b.rc))
	pr, pw := io.Pipe()
	counted := &countingReader{r: pr}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		enc, err := zstd.NewWriter(pw, zstd.WithEncoderLevel(b.level))
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(enc, src); err != nil {
			_ = enc.Close()
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.CloseWithError(enc.Close())
	}()

	base := filepath.Base(path)
	blob := id + "/" + base + ".zst"
	err = b.store.Put(ctx, blob, counted)
	_ = pr.CloseWithError(io.ErrClosedPipe)
	wg.Wait()
	if err != nil {
		return FileEntry{}, err
	}

	return FileEntry{
		Name:       base,
		Blob:       blob,
		Size:       src.Size(),
		StoredSize: counted.n,
		CRC32C:     src.Sum32(),
	}, nil
}

// Latest returns the id of the newest published backup.
func (b *Backuper) Latest(ctx context.Context) (string, error) {
	id, err := b.pointer.Latest(ctx)
	if errors.Is(err, blobstore.ErrNotFound) {
		return "", ErrNoBackup
	}
	return id, err
}

// Manifest loads the manifest of backup id.
func (b *Backuper) Manifest(ctx context.Context, id string) (*Manifest, error) {
	data, err := blobstore.GetBytes(ctx, b.store, manifestName(id))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoBackup, id)
		}
		return nil, err
	}
	return decodeManifest(data)
}

// Restore writes the files of backup id into dir. Every file is verified
// against the manifest before it replaces an existing file.
func (b *Backuper) Restore(ctx context.Context, id, dir string) (*Manifest, error) {
	m, err := b.Manifest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := b.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, entry := range m.Files {
		g.Go(func() error {
			if err := b.rc.AcquireTransfer(gctx); err != nil {
				return err
			}
			defer b.rc.ReleaseTransfer()

			if err := b.restore(gctx, entry, dir); err != nil {
				return fmt.Errorf("restore %s: %w", entry.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	b.logger.InfoContext(ctx, "backup restored", "backup_id", id, "dir", dir, "files", len(m.Files))
	return m, nil
}

func (b *Backuper) restore(ctx context.Context, entry FileEntry, dir string) (err error) {
	if strings.ContainsAny(entry.Name, `/\`) || entry.Name == ".." || entry.Name == "." {
		return fmt.Errorf("invalid file name %q", entry.Name)
	}

	rc, err := b.store.Get(ctx, entry.Blob)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	dec, err := zstd.NewReader(resource.NewRateLimitedReader(ctx, rc, b.rc))
	if err != nil {
		return err
	}
	defer dec.Close()

	final := filepath.Join(dir, entry.Name)
	tmp := final + ".restore"
	f, err := b.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = b.fs.Remove(tmp)
		}
	}()

	src := hash.NewReader(dec)
	if _, err = io.Copy(f, src); err != nil {
		return err
	}
	if src.Size() != entry.Size || src.Sum32() != entry.CRC32C {
		return fmt.Errorf("%w: got %d bytes crc %08x, want %d bytes crc %08x",
			ErrChecksumMismatch, src.Size(), src.Sum32(), entry.Size, entry.CRC32C)
	}
	if err = f.Sync(); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return b.fs.Rename(tmp, final)
}

// List returns the ids of all backups with a manifest, sorted.
func (b *Backuper) List(ctx context.Context) ([]string, error) {
	names, err := b.store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, name := range names {
		if id, ok := strings.CutSuffix(name, "/MANIFEST.json"); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Delete removes every blob of backup id. The LATEST pointer is left alone.
func (b *Backuper) Delete(ctx context.Context, id string) error {
	names, err := b.store.List(ctx, id+"/")
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := b.store.Delete(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

type blobPointer struct {
	store blobstore.Store
}

func (p blobPointer) Publish(ctx context.Context, id string) error {
	return blobstore.PutBytes(ctx, p.store, LatestName, []byte(id))
}

func (p blobPointer) Latest(ctx context.Context) (string, error) {
	data, err := blobstore.GetBytes(ctx, p.store, LatestName)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
