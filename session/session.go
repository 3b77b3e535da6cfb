package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/hupe1980/vdego/distance"
	"github.com/hupe1980/vdego/native"
	"github.com/hupe1980/vdego/resource"
)

const (
	// DefaultIndexType is the engine index used for new collections.
	DefaultIndexType = "vsag_hnsw"
	// DefaultStorageType is the engine storage used for new collections.
	DefaultStorageType = "zendb"
	// DefaultMaxPayloadBytes caps a single payload fetch.
	DefaultMaxPayloadBytes = 16 << 20

	lockFileName = "LOCK"
)

// Options configures a Session.
type Options struct {
	Logger          *slog.Logger
	Controller      *resource.Controller
	MaxPayloadBytes int
}

// Option mutates Options.
type Option func(*Options)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithController sets the resource controller gating native calls.
func WithController(c *resource.Controller) Option {
	return func(o *Options) { o.Controller = c }
}

// WithMaxPayloadBytes caps the payload fetch buffer.
func WithMaxPayloadBytes(n int) Option {
	return func(o *Options) { o.MaxPayloadBytes = n }
}

// Session is a reference-counted engine handle rooted at a working directory.
type Session struct {
	lib    native.Library
	dir    string
	engine native.EngineHandle
	lock   *dirLock
	gate   *resource.Controller
	logger *slog.Logger

	maxPayload int

	mu          sync.Mutex
	refs        int
	ownerClosed bool
	colls       map[string]*Collection
	order       []string
}

// Open creates the engine for workDir and locks the directory.
// The returned session holds one reference, released by Close.
func Open(ctx context.Context, lib native.Library, workDir string, optFns ...Option) (*Session, error) {
	opts := Options{MaxPayloadBytes: DefaultMaxPayloadBytes}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Controller == nil {
		opts.Controller = resource.NewController(resource.Config{})
	}
	if opts.MaxPayloadBytes <= 0 {
		opts.MaxPayloadBytes = DefaultMaxPayloadBytes
	}

	if lib == nil {
		return nil, &InitializationError{Op: "open", Path: workDir, Err: errors.New("no native library")}
	}
	if err := ctx.Err(); err != nil {
		return nil, &InitializationError{Op: "open", Path: workDir, Err: err}
	}

	dir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, &InitializationError{Op: "open", Path: workDir, Err: err}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &InitializationError{Op: "open", Path: dir, Err: err}
	}

	lock, err := lockDir(filepath.Join(dir, lockFileName))
	if err != nil {
		return nil, &InitializationError{Op: "lock", Path: dir, Err: err}
	}

	if err := opts.Controller.AcquireNative(ctx); err != nil {
		_ = lock.release()
		return nil, &InitializationError{Op: "engine_create", Path: dir, Err: err}
	}
	engine := lib.EngineCreate(dir)
	opts.Controller.ReleaseNative()

	if engine == 0 {
		_ = lock.release()
		return nil, &InitializationError{Op: "engine_create", Path: dir, Err: errNullHandle}
	}

	s := &Session{
		lib:        lib,
		dir:        dir,
		engine:     engine,
		lock:       lock,
		gate:       opts.Controller,
		logger:     opts.Logger,
		maxPayload: opts.MaxPayloadBytes,
		refs:       1,
		colls:      make(map[string]*Collection),
	}
	s.logger.Debug("vde engine created", "dir", dir)
	return s, nil
}

// Dir returns the absolute working directory.
func (s *Session) Dir() string { return s.dir }

// Controller returns the gate shared by all native calls of s.
func (s *Session) Controller() *resource.Controller { return s.gate }

// Logger returns the session logger.
func (s *Session) Logger() *slog.Logger { return s.logger }

// Retain adds a reference. Each Retain must be paired with a Release.
func (s *Session) Retain() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs == 0 {
		return ErrClosed
	}
	s.refs++
	return nil
}

// Release drops a reference. Dropping the last one tears the engine down.
func (s *Session) Release() error {
	s.mu.Lock()
	if s.refs == 0 {
		s.mu.Unlock()
		return ErrClosed
	}
	s.refs--
	if s.refs > 0 {
		s.mu.Unlock()
		return nil
	}
	colls := make([]*Collection, 0, len(s.order))
	for _, name := range s.order {
		colls = append(colls, s.colls[name])
	}
	s.mu.Unlock()

	return s.teardown(colls)
}

// Close releases the reference returned by Open. It is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.ownerClosed {
		s.mu.Unlock()
		return nil
	}
	s.ownerClosed = true
	s.mu.Unlock()

	return s.Release()
}

// Refs returns the current reference count.
func (s *Session) Refs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

func (s *Session) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs == 0
}

// teardown runs once, after the last reference is gone. It holds the whole
// gate, so calls in flight finish first and calls queued behind it see the
// session closed.
func (s *Session) teardown(colls []*Collection) error {
	ctx := context.Background()
	if err := s.gate.AcquireNativeExclusive(ctx); err != nil {
		return err
	}
	defer s.gate.ReleaseNativeExclusive()

	var errs []error
	for _, c := range colls {
		if code := s.lib.SaveSnapshot(c.handle); code != native.StatusOK {
			errs = append(errs, statusError("save_snapshot", code))
		}
		s.lib.Flush(c.handle)
	}
	s.lib.EngineDestroy(s.engine)

	if err := s.lock.release(); err != nil {
		errs = append(errs, fmt.Errorf("release lock: %w", err))
	}

	s.logger.Debug("vde engine destroyed", "dir", s.dir, "collections", len(colls))
	return errors.Join(errs...)
}

// CollectionConfig describes a collection to open or create.
type CollectionConfig struct {
	IndexType   string
	StorageType string
	Dimension   int
	Metric      distance.Metric
	// ConfigJSON is an engine-specific JSON document, passed through verbatim.
	ConfigJSON string
}

func (c CollectionConfig) withDefaults() CollectionConfig {
	if c.IndexType == "" {
		c.IndexType = DefaultIndexType
	}
	if c.StorageType == "" {
		c.StorageType = DefaultStorageType
	}
	return c
}

// OpenOrCreate returns the collection called name, opening it if it exists
// and creating it from cfg otherwise. Collections are cached by name.
func (s *Session) OpenOrCreate(ctx context.Context, name string, cfg CollectionConfig) (*Collection, error) {
	if name == "" {
		return nil, &InitializationError{Op: "collection_open", Path: s.dir, Err: errors.New("empty collection name")}
	}
	cfg = cfg.withDefaults()
	if cfg.Dimension <= 0 {
		return nil, &InitializationError{Op: "collection_open", Path: name, Err: fmt.Errorf("invalid dimension %d", cfg.Dimension)}
	}
	if !cfg.Metric.Valid() {
		return nil, &InitializationError{Op: "collection_open", Path: name, Err: fmt.Errorf("invalid distance metric %v", cfg.Metric)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs == 0 {
		return nil, ErrClosed
	}
	if c, ok := s.colls[name]; ok {
		return c, nil
	}

	if err := s.gate.AcquireNative(ctx); err != nil {
		return nil, &InitializationError{Op: "collection_open", Path: name, Err: err}
	}
	handle := s.lib.CollectionOpen(s.engine, name)
	created := false
	if handle == 0 {
		handle = s.lib.CollectionCreate(s.engine, name, &native.CollectionConfig{
			IndexType:      cfg.IndexType,
			StorageType:    cfg.StorageType,
			Dimension:      uint32(cfg.Dimension),
			DistanceMetric: cfg.Metric.Name(),
			ConfigJSON:     cfg.ConfigJSON,
		})
		created = true
	}
	s.gate.ReleaseNative()

	if handle == 0 {
		return nil, &InitializationError{Op: "collection_create", Path: name, Err: errNullHandle}
	}

	c := &Collection{
		s:      s,
		name:   name,
		handle: handle,
		cfg:    cfg,
	}
	s.colls[name] = c
	s.order = append(s.order, name)

	s.logger.Debug("vde collection ready", "name", name, "created", created,
		"dimension", cfg.Dimension, "metric", cfg.Metric.Name())
	return c, nil
}
