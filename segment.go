package vdego

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hupe1980/vdego/codec"
	"github.com/hupe1980/vdego/distance"
	"github.com/hupe1980/vdego/index"
	"github.com/hupe1980/vdego/internal/fs"
	"github.com/hupe1980/vdego/native"
	"github.com/hupe1980/vdego/payload"
	"github.com/hupe1980/vdego/resource"
	"github.com/hupe1980/vdego/session"
	"github.com/hupe1980/vdego/vectorstore"
)

// SchemaSuffix names the file recording the collection schema.
const SchemaSuffix = "_schema.json"

// schemaFile is persisted on create because the engine cannot report the
// dimension or metric of an existing collection.
type schemaFile struct {
	Dimension    int             `json:"dimension"`
	Metric       distance.Metric `json:"metric"`
	IndexType    string          `json:"index_type"`
	StorageType  string          `json:"storage_type"`
	EngineConfig string          `json:"engine_config,omitempty"`
}

// Segment binds one engine session and one collection to the three
// adapters of a segment: vector index, vector storage and payload storage.
// All three share the same native handles.
type Segment struct {
	dir     string
	name    string
	logger  *Logger
	lib     *native.Dylib // owned, nil when supplied by the caller
	sess    *session.Session
	coll    *session.Collection
	index   *index.VectorIndex
	vectors *vectorstore.Store
	payload *payload.Storage

	closeOnce sync.Once
	closeErr  error
}

// Open opens the segment stored in dir, creating it when Create is given
// and the collection does not exist yet.
func Open(ctx context.Context, dir string, optFns ...Option) (seg *Segment, err error) {
	o := applyOptions(optFns)
	defer func() { o.logger.LogOpen(ctx, dir, o.collection, o.create != nil, err) }()

	lib, owned, err := resolveLibrary(o)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil && owned != nil {
			_ = owned.Close()
		}
	}()

	gate := resource.NewController(resource.Config{NativeConcurrency: int64(o.nativeConcurrency)})
	sess, err := session.Open(ctx, lib, dir,
		session.WithLogger(o.logger.Logger),
		session.WithController(gate),
		session.WithMaxPayloadBytes(o.maxPayloadBytes),
	)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = sess.Close()
		}
	}()

	fsys := fs.OrDefault(o.fs)
	schemaPath := filepath.Join(sess.Dir(), o.collection+SchemaSuffix)
	cfg, err := resolveSchema(fsys, o.codec, schemaPath, o)
	if err != nil {
		return nil, err
	}

	coll, err := sess.OpenOrCreate(ctx, o.collection, cfg)
	if err != nil {
		return nil, err
	}
	if !fs.Exists(fsys, schemaPath) {
		if err := writeSchema(fsys, o.codec, schemaPath, cfg); err != nil {
			return nil, &InitializationError{Op: "schema", Path: schemaPath, Err: err}
		}
	}

	logger := o.logger.WithCollection(o.collection).Logger
	seg = &Segment{
		dir:    sess.Dir(),
		name:   o.collection,
		logger: o.logger,
		lib:    owned,
		sess:   sess,
		coll:   coll,
	}

	seg.vectors, err = vectorstore.Open(coll, vectorstore.Options{
		Logger:  logger,
		Metrics: o.metricsCollector,
		FS:      fsys,
	})
	if err != nil {
		return nil, &InitializationError{Op: "vectorstore", Path: seg.dir, Err: err}
	}
	seg.index = index.New(coll, index.Options{
		Logger:  logger,
		Metrics: o.metricsCollector,
		Writer:  seg.vectors,
	})
	seg.payload, err = payload.Open(coll, payload.Options{
		Logger:    logger,
		Metrics:   o.metricsCollector,
		Codec:     o.codec,
		CacheSize: o.payloadCacheSize,
		FS:        fsys,
	})
	if err != nil {
		return nil, &InitializationError{Op: "payload", Path: seg.dir, Err: err}
	}
	return seg, nil
}

func resolveLibrary(o options) (native.Library, *native.Dylib, error) {
	if o.lib != nil {
		return o.lib, nil, nil
	}
	path := o.libPath
	if path == "" {
		path = native.FindLibrary()
	}
	if path == "" {
		return nil, nil, &InitializationError{Op: "load_library", Err: ErrNoLibrary}
	}
	d, err := native.Load(path)
	if err != nil {
		return nil, nil, &InitializationError{Op: "load_library", Path: path, Err: err}
	}
	return d, d, nil
}

// resolveSchema combines the stored schema with the Create option.
func resolveSchema(fsys fs.FileSystem, c codec.Codec, path string, o options) (session.CollectionConfig, error) {
	cfg := session.CollectionConfig{
		IndexType:   o.indexType,
		StorageType: o.storageType,
		ConfigJSON:  o.engineConfig,
	}

	data, err := fs.ReadFile(fsys, path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if o.create == nil {
			return cfg, &InitializationError{Op: "schema", Path: path, Err: ErrNoSchema}
		}
		cfg.Dimension = o.create.dimension
		cfg.Metric = o.create.metric
		return cfg, nil
	case err != nil:
		return cfg, &InitializationError{Op: "schema", Path: path, Err: err}
	}

	var sf schemaFile
	if err := c.Unmarshal(data, &sf); err != nil {
		return cfg, &InitializationError{Op: "schema", Path: path, Err: err}
	}
	if o.create != nil {
		if o.create.dimension != sf.Dimension {
			return cfg, &InitializationError{Op: "schema", Path: path, Err: &ErrDimensionMismatch{Expected: sf.Dimension, Actual: o.create.dimension}}
		}
		if o.create.metric != sf.Metric {
			return cfg, &InitializationError{Op: "schema", Path: path, Err: fmt.Errorf("metric %s does not match stored %s", o.create.metric.Name(), sf.Metric.Name())}
		}
	}
	return session.CollectionConfig{
		IndexType:   sf.IndexType,
		StorageType: sf.StorageType,
		Dimension:   sf.Dimension,
		Metric:      sf.Metric,
		ConfigJSON:  sf.EngineConfig,
	}, nil
}

func writeSchema(fsys fs.FileSystem, c codec.Codec, path string, cfg session.CollectionConfig) error {
	data, err := c.Marshal(schemaFile{
		Dimension:    cfg.Dimension,
		Metric:       cfg.Metric,
		IndexType:    cfg.IndexType,
		StorageType:  cfg.StorageType,
		EngineConfig: cfg.ConfigJSON,
	})
	if err != nil {
		return err
	}
	return fs.WriteFileAtomic(fsys, path, data)
}

// Dir returns the absolute segment directory.
func (s *Segment) Dir() string { return s.dir }

// Name returns the collection name.
func (s *Segment) Name() string { return s.name }

// Dimension returns the vector dimension.
func (s *Segment) Dimension() int { return s.coll.Dimension() }

// Metric returns the distance metric.
func (s *Segment) Metric() distance.Metric { return s.coll.Metric() }

// Index returns the vector index adapter.
func (s *Segment) Index() *index.VectorIndex { return s.index }

// Vectors returns the vector storage adapter.
func (s *Segment) Vectors() *vectorstore.Store { return s.vectors }

// Payloads returns the payload storage adapter.
func (s *Segment) Payloads() *payload.Storage { return s.payload }

// Files returns every file making up the segment, for backup.
func (s *Segment) Files() []string {
	files := []string{filepath.Join(s.dir, s.name+SchemaSuffix)}
	files = append(files, s.index.Files()...)
	files = append(files, s.vectors.Files()...)
	files = append(files, s.payload.Files()...)
	return files
}

// Flush makes the segment durable: host sidecars are written, then the
// engine saves its snapshot and flushes storage.
func (s *Segment) Flush(ctx context.Context) error {
	err := errors.Join(
		s.vectors.Flusher()(),
		s.payload.Flusher()(),
	)
	if err == nil {
		err = s.index.Save(ctx)
	}
	if err == nil {
		err = s.coll.Flush(ctx)
	}
	s.logger.LogSnapshot(ctx, s.name, err)
	return err
}

// Close closes the adapters, then the session, which flushes and destroys
// the engine. It is idempotent; errors from every step are joined.
func (s *Segment) Close() error {
	s.closeOnce.Do(func() {
		errs := []error{
			s.index.Close(),
			s.vectors.Close(),
			s.payload.Close(),
			s.sess.Close(),
		}
		if s.lib != nil {
			errs = append(errs, s.lib.Close())
		}
		s.closeErr = errors.Join(errs...)
		s.logger.LogClose(context.Background(), s.name, s.closeErr)
	})
	return s.closeErr
}
