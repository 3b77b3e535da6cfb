package vdego

import (
	"log/slog"

	"github.com/hupe1980/vdego/codec"
	"github.com/hupe1980/vdego/distance"
	"github.com/hupe1980/vdego/internal/fs"
	"github.com/hupe1980/vdego/native"
	"github.com/hupe1980/vdego/payload"
	"github.com/hupe1980/vdego/session"
)

// DefaultCollection is the collection name used when none is configured.
const DefaultCollection = "segment"

type schema struct {
	dimension int
	metric    distance.Metric
}

type options struct {
	lib               native.Library
	libPath           string
	collection        string
	create            *schema
	indexType         string
	storageType       string
	engineConfig      string
	payloadCacheSize  int
	maxPayloadBytes   int
	nativeConcurrency int
	codec             codec.Codec
	metricsCollector  MetricsCollector
	logger            *Logger
	fs                fs.FileSystem
}

// Option configures Open.
type Option func(*options)

// WithLibrary uses lib as the engine. The segment does not close it.
//
// native.NewMemory() is a complete in-process engine, useful for tests.
func WithLibrary(lib native.Library) Option {
	return func(o *options) {
		o.lib = lib
	}
}

// WithLibraryPath loads the engine shared library from path. The segment
// unloads it on Close.
//
// Without WithLibrary or WithLibraryPath, Open looks for the library via
// the VDE_LIBRARY environment variable and the standard search paths.
func WithLibraryPath(path string) Option {
	return func(o *options) {
		o.libPath = path
	}
}

// WithCollection sets the collection name. Defaults to DefaultCollection.
func WithCollection(name string) Option {
	return func(o *options) {
		o.collection = name
	}
}

// Create allows Open to create the collection with the given dimension and
// metric when it does not exist yet. Reopening an existing segment does not
// need it; when given, it must match the stored schema.
//
// Example:
//
//	seg, _ := vdego.Open(ctx, "./data", vdego.Create(768, distance.MetricCosine))
//	seg, _ = vdego.Open(ctx, "./data") // re-open existing
func Create(dim int, metric distance.Metric) Option {
	return func(o *options) {
		o.create = &schema{dimension: dim, metric: metric}
	}
}

// WithIndexType sets the engine index type used on create. Defaults to "vsag_hnsw".
func WithIndexType(t string) Option {
	return func(o *options) {
		o.indexType = t
	}
}

// WithStorageType sets the engine storage type used on create. Defaults to "zendb".
func WithStorageType(t string) Option {
	return func(o *options) {
		o.storageType = t
	}
}

// WithEngineConfig passes an engine-specific JSON configuration on create.
func WithEngineConfig(json string) Option {
	return func(o *options) {
		o.engineConfig = json
	}
}

// WithPayloadCacheSize bounds the payload read cache, in documents.
func WithPayloadCacheSize(n int) Option {
	return func(o *options) {
		o.payloadCacheSize = n
	}
}

// WithMaxPayloadBytes caps the size of a single payload document read from
// the engine. Larger documents fail with a ServiceError.
func WithMaxPayloadBytes(n int) Option {
	return func(o *options) {
		o.maxPayloadBytes = n
	}
}

// WithNativeConcurrency sets how many native calls may run at once.
// The default of 1 serializes all calls into the engine; raise it only when
// the engine is known to be safe for concurrent use of one handle.
func WithNativeConcurrency(n int) Option {
	return func(o *options) {
		o.nativeConcurrency = n
	}
}

// WithCodec configures the codec used for payload documents.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		o.codec = codec.OrDefault(c)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := vdego.NewJSONLogger(slog.LevelInfo)
//	seg, _ := vdego.Open(ctx, "./data", vdego.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func withFS(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		collection:        DefaultCollection,
		indexType:         session.DefaultIndexType,
		storageType:       session.DefaultStorageType,
		payloadCacheSize:  payload.DefaultCacheSize,
		maxPayloadBytes:   session.DefaultMaxPayloadBytes,
		nativeConcurrency: 1,
		codec:             codec.Default,
		metricsCollector:  NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	return o
}
