package vdego

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/vdego/codec"
	"github.com/hupe1980/vdego/distance"
)

// Config is the file form of the segment options.
//
//	dir: ./data
//	collection: products
//	create:
//	  dimension: 768
//	  metric: cosine
//	native_concurrency: 1
//	payload_cache_size: 10000
//	log:
//	  level: info
//	  format: json
type Config struct {
	Dir               string        `yaml:"dir"`
	Library           string        `yaml:"library"`
	Collection        string        `yaml:"collection"`
	Create            *CreateConfig `yaml:"create"`
	IndexType         string        `yaml:"index_type"`
	StorageType       string        `yaml:"storage_type"`
	EngineConfig      string        `yaml:"engine_config"`
	PayloadCacheSize  int           `yaml:"payload_cache_size"`
	MaxPayloadBytes   int           `yaml:"max_payload_bytes"`
	NativeConcurrency int           `yaml:"native_concurrency"`
	Codec             string        `yaml:"codec"`
	Log               LogConfig     `yaml:"log"`
}

// CreateConfig is the schema used when the collection does not exist.
type CreateConfig struct {
	Dimension int             `yaml:"dimension"`
	Metric    distance.Metric `yaml:"metric"`
}

// LogConfig selects the logger built by Config.Options.
type LogConfig struct {
	// Level is debug, info, warn or error. Empty disables logging.
	Level string `yaml:"level"`
	// Format is text (default) or json.
	Format string `yaml:"format"`
}

// LoadConfig reads a YAML config file. Unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config data.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Options converts the config into Open options. Zero values keep the
// defaults.
func (c *Config) Options() ([]Option, error) {
	var opts []Option

	if c.Library != "" {
		opts = append(opts, WithLibraryPath(c.Library))
	}
	if c.Collection != "" {
		opts = append(opts, WithCollection(c.Collection))
	}
	if c.Create != nil {
		if c.Create.Dimension <= 0 {
			return nil, fmt.Errorf("config: invalid dimension %d", c.Create.Dimension)
		}
		opts = append(opts, Create(c.Create.Dimension, c.Create.Metric))
	}
	if c.IndexType != "" {
		opts = append(opts, WithIndexType(c.IndexType))
	}
	if c.StorageType != "" {
		opts = append(opts, WithStorageType(c.StorageType))
	}
	if c.EngineConfig != "" {
		opts = append(opts, WithEngineConfig(c.EngineConfig))
	}
	if c.PayloadCacheSize > 0 {
		opts = append(opts, WithPayloadCacheSize(c.PayloadCacheSize))
	}
	if c.MaxPayloadBytes > 0 {
		opts = append(opts, WithMaxPayloadBytes(c.MaxPayloadBytes))
	}
	if c.NativeConcurrency > 0 {
		opts = append(opts, WithNativeConcurrency(c.NativeConcurrency))
	}
	if c.Codec != "" {
		cd, err := codec.ByName(c.Codec)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		opts = append(opts, WithCodec(cd))
	}

	if c.Log.Level != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
			return nil, fmt.Errorf("config: log level: %w", err)
		}
		switch c.Log.Format {
		case "", "text":
			opts = append(opts, WithLogger(NewTextLogger(level)))
		case "json":
			opts = append(opts, WithLogger(NewJSONLogger(level)))
		default:
			return nil, fmt.Errorf("config: unknown log format %q", c.Log.Format)
		}
	}
	return opts, nil
}

// OpenConfig opens the segment described by c. extra options are applied
// after the ones derived from c.
func OpenConfig(ctx context.Context, c *Config, extra ...Option) (*Segment, error) {
	if c.Dir == "" {
		return nil, fmt.Errorf("config: dir is required")
	}
	opts, err := c.Options()
	if err != nil {
		return nil, err
	}
	return Open(ctx, c.Dir, append(opts, extra...)...)
}
