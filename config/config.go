// Package config loads and validates the page cache configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"mit.edu/dsg/pagecache/common"
	"mit.edu/dsg/pagecache/eviction"
	"mit.edu/dsg/pagecache/logger"
	"mit.edu/dsg/pagecache/storage"
	"mit.edu/dsg/pagecache/telemetry"
)

// Storage backends accepted in Storage.Backend.
const (
	BackendDisk   = "disk"
	BackendMemory = "memory"
)

// BufferPool configures the frame array and its replacement policy.
type BufferPool struct {
	PoolSize   int             `yaml:"pool_size"`
	ReplacerK  int             `yaml:"replacer_k"`
	BucketSize int             `yaml:"bucket_size"`
	Policy     eviction.Policy `yaml:"policy"`
}

// Storage selects where pages live when they are not resident.
type Storage struct {
	Backend string `yaml:"backend"`
	// Dir holds the segment files of the disk backend.
	Dir          string `yaml:"dir"`
	SegmentPages int    `yaml:"segment_pages"`
}

// Flusher configures the background write-back loop. A zero interval disables it.
type Flusher struct {
	Interval time.Duration `yaml:"interval"`
}

// Config is the top-level configuration of a page cache instance.
type Config struct {
	BufferPool BufferPool       `yaml:"buffer_pool"`
	Storage    Storage          `yaml:"storage"`
	Flusher    Flusher          `yaml:"flusher"`
	Logger     logger.Config    `yaml:"logger"`
	Telemetry  telemetry.Config `yaml:"telemetry"`
}

// Default returns a configuration for a small disk-backed cache in ./data.
func Default() Config {
	return Config{
		BufferPool: BufferPool{
			PoolSize:   64,
			ReplacerK:  storage.DefaultReplacerK,
			BucketSize: 4,
			Policy:     eviction.PolicyLRUK,
		},
		Storage: Storage{
			Backend:      BackendDisk,
			Dir:          "data",
			SegmentPages: storage.DefaultSegmentPages,
		},
		Logger: logger.Config{
			Level:      "info",
			Format:     "console",
			OutputFile: "stderr",
		},
		Telemetry: telemetry.Config{
			ServiceName: "pagecache",
		},
	}
}

// Load reads a YAML file on top of Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, common.NewError(common.InvalidConfigError, "failed to parse config %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field that the components would otherwise reject at construction time.
func (c Config) Validate() error {
	if c.BufferPool.PoolSize <= 0 {
		return invalid("buffer_pool.pool_size must be positive, got %d", c.BufferPool.PoolSize)
	}
	if c.BufferPool.ReplacerK <= 0 {
		return invalid("buffer_pool.replacer_k must be positive, got %d", c.BufferPool.ReplacerK)
	}
	if c.BufferPool.BucketSize <= 0 {
		return invalid("buffer_pool.bucket_size must be positive, got %d", c.BufferPool.BucketSize)
	}
	switch c.BufferPool.Policy {
	case "", eviction.PolicyLRUK, eviction.PolicyLRU:
	default:
		return invalid("unknown buffer_pool.policy %q", c.BufferPool.Policy)
	}

	switch c.Storage.Backend {
	case BackendDisk:
		if c.Storage.Dir == "" {
			return invalid("storage.dir is required for the disk backend")
		}
		if c.Storage.SegmentPages <= 0 {
			return invalid("storage.segment_pages must be positive, got %d", c.Storage.SegmentPages)
		}
	case BackendMemory:
	default:
		return invalid("unknown storage.backend %q", c.Storage.Backend)
	}

	if c.Flusher.Interval < 0 {
		return invalid("flusher.interval must not be negative, got %s", c.Flusher.Interval)
	}
	if c.Telemetry.PrometheusPort < 0 {
		return invalid("telemetry.prometheus_port must not be negative, got %d", c.Telemetry.PrometheusPort)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return common.NewError(common.InvalidConfigError, format, args...)
}
