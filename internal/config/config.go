// Package config loads the engine's tuning knobs from a YAML file,
// grounded on _examples/venky1306-LogDB/yaml_parser.go
// (ParseServerConfig / ServerConfig), adapted from that repo's flat
// disk-store/UDP-server fields onto duskdb's memtable/compaction/bloom
// knobs.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/duskdb/duskdb/internal/compaction"
	"github.com/duskdb/duskdb/internal/sstable"
	"github.com/duskdb/duskdb/internal/store"
)

// Config is the on-disk YAML shape for engine tuning. Fields left at
// their zero value in the file fall back to the package defaults each
// owning component already applies.
type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	Engine struct {
		DataDir               string  `yaml:"data_dir"`
		MemTableMaxSizeBytes  int     `yaml:"memtable_max_size_bytes"`
		L0CompactionTrigger   int     `yaml:"l0_compaction_trigger"`
		LevelGrowthFactor     int     `yaml:"level_growth_factor"`
		BaseLevelBytes        int64   `yaml:"base_level_bytes"`
		MaxLevels             int     `yaml:"max_levels"`
		BlockCacheCapacity    int     `yaml:"block_cache_capacity"`
		BloomFalsePositiveRate float64 `yaml:"bloom_false_positive_rate"`
		CompressBlocks        bool    `yaml:"compress_blocks"`
	} `yaml:"engine"`
}

// Load reads and parses the YAML config file at filename.
func Load(filename string) (Config, error) {
	var cfg Config
	fname, err := filepath.Abs(filename)
	if err != nil {
		return cfg, fmt.Errorf("config: resolve path %s: %w", filename, err)
	}
	data, err := os.ReadFile(fname)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", fname, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", fname, err)
	}
	return cfg, nil
}

// Address returns the host:port the server should listen on.
func (c Config) Address() string {
	host := c.Server.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Server.Port
	if port == 0 {
		port = 5454
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// StoreOptions translates the parsed config into store.Options.
func (c Config) StoreOptions() store.Options {
	bloomRate := c.Engine.BloomFalsePositiveRate
	if bloomRate <= 0 {
		bloomRate = sstable.DefaultOptions().BloomFPRate
	}
	return store.Options{
		MemTableMaxSize: c.Engine.MemTableMaxSizeBytes,
		Compaction: compaction.Options{
			K0:             c.Engine.L0CompactionTrigger,
			GrowthFactor:   c.Engine.LevelGrowthFactor,
			BaseLevelBytes: c.Engine.BaseLevelBytes,
			MaxLevels:      c.Engine.MaxLevels,
			BlockCacheSize: c.Engine.BlockCacheCapacity,
			WriterOptions: sstable.Options{
				Compress:    c.Engine.CompressBlocks,
				BloomFPRate: bloomRate,
			},
		},
	}
}

// DataDir returns the configured data directory, defaulting to
// "./data" when unset.
func (c Config) DataDir() string {
	if c.Engine.DataDir == "" {
		return "./data"
	}
	return c.Engine.DataDir
}
