package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/duskdb/duskdb/internal/config"
)

const sampleYAML = `
server:
  host: 0.0.0.0
  port: 6060

engine:
  data_dir: /var/lib/duskdb
  memtable_max_size_bytes: 4194304
  l0_compaction_trigger: 6
  level_growth_factor: 8
  base_level_bytes: 1048576
  max_levels: 4
  block_cache_capacity: 256
  bloom_false_positive_rate: 0.02
  compress_blocks: false
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "duskdb.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesAllFields(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address() != "0.0.0.0:6060" {
		t.Fatalf("address = %q", cfg.Address())
	}
	if cfg.DataDir() != "/var/lib/duskdb" {
		t.Fatalf("data dir = %q", cfg.DataDir())
	}

	opts := cfg.StoreOptions()
	if opts.MemTableMaxSize != 4194304 {
		t.Fatalf("memtable max size = %d", opts.MemTableMaxSize)
	}
	if opts.Compaction.K0 != 6 || opts.Compaction.GrowthFactor != 8 {
		t.Fatalf("unexpected compaction options: %+v", opts.Compaction)
	}
	if opts.Compaction.WriterOptions.Compress {
		t.Fatalf("expected compress_blocks: false to be honored")
	}
	if opts.Compaction.WriterOptions.BloomFPRate != 0.02 {
		t.Fatalf("bloom fp rate = %v", opts.Compaction.WriterOptions.BloomFPRate)
	}
}

func TestLoadAppliesDefaultsWhenEmpty(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 0\n")
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address() != "localhost:5454" {
		t.Fatalf("address = %q, want default", cfg.Address())
	}
	if cfg.DataDir() != "./data" {
		t.Fatalf("data dir = %q, want default", cfg.DataDir())
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
