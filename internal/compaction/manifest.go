package compaction

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// manifestDoc is the on-disk snapshot of which sorted-run files belong
// to which level. Persisted as JSON: no example repo in the pack ships
// a manifest format of its own to ground this on, and the document is
// pure bookkeeping (a level -> filenames map) with no parsing
// subtleties that would benefit from a third-party encoder, so
// encoding/json is used directly rather than reaching for one. See
// DESIGN.md.
type manifestDoc struct {
	Levels [][]string `json:"levels"`
}

// manifestPath is the fixed filename within a store's data directory.
func manifestPath(dir string) string {
	return filepath.Join(dir, "MANIFEST")
}

// loadManifest reads the manifest, returning an empty (zero-level)
// document if none exists yet (a brand-new database).
func loadManifest(dir string) (manifestDoc, error) {
	data, err := os.ReadFile(manifestPath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return manifestDoc{}, nil
		}
		return manifestDoc{}, fmt.Errorf("compaction: read manifest: %w", err)
	}
	var doc manifestDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return manifestDoc{}, fmt.Errorf("compaction: parse manifest: %w", err)
	}
	return doc, nil
}

// saveManifest writes the manifest atomically: encode to a temp file
// in the same directory, fsync, then rename over the old manifest, so
// a crash mid-write can never leave a half-written manifest behind.
func saveManifest(dir string, doc manifestDoc) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("compaction: encode manifest: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "MANIFEST-*.tmp")
	if err != nil {
		return fmt.Errorf("compaction: create temp manifest: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("compaction: write temp manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("compaction: sync temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("compaction: close temp manifest: %w", err)
	}
	if err := os.Rename(tmpPath, manifestPath(dir)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("compaction: rename manifest into place: %w", err)
	}
	return nil
}
