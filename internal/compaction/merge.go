package compaction

import (
	"fmt"
	"os"
	"sort"

	"github.com/duskdb/duskdb/internal/record"
	"github.com/duskdb/duskdb/internal/sstable"
)

// maybeCompact checks every level's trigger condition and runs at
// most one compaction per call; the background loop calls this
// repeatedly so a level that still exceeds its budget after one pass
// gets picked up again on the next tick.
func (m *Manager) maybeCompact() {
	m.mu.RLock()
	l0Count := len(m.levels[0])
	m.mu.RUnlock()

	if l0Count >= m.opts.K0 {
		if err := m.compactLevel(0); err != nil {
			m.logger.Error("compaction failed", "level", 0, "error", err)
		}
		m.signal()
		return
	}

	for level := 1; level < len(m.levels)-1; level++ {
		if m.levelBytes(level) > m.levelBudget(level) {
			if err := m.compactLevel(level); err != nil {
				m.logger.Error("compaction failed", "level", level, "error", err)
			}
			m.signal()
			return
		}
	}
}

func (m *Manager) levelBytes(level int) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total int64
	for _, r := range m.levels[level] {
		total += r.size()
	}
	return total
}

func (m *Manager) levelBudget(level int) int64 {
	budget := m.opts.BaseLevelBytes
	for i := 0; i < level; i++ {
		budget *= int64(m.opts.GrowthFactor)
	}
	return budget
}

// compactLevel merges every run in level and in level+1 into a single
// new run written to level+1, then drops the old files. Runs added to
// level while the merge is running are not inputs and stay registered
// there. Tombstones are
// dropped only when level+1 is the deepest configured level, since any
// level beyond that could otherwise be hiding an older value the
// tombstone still needs to shadow.
func (m *Manager) compactLevel(level int) error {
	target := level + 1

	m.mu.Lock()
	nSource := len(m.levels[level])
	inputs := append(append([]*run{}, m.levels[level]...), m.levels[target]...)
	m.mu.Unlock()

	if len(inputs) == 0 {
		return nil
	}

	merged, err := mergeRuns(inputs, target == len(m.levels)-1)
	if err != nil {
		return fmt.Errorf("compaction: merge level %d into %d: %w", level, target, err)
	}

	outPath := m.newRunPath(target)
	w, err := sstable.NewFileWriter(outPath, m.opts.WriterOptions)
	if err != nil {
		return fmt.Errorf("compaction: create output run: %w", err)
	}
	n, err := w.WriteAll(&sliceSource{entries: merged}, len(merged))
	if err != nil {
		w.Close()
		return fmt.Errorf("compaction: write output run: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("compaction: close output run: %w", err)
	}

	var bytesIn int64
	for _, r := range inputs {
		bytesIn += r.size()
	}

	outReader, err := sstable.Open(outPath, m.blockCache)
	if err != nil {
		return fmt.Errorf("compaction: reopen output run: %w", err)
	}

	m.mu.Lock()
	m.levels[level] = append([]*run(nil), m.levels[level][nSource:]...)
	if n == 0 {
		m.levels[target] = nil
		outReader.Close()
		os.Remove(outPath)
	} else {
		m.levels[target] = []*run{newRun(outPath, outReader)}
	}
	if err := m.persistManifestLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	// Drops the level set's own reference on each retired input. A
	// run still being read by a concurrent ScanInto holds an extra
	// reference of its own, so its file isn't actually closed/removed
	// until that scan finishes (see run.release).
	for _, r := range inputs {
		r.release()
	}
	m.compacted.Add(bytesIn)
	m.logger.Info("compaction complete", "from_level", level, "to_level", target,
		"inputs", len(inputs), "entries", n, "bytes_in", bytesIn)
	return nil
}

// mergeRuns performs a full outer merge of every run's entries,
// keeping the highest-sequence-number version of each key, and
// returns the result sorted by key. dropTombstones discards deleted
// keys entirely instead of carrying their tombstone forward.
func mergeRuns(inputs []*run, dropTombstones bool) ([]record.Entry, error) {
	latest := make(map[string]record.Entry)
	for _, r := range inputs {
		it, err := r.reader.NewIterator()
		if err != nil {
			return nil, err
		}
		for it.Valid() {
			e := it.Entry()
			k := string(e.Key)
			if existing, ok := latest[k]; !ok || e.Seq > existing.Seq {
				latest[k] = e
			}
			it.Next()
		}
		if it.Err() != nil {
			return nil, it.Err()
		}
	}

	result := make([]record.Entry, 0, len(latest))
	for _, e := range latest {
		if dropTombstones && e.IsDelete() {
			continue
		}
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		return string(result[i].Key) < string(result[j].Key)
	})
	return result, nil
}

// sliceSource adapts a sorted slice of entries to sstable.EntrySource.
type sliceSource struct {
	entries []record.Entry
	idx     int
}

func (s *sliceSource) Valid() bool         { return s.idx < len(s.entries) }
func (s *sliceSource) Entry() record.Entry { return s.entries[s.idx] }
func (s *sliceSource) Next() bool          { s.idx++; return s.Valid() }
