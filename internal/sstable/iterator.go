package sstable

import "github.com/duskdb/duskdb/internal/record"

// Iterator walks every entry of a sorted run in ascending key order,
// loading one data block at a time. It satisfies EntrySource;
// compaction's mergeRuns reads each input run through it.
type Iterator struct {
	r        *Reader
	blockIdx int
	entries  []record.Entry
	entryIdx int
	err      error
}

// Valid reports whether the iterator is positioned on an entry.
func (it *Iterator) Valid() bool {
	return it.err == nil && it.entryIdx < len(it.entries)
}

// Entry returns the entry at the current position.
func (it *Iterator) Entry() record.Entry {
	return it.entries[it.entryIdx]
}

// Err returns the first error encountered, if any.
func (it *Iterator) Err() error { return it.err }

// Next advances to the next entry, loading the next data block as
// needed. Returns false once the run is exhausted or an error occurs.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	if it.entries == nil {
		return it.advanceBlock()
	}
	it.entryIdx++
	if it.entryIdx < len(it.entries) {
		return true
	}
	return it.advanceBlock()
}

func (it *Iterator) advanceBlock() bool {
	it.blockIdx++
	for it.blockIdx < len(it.r.index) {
		entries, err := it.r.dataBlockEntries(it.r.index[it.blockIdx].handle)
		if err != nil {
			it.err = err
			return false
		}
		if len(entries) > 0 {
			it.entries = entries
			it.entryIdx = 0
			return true
		}
		it.blockIdx++
	}
	it.entries = nil
	return false
}
