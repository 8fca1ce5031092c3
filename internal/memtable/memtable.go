// Package memtable is the in-memory write buffer of the LSM tree: a
// skip list ordered by key, written to on every Put/Delete, drained
// into a sorted run once it crosses its size threshold.
package memtable

import (
	"math/rand"
	"sync"

	"github.com/duskdb/duskdb/internal/record"
)

// DefaultMaxSize is the flush threshold in bytes when no Config value
// overrides it.
const DefaultMaxSize = 2 * 1024 * 1024 // 2 MiB, matches Config default

// MemTable buffers writes in key order ahead of a flush to a sorted
// run. Safe for concurrent use; a frozen MemTable rejects further
// writes so the store can write it out as a sorted run while a fresh
// one takes new writes.
type MemTable struct {
	mu      sync.RWMutex
	sl      *skipList
	size    int
	maxSize int
	frozen  bool
}

// New returns an empty MemTable that flips to full once it holds
// maxSize bytes of entries (by the same rough accounting as
// record.Entry.Size).
func New(maxSize int) *MemTable {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &MemTable{
		sl:      newSkipList(rand.New(rand.NewSource(1))),
		maxSize: maxSize,
	}
}

// ErrFrozen is returned by Put/Delete once Freeze has been called.
var ErrFrozen = frozenError{}

type frozenError struct{}

func (frozenError) Error() string { return "memtable: frozen, cannot accept writes" }

func (m *MemTable) put(e record.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen {
		return ErrFrozen
	}
	m.size += m.sl.put(e)
	if m.size < 0 {
		m.size = 0
	}
	return nil
}

// Put records a live write.
func (m *MemTable) Put(key, value []byte, seq uint64) error {
	return m.put(record.Entry{Key: key, Value: value, Seq: seq, Kind: record.KindPut})
}

// Delete records a tombstone.
func (m *MemTable) Delete(key []byte, seq uint64) error {
	return m.put(record.Entry{Key: key, Seq: seq, Kind: record.KindDelete})
}

// Get returns the entry for key, if one exists (live write or
// tombstone). The caller must check IsDelete to tell the two apart.
func (m *MemTable) Get(key []byte) (record.Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sl.get(key)
}

// Size returns the approximate byte footprint of the entries held.
func (m *MemTable) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// ShouldFlush reports whether the memtable has crossed its size
// threshold and should be swapped out for a fresh one.
func (m *MemTable) ShouldFlush() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size >= m.maxSize
}

// Freeze marks the memtable read-only. Called under the store's write
// lock right before swapping in a new active memtable.
func (m *MemTable) Freeze() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frozen = true
}

// Count returns the number of distinct keys held (including
// tombstones).
func (m *MemTable) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sl.count
}

// Iterator walks entries in ascending key order.
type Iterator struct {
	node *skipListNode
}

// NewIterator returns an iterator positioned on the first entry (if any).
// The memtable should be frozen (or the caller must otherwise exclude
// concurrent writers) before iterating for a flush, since the skip
// list is not snapshot-isolated against in-place inserts of new keys.
func (m *MemTable) NewIterator() *Iterator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &Iterator{node: m.sl.first()}
}

// Seek returns a new iterator positioned at the first entry with key
// >= the given key.
func (m *MemTable) Seek(key []byte) *Iterator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &Iterator{node: m.sl.seek(key)}
}

// Valid reports whether the iterator is positioned on an entry.
func (it *Iterator) Valid() bool { return it.node != nil }

// Entry returns the entry at the iterator's current position.
func (it *Iterator) Entry() record.Entry { return it.node.entry }

// Next advances the iterator. Returns false once exhausted.
func (it *Iterator) Next() bool {
	if it.node == nil {
		return false
	}
	it.node = it.node.forward[0]
	return it.node != nil
}
