package sstable_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/duskdb/duskdb/internal/record"
	"github.com/duskdb/duskdb/internal/sstable"
)

// sliceSource adapts a plain slice of entries to sstable.EntrySource.
type sliceSource struct {
	entries []record.Entry
	idx     int
}

func (s *sliceSource) Valid() bool         { return s.idx < len(s.entries) }
func (s *sliceSource) Entry() record.Entry { return s.entries[s.idx] }
func (s *sliceSource) Next() bool          { s.idx++; return s.Valid() }

func writeRun(t *testing.T, path string, entries []record.Entry, opts sstable.Options) {
	t.Helper()
	w, err := sstable.NewFileWriter(path, opts)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if _, err := w.WriteAll(&sliceSource{entries: entries}, len(entries)); err != nil {
		t.Fatalf("write all: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
}

func genEntries(n int) []record.Entry {
	entries := make([]record.Entry, n)
	for i := 0; i < n; i++ {
		entries[i] = record.Entry{
			Key:   []byte(fmt.Sprintf("key-%05d", i)),
			Value: []byte(fmt.Sprintf("value-%05d", i)),
			Seq:   uint64(i + 1),
			Kind:  record.KindPut,
		}
	}
	return entries
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.sst")
	entries := genEntries(500)
	writeRun(t, path, entries, sstable.DefaultOptions())

	r, err := sstable.Open(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	if r.EntryCount() != uint64(len(entries)) {
		t.Fatalf("entry count = %d, want %d", r.EntryCount(), len(entries))
	}
	for _, e := range []int{0, 1, 250, 499} {
		got, found, err := r.Get(entries[e].Key)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !found {
			t.Fatalf("expected key %q found", entries[e].Key)
		}
		if diff := cmp.Diff(string(entries[e].Value), string(got.Value)); diff != "" {
			t.Fatalf("value mismatch (-want +got):\n%s", diff)
		}
	}

	if _, found, err := r.Get([]byte("missing-key")); err != nil || found {
		t.Fatalf("expected missing key not found, err=%v found=%v", err, found)
	}
}

func TestIteratorVisitsAllInOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.sst")
	entries := genEntries(200)
	writeRun(t, path, entries, sstable.DefaultOptions())

	r, err := sstable.Open(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	it, err := r.NewIterator()
	if err != nil {
		t.Fatalf("iterator: %v", err)
	}
	var i int
	for it.Valid() {
		if string(it.Entry().Key) != string(entries[i].Key) {
			t.Fatalf("entry %d: got key %q, want %q", i, it.Entry().Key, entries[i].Key)
		}
		i++
		it.Next()
	}
	if i != len(entries) {
		t.Fatalf("visited %d entries, want %d", i, len(entries))
	}
}

func TestUncompressedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.sst")
	entries := genEntries(50)
	writeRun(t, path, entries, sstable.Options{Compress: false, BloomFPRate: 0.01})

	r, err := sstable.Open(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	got, found, err := r.Get(entries[10].Key)
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if string(got.Value) != string(entries[10].Value) {
		t.Fatalf("value mismatch: got %q want %q", got.Value, entries[10].Value)
	}
}

func TestDeletedEntryIsTombstoneOnRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.sst")
	entries := []record.Entry{
		{Key: []byte("a"), Value: []byte("1"), Seq: 1, Kind: record.KindPut},
		{Key: []byte("b"), Seq: 2, Kind: record.KindDelete},
	}
	writeRun(t, path, entries, sstable.DefaultOptions())

	r, err := sstable.Open(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	got, found, err := r.Get([]byte("b"))
	if err != nil || !found {
		t.Fatalf("expected tombstone entry found, err=%v found=%v", err, found)
	}
	if !got.IsDelete() {
		t.Fatalf("expected tombstone, got %+v", got)
	}
}
