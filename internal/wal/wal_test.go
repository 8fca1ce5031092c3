package wal_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/duskdb/duskdb/internal/record"
	"github.com/duskdb/duskdb/internal/wal"
)

func TestAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	w, err := wal.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	entries := []record.Entry{
		{Key: []byte("a"), Value: []byte("1"), Seq: 1, Kind: record.KindPut},
		{Key: []byte("b"), Value: []byte("2"), Seq: 2, Kind: record.KindPut},
		{Key: []byte("a"), Seq: 3, Kind: record.KindDelete},
	}
	for _, e := range entries {
		if err := w.Append(e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := wal.Replay(path)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("got %d entries, want %d", len(got), len(entries))
	}
	for i, e := range entries {
		if string(got[i].Key) != string(e.Key) || got[i].Seq != e.Seq || got[i].Kind != e.Kind {
			t.Fatalf("entry %d mismatch: got %+v, want %+v", i, got[i], e)
		}
	}
}

func TestReplayMissingFile(t *testing.T) {
	entries, err := wal.Replay(filepath.Join(t.TempDir(), "absent.log"))
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if entries != nil {
		t.Fatalf("expected nil entries, got %v", entries)
	}
}

func TestReplayStopsAtTornTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	w, err := wal.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := w.Append(record.Entry{Key: []byte("a"), Value: []byte("1"), Seq: 1, Kind: record.KindPut}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := f.Write([]byte{1, 2, 3}); err != nil {
		t.Fatalf("append garbage: %v", err)
	}
	f.Close()

	got, err := wal.Replay(path)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected the one complete record to survive, got %d", len(got))
	}
}

func TestTruncate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")
	w, err := wal.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	w.Append(record.Entry{Key: []byte("a"), Value: []byte("1"), Seq: 1, Kind: record.KindPut})
	if err := w.Truncate(); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	w.Close()

	got, err := wal.Replay(path)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty log after truncate, got %d entries", len(got))
	}
}
