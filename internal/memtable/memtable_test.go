package memtable_test

import (
	"fmt"
	"testing"

	"github.com/duskdb/duskdb/internal/memtable"
)

func TestPutGetOverwrite(t *testing.T) {
	m := memtable.New(1 << 20)
	if err := m.Put([]byte("a"), []byte("1"), 1); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := m.Put([]byte("a"), []byte("2"), 2); err != nil {
		t.Fatalf("put: %v", err)
	}
	e, ok := m.Get([]byte("a"))
	if !ok {
		t.Fatalf("expected key found")
	}
	if string(e.Value) != "2" || e.Seq != 2 {
		t.Fatalf("expected latest write to win, got %+v", e)
	}
}

func TestDeleteIsTombstone(t *testing.T) {
	m := memtable.New(1 << 20)
	m.Put([]byte("a"), []byte("1"), 1)
	m.Delete([]byte("a"), 2)
	e, ok := m.Get([]byte("a"))
	if !ok {
		t.Fatalf("expected tombstone entry to be found")
	}
	if !e.IsDelete() {
		t.Fatalf("expected tombstone, got %+v", e)
	}
}

func TestIteratorOrdersKeys(t *testing.T) {
	m := memtable.New(1 << 20)
	keys := []string{"banana", "apple", "cherry", "date"}
	for i, k := range keys {
		m.Put([]byte(k), []byte(fmt.Sprintf("v%d", i)), uint64(i+1))
	}
	it := m.NewIterator()
	var got []string
	for it.Valid() {
		got = append(got, string(it.Entry().Key))
		it.Next()
	}
	want := []string{"apple", "banana", "cherry", "date"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestSeek(t *testing.T) {
	m := memtable.New(1 << 20)
	for i, k := range []string{"a", "c", "e", "g"} {
		m.Put([]byte(k), []byte("v"), uint64(i+1))
	}
	it := m.Seek([]byte("d"))
	if !it.Valid() || string(it.Entry().Key) != "e" {
		t.Fatalf("expected seek to land on 'e', got valid=%v", it.Valid())
	}
}

func TestFreezeRejectsWrites(t *testing.T) {
	m := memtable.New(1 << 20)
	m.Freeze()
	if err := m.Put([]byte("a"), []byte("1"), 1); err != memtable.ErrFrozen {
		t.Fatalf("expected ErrFrozen, got %v", err)
	}
}

func TestShouldFlush(t *testing.T) {
	m := memtable.New(16)
	m.Put([]byte("a-long-enough-key"), []byte("a-long-enough-value"), 1)
	if !m.ShouldFlush() {
		t.Fatalf("expected memtable to report full")
	}
}
