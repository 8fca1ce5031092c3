package bplustree_test

import (
	"fmt"
	"testing"

	"github.com/duskdb/duskdb/internal/bplustree"
)

func TestInsertSearch(t *testing.T) {
	tr := bplustree.New[int, string](4)
	for i := 0; i < 100; i++ {
		tr.Insert(i, fmt.Sprintf("v%d", i))
	}
	for i := 0; i < 100; i++ {
		v, ok := tr.Search(i)
		if !ok {
			t.Fatalf("key %d not found", i)
		}
		if v != fmt.Sprintf("v%d", i) {
			t.Fatalf("key %d: got %q", i, v)
		}
	}
	if _, ok := tr.Search(-1); ok {
		t.Fatalf("expected missing key not found")
	}
}

func TestInsertReplacesExisting(t *testing.T) {
	tr := bplustree.New[int, string](4)
	tr.Insert(1, "first")
	tr.Insert(1, "second")
	v, ok := tr.Search(1)
	if !ok || v != "second" {
		t.Fatalf("got %q, %v", v, ok)
	}
}

func TestRangeSearchOrdered(t *testing.T) {
	tr := bplustree.New[int, string](4)
	for i := 0; i < 50; i++ {
		tr.Insert(i, fmt.Sprintf("v%d", i))
	}
	got := tr.RangeSearch(10, 19)
	if len(got) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(got))
	}
	for i, e := range got {
		if e.Key != 10+i {
			t.Fatalf("entry %d: got key %d, want %d", i, e.Key, 10+i)
		}
	}
}

func TestRangeSearchOutOfBounds(t *testing.T) {
	tr := bplustree.New[int, string](4)
	for i := 0; i < 10; i++ {
		tr.Insert(i, fmt.Sprintf("v%d", i))
	}
	got := tr.RangeSearch(100, 200)
	if len(got) != 0 {
		t.Fatalf("expected no entries, got %d", len(got))
	}
}

func TestDelete(t *testing.T) {
	tr := bplustree.New[int, string](4)
	tr.Insert(1, "a")
	tr.Insert(2, "b")
	if !tr.Delete(1) {
		t.Fatalf("expected delete to report found")
	}
	if _, ok := tr.Search(1); ok {
		t.Fatalf("expected key 1 gone after delete")
	}
	if _, ok := tr.Search(2); !ok {
		t.Fatalf("expected key 2 to remain")
	}
	if tr.Delete(999) {
		t.Fatalf("expected delete of missing key to report not found")
	}
}

func TestLeafChainSurvivesManySplits(t *testing.T) {
	tr := bplustree.New[int, int](4)
	n := 500
	for i := n - 1; i >= 0; i-- {
		tr.Insert(i, i*10)
	}
	got := tr.RangeSearch(0, n-1)
	if len(got) != n {
		t.Fatalf("expected %d entries, got %d", n, len(got))
	}
	for i, e := range got {
		if e.Key != i || e.Value != i*10 {
			t.Fatalf("entry %d: got (%d,%d)", i, e.Key, e.Value)
		}
	}
}
