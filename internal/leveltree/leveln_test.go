package leveltree

import (
	"testing"

	"github.com/nvmekv/ssdlsm/internal/driver"
	"github.com/nvmekv/ssdlsm/internal/ikey"
	"github.com/nvmekv/ssdlsm/internal/sstable"
)

func TestLevelNIteratorSequentialAcrossDisjointFiles(t *testing.T) {
	drv := driver.NewMemDriver()
	mgr := sstable.NewManager(drv, sstable.PackingKeyPerPage)
	log := newFakeLog()

	f1 := buildFile(t, mgr, log, 1, 100, []string{"a", "b"})
	f2 := buildFile(t, mgr, log, 1, 200, []string{"c", "d"})

	tree := New()
	tree.InsertFile(f1)
	tree.InsertFile(f2)

	it := NewLevelNIterator(tree, 1, mgr, log, DefaultMaxOpenChildren, ikey.InternalKey{}, false, ikey.InternalKey{}, false)
	if !it.Valid() {
		t.Fatalf("expected a valid iterator, status=%v", it.Status())
	}

	var got []string
	for it.SeekToFirst(); it.Valid(); it.Next() {
		got = append(got, string(it.Key().UserKey))
	}
	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("expected %d keys, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestLevelNIteratorSeekToLastAndPrevCrossesFileBoundary(t *testing.T) {
	drv := driver.NewMemDriver()
	mgr := sstable.NewManager(drv, sstable.PackingKeyPerPage)
	log := newFakeLog()

	f1 := buildFile(t, mgr, log, 1, 100, []string{"a", "b"})
	f2 := buildFile(t, mgr, log, 1, 200, []string{"c", "d"})

	tree := New()
	tree.InsertFile(f1)
	tree.InsertFile(f2)

	it := NewLevelNIterator(tree, 1, mgr, log, DefaultMaxOpenChildren, ikey.InternalKey{}, false, ikey.InternalKey{}, false)
	it.SeekToLast()
	if !it.Valid() || string(it.Key().UserKey) != "d" {
		t.Fatalf("expected SeekToLast to land on 'd', got valid=%v key=%q", it.Valid(), it.Key().UserKey)
	}
	it.Prev()
	if !it.Valid() || string(it.Key().UserKey) != "c" {
		t.Fatalf("expected Prev from 'd' to reach 'c', got valid=%v key=%q", it.Valid(), it.Key().UserKey)
	}
	it.Prev()
	if !it.Valid() || string(it.Key().UserKey) != "b" {
		t.Errorf("expected Prev across the file boundary to reach 'b', got valid=%v key=%q", it.Valid(), it.Key().UserKey)
	}
}

func TestLevelNIteratorSeekLocatesCorrectFile(t *testing.T) {
	drv := driver.NewMemDriver()
	mgr := sstable.NewManager(drv, sstable.PackingKeyPerPage)
	log := newFakeLog()

	f1 := buildFile(t, mgr, log, 1, 100, []string{"a", "b"})
	f2 := buildFile(t, mgr, log, 1, 200, []string{"c", "d"})

	tree := New()
	tree.InsertFile(f1)
	tree.InsertFile(f2)

	it := NewLevelNIterator(tree, 1, mgr, log, DefaultMaxOpenChildren, ikey.InternalKey{}, false, ikey.InternalKey{}, false)
	it.Seek(ikey.NewLookup([]byte("c")))
	if !it.Valid() || string(it.Key().UserKey) != "c" {
		t.Errorf("expected Seek('c') to land on 'c', got valid=%v key=%q", it.Valid(), it.Key().UserKey)
	}
}

func TestLevelNIteratorEvictsBeyondMaxOpenChildren(t *testing.T) {
	drv := driver.NewMemDriver()
	mgr := sstable.NewManager(drv, sstable.PackingKeyPerPage)
	log := newFakeLog()

	files := make([]FileMeta, 0, 5)
	tree := New()
	for i := 0; i < 5; i++ {
		f := buildFile(t, mgr, log, 1, uint64(100*(i+1)), []string{string(rune('a' + i))})
		files = append(files, f)
		tree.InsertFile(f)
	}
	_ = files

	it := NewLevelNIterator(tree, 1, mgr, log, 2, ikey.InternalKey{}, false, ikey.InternalKey{}, false)
	var got []string
	for it.SeekToFirst(); it.Valid(); it.Next() {
		got = append(got, string(it.Key().UserKey))
	}
	want := []string{"a", "b", "c", "d", "e"}
	if len(got) != len(want) {
		t.Fatalf("expected %d keys even with only 2 concurrently open children, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}
