package compaction

import (
	"fmt"
	"testing"

	"github.com/nvmekv/ssdlsm/internal/driver"
	"github.com/nvmekv/ssdlsm/internal/ikey"
	"github.com/nvmekv/ssdlsm/internal/leveltree"
	"github.com/nvmekv/ssdlsm/internal/sstable"
	"github.com/nvmekv/ssdlsm/internal/status"
)

type fakeLog struct {
	values map[string][]byte
}

func newFakeLog() *fakeLog { return &fakeLog{values: make(map[string][]byte)} }

func (l *fakeLog) Read(lpn, offset uint32) (ikey.Record, status.Status) {
	v, ok := l.values[fmt.Sprintf("%d:%d", lpn, offset)]
	if !ok {
		return ikey.Record{}, status.NotFound("no such value")
	}
	return ikey.Record{Value: v}, status.OK()
}

func buildFile(t *testing.T, mgr *sstable.Manager, log *fakeLog, level uint8, seqBase uint64, entries map[string]string) leveltree.FileMeta {
	t.Helper()
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	// sort lexically so PackAndWrite receives ascending composite order
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			if keys[j] < keys[i] {
				keys[i], keys[j] = keys[j], keys[i]
			}
		}
	}
	sorted := make([][]byte, len(keys))
	for i, uk := range keys {
		lpn, offset := uint32(seqBase), uint32(i)
		vt := ikey.TypeValue
		val := entries[uk]
		if val == "" {
			vt = ikey.TypeDeletion
		}
		k := ikey.New([]byte(uk), lpn, offset, seqBase+uint64(i), vt)
		if val != "" {
			log.values[fmt.Sprintf("%d:%d", lpn, offset)] = []byte(val)
		}
		sorted[i] = k.EncodeSlice()
	}
	info, st := mgr.PackAndWrite(level, sorted)
	if !st.Ok() {
		t.Fatalf("PackAndWrite failed: %v", st)
	}
	return leveltree.FileMeta{FileName: info.FileName, Level: level, MinKey: info.MinKey, MaxKey: info.MaxKey}
}

func TestRunnerMergesL0IntoL1(t *testing.T) {
	drv := driver.NewMemDriver()
	mgr := sstable.NewManager(drv, sstable.PackingKeyPerPage)
	log := newFakeLog()
	tree := leveltree.New()

	src := buildFile(t, mgr, log, 0, 100, map[string]string{"a": "a1", "c": "c1"})
	dst := buildFile(t, mgr, log, 1, 200, map[string]string{"b": "b1", "d": "d1"})
	tree.InsertFile(src)
	tree.InsertFile(dst)

	runner := NewRunner(tree, mgr, mgr, log, leveltree.DefaultMaxOpenChildren, 100, nil)
	plan := Plan{SrcLevel: 0, DstLevel: 1, SrcFiles: []leveltree.FileMeta{src}, DstFiles: []leveltree.FileMeta{dst}}
	if st := runner.Run(plan); !st.Ok() {
		t.Fatalf("Run failed: %v", st)
	}

	if len(tree.FilesAtLevel(0)) != 0 {
		t.Errorf("expected source L0 file to be removed, still have %d", len(tree.FilesAtLevel(0)))
	}
	l1 := tree.FilesAtLevel(1)
	if len(l1) != 1 {
		t.Fatalf("expected exactly one merged L1 file, got %d", len(l1))
	}

	it, st := mgr.OpenIterator(l1[0].FileName, log)
	if !st.Ok() {
		t.Fatalf("OpenIterator failed: %v", st)
	}
	var got []string
	for it.SeekToFirst(); it.Valid(); it.Next() {
		got = append(got, string(it.Key().UserKey))
	}
	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("expected %d merged keys, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestRunnerNewerVersionWinsAndTombstonePropagates(t *testing.T) {
	drv := driver.NewMemDriver()
	mgr := sstable.NewManager(drv, sstable.PackingKeyPerPage)
	log := newFakeLog()
	tree := leveltree.New()

	// src (L0, newer) has a fresh value for "a" and a tombstone for "b";
	// dst (L1, older) has stale values for both.
	src := buildFile(t, mgr, log, 0, 300, map[string]string{"a": "a-new", "b": ""})
	dst := buildFile(t, mgr, log, 1, 100, map[string]string{"a": "a-old", "b": "b-old"})
	tree.InsertFile(src)
	tree.InsertFile(dst)

	runner := NewRunner(tree, mgr, mgr, log, leveltree.DefaultMaxOpenChildren, 100, nil)
	plan := Plan{SrcLevel: 0, DstLevel: 1, SrcFiles: []leveltree.FileMeta{src}, DstFiles: []leveltree.FileMeta{dst}}
	if st := runner.Run(plan); !st.Ok() {
		t.Fatalf("Run failed: %v", st)
	}

	l1 := tree.FilesAtLevel(1)
	if len(l1) != 1 {
		t.Fatalf("expected exactly one merged L1 file, got %d", len(l1))
	}
	it, st := mgr.OpenIterator(l1[0].FileName, log)
	if !st.Ok() {
		t.Fatalf("OpenIterator failed: %v", st)
	}

	found := map[string]ikey.InternalKey{}
	for it.SeekToFirst(); it.Valid(); it.Next() {
		found[string(it.Key().UserKey)] = it.Key()
	}
	ak, ok := found["a"]
	if !ok {
		t.Fatal("expected key 'a' to survive the merge")
	}
	val, st := it2Value(mgr, l1[0].FileName, log, ak)
	if !st.Ok() || string(val) != "a-new" {
		t.Errorf("expected the newer value %q for 'a' to win, got %q (st=%v)", "a-new", val, st)
	}
	if bk, ok := found["b"]; ok {
		if bk.Type != ikey.TypeDeletion {
			t.Errorf("expected 'b' to survive as a tombstone, got type %v", bk.Type)
		}
	} else {
		t.Error("expected the tombstone for 'b' to propagate into the merged file")
	}
}

func it2Value(mgr *sstable.Manager, fileName string, log *fakeLog, k ikey.InternalKey) ([]byte, status.Status) {
	it, st := mgr.OpenIterator(fileName, log)
	if !st.Ok() {
		return nil, st
	}
	for it.Seek(k); it.Valid(); it.Next() {
		if string(it.Key().UserKey) == string(k.UserKey) {
			return it.ReadValue()
		}
		break
	}
	return nil, status.NotFound("key not found")
}
