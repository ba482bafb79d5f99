package rangeiter

import (
	"testing"

	"github.com/nvmekv/ssdlsm/internal/ikey"
	"github.com/nvmekv/ssdlsm/internal/memtable"
	"github.com/nvmekv/ssdlsm/internal/status"
)

type fakeSource struct {
	entries []ikey.InternalKey
	pos     int
}

func newFakeSource(keys ...string) *fakeSource {
	entries := make([]ikey.InternalKey, len(keys))
	for i, k := range keys {
		entries[i] = ikey.New([]byte(k), 0, 0, 1, ikey.TypeValue)
	}
	return &fakeSource{entries: entries}
}

func (s *fakeSource) Valid() bool            { return s.pos < len(s.entries) }
func (s *fakeSource) Key() ikey.InternalKey   { return s.entries[s.pos] }
func (s *fakeSource) Next()                  { s.pos++ }
func (s *fakeSource) ReadValue() ([]byte, status.Status) { return []byte(string(s.entries[s.pos].UserKey)), status.OK() }

func TestMergerOrdersAcrossSources(t *testing.T) {
	a := newFakeSource("b", "d", "f")
	b := newFakeSource("a", "c", "e")
	m := NewMerger([]Source{a, b})

	var got []string
	for m.Valid() {
		got = append(got, string(m.Key().UserKey))
		m.Next()
	}
	want := []string{"a", "b", "c", "d", "e", "f"}
	if len(got) != len(want) {
		t.Fatalf("expected %d merged entries, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestMergerEmptySources(t *testing.T) {
	m := NewMerger(nil)
	if m.Valid() {
		t.Error("expected an empty merger to be immediately invalid")
	}
}

func TestMergerOneEmptyOneNonEmpty(t *testing.T) {
	empty := newFakeSource()
	nonEmpty := newFakeSource("x", "y")
	m := NewMerger([]Source{empty, nonEmpty})

	var got []string
	for m.Valid() {
		got = append(got, string(m.Key().UserKey))
		m.Next()
	}
	if len(got) != 2 || got[0] != "x" || got[1] != "y" {
		t.Errorf("expected [x y], got %v", got)
	}
}

func TestWrapMemtableAdaptsIterator(t *testing.T) {
	mt := memtable.New(memtable.PackingKeyPerPage, 16, 4)
	mt.Put(ikey.NewRecord(ikey.New([]byte("a"), 0, 0, 1, ikey.TypeValue), []byte("va")))
	mt.Put(ikey.NewRecord(ikey.New([]byte("b"), 0, 0, 2, ikey.TypeValue), []byte("vb")))

	it := mt.NewIterator()
	it.SeekToFirst()
	src := WrapMemtable(it)

	m := NewMerger([]Source{src})
	if !m.Valid() {
		t.Fatal("expected the wrapped memtable iterator to produce a valid merge")
	}
	if string(m.Key().UserKey) != "a" {
		t.Errorf("expected first key 'a', got %q", m.Key().UserKey)
	}
	val, st := m.ReadValue()
	if !st.Ok() || string(val) != "va" {
		t.Errorf("expected value 'va', got %q st=%v", val, st)
	}
}
