// Package rangeiter implements the range-query k-way merge (spec §4.8):
// a heap-merge over the memtable, the immutable memtable (if any), the
// Level-0 iterator, and one Level-N iterator per non-empty level, all
// bounded to [lower, upper) in internal-key encoding.
package rangeiter

import (
	"container/heap"

	"github.com/nvmekv/ssdlsm/internal/ikey"
	"github.com/nvmekv/ssdlsm/internal/memtable"
	"github.com/nvmekv/ssdlsm/internal/status"
)

// Source is the capability every child of the merge must expose — a
// strict subset of the wider per-level iterator contract (DESIGN NOTES
// §9's capability set), since the merger only ever walks forward.
type Source interface {
	Valid() bool
	Key() ikey.InternalKey
	Next()
	ReadValue() ([]byte, status.Status)
}

// memSource adapts memtable.Iterator (whose Value() has no log lookup or
// status) to the Source contract the merger expects from every child.
type memSource struct {
	it memtable.Iterator
}

// WrapMemtable adapts a memtable iterator, already positioned by the
// caller (SeekToFirst/Seek), into a merge Source.
func WrapMemtable(it memtable.Iterator) Source { return memSource{it: it} }

func (s memSource) Valid() bool             { return s.it.Valid() }
func (s memSource) Key() ikey.InternalKey    { return s.it.Key() }
func (s memSource) Next()                   { s.it.Next() }
func (s memSource) ReadValue() ([]byte, status.Status) {
	return s.it.Value(), status.OK()
}

type child struct {
	src    Source
	inHeap bool
}

type idxHeap struct {
	idx      []int
	children *[]child
}

func (h *idxHeap) Len() int { return len(h.idx) }
func (h *idxHeap) Less(i, j int) bool {
	a := (*h.children)[h.idx[i]].src.Key()
	b := (*h.children)[h.idx[j]].src.Key()
	return ikey.Compare(a, b) < 0
}
func (h *idxHeap) Swap(i, j int) { h.idx[i], h.idx[j] = h.idx[j], h.idx[i] }
func (h *idxHeap) Push(x any)    { h.idx = append(h.idx, x.(int)) }
func (h *idxHeap) Pop() any {
	old := h.idx
	n := len(old)
	v := old[n-1]
	h.idx = old[:n-1]
	return v
}

// Merger is the forward-only k-way merge over an arbitrary set of
// Sources, each assumed already positioned at or after its own lower
// bound and reporting Valid()==false once past its upper bound (the
// caller is responsible for seeding each Source with the query's
// [lower, upper) before handing it to NewMerger).
type Merger struct {
	children []child
	heap     *idxHeap
	curIdx   int
	hasTop   bool
	curKey   ikey.InternalKey
}

// NewMerger builds the heap from the already-positioned sources.
func NewMerger(sources []Source) *Merger {
	m := &Merger{curIdx: -1}
	m.children = make([]child, len(sources))
	for i, s := range sources {
		m.children[i] = child{src: s}
	}
	m.heap = &idxHeap{children: &m.children}
	for i := range m.children {
		if m.children[i].src.Valid() {
			m.push(i)
		}
	}
	m.pullTop()
	return m
}

func (m *Merger) push(i int) {
	if m.children[i].inHeap {
		return
	}
	heap.Push(m.heap, i)
	m.children[i].inHeap = true
}

func (m *Merger) pullTop() {
	if m.heap.Len() == 0 {
		m.hasTop = false
		m.curIdx = -1
		return
	}
	m.curIdx = m.heap.idx[0]
	m.curKey = m.children[m.curIdx].src.Key()
	m.hasTop = true
}

// Valid reports whether the merge has a current entry.
func (m *Merger) Valid() bool { return m.hasTop }

// Key returns the current entry's internal key.
func (m *Merger) Key() ikey.InternalKey { return m.curKey }

// ReadValue resolves the current entry's value (or nil for a tombstone,
// left to the caller to recognize via Key().Type).
func (m *Merger) ReadValue() ([]byte, status.Status) {
	return m.children[m.curIdx].src.ReadValue()
}

// Next advances past the current entry.
func (m *Merger) Next() {
	if !m.Valid() {
		return
	}
	i := heap.Pop(m.heap).(int)
	m.children[i].inHeap = false
	m.children[i].src.Next()
	if m.children[i].src.Valid() {
		m.push(i)
	}
	m.pullTop()
}
