package leveltree

import (
	"container/heap"

	"github.com/nvmekv/ssdlsm/internal/ikey"
	"github.com/nvmekv/ssdlsm/internal/sstable"
	"github.com/nvmekv/ssdlsm/internal/status"
)

// TableOpener opens a positioned SSTable iterator by file name, the
// capability Level0Iterator and LevelNIterator need from the sstable
// manager without depending on its concrete type.
type TableOpener interface {
	OpenIterator(fileName string, log sstable.ValueReader) (*sstable.Iterator, status.Status)
}

type l0Child struct {
	meta   FileMeta
	it     *sstable.Iterator
	inHeap bool
}

// idxHeap is a heap.Interface over child indices, ordered by (current
// key, then file id descending as tie-break to prefer newer files),
// matching the original engine's HeapCmp (spec §4.6).
type idxHeap struct {
	idx      []int
	children *[]l0Child
}

func (h *idxHeap) Len() int { return len(h.idx) }
func (h *idxHeap) Less(i, j int) bool {
	ci := (*h.children)[h.idx[i]]
	cj := (*h.children)[h.idx[j]]
	c := ikey.Compare(ci.it.Key(), cj.it.Key())
	if c != 0 {
		return c < 0
	}
	return ci.meta.fileSeq > cj.meta.fileSeq // newer file (higher seq) sorts first on tie
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

// Level0Iterator is the k-way merge over every overlapping L0 file (spec
// §4.6).
type Level0Iterator struct {
	opener   TableOpener
	log      sstable.ValueReader
	children []l0Child
	heap     *idxHeap

	lower, upper       ikey.InternalKey
	hasLower, hasUpper bool

	curIdx  int
	hasTop  bool
	curKey  ikey.InternalKey
	st      status.Status
}

// NewLevel0Iterator opens iterators for every file returned by
// FilesOverlapping(0, ...) and positions at the first matching entry.
func NewLevel0Iterator(tree *Tree, opener TableOpener, log sstable.ValueReader, lower ikey.InternalKey, hasLower bool, upper ikey.InternalKey, hasUpper bool) (*Level0Iterator, status.Status) {
	files := tree.FilesOverlapping(0, lower, hasLower, upper, hasUpper)
	return NewLevel0IteratorFromFiles(files, opener, log, lower, hasLower, upper, hasUpper)
}

// NewLevel0IteratorFromFiles builds a Level0Iterator over an explicit
// file set, used by the compaction runner which already knows exactly
// which files its plan covers instead of re-deriving them from bounds.
func NewLevel0IteratorFromFiles(files []FileMeta, opener TableOpener, log sstable.ValueReader, lower ikey.InternalKey, hasLower bool, upper ikey.InternalKey, hasUpper bool) (*Level0Iterator, status.Status) {
	it := &Level0Iterator{opener: opener, log: log, lower: lower, upper: upper, hasLower: hasLower, hasUpper: hasUpper, st: status.OK()}
	it.children = make([]l0Child, len(files))
	for i, f := range files {
		child, st := opener.OpenIterator(f.FileName, log)
		if !st.Ok() {
			it.st = st
			return it, st
		}
		it.children[i] = l0Child{meta: f, it: child}
	}
	it.heap = &idxHeap{children: &it.children}
	it.SeekToFirst()
	return it, status.OK()
}

func (it *Level0Iterator) withinUpper(k ikey.InternalKey) bool {
	return !it.hasUpper || ikey.Compare(k, it.upper) < 0
}

func (it *Level0Iterator) geLower(k ikey.InternalKey) bool {
	return !it.hasLower || ikey.Compare(k, it.lower) >= 0
}

func (it *Level0Iterator) clearHeap() {
	it.heap.idx = nil
	for i := range it.children {
		it.children[i].inHeap = false
	}
	it.hasTop = false
}

func (it *Level0Iterator) pushHeap(i int) {
	if it.children[i].inHeap {
		return
	}
	heap.Push(it.heap, i)
	it.children[i].inHeap = true
}

func (it *Level0Iterator) pullTop() {
	if it.heap.Len() == 0 {
		it.hasTop = false
		it.curIdx = -1
		return
	}
	it.curIdx = it.heap.idx[0]
	it.curKey = it.children[it.curIdx].it.Key()
	it.hasTop = true
}

// SeekToFirst positions every overlapping child at its first entry
// within bounds and rebuilds the heap.
func (it *Level0Iterator) SeekToFirst() {
	it.clearHeap()
	for i, c := range it.children {
		if it.hasLower {
			c.it.Seek(it.lower)
		} else {
			c.it.SeekToFirst()
		}
		if c.it.Valid() && it.withinUpper(c.it.Key()) {
			it.pushHeap(i)
		}
	}
	it.pullTop()
}

// SeekToLast positions at the largest entry within bounds by draining
// and reconstructing the heap, mirroring the original engine's
// pull_top_max_.
func (it *Level0Iterator) SeekToLast() {
	it.clearHeap()
	for i, c := range it.children {
		if it.hasUpper {
			c.it.Seek(it.upper)
			if c.it.Valid() {
				if ikey.Compare(c.it.Key(), it.upper) >= 0 {
					c.it.Prev()
				}
			} else {
				c.it.SeekToLast()
			}
		} else {
			c.it.SeekToLast()
		}
		if c.it.Valid() && it.geLower(c.it.Key()) {
			it.pushHeap(i)
		}
	}
	it.pullMax()
}

func (it *Level0Iterator) pullMax() {
	if it.heap.Len() == 0 {
		it.hasTop = false
		it.curIdx = -1
		return
	}
	best := -1
	for _, i := range it.heap.idx {
		if best == -1 || ikey.Compare(it.children[i].it.Key(), it.children[best].it.Key()) > 0 {
			best = i
		}
	}
	it.curIdx = best
	it.curKey = it.children[best].it.Key()
	it.hasTop = true
}

// Seek positions at the first entry >= target (clamped to lower) across
// every overlapping child.
func (it *Level0Iterator) Seek(target ikey.InternalKey) {
	it.clearHeap()
	tgt := target
	if it.hasLower && ikey.Compare(tgt, it.lower) < 0 {
		tgt = it.lower
	}
	for i, c := range it.children {
		if it.hasUpper && ikey.Compare(c.meta.MinKey, it.upper) >= 0 {
			continue
		}
		if ikey.Compare(c.meta.MaxKey, tgt) < 0 {
			continue
		}
		c.it.Seek(tgt)
		if c.it.Valid() && it.withinUpper(c.it.Key()) {
			it.pushHeap(i)
		}
	}
	it.pullTop()
}

// Next advances the current top entry and re-inserts it if still valid.
func (it *Level0Iterator) Next() {
	if !it.Valid() {
		return
	}
	i := heap.Pop(it.heap).(int)
	it.children[i].inHeap = false
	it.children[i].it.Next()
	if it.children[i].it.Valid() && it.withinUpper(it.children[i].it.Key()) {
		it.pushHeap(i)
	}
	it.pullTop()
}

// Prev rebuilds the heap by re-seeking each child to the largest entry
// strictly less than the current key (spec §4.6).
func (it *Level0Iterator) Prev() {
	if !it.Valid() {
		it.SeekToLast()
		return
	}
	cur := it.curKey
	it.clearHeap()
	for i, c := range it.children {
		c.it.Seek(cur)
		if !c.it.Valid() {
			c.it.SeekToLast()
		} else if ikey.Compare(c.it.Key(), cur) >= 0 {
			c.it.Prev()
		}
		if c.it.Valid() && it.geLower(c.it.Key()) {
			it.pushHeap(i)
		}
	}
	it.pullMax()
}

func (it *Level0Iterator) Valid() bool { return it.st.Ok() && it.hasTop }

func (it *Level0Iterator) Key() ikey.InternalKey { return it.curKey }

func (it *Level0Iterator) ReadValue() ([]byte, status.Status) {
	if !it.Valid() {
		return nil, status.IOError("level0: invalid iterator")
	}
	return it.children[it.curIdx].it.ReadValue()
}

func (it *Level0Iterator) Status() status.Status { return it.st }
