package leveltree

import (
	"container/list"
	"sort"

	"github.com/nvmekv/ssdlsm/internal/ikey"
	"github.com/nvmekv/ssdlsm/internal/sstable"
	"github.com/nvmekv/ssdlsm/internal/status"
)

// DefaultMaxOpenChildren is max_open_children from spec §4.6/§6.
const DefaultMaxOpenChildren = 64

type lnChild struct {
	meta   FileMeta
	it     *sstable.Iterator
	opened bool
	lruRef *list.Element
}

// LevelNIterator is the sequential iterator over one disjoint level
// N >= 1 (spec §4.6): files are sorted by range_min, binary-search
// helpers locate the first/last/target file, and files are opened
// lazily with an LRU cap on concurrently-open iterators.
type LevelNIterator struct {
	opener   TableOpener
	log      sstable.ValueReader
	children []lnChild

	lru      *list.List // front = most recently used child index
	maxOpen  int

	lower, upper       ikey.InternalKey
	hasLower, hasUpper bool

	curFile int
	hasTop  bool
	curKey  ikey.InternalKey
	st      status.Status
}

// NewLevelNIterator builds an iterator over level's files (already
// MinKey-sorted by Tree), positioned at the first entry within bounds.
func NewLevelNIterator(tree *Tree, level uint8, opener TableOpener, log sstable.ValueReader, maxOpen int, lower ikey.InternalKey, hasLower bool, upper ikey.InternalKey, hasUpper bool) *LevelNIterator {
	files := tree.FilesOverlapping(level, lower, hasLower, upper, hasUpper)
	return NewLevelNIteratorFromFiles(files, opener, log, maxOpen, lower, hasLower, upper, hasUpper)
}

// NewLevelNIteratorFromFiles builds a LevelNIterator over an explicit,
// already MinKey-sorted file set, used by the compaction runner.
func NewLevelNIteratorFromFiles(files []FileMeta, opener TableOpener, log sstable.ValueReader, maxOpen int, lower ikey.InternalKey, hasLower bool, upper ikey.InternalKey, hasUpper bool) *LevelNIterator {
	it := &LevelNIterator{
		opener: opener, log: log, lru: list.New(), maxOpen: maxOpen,
		lower: lower, upper: upper, hasLower: hasLower, hasUpper: hasUpper,
		curFile: -1, st: status.OK(),
	}
	it.children = make([]lnChild, len(files))
	for i, f := range files {
		it.children[i] = lnChild{meta: f}
	}
	it.SeekToFirst()
	return it
}

func (it *LevelNIterator) touch(i int) {
	c := &it.children[i]
	if c.lruRef != nil {
		it.lru.MoveToFront(c.lruRef)
		return
	}
	c.lruRef = it.lru.PushFront(i)
	if it.lru.Len() > it.maxOpen {
		it.evictOne()
	}
}

func (it *LevelNIterator) evictOne() {
	for e := it.lru.Back(); e != nil; e = e.Prev() {
		idx := e.Value.(int)
		if idx == it.curFile {
			continue // never close the currently-used file
		}
		it.lru.Remove(e)
		it.children[idx].lruRef = nil
		it.children[idx].it = nil
		it.children[idx].opened = false
		return
	}
}

func (it *LevelNIterator) open(i int) status.Status {
	c := &it.children[i]
	if c.opened {
		it.touch(i)
		return status.OK()
	}
	child, st := it.opener.OpenIterator(c.meta.FileName, it.log)
	if !st.Ok() {
		return st
	}
	c.it = child
	c.opened = true
	it.touch(i)
	return status.OK()
}

// findFirstGELower returns the index of the first file whose MaxKey is
// >= lower (the first file that could contain an entry at or after
// lower), or len(children) if none.
func (it *LevelNIterator) findFirstGELower() int {
	if !it.hasLower {
		return 0
	}
	return sort.Search(len(it.children), func(i int) bool {
		return ikey.Compare(it.children[i].meta.MaxKey, it.lower) >= 0
	})
}

// findLastLTUpper returns the index of the last file whose MinKey is
// < upper, or -1 if none.
func (it *LevelNIterator) findLastLTUpper() int {
	if !it.hasUpper {
		return len(it.children) - 1
	}
	idx := sort.Search(len(it.children), func(i int) bool {
		return ikey.Compare(it.children[i].meta.MinKey, it.upper) >= 0
	})
	return idx - 1
}

// findFileForTarget returns the index of the file whose range could
// contain target (MaxKey >= target), or len(children) if none.
func (it *LevelNIterator) findFileForTarget(target ikey.InternalKey) int {
	return sort.Search(len(it.children), func(i int) bool {
		return ikey.Compare(it.children[i].meta.MaxKey, target) >= 0
	})
}

func (it *LevelNIterator) withinUpper(k ikey.InternalKey) bool {
	return !it.hasUpper || ikey.Compare(k, it.upper) < 0
}

func (it *LevelNIterator) setTop(i int, valid bool) {
	if !valid {
		it.hasTop = false
		it.curFile = -1
		return
	}
	it.curFile = i
	it.curKey = it.children[i].it.Key()
	it.hasTop = true
}

// SeekToFirst positions at the smallest entry within bounds.
func (it *LevelNIterator) SeekToFirst() {
	it.hasTop = false
	for i := it.findFirstGELower(); i < len(it.children); i++ {
		if st := it.open(i); !st.Ok() {
			it.st = st
			return
		}
		c := it.children[i].it
		if it.hasLower {
			c.Seek(it.lower)
		} else {
			c.SeekToFirst()
		}
		if c.Valid() && it.withinUpper(c.Key()) {
			it.setTop(i, true)
			return
		}
	}
	it.setTop(-1, false)
}

// SeekToLast positions at the largest entry within bounds.
func (it *LevelNIterator) SeekToLast() {
	it.hasTop = false
	for i := it.findLastLTUpper(); i >= 0; i-- {
		if st := it.open(i); !st.Ok() {
			it.st = st
			return
		}
		c := it.children[i].it
		if it.hasUpper {
			c.Seek(it.upper)
			if c.Valid() {
				c.Prev()
			} else {
				c.SeekToLast()
			}
		} else {
			c.SeekToLast()
		}
		if c.Valid() && (!it.hasLower || ikey.Compare(c.Key(), it.lower) >= 0) {
			it.setTop(i, true)
			return
		}
	}
	it.setTop(-1, false)
}

// Seek positions at the first entry >= target.
func (it *LevelNIterator) Seek(target ikey.InternalKey) {
	it.hasTop = false
	tgt := target
	if it.hasLower && ikey.Compare(tgt, it.lower) < 0 {
		tgt = it.lower
	}
	start := it.findFileForTarget(tgt)
	if start >= len(it.children) {
		it.setTop(-1, false)
		return
	}
	for i := start; i < len(it.children); i++ {
		if st := it.open(i); !st.Ok() {
			it.st = st
			return
		}
		c := it.children[i].it
		c.Seek(tgt)
		if c.Valid() && it.withinUpper(c.Key()) {
			it.setTop(i, true)
			return
		}
	}
	it.setTop(-1, false)
}

// Next advances within the current file, moving to the next file once
// the current one is exhausted.
func (it *LevelNIterator) Next() {
	if !it.Valid() {
		return
	}
	cur := it.children[it.curFile].it
	cur.Next()
	if cur.Valid() && it.withinUpper(cur.Key()) {
		it.curKey = cur.Key()
		return
	}
	for i := it.curFile + 1; i < len(it.children); i++ {
		if st := it.open(i); !st.Ok() {
			it.st = st
			return
		}
		c := it.children[i].it
		c.SeekToFirst()
		if c.Valid() && it.withinUpper(c.Key()) {
			it.setTop(i, true)
			return
		}
	}
	it.setTop(-1, false)
}

// Prev retreats within the current file, moving to the previous file
// once the current one is exhausted.
func (it *LevelNIterator) Prev() {
	if !it.Valid() {
		it.SeekToLast()
		return
	}
	cur := it.children[it.curFile].it
	cur.Prev()
	if cur.Valid() && (!it.hasLower || ikey.Compare(cur.Key(), it.lower) >= 0) {
		it.curKey = cur.Key()
		return
	}
	for i := it.curFile - 1; i >= 0; i-- {
		if st := it.open(i); !st.Ok() {
			it.st = st
			return
		}
		c := it.children[i].it
		c.SeekToLast()
		if c.Valid() && (!it.hasLower || ikey.Compare(c.Key(), it.lower) >= 0) {
			it.setTop(i, true)
			return
		}
	}
	it.setTop(-1, false)
}

func (it *LevelNIterator) Valid() bool { return it.st.Ok() && it.hasTop }

func (it *LevelNIterator) Key() ikey.InternalKey { return it.curKey }

func (it *LevelNIterator) ReadValue() ([]byte, status.Status) {
	if !it.Valid() {
		return nil, status.IOError("leveln: invalid iterator")
	}
	return it.children[it.curFile].it.ReadValue()
}

func (it *LevelNIterator) Status() status.Status { return it.st }
