package memtable

import (
	"math/rand"

	"github.com/nvmekv/ssdlsm/internal/ikey"
)

const (
	maxHeight  = 12
	branching  = 4 // p = 1/branching per level, matching the 0.25 branching factor
)

type skipNode struct {
	rec  ikey.Record
	next []*skipNode
}

// skipList is an ordered set of records under the composite comparator
// (spec §4.2), grounded on the original engine's skiplist.hh. It is not
// internally synchronized; the memtable (and, above it, the API mutex)
// serializes writers.
type skipList struct {
	head   *skipNode
	height int
	count  int
	rnd    *rand.Rand
}

func newSkipList() *skipList {
	return &skipList{
		head:   &skipNode{next: make([]*skipNode, maxHeight)},
		height: 1,
		rnd:    rand.New(rand.NewSource(rand.Int63())),
	}
}

func (s *skipList) randomHeight() int {
	h := 1
	for h < maxHeight && s.rnd.Intn(branching) == 0 {
		h++
	}
	return h
}

func less(a, b ikey.Record) bool {
	return ikey.Compare(a.Key, b.Key) < 0
}

// findGreaterOrEqual returns the first node whose record is >= rec, and
// optionally fills prev[level] with the last node < rec at each level.
func (s *skipList) findGreaterOrEqual(rec ikey.Record, prev []*skipNode) *skipNode {
	x := s.head
	for level := s.height - 1; level >= 0; level-- {
		for x.next[level] != nil && less(x.next[level].rec, rec) {
			x = x.next[level]
		}
		if prev != nil {
			prev[level] = x
		}
	}
	return x.next[0]
}

func (s *skipList) findLessThan(rec ikey.Record) *skipNode {
	x := s.head
	for level := s.height - 1; level >= 0; level-- {
		for x.next[level] != nil && less(x.next[level].rec, rec) {
			x = x.next[level]
		}
	}
	if x == s.head {
		return nil
	}
	return x
}

func (s *skipList) findLast() *skipNode {
	x := s.head
	for level := s.height - 1; level >= 0; level-- {
		for x.next[level] != nil {
			x = x.next[level]
		}
	}
	if x == s.head {
		return nil
	}
	return x
}

// insert adds rec to the skiplist. Duplicate composite keys (same user
// key, seq, and type) are not expected from the API, but inserting one
// simply places it adjacent under the comparator's ordering.
func (s *skipList) insert(rec ikey.Record) {
	prev := make([]*skipNode, maxHeight)
	s.findGreaterOrEqual(rec, prev)

	h := s.randomHeight()
	if h > s.height {
		for i := s.height; i < h; i++ {
			prev[i] = s.head
		}
		s.height = h
	}

	node := &skipNode{rec: rec, next: make([]*skipNode, h)}
	for i := 0; i < h; i++ {
		node.next[i] = prev[i].next[i]
		prev[i].next[i] = node
	}
	s.count++
}

func (s *skipList) len() int { return s.count }

func (s *skipList) min() (ikey.Record, bool) {
	if s.head.next[0] == nil {
		return ikey.Record{}, false
	}
	return s.head.next[0].rec, true
}

func (s *skipList) max() (ikey.Record, bool) {
	n := s.findLast()
	if n == nil {
		return ikey.Record{}, false
	}
	return n.rec, true
}

// skipIterator is a forward/backward cursor over a skipList, mirroring the
// original SkipList<Record,Comparator>::Iterator contract.
type skipIterator struct {
	list *skipList
	node *skipNode
}

func (s *skipList) iterator() *skipIterator {
	return &skipIterator{list: s}
}

func (it *skipIterator) valid() bool { return it.node != nil }

func (it *skipIterator) record() ikey.Record { return it.node.rec }

func (it *skipIterator) seekToFirst() {
	it.node = it.list.head.next[0]
}

func (it *skipIterator) seekToLast() {
	it.node = it.list.findLast()
}

func (it *skipIterator) seek(rec ikey.Record) {
	it.node = it.list.findGreaterOrEqual(rec, nil)
}

func (it *skipIterator) next() {
	if it.node != nil {
		it.node = it.node.next[0]
	}
}

func (it *skipIterator) prev() {
	if it.node == nil {
		it.node = it.list.findLast()
		return
	}
	it.node = it.list.findLessThan(it.node.rec)
}
