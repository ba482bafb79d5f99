package db

import (
	"bytes"

	"github.com/nvmekv/ssdlsm/internal/ikey"
	"github.com/nvmekv/ssdlsm/internal/leveltree"
	"github.com/nvmekv/ssdlsm/internal/rangeiter"
	"github.com/nvmekv/ssdlsm/internal/status"
)

// ScanIterator yields each live user key in [lowerUserKey, upperUserKey)
// exactly once, in ascending order, holding its most recent value (spec
// §4.8): the k-way merge underneath still surfaces every composite
// duplicate and every tombstone, but Next folds the run down to one
// visible entry per user key and skips tombstoned keys outright.
type ScanIterator struct {
	merger      *rangeiter.Merger
	lastUserKey []byte
	haveLast    bool
	key         []byte
	value       []byte
	st          status.Status
}

// Scan opens a range-query iterator bounded to [lowerUserKey,
// upperUserKey). A nil/empty bound on either side means unbounded on
// that side. The returned iterator starts positioned before the first
// entry; call Next to advance to it.
func (d *DB) Scan(lowerUserKey, upperUserKey []byte) (*ScanIterator, status.Status) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, status.NotSupported("db: closed")
	}

	hasLower := len(lowerUserKey) > 0
	hasUpper := len(upperUserKey) > 0
	lower := ikey.NewLookup(lowerUserKey)
	upper := ikey.NewLookup(upperUserKey)

	var sources []rangeiter.Source

	memIt := d.memTable.NewIterator()
	seekIterator(memIt, lower, hasLower)
	sources = append(sources, rangeiter.WrapMemtable(memIt))

	if d.immutable != nil {
		immIt := d.immutable.NewIterator()
		seekIterator(immIt, lower, hasLower)
		sources = append(sources, rangeiter.WrapMemtable(immIt))
	}

	l0, st := leveltree.NewLevel0Iterator(d.tree, d.sstMgr, d.vlog, lower, hasLower, upper, hasUpper)
	if !st.Ok() {
		return nil, st
	}
	sources = append(sources, l0)

	for level := uint8(1); int(level) <= d.tree.MaxLevel(); level++ {
		if d.tree.LevelCount(level) == 0 {
			continue
		}
		ln := leveltree.NewLevelNIterator(d.tree, level, d.sstMgr, d.vlog, d.opts.MaxOpenChildren, lower, hasLower, upper, hasUpper)
		sources = append(sources, ln)
	}

	if d.metrics != nil {
		d.metrics.ScansTotal.Inc()
	}
	return &ScanIterator{merger: rangeiter.NewMerger(sources), st: status.OK()}, status.OK()
}

type seekable interface {
	SeekToFirst()
	Seek(ikey.InternalKey)
}

func seekIterator(it seekable, lower ikey.InternalKey, hasLower bool) {
	if hasLower {
		it.Seek(lower)
	} else {
		it.SeekToFirst()
	}
}

// Next advances to the next visible entry, returning false once the
// range is exhausted or a failure ends the scan early (check Status).
func (it *ScanIterator) Next() bool {
	for it.merger.Valid() {
		k := it.merger.Key()
		if it.haveLast && bytes.Equal(k.UserKey, it.lastUserKey) {
			it.merger.Next()
			continue
		}
		it.lastUserKey = append(it.lastUserKey[:0], k.UserKey...)
		it.haveLast = true

		if k.Type == ikey.TypeDeletion {
			it.merger.Next()
			continue
		}

		val, st := it.merger.ReadValue()
		it.merger.Next()
		if !st.Ok() {
			it.st = st
			return false
		}
		it.key = append(it.key[:0], k.UserKey...)
		it.value = append(it.value[:0], val...)
		return true
	}
	return false
}

// Key returns the current entry's user key. Valid only after Next
// returns true.
func (it *ScanIterator) Key() []byte { return it.key }

// Value returns the current entry's value. Valid only after Next
// returns true.
func (it *ScanIterator) Value() []byte { return it.value }

// Status reports the first failure Next encountered, if any.
func (it *ScanIterator) Status() status.Status { return it.st }

