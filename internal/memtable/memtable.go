// Package memtable implements the ordered in-memory write buffer (spec
// §4.2): a skiplist under the composite comparator with a per-packing-
// strategy fullness policy. The memtable is not internally thread-safe;
// the caller (db.DB, under its API mutex) serializes writers.
package memtable

import (
	"github.com/nvmekv/ssdlsm/internal/ikey"
)

// PackingType selects which SSTable packing strategy this memtable is
// sized for, since the fullness test differs per strategy (spec §4.2).
type PackingType int

const (
	PackingKeyPerPage PackingType = iota
	PackingHash
	PackingKeyRange
)

// MemTable is an ordered set of records under the composite comparator,
// with the secondary upsert rule of spec §3: among records for the same
// user key, the memtable's read path returns the one with the greatest
// seq (enforced naturally by the comparator's "higher seq first" tie
// break, since every Put assigns a fresh, strictly increasing seq).
type MemTable struct {
	skiplist    *skipList
	packingType PackingType
	slotsPerPage int // IMS_PAGE_NUM, used by per-page/key-range fullness tests
	pageNum      int // IMS_PAGE_NUM, used by hash bucket fullness test
	bucketCounts []uint32
}

// New creates an empty memtable sized for the given packing strategy.
// pageNum is IMS_PAGE_NUM; slotsPerPage is SLOT_NUM_PER_PAGE.
func New(packing PackingType, pageNum, slotsPerPage int) *MemTable {
	return &MemTable{
		skiplist:     newSkipList(),
		packingType:  packing,
		slotsPerPage: slotsPerPage,
		pageNum:      pageNum,
		bucketCounts: make([]uint32, slotsPerPage),
	}
}

// Put inserts a record into the memtable and updates the per-bucket hash
// counters used by the hash-packing fullness test.
func (m *MemTable) Put(rec ikey.Record) {
	m.skiplist.insert(rec)
	bucket := ikey.HashModN(rec.Key, len(m.bucketCounts))
	m.bucketCounts[bucket]++
}

// Get returns the value for user key userKey, or ok=false if absent or if
// its most recent record is a tombstone.
func (m *MemTable) Get(userKey []byte) (value []byte, ok bool) {
	rec, found := m.GetRecord(userKey)
	if !found {
		return nil, false
	}
	return rec.Value, true
}

// GetRecord returns the newest record for userKey in this memtable, or
// ok=false if the user key is absent. Unlike Get, this surfaces tombstones
// to the caller (spec §4.9 "if the found entry is a tombstone...").
func (m *MemTable) GetRecord(userKey []byte) (rec ikey.Record, ok bool) {
	lookup := ikey.NewRecord(ikey.NewLookup(userKey), nil)
	it := m.skiplist.iterator()
	it.seek(lookup)
	if !it.valid() {
		return ikey.Record{}, false
	}
	candidate := it.record()
	if !sameUserKey(candidate.Key.UserKey, userKey) {
		return ikey.Record{}, false
	}
	return candidate, true
}

func sameUserKey(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// IsFull reports whether the memtable has reached its packing strategy's
// fullness threshold (spec §4.2):
//
//	per-page:  record count >= IMS_PAGE_NUM
//	hash:      any bucket count >= IMS_PAGE_NUM
//	key-range: record count >= slots_per_page * IMS_PAGE_NUM
func (m *MemTable) IsFull() bool {
	switch m.packingType {
	case PackingKeyPerPage:
		return m.skiplist.len() >= m.pageNum
	case PackingHash:
		for _, c := range m.bucketCounts {
			if int(c) >= m.pageNum {
				return true
			}
		}
		return false
	case PackingKeyRange:
		return m.skiplist.len() >= m.slotsPerPage*m.pageNum
	default:
		return false
	}
}

// IsEmpty reports whether the memtable holds no records.
func (m *MemTable) IsEmpty() bool { return m.skiplist.len() == 0 }

// Len returns the number of records currently held.
func (m *MemTable) Len() int { return m.skiplist.len() }

// MinKey returns the smallest internal key under the composite order, or
// ok=false if the memtable is empty.
func (m *MemTable) MinKey() (ikey.InternalKey, bool) {
	rec, ok := m.skiplist.min()
	if !ok {
		return ikey.InternalKey{}, false
	}
	return rec.Key, true
}

// MaxKey returns the largest internal key under the composite order, or
// ok=false if the memtable is empty.
func (m *MemTable) MaxKey() (ikey.InternalKey, bool) {
	rec, ok := m.skiplist.max()
	if !ok {
		return ikey.InternalKey{}, false
	}
	return rec.Key, true
}

// Iterator is the forward/backward cursor contract shared by every
// component that participates in range-query k-way merges (DESIGN NOTES
// §9: a capability set, not deep inheritance).
type Iterator interface {
	Valid() bool
	SeekToFirst()
	SeekToLast()
	Seek(target ikey.InternalKey)
	Next()
	Prev()
	Key() ikey.InternalKey
	Value() []byte
}

type memIterator struct {
	it *skipIterator
}

// NewIterator returns a forward/backward iterator over this memtable's
// records in composite order (spec §4.2).
func (m *MemTable) NewIterator() Iterator {
	return &memIterator{it: m.skiplist.iterator()}
}

func (mi *memIterator) Valid() bool { return mi.it.valid() }
func (mi *memIterator) SeekToFirst() { mi.it.seekToFirst() }
func (mi *memIterator) SeekToLast()  { mi.it.seekToLast() }
func (mi *memIterator) Seek(target ikey.InternalKey) {
	mi.it.seek(ikey.NewRecord(target, nil))
}
func (mi *memIterator) Next() { mi.it.next() }
func (mi *memIterator) Prev() { mi.it.prev() }
func (mi *memIterator) Key() ikey.InternalKey { return mi.it.record().Key }
func (mi *memIterator) Value() []byte         { return mi.it.record().Value }
