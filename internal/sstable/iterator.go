package sstable

import (
	"sort"

	"github.com/nvmekv/ssdlsm/internal/driver"
	"github.com/nvmekv/ssdlsm/internal/ikey"
	"github.com/nvmekv/ssdlsm/internal/status"
)

// ValueReader resolves a record's value from the value log, the
// capability the iterator needs to implement ReadValue (spec §4.5).
type ValueReader interface {
	Read(lpn, offset uint32) (ikey.Record, status.Status)
}

// entryRef is an offset into the loaded block at which one valid encoded
// key lives, in ascending composite order.
type entryRef struct {
	keyOff int
}

// Iterator reconstructs the sorted view of one packed SSTable block
// (spec §4.5). It loads the whole 2 MiB block once at Init and scans it
// to build an ordered entryRef list; Seek/Next/Prev then walk that list.
type Iterator struct {
	fileName string
	strategy PackingType
	log      ValueReader

	buf     []byte
	entries []entryRef
	pos     int
	st      status.Status
}

// NewIterator creates an iterator over fileName's already-read block,
// scanning it once to build the sorted entry list for strategy.
func NewIterator(fileName string, strategy PackingType, block []byte, log ValueReader) (*Iterator, status.Status) {
	if len(block) != driver.BlockSize {
		return nil, status.Corruption("sstable: block must be BLOCK_SIZE bytes")
	}
	it := &Iterator{fileName: fileName, strategy: strategy, log: log, buf: block, pos: -1, st: status.OK()}
	it.entries = it.genSortedView()
	return it, status.OK()
}

func isValidEncoded(enc []byte) bool {
	if len(enc) != ikey.EncodedSize {
		return false
	}
	k, st := ikey.Decode(enc)
	if !st.Ok() {
		return false
	}
	return k.IsValid()
}

func (it *Iterator) genSortedView() []entryRef {
	switch it.strategy {
	case PackingKeyPerPage:
		var entries []entryRef
		for pg := 0; pg < driver.PagesPerBlock; pg++ {
			off := pg * driver.PageSize
			if isValidEncoded(it.buf[off : off+ikey.EncodedSize]) {
				entries = append(entries, entryRef{keyOff: off})
			}
		}
		return entries
	case PackingKeyRange:
		var entries []entryRef
		for slot := 0; slot < slotsPerPage; slot++ {
			for pg := 0; pg < driver.PagesPerBlock; pg++ {
				flat := pg*slotsPerPage + slot
				off := flat * ikey.EncodedSize
				if isValidEncoded(it.buf[off : off+ikey.EncodedSize]) {
					entries = append(entries, entryRef{keyOff: off})
				}
			}
		}
		return entries
	case PackingHash:
		var entries []entryRef
		totalSlots := driver.PagesPerBlock * slotsPerPage
		for idx := 0; idx < totalSlots; idx++ {
			off := idx * ikey.EncodedSize
			if it.buf[off] != 0 && isValidEncoded(it.buf[off:off+ikey.EncodedSize]) {
				entries = append(entries, entryRef{keyOff: off})
			}
		}
		sort.Slice(entries, func(i, j int) bool {
			return ikey.CompareEncoded(it.entryKey(entries[i]), it.entryKey(entries[j])) < 0
		})
		return entries
	default:
		return nil
	}
}

func (it *Iterator) entryKey(e entryRef) []byte {
	return it.buf[e.keyOff : e.keyOff+ikey.EncodedSize]
}

func (it *Iterator) Valid() bool { return it.pos >= 0 && it.pos < len(it.entries) }

func (it *Iterator) SeekToFirst() { it.pos = 0 }

func (it *Iterator) SeekToLast() { it.pos = len(it.entries) - 1 }

// Seek positions at the first entry >= target under the composite
// comparator (a lower_bound).
func (it *Iterator) Seek(target ikey.InternalKey) {
	it.pos = sort.Search(len(it.entries), func(i int) bool {
		k, _ := ikey.Decode(it.entryKey(it.entries[i]))
		return ikey.Compare(k, target) >= 0
	})
}

func (it *Iterator) Next() {
	if it.pos < len(it.entries) {
		it.pos++
	}
}

func (it *Iterator) Prev() {
	if it.pos >= 0 {
		it.pos--
	}
}

// Key returns the current entry's decoded internal key.
func (it *Iterator) Key() ikey.InternalKey {
	k, _ := ikey.Decode(it.entryKey(it.entries[it.pos]))
	return k
}

// ReadValue resolves the current entry's value via the log, returning a
// tombstone-aware empty value when the entry is a deletion marker.
func (it *Iterator) ReadValue() ([]byte, status.Status) {
	k := it.Key()
	if k.Type == ikey.TypeDeletion {
		return nil, status.OK()
	}
	rec, st := it.log.Read(k.LPN, k.Offset)
	if !st.Ok() {
		return nil, st
	}
	return rec.Value, status.OK()
}

// Len reports the number of live entries found in the block.
func (it *Iterator) Len() int { return len(it.entries) }

// Status reports the last error this iterator encountered.
func (it *Iterator) Status() status.Status { return it.st }
