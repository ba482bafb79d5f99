// Package sstable implements the three SSTable packing strategies and the
// per-table iterator that reconstructs a sorted view from a packed block
// (spec §4.4, §4.5), grounded on the original engine's
// sstable_mgr.{hh,cc} keyPerPagePacking/keyHashPacking/keyRangePacking.
package sstable

import (
	"github.com/nvmekv/ssdlsm/internal/driver"
	"github.com/nvmekv/ssdlsm/internal/ikey"
	"github.com/nvmekv/ssdlsm/internal/status"
)

// PackingType selects how sorted keys are laid out inside a block.
type PackingType int

const (
	PackingKeyPerPage PackingType = iota
	PackingHash
	PackingKeyRange
)

const slotsPerPage = driver.SlotsPerPage // 64 slots of 64 bytes per 4 KiB page

// Pack lays sortedKeys (already in ascending composite order) into a fresh
// 2 MiB, 0xFF-initialized block using the given strategy. sortedKeys must
// each be exactly ikey.EncodedSize bytes.
func Pack(strategy PackingType, sortedKeys [][]byte) ([]byte, status.Status) {
	switch strategy {
	case PackingKeyPerPage:
		return packKeyPerPage(sortedKeys)
	case PackingHash:
		return packHash(sortedKeys)
	case PackingKeyRange:
		return packKeyRange(sortedKeys)
	default:
		return nil, status.InvalidArgument("sstable: unknown packing strategy")
	}
}

// Capacity returns the maximum number of records one block can hold under
// strategy: the memtable's fullness policy (spec §4.2) mirrors the same
// bound per strategy so a full memtable always packs into exactly one
// SSTable.
func Capacity(strategy PackingType) int {
	switch strategy {
	case PackingKeyPerPage:
		return driver.PagesPerBlock
	default: // PackingHash, PackingKeyRange
		return driver.PagesPerBlock * slotsPerPage
	}
}

func newBlock() []byte {
	buf := make([]byte, driver.BlockSize)
	for i := range buf {
		buf[i] = 0xFF
	}
	return buf
}

func packKeyPerPage(sortedKeys [][]byte) ([]byte, status.Status) {
	buf := newBlock()
	if len(sortedKeys) > driver.PagesPerBlock {
		return nil, status.InvalidArgument("sstable: too many records for fixed page count")
	}
	for i, enc := range sortedKeys {
		if len(enc) != ikey.EncodedSize {
			return nil, status.Corruption("sstable: encoded key size is wrong")
		}
		off := i * driver.PageSize
		copy(buf[off:off+ikey.EncodedSize], enc)
	}
	return buf, status.OK()
}

func packHash(sortedKeys [][]byte) ([]byte, status.Status) {
	buf := newBlock()
	totalSlots := driver.PagesPerBlock * slotsPerPage
	for i := range buf {
		buf[i] = 0 // key_size == 0 marks an empty hash slot, not 0xFF
	}
	for _, enc := range sortedKeys {
		if len(enc) != ikey.EncodedSize {
			return nil, status.Corruption("sstable: encoded key size is wrong")
		}
		key, st := ikey.Decode(enc)
		if !st.Ok() {
			return nil, st
		}
		slotIdx := ikey.HashModN(key, slotsPerPage)
		placed := false
		for pg := 0; pg < driver.PagesPerBlock; pg++ {
			idx := pg*slotsPerPage + slotIdx
			if idx >= totalSlots {
				return nil, status.Corruption("sstable: hash index overflow")
			}
			off := idx * ikey.EncodedSize
			if buf[off] == 0 {
				copy(buf[off:off+ikey.EncodedSize], enc)
				placed = true
				break
			}
		}
		if !placed {
			return nil, status.InvalidArgument("sstable: hash block full, cannot place key")
		}
	}
	return buf, status.OK()
}

func packKeyRange(sortedKeys [][]byte) ([]byte, status.Status) {
	buf := newBlock()
	totalSlots := driver.PagesPerBlock * slotsPerPage
	if len(sortedKeys) > totalSlots {
		return nil, status.InvalidArgument("sstable: too many records for key-range block")
	}
	i := 0
	for slot := 0; slot < slotsPerPage && i < len(sortedKeys); slot++ {
		for page := 0; page < driver.PagesPerBlock && i < len(sortedKeys); page++ {
			flat := page*slotsPerPage + slot
			if flat >= totalSlots {
				return nil, status.Corruption("sstable: key-range index overflow")
			}
			off := flat * ikey.EncodedSize
			copy(buf[off:off+ikey.EncodedSize], sortedKeys[i])
			i++
		}
	}
	return buf, status.OK()
}
