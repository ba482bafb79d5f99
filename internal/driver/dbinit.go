package driver

import (
	"encoding/binary"
	"fmt"

	"github.com/nvmekv/ssdlsm/internal/status"
)

// TreeNodeRecord is the on-wire form of one level-tree file entry inside
// DB_INIT: (file_name[35], level, range_min, range_max) (spec §6).
type TreeNodeRecord struct {
	FileName string
	Level    uint8
	RangeMin [EncodedSizeKey]byte
	RangeMax [EncodedSizeKey]byte
}

// EncodedSizeKey mirrors ikey.EncodedSize without importing ikey, to keep
// this package's only dependency on the key format being a fixed 64-byte
// width (avoids an import cycle: ikey doesn't need to know about driver).
const EncodedSizeKey = 64

// DBInit is the persisted state handed to open_DB/close_DB (spec §6): log
// manager position, global/sstable sequence counters, the log block list,
// and the serialized LSM tree.
type DBInit struct {
	NextLBN         uint32
	CurrentLBN      uint32
	PageOffset      uint32
	ByteOffset      uint32
	FirstBlockOffset uint32
	GlobalSeq       uint64
	SstableSeq      uint32
	LogBlocks       []uint32
	Tree            []TreeNodeRecord
}

// Encode serializes DBInit to bytes for write_meta/close_DB.
func (d DBInit) Encode() []byte {
	size := 4*5 + 8 + 4 + 4 + len(d.LogBlocks)*4 + 4
	for _, t := range d.Tree {
		size += FileNameWidth + 1 + EncodedSizeKey*2
	}
	buf := make([]byte, size)
	off := 0
	putU32 := func(v uint32) {
		binary.LittleEndian.PutUint32(buf[off:], v)
		off += 4
	}
	putU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[off:], v)
		off += 8
	}
	putU32(d.NextLBN)
	putU32(d.CurrentLBN)
	putU32(d.PageOffset)
	putU32(d.ByteOffset)
	putU32(d.FirstBlockOffset)
	putU64(d.GlobalSeq)
	putU32(d.SstableSeq)
	putU32(uint32(len(d.LogBlocks)))
	for _, lbn := range d.LogBlocks {
		putU32(lbn)
	}
	putU32(uint32(len(d.Tree)))
	for _, t := range d.Tree {
		name := make([]byte, FileNameWidth)
		copy(name, t.FileName)
		copy(buf[off:], name)
		off += FileNameWidth
		buf[off] = t.Level
		off++
		copy(buf[off:], t.RangeMin[:])
		off += EncodedSizeKey
		copy(buf[off:], t.RangeMax[:])
		off += EncodedSizeKey
	}
	return buf[:off]
}

// DecodeDBInit parses a DBInit previously produced by Encode. A malformed
// buffer (spec §4.9 "errors map to corruption") returns a Corruption
// status.
func DecodeDBInit(buf []byte) (DBInit, status.Status) {
	const headerLen = 4*5 + 8 + 4
	if len(buf) < headerLen+4 {
		return DBInit{}, status.Corruption("DB_INIT buffer too short")
	}
	off := 0
	getU32 := func() uint32 {
		v := binary.LittleEndian.Uint32(buf[off:])
		off += 4
		return v
	}
	getU64 := func() uint64 {
		v := binary.LittleEndian.Uint64(buf[off:])
		off += 8
		return v
	}
	var d DBInit
	d.NextLBN = getU32()
	d.CurrentLBN = getU32()
	d.PageOffset = getU32()
	d.ByteOffset = getU32()
	d.FirstBlockOffset = getU32()
	d.GlobalSeq = getU64()
	d.SstableSeq = getU32()
	blockCount := getU32()
	if off+int(blockCount)*4 > len(buf) {
		return DBInit{}, status.Corruption("DB_INIT log block list truncated")
	}
	d.LogBlocks = make([]uint32, blockCount)
	for i := range d.LogBlocks {
		d.LogBlocks[i] = getU32()
	}
	if off+4 > len(buf) {
		return DBInit{}, status.Corruption("DB_INIT tree count truncated")
	}
	treeCount := getU32()
	d.Tree = make([]TreeNodeRecord, treeCount)
	entrySize := FileNameWidth + 1 + EncodedSizeKey*2
	for i := range d.Tree {
		if off+entrySize > len(buf) {
			return DBInit{}, status.Corruption(fmt.Sprintf("DB_INIT tree entry %d truncated", i))
		}
		nameBuf := buf[off : off+FileNameWidth]
		off += FileNameWidth
		// trim trailing NUL padding
		nameLen := len(nameBuf)
		for nameLen > 0 && nameBuf[nameLen-1] == 0 {
			nameLen--
		}
		d.Tree[i].FileName = string(nameBuf[:nameLen])
		d.Tree[i].Level = buf[off]
		off++
		copy(d.Tree[i].RangeMin[:], buf[off:off+EncodedSizeKey])
		off += EncodedSizeKey
		copy(d.Tree[i].RangeMax[:], buf[off:off+EncodedSizeKey])
		off += EncodedSizeKey
	}
	return d, status.OK()
}
