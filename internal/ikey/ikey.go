// Package ikey implements the fixed-size internal key and record encoding
// (spec §3, §4.1): a 64-byte composite key carrying the user key, its value
// pointer into the value log, and a (sequence, type) tag, plus the variable
// length on-log record framing.
package ikey

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/nvmekv/ssdlsm/internal/status"
)

// ValueType tags what an internal key represents.
type ValueType uint8

const (
	// TypeMin is the low sentinel used for half-open range lower bounds.
	TypeMin ValueType = 0x00
	// TypeDeletion marks a tombstone.
	TypeDeletion ValueType = 0x01
	// TypeValue marks a live value.
	TypeValue ValueType = 0x02
	// TypeMax is the high sentinel used for half-open range upper bounds.
	TypeMax ValueType = 0x03
	// TypeInvalid marks an empty SSTable slot.
	TypeInvalid ValueType = 0xFF
)

const (
	// MaxUserKeySize is the largest user key this engine will store.
	MaxUserKeySize = 40
	// EncodedSize is the fixed wire size of an InternalKey.
	EncodedSize = 64

	reservedSize = 7
)

// InternalKey is the fixed 64-byte composite key. Layout (little-endian):
//
//	1   byte   user-key length L (<= 40)
//	40  bytes  user-key, zero padded
//	4   bytes  lpn   (log page number)
//	4   bytes  offset (intra-page byte offset)
//	7   bytes  reserved, zero
//	8   bytes  tag = (seq << 8) | type
type InternalKey struct {
	UserKey []byte // length <= MaxUserKeySize, not padded in memory
	LPN     uint32
	Offset  uint32
	Seq     uint64 // 56-bit monotonically increasing sequence
	Type    ValueType
}

// New builds an InternalKey for a put/delete with an explicit value pointer.
func New(userKey []byte, lpn, offset uint32, seq uint64, t ValueType) InternalKey {
	return InternalKey{UserKey: append([]byte(nil), userKey...), LPN: lpn, Offset: offset, Seq: seq, Type: t}
}

// NewLookup builds a key suitable for seeking: the highest possible seq and
// type so that, under the composite order, it sorts before every real
// record sharing the same user key (seq ties break to the newest first).
func NewLookup(userKey []byte) InternalKey {
	return InternalKey{UserKey: append([]byte(nil), userKey...), Seq: (uint64(1) << 56) - 1, Type: TypeMax}
}

// IsValid reports whether the key could plausibly have been written by
// this engine: user-key length in bounds and a legal, non-empty type.
func (k InternalKey) IsValid() bool {
	if len(k.UserKey) > MaxUserKeySize {
		return false
	}
	if k.Type == TypeInvalid {
		return false
	}
	if k.Type > TypeMax {
		return false
	}
	return true
}

// Encode serializes the key to its fixed 64-byte wire form.
func (k InternalKey) Encode() [EncodedSize]byte {
	var buf [EncodedSize]byte
	if len(k.UserKey) > MaxUserKeySize {
		panic(fmt.Sprintf("ikey: user key length %d exceeds %d", len(k.UserKey), MaxUserKeySize))
	}
	buf[0] = byte(len(k.UserKey))
	copy(buf[1:1+MaxUserKeySize], k.UserKey)
	off := 1 + MaxUserKeySize
	binary.LittleEndian.PutUint32(buf[off:], k.LPN)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], k.Offset)
	off += 4
	off += reservedSize // reserved bytes stay zero
	tag := (k.Seq << 8) | uint64(k.Type)
	binary.LittleEndian.PutUint64(buf[off:], tag)
	return buf
}

// EncodeSlice is Encode returning a freshly allocated slice, for callers
// that need a []byte (map keys, io.Writer targets).
func (k InternalKey) EncodeSlice() []byte {
	b := k.Encode()
	return b[:]
}

// Decode parses a 64-byte buffer into an InternalKey. A buffer whose length
// is not exactly EncodedSize is a malformed-key error; callers must not
// insert such keys downstream (spec §4.1).
func Decode(buf []byte) (InternalKey, status.Status) {
	if len(buf) != EncodedSize {
		return InternalKey{}, status.Corruption(fmt.Sprintf("malformed internal key: length %d != %d", len(buf), EncodedSize))
	}
	keySize := int(buf[0])
	if keySize > MaxUserKeySize {
		return InternalKey{}, status.Corruption(fmt.Sprintf("malformed internal key: key size %d > %d", keySize, MaxUserKeySize))
	}
	userKey := append([]byte(nil), buf[1:1+keySize]...)
	off := 1 + MaxUserKeySize
	lpn := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	offset := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	off += reservedSize
	tag := binary.LittleEndian.Uint64(buf[off:])
	return InternalKey{
		UserKey: userKey,
		LPN:     lpn,
		Offset:  offset,
		Seq:     tag >> 8,
		Type:    ValueType(tag & 0xFF),
	}, status.OK()
}

// Compare implements the composite comparator (spec §3): user-key bytewise
// ascending; on tie, shorter key first; on tie, higher seq first (newer
// wins); on tie, lower type first (TypeDeletion < TypeValue, so tombstones
// sort before puts at equal seq). Returns <0, 0, >0 like bytes.Compare.
func Compare(a, b InternalKey) int {
	n := len(a.UserKey)
	if len(b.UserKey) < n {
		n = len(b.UserKey)
	}
	if c := bytes.Compare(a.UserKey[:n], b.UserKey[:n]); c != 0 {
		return c
	}
	if len(a.UserKey) != len(b.UserKey) {
		if len(a.UserKey) < len(b.UserKey) {
			return -1
		}
		return 1
	}
	if a.Seq != b.Seq {
		if a.Seq > b.Seq {
			return -1
		}
		return 1
	}
	if a.Type != b.Type {
		if a.Type < b.Type {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports whether a sorts strictly before b under Compare.
func Less(a, b InternalKey) bool { return Compare(a, b) < 0 }

// CompareEncoded compares two already-encoded 64-byte keys without
// decoding, used by components (SSTable iterator, level tree) that operate
// directly on the wire form.
func CompareEncoded(a, b []byte) int {
	ka, _ := Decode(a)
	kb, _ := Decode(b)
	return Compare(ka, kb)
}

// SetCompare is the set-comparator variant (spec §3): user-key only,
// ignoring seq/type. Used for hashing and user-key dedup.
func SetCompare(a, b InternalKey) int {
	n := len(a.UserKey)
	if len(b.UserKey) < n {
		n = len(b.UserKey)
	}
	if c := bytes.Compare(a.UserKey[:n], b.UserKey[:n]); c != 0 {
		return c
	}
	if len(a.UserKey) != len(b.UserKey) {
		if len(a.UserKey) < len(b.UserKey) {
			return -1
		}
		return 1
	}
	return 0
}

// FNV1a64 hashes an encoded internal key with the 64-bit FNV-1a constants
// pinned by the original engine (offset basis 14695981039346656037, prime
// 1099511628211), used by hash packing and the memtable's bucket-fullness
// test (spec §4.2, §4.4).
func FNV1a64(encoded []byte) uint64 {
	const offsetBasis = 14695981039346656037
	const prime = 1099511628211
	hash := uint64(offsetBasis)
	for _, b := range encoded {
		hash ^= uint64(b)
		hash *= prime
	}
	return hash
}

// HashModN hashes the key's encoding with FNV1a64 and reduces mod n,
// matching memtable.cc's HashModN used both for bucket assignment in hash
// packing and for the memtable's per-bucket fullness counters.
func HashModN(k InternalKey, n int) int {
	enc := k.Encode()
	return int(FNV1a64(enc[:]) % uint64(n))
}
