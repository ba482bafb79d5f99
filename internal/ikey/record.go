package ikey

import (
	"encoding/binary"

	"github.com/nvmekv/ssdlsm/internal/status"
)

// headerSize is the two fixed-size uint32 fields preceding every on-log
// record: internal_key_size then value_size (spec §3 "Record").
const headerSize = 8

// Record is what actually lives on the value log: the fixed-size internal
// key plus the variable-length value bytes. No per-record checksum
// (Non-goal).
type Record struct {
	Key   InternalKey
	Value []byte
}

// NewRecord builds a record from a key and value.
func NewRecord(key InternalKey, value []byte) Record {
	return Record{Key: key, Value: value}
}

// EncodedSize returns the number of bytes Encode will produce.
func (r Record) EncodedSize() int {
	return headerSize + EncodedSize + len(r.Value)
}

// Encode serializes the record: 4-byte internal_key_size (always 64),
// 4-byte value_size, the 64-byte internal key, then the value bytes.
func (r Record) Encode() []byte {
	buf := make([]byte, r.EncodedSize())
	binary.LittleEndian.PutUint32(buf[0:4], EncodedSize)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(r.Value)))
	keyBytes := r.Key.Encode()
	copy(buf[headerSize:headerSize+EncodedSize], keyBytes[:])
	copy(buf[headerSize+EncodedSize:], r.Value)
	return buf
}

// DecodeRecord parses a record from a buffer that starts exactly at its
// header. It is total only when the buffer is at least as long as the
// header claims; callers that read across page/block boundaries must
// assemble the buffer first (see valuelog).
func DecodeRecord(buf []byte) (Record, status.Status) {
	if len(buf) < headerSize {
		return Record{}, status.Corruption("record header truncated")
	}
	keySize := binary.LittleEndian.Uint32(buf[0:4])
	valSize := binary.LittleEndian.Uint32(buf[4:8])
	if keySize != EncodedSize {
		return Record{}, status.Corruption("corrupted record: internal_key_size != 64")
	}
	need := headerSize + int(keySize) + int(valSize)
	if len(buf) < need {
		return Record{}, status.Corruption("record body truncated")
	}
	key, st := Decode(buf[headerSize : headerSize+int(keySize)])
	if !st.Ok() {
		return Record{}, st
	}
	value := append([]byte(nil), buf[headerSize+int(keySize):need]...)
	return Record{Key: key, Value: value}, status.OK()
}

// PeekHeader decodes just the 8-byte header, returning the claimed key
// size and value size. Used by the value log to size a cross-page read
// before the rest of the record is available.
func PeekHeader(buf []byte) (keySize, valSize uint32, st status.Status) {
	if len(buf) < headerSize {
		return 0, 0, status.Corruption("record header truncated")
	}
	return binary.LittleEndian.Uint32(buf[0:4]), binary.LittleEndian.Uint32(buf[4:8]), status.OK()
}

// HeaderSize is exported for components (valuelog) that need to know how
// many bytes to read before they know a record's total length.
const HeaderSize = headerSize
