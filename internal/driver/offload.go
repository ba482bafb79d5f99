package driver

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// SearchPattern selects the search-offload request shape (spec §6),
// chosen at build time (SEARCH_PATTERN).
type SearchPattern int

const (
	// SearchPatternDescriptor emits {search_key, [{file_name, slot_index}]}.
	SearchPatternDescriptor SearchPattern = iota
	// SearchPatternHash emits {search_key, [{file_name, pattern_page}]}
	// with the key placed at slot_index*SLOT_SIZE in a 0xFF-initialized page.
	SearchPatternHash
)

// PatternEntry is one per-file element of a search-offload request.
type PatternEntry struct {
	FileName  string
	SlotIndex uint32
	// Pattern is populated only for SearchPatternHash: a 4 KiB page,
	// initialized to 0xFF, with the encoded key placed at
	// SlotIndex*SLOT_SIZE.
	Pattern []byte
}

// SearchRequest is the search-offload request shipped to the driver's
// metadata channel (spec §6). CorrelationID lets the device's async
// response be matched back to the request that produced it, since the
// metadata channel is a side channel distinct from the synchronous
// read/write page interface.
type SearchRequest struct {
	CorrelationID uuid.UUID
	SearchKey     []byte
	Patterns      []PatternEntry
}

// NewSearchRequest builds a request with a fresh correlation id.
func NewSearchRequest(searchKey []byte, patterns []PatternEntry) SearchRequest {
	return SearchRequest{CorrelationID: uuid.New(), SearchKey: searchKey, Patterns: patterns}
}

// EncodeDescriptor serializes a descriptor-form request: {search_key,
// num_patterns, [{file_name[35], slot_index u32}]}, prefixed by the
// correlation id so a reply can be matched to this request.
func (r SearchRequest) EncodeDescriptor() []byte {
	buf := make([]byte, 0, 16+4+len(r.SearchKey)+4+len(r.Patterns)*(FileNameWidth+4))
	idBytes, _ := r.CorrelationID.MarshalBinary()
	buf = append(buf, idBytes...)
	buf = appendUint32Prefixed(buf, r.SearchKey)
	buf = appendUint32(buf, uint32(len(r.Patterns)))
	for _, p := range r.Patterns {
		name := make([]byte, FileNameWidth)
		copy(name, p.FileName)
		buf = append(buf, name...)
		buf = appendUint32(buf, p.SlotIndex)
	}
	return buf
}

// EncodeHash serializes a hash-form request: {search_key, num_patterns,
// [{file_name[35], 4 KiB pattern page}]}.
func (r SearchRequest) EncodeHash() []byte {
	buf := make([]byte, 0, 16+4+len(r.SearchKey)+4+len(r.Patterns)*(FileNameWidth+PageSize))
	idBytes, _ := r.CorrelationID.MarshalBinary()
	buf = append(buf, idBytes...)
	buf = appendUint32Prefixed(buf, r.SearchKey)
	buf = appendUint32(buf, uint32(len(r.Patterns)))
	for _, p := range r.Patterns {
		name := make([]byte, FileNameWidth)
		copy(name, p.FileName)
		buf = append(buf, name...)
		page := make([]byte, PageSize)
		for i := range page {
			page[i] = 0xFF
		}
		copy(page, p.Pattern)
		buf = append(buf, page...)
	}
	return buf
}

// BuildPatternPage initializes a 4 KiB page to 0xFF and places the encoded
// key at slotIndex*SLOT_SIZE, per spec §6's hash-form construction.
func BuildPatternPage(encodedKey []byte, slotIndex uint32) []byte {
	page := make([]byte, PageSize)
	for i := range page {
		page[i] = 0xFF
	}
	copy(page[int(slotIndex)*SlotSize:], encodedKey)
	return page
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint32Prefixed(buf, data []byte) []byte {
	buf = appendUint32(buf, uint32(len(data)))
	return append(buf, data...)
}
