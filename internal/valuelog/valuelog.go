// Package valuelog implements the append-only value log (spec §4.3): a
// monotonically growing log of fixed 2 MiB blocks, page-buffered writes,
// cross-page/cross-block reads, and block-granular garbage collection.
package valuelog

import (
	"sync"

	"github.com/nvmekv/ssdlsm/internal/bufpool"
	"github.com/nvmekv/ssdlsm/internal/driver"
	"github.com/nvmekv/ssdlsm/internal/ikey"
	"github.com/nvmekv/ssdlsm/internal/logging"
	"github.com/nvmekv/ssdlsm/internal/status"
)

// Index is the live key index the log manager consults during GC to tell
// whether a record is still the current version of its user key (spec
// §4.3). db.DB implements this.
type Index interface {
	// CurrentPointer returns the value-log location the index currently
	// has on file for userKey, or ok=false if the key is absent.
	CurrentPointer(userKey []byte) (lpn, offset uint32, valueSize int, ok bool)
}

// GCWriter re-inserts a still-live record during GC without recursing
// back into GC (spec §4.3 "put_from_gc", identical to put except it must
// not recurse).
type GCWriter interface {
	PutFromGC(rec ikey.Record) status.Status
}

// Manager is the value log manager (spec §4.3).
type Manager struct {
	mu sync.Mutex

	drv driver.Driver
	log *logging.Logger

	blockList        []uint32 // logRecordBlock_: oldest first
	nextLBN          uint32
	currentLBN       uint32
	pageOffset       uint32
	byteOffset       uint32
	firstBlockOffset uint32
	buffer           []byte // page buffer, always PageSize long

	gcThreshold int
	gcBlockNum  int

	index Index
	gcw   GCWriter
}

// New creates a value log manager over drv. gcThreshold/gcBlockNum are
// LOG_GC_THRESHOLD/GC_BLOCK_NUM (spec §6).
func New(drv driver.Driver, log *logging.Logger, gcThreshold, gcBlockNum int) *Manager {
	return &Manager{
		drv:         drv,
		log:         log,
		buffer:      make([]byte, 0, driver.PageSize),
		gcThreshold: gcThreshold,
		gcBlockNum:  gcBlockNum,
		nextLBN:     1,
	}
}

// SetIndex wires the live index GC consults for liveness checks.
func (m *Manager) SetIndex(idx Index) { m.index = idx }

// SetGCWriter wires the put_from_gc path GC uses to rewrite live records.
func (m *Manager) SetGCWriter(w GCWriter) { m.gcw = w }

// CurrentPointer atomically returns the (lpn, offset) at which the next
// Write call will place its record, so a caller can insert a memtable
// entry whose pointer matches the record's actual on-log location (spec
// §4.3 "obtained atomically by any caller before it inserts a record").
// Callers must hold the engine-wide write serialization (the API mutex);
// this method additionally takes the log manager's own lock for safety
// against concurrent GC.
func (m *Manager) CurrentPointer() (lpn, offset uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return driver.LBN2LPN(m.currentLBN) + m.pageOffset, m.byteOffset
}

// Write appends the encoded record to the page buffer, flushing to the
// device whenever the buffer fills (spec §4.3).
func (m *Manager) Write(rec ikey.Record) status.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeLocked(rec)
}

func (m *Manager) writeLocked(rec ikey.Record) status.Status {
	encoded := rec.Encode()
	copied := 0
	total := len(encoded)
	for copied < total {
		if int(m.byteOffset) == driver.PageSize {
			if st := m.flushBufferLocked(); !st.Ok() {
				return st
			}
		}
		space := driver.PageSize - int(m.byteOffset)
		n := total - copied
		if n > space {
			n = space
		}
		m.buffer = append(m.buffer, encoded[copied:copied+n]...)
		m.byteOffset += uint32(n)
		copied += n
	}
	if int(m.byteOffset) == driver.PageSize {
		if st := m.flushBufferLocked(); !st.Ok() {
			return st
		}
	}
	return status.OK()
}

func (m *Manager) flushBufferLocked() status.Status {
	if m.byteOffset == 0 {
		return status.OK()
	}
	page := bufpool.Default().GetSized(driver.PageSize)
	defer bufpool.Default().Put(page)
	copy(page, m.buffer)

	lpn := driver.LBN2LPN(m.currentLBN) + m.pageOffset
	if err := m.drv.WriteLog(lpn, page); err != nil {
		return status.IOError(err.Error())
	}
	m.buffer = m.buffer[:0]
	m.byteOffset = 0

	m.pageOffset++
	if m.pageOffset >= driver.PagesPerBlock {
		m.pageOffset = 0
		if st := m.allocateBlockLocked(); !st.Ok() {
			return st
		}
	}
	return status.OK()
}

func (m *Manager) allocateBlockLocked() status.Status {
	lbn, err := m.drv.AllocateLBN()
	if err != nil {
		return status.IOError(err.Error())
	}
	m.blockList = append(m.blockList, lbn)
	m.currentLBN = m.nextLBN
	m.nextLBN = lbn
	return status.OK()
}

// currentTailLPN is the LPN the page buffer currently represents.
func (m *Manager) currentTailLPN() uint32 {
	return driver.LBN2LPN(m.currentLBN) + m.pageOffset
}

func (m *Manager) findNextLPN(lpn uint32) (uint32, status.Status) {
	lbn := driver.LPN2LBN(lpn)
	pageOffset := lpn - driver.LBN2LPN(lbn)
	if int(pageOffset)+1 >= driver.PagesPerBlock {
		idx := -1
		for i, b := range m.blockList {
			if b == lbn {
				idx = i
				break
			}
		}
		if idx == -1 || idx+1 >= len(m.blockList) {
			return 0, status.IOError("no next block after current block")
		}
		return driver.LBN2LPN(m.blockList[idx+1]), status.OK()
	}
	return lpn + 1, status.OK()
}

// Read reads the record located at (lpn, offset), possibly crossing a page
// boundary, reading from the in-memory tail buffer when the requested
// page is the current tail page (spec §4.3).
func (m *Manager) Read(lpn, offset uint32) (ikey.Record, status.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readLocked(lpn, offset)
}

// readPage pulls a scratch page from the pool and fills it via ReadLog.
// Callers must return it with bufpool.Default().Put once they've copied
// out whatever bytes they need.
func (m *Manager) readPage(lpn uint32) ([]byte, status.Status) {
	page := bufpool.Default().GetSized(driver.PageSize)
	if err := m.drv.ReadLog(lpn, page); err != nil {
		return nil, status.IOError(err.Error())
	}
	return page, status.OK()
}

func (m *Manager) readLocked(lpn, offset uint32) (ikey.Record, status.Status) {
	const headerSize = ikey.HeaderSize
	var result []byte
	curLPN := lpn
	curOffset := offset

	if lpn == m.currentTailLPN() {
		if int(offset)+headerSize > len(m.buffer) {
			return ikey.Record{}, status.Corruption("value log: header read past tail buffer")
		}
		result = append(result, m.buffer[offset:int(offset)+headerSize]...)
		curOffset = offset + headerSize
	} else {
		page, st := m.readPage(curLPN)
		if !st.Ok() {
			return ikey.Record{}, st
		}
		firstPageByte := driver.PageSize - int(offset)
		if firstPageByte >= headerSize {
			result = append(result, page[offset:int(offset)+headerSize]...)
			curOffset = offset + headerSize
		} else {
			result = append(result, page[offset:]...)
			next, st := m.findNextLPN(curLPN)
			if !st.Ok() {
				return ikey.Record{}, st
			}
			curLPN = next
			remaining := headerSize - firstPageByte
			if curLPN == m.currentTailLPN() {
				if remaining > len(m.buffer) {
					return ikey.Record{}, status.Corruption("value log: straddling header past tail buffer")
				}
				result = append(result, m.buffer[:remaining]...)
			} else {
				nextPage, st := m.readPage(curLPN)
				if !st.Ok() {
					return ikey.Record{}, st
				}
				result = append(result, nextPage[:remaining]...)
				bufpool.Default().Put(nextPage)
			}
			curOffset = uint32(remaining)
		}
		bufpool.Default().Put(page)
	}

	keySize, valSize, st := ikey.PeekHeader(result)
	if !st.Ok() {
		return ikey.Record{}, st
	}
	if keySize != ikey.EncodedSize {
		return ikey.Record{}, status.Corruption("corrupted record: internal_key_size != 64")
	}
	blobSize := int(keySize) + int(valSize)
	copied := 0
	for copied < blobSize {
		if int(curOffset) == driver.PageSize && curLPN != m.currentTailLPN() {
			next, st := m.findNextLPN(curLPN)
			if !st.Ok() {
				return ikey.Record{}, st
			}
			curLPN = next
			curOffset = 0
		}
		var src []byte
		pooled := false
		if curLPN == m.currentTailLPN() {
			src = m.buffer
		} else {
			page, st := m.readPage(curLPN)
			if !st.Ok() {
				return ikey.Record{}, st
			}
			src = page
			pooled = true
		}
		room := driver.PageSize - int(curOffset)
		n := blobSize - copied
		if n > room {
			n = room
		}
		if int(curOffset)+n > len(src) {
			return ikey.Record{}, status.Corruption("value log: read past buffer")
		}
		result = append(result, src[curOffset:int(curOffset)+n]...)
		if pooled {
			bufpool.Default().Put(src)
		}
		curOffset += uint32(n)
		copied += n
	}

	return ikey.DecodeRecord(result)
}

// ReadBlock scans a single 2 MiB block starting at startOffset, parsing
// consecutive records; a record straddling the block boundary is
// completed via Read on the next block's first page. On return,
// nextValidOffset is the number of bytes of the straddling record lying
// in the next block (0 if none). Any decode violation returns an empty
// slice and nextValidOffset = math.MaxUint32 (spec §4.3).
func (m *Manager) ReadBlock(lbn uint32, startOffset uint32) ([]ikey.Record, uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readBlockLocked(lbn, startOffset)
}

const invalidOffset = ^uint32(0)

func (m *Manager) readBlockLocked(lbn uint32, startOffset uint32) ([]ikey.Record, uint32) {
	if startOffset >= driver.BlockSize {
		return nil, invalidOffset
	}
	block := make([]byte, driver.BlockSize)
	if err := m.drv.ReadBlock(lbn, block); err != nil {
		return nil, invalidOffset
	}

	var results []ikey.Record
	curOffset := int(startOffset)
	const headerSize = ikey.HeaderSize
	for curOffset+headerSize <= driver.BlockSize {
		keySize, valSize, st := ikey.PeekHeader(block[curOffset:])
		if !st.Ok() || keySize != ikey.EncodedSize {
			return results, invalidOffset
		}
		recSize := headerSize + int(keySize) + int(valSize)
		if curOffset+recSize > driver.BlockSize {
			break
		}
		rec, st := ikey.DecodeRecord(block[curOffset : curOffset+recSize])
		if !st.Ok() {
			return results, invalidOffset
		}
		results = append(results, rec)
		curOffset += recSize
	}

	remainder := driver.BlockSize - curOffset
	baseLPN := driver.LBN2LPN(lbn)
	curLPN := baseLPN + uint32(curOffset/driver.PageSize)
	curOffsetInLPN := uint32(curOffset % driver.PageSize)

	if remainder == 0 {
		return results, 0
	}

	rec, st := m.readLocked(curLPN, curOffsetInLPN)
	if !st.Ok() {
		return results, invalidOffset
	}
	results = append(results, rec)
	recSize := ikey.HeaderSize + ikey.EncodedSize + len(rec.Value)
	if recSize < remainder {
		return results, invalidOffset
	}
	return results, uint32(recSize - remainder)
}

// BlockCount returns the number of blocks currently tracked (candidates
// for GC).
func (m *Manager) BlockCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blockList)
}

// FirstBlockOffset returns the carried-over straddle offset for the
// oldest block.
func (m *Manager) FirstBlockOffset() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.firstBlockOffset
}

// Flush forces the page buffer to the device even if it is not full,
// used by Close (spec §4.9).
func (m *Manager) Flush() status.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushBufferLocked()
}

// Snapshot captures the manager's persisted state for DB_INIT.
func (m *Manager) Snapshot() (nextLBN, currentLBN, pageOffset, byteOffset, firstBlockOffset uint32, blocks []uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextLBN, m.currentLBN, m.pageOffset, m.byteOffset, m.firstBlockOffset, append([]uint32(nil), m.blockList...)
}

// Restore installs state decoded from DB_INIT on Open.
func (m *Manager) Restore(nextLBN, currentLBN, pageOffset, byteOffset, firstBlockOffset uint32, blocks []uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextLBN = nextLBN
	m.currentLBN = currentLBN
	m.pageOffset = pageOffset
	m.byteOffset = byteOffset
	m.firstBlockOffset = firstBlockOffset
	m.blockList = append([]uint32(nil), blocks...)
	m.buffer = m.buffer[:0]
}

// ShouldRunGC reports whether the block list has grown past the GC
// trigger threshold (spec §4.3).
func (m *Manager) ShouldRunGC() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blockList) >= m.gcThreshold
}

// RunGC reclaims up to gcBlockNum of the oldest blocks: for each, it scans
// every record via ReadBlock, skips tombstones outright, consults Index to
// decide whether a record is still the current version of its user key
// (same lpn/offset/value size as what the index has on file), and rewrites
// still-live records via GCWriter.PutFromGC before dropping the block from
// the tracked list and carrying the straddle offset forward into the next
// oldest block (spec §4.3). SetIndex/SetGCWriter must be called before
// this runs. A malformed block aborts the whole pass rather than risking
// data loss, matching the original engine's "abort this GC cycle."
func (m *Manager) RunGC() status.Status {
	for i := 0; i < m.gcBlockNum; i++ {
		done, st := m.reclaimOneBlock()
		if !st.Ok() {
			return st
		}
		if done {
			break
		}
	}
	return status.OK()
}

// reclaimOneBlock reclaims the single oldest block, returning done=true if
// there was nothing left to reclaim.
func (m *Manager) reclaimOneBlock() (done bool, st status.Status) {
	m.mu.Lock()
	if len(m.blockList) == 0 {
		m.mu.Unlock()
		return true, status.OK()
	}
	lbn := m.blockList[0]
	validOffset := m.firstBlockOffset
	m.mu.Unlock()

	if validOffset >= driver.BlockSize {
		return true, status.OK()
	}

	records, nextValidOffset := m.ReadBlock(lbn, validOffset)
	if nextValidOffset == invalidOffset {
		return true, status.IOError("value log: GC cross-block read failed, aborting cycle")
	}
	if nextValidOffset >= driver.BlockSize {
		return true, status.IOError("value log: GC got invalid straddle offset, aborting cycle")
	}
	if len(records) == 0 && nextValidOffset == 0 {
		return true, status.OK()
	}

	for _, rec := range records {
		if rec.Key.Type == ikey.TypeDeletion {
			continue
		}
		if m.index == nil {
			continue
		}
		curLPN, curOffset, curSize, ok := m.index.CurrentPointer(rec.Key.UserKey)
		if !ok {
			continue // deleted or superseded, no current entry at all
		}
		stillLive := curLPN == rec.Key.LPN && curOffset == rec.Key.Offset && curSize == len(rec.Value)
		if !stillLive {
			continue
		}
		if m.gcw != nil {
			_ = m.gcw.PutFromGC(rec) // best-effort, matching the original's log-and-continue
		}
	}

	m.mu.Lock()
	m.blockList = m.blockList[1:]
	m.firstBlockOffset = nextValidOffset
	m.mu.Unlock()
	return false, status.OK()
}
