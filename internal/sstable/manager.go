package sstable

import (
	"sync/atomic"

	"github.com/nvmekv/ssdlsm/internal/bufpool"
	"github.com/nvmekv/ssdlsm/internal/driver"
	"github.com/nvmekv/ssdlsm/internal/ikey"
	"github.com/nvmekv/ssdlsm/internal/status"
)

// Info identifies one packed SSTable: its file name, the level it targets,
// and the inclusive key range spanned by its contents (spec §4.4,
// §6 DB_INIT tree entries).
type Info struct {
	FileName string
	Level    uint8
	MinKey   ikey.InternalKey
	MaxKey   ikey.InternalKey
}

// Manager packs sorted keys into blocks, writes them through the driver's
// SSTable interface under a monotonic file-name sequence, and reads them
// back. Grounded on the original engine's SstableManager, narrowed to the
// packing/write/read/erase responsibilities; the background scheduling
// that originally lived here is the pool package's job instead.
type Manager struct {
	drv      driver.Driver
	strategy PackingType
	seq      atomic.Uint32
}

// NewManager creates a manager over drv using the configured strategy.
func NewManager(drv driver.Driver, strategy PackingType) *Manager {
	return &Manager{drv: drv, strategy: strategy}
}

// SetSequence installs the next file-name sequence to hand out, used when
// restoring from DB_INIT on Open.
func (m *Manager) SetSequence(seq uint32) { m.seq.Store(seq) }

// Sequence returns the next file-name sequence that will be handed out.
func (m *Manager) Sequence() uint32 { return m.seq.Load() }

// nextFileName allocates and formats the next monotonic file name.
func (m *Manager) nextFileName() string {
	seq := m.seq.Add(1) - 1
	return driver.FormatFileName(seq)
}

// PackAndWrite packs sortedKeys (ascending composite order, each
// ikey.EncodedSize bytes) into a block with the manager's strategy, then
// writes it to the driver under a freshly allocated file name, returning
// the resulting Info (spec §4.4, §4.9 flush path).
func (m *Manager) PackAndWrite(level uint8, sortedKeys [][]byte) (Info, status.Status) {
	if len(sortedKeys) == 0 {
		return Info{}, status.InvalidArgument("sstable: cannot pack an empty key set")
	}
	block, st := Pack(m.strategy, sortedKeys)
	if !st.Ok() {
		return Info{}, st
	}
	minKey, st := ikey.Decode(sortedKeys[0])
	if !st.Ok() {
		return Info{}, st
	}
	maxKey, st := ikey.Decode(sortedKeys[len(sortedKeys)-1])
	if !st.Ok() {
		return Info{}, st
	}
	fileName := m.nextFileName()
	if err := m.drv.WriteSSTable(fileName, block); err != nil {
		return Info{}, status.IOError(err.Error())
	}
	if mf, ok := m.drv.(interface{ SetSSKeyRange(string, []byte) }); ok {
		page := keyRangePage(sortedKeys)
		mf.SetSSKeyRange(fileName, page)
		bufpool.Default().Put(page)
	}
	return Info{FileName: fileName, Level: level, MinKey: minKey, MaxKey: maxKey}, status.OK()
}

// keyRangePage builds the 4 KiB packed-key-range page the driver caches
// per file (spec §6 read_ssKeyRange): the encoded min and max key
// back-to-back, zero padded. The caller must copy it (as SetSSKeyRange's
// implementations do) before returning it to the pool.
func keyRangePage(sortedKeys [][]byte) []byte {
	page := bufpool.Default().GetSized(driver.PageSize)
	copy(page[0:ikey.EncodedSize], sortedKeys[0])
	copy(page[ikey.EncodedSize:2*ikey.EncodedSize], sortedKeys[len(sortedKeys)-1])
	return page
}

// Read loads fileName's full 2 MiB block from the driver.
func (m *Manager) Read(fileName string) ([]byte, status.Status) {
	block := make([]byte, driver.BlockSize)
	if err := m.drv.ReadSSTable(fileName, block); err != nil {
		return nil, status.IOError(err.Error())
	}
	return block, status.OK()
}

// OpenIterator reads fileName and returns a positioned Iterator over it.
func (m *Manager) OpenIterator(fileName string, log ValueReader) (*Iterator, status.Status) {
	block, st := m.Read(fileName)
	if !st.Ok() {
		return nil, st
	}
	return NewIterator(fileName, m.strategy, block, log)
}

// Erase removes fileName from the driver (spec §4.7 compaction cleanup).
func (m *Manager) Erase(fileName string) status.Status {
	if err := m.drv.EraseSSTable(fileName); err != nil {
		return status.IOError(err.Error())
	}
	return status.OK()
}
