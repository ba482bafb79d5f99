package db

import (
	"bytes"

	"github.com/nvmekv/ssdlsm/internal/driver"
	"github.com/nvmekv/ssdlsm/internal/ikey"
	"github.com/nvmekv/ssdlsm/internal/sstable"
	"github.com/nvmekv/ssdlsm/internal/status"
)

// BuildSearchRequest assembles the search-offload request (spec §6) a
// host can ship to the device instead of resolving userKey locally: one
// pattern entry per SSTable file that could hold the key, across every
// level, with the slot index chosen per the packing strategy's own
// layout rule so the device's in-memory search lands on the right slot.
func (d *DB) BuildSearchRequest(userKey []byte) (driver.SearchRequest, status.Status) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return driver.SearchRequest{}, status.NotSupported("db: closed")
	}

	lower, upper := d.pointBounds(userKey)
	var entries []driver.PatternEntry
	for level := 0; level <= d.tree.MaxLevel(); level++ {
		files := d.tree.FilesOverlapping(uint8(level), lower, true, upper, true)
		for _, f := range files {
			slot, st := d.slotIndexForFile(f.FileName, userKey)
			if !st.Ok() {
				return driver.SearchRequest{}, st
			}
			entry := driver.PatternEntry{FileName: f.FileName, SlotIndex: uint32(slot)}
			if d.opts.SearchPattern == driver.SearchPatternHash {
				entry.Pattern = driver.BuildPatternPage(encodedSearchKey(userKey), uint32(slot))
			}
			entries = append(entries, entry)
		}
	}
	return driver.NewSearchRequest(userKey, entries), status.OK()
}

// SearchOffload builds the request for userKey and ships it over the
// configured SearchTransport, returning the device's raw reply. Decoding
// that reply is out of scope (spec.md treats the offload as an output
// format only); callers needing the value should use Get instead.
func (d *DB) SearchOffload(userKey []byte) ([]byte, status.Status) {
	req, st := d.BuildSearchRequest(userKey)
	if !st.Ok() {
		return nil, st
	}
	var encoded []byte
	if d.opts.SearchPattern == driver.SearchPatternHash {
		encoded = req.EncodeHash()
	} else {
		encoded = req.EncodeDescriptor()
	}
	if err := d.transport.Send(req, encoded); err != nil {
		return nil, status.IOError("db: search-offload send: " + err.Error())
	}
	reply, err := d.transport.Recv()
	if err != nil {
		return nil, status.IOError("db: search-offload recv: " + err.Error())
	}
	if d.metrics != nil {
		d.metrics.OffloadRequestsTotal.Inc()
	}
	return reply, status.OK()
}

// slotIndexForFile picks the slot userKey would occupy in fileName under
// the configured packing strategy: always 0 for per-page, the same
// FNV1a64 bucket the hash packer used, or userKey's predecessor position
// among the file's sorted keys for key-range.
func (d *DB) slotIndexForFile(fileName string, userKey []byte) (int, status.Status) {
	switch d.opts.PackingStrategy {
	case sstable.PackingKeyPerPage:
		return 0, status.OK()
	case sstable.PackingHash:
		return ikey.HashModN(ikey.NewLookup(userKey), driver.SlotsPerPage), status.OK()
	default: // PackingKeyRange
		return d.predecessorSlot(fileName, userKey)
	}
}

func (d *DB) predecessorSlot(fileName string, userKey []byte) (int, status.Status) {
	it, st := d.sstMgr.OpenIterator(fileName, d.vlog)
	if !st.Ok() {
		return 0, st
	}
	count := 0
	for it.SeekToFirst(); it.Valid(); it.Next() {
		if bytes.Compare(it.Key().UserKey, userKey) >= 0 {
			break
		}
		count++
	}
	return count, status.OK()
}

func encodedSearchKey(userKey []byte) []byte {
	enc := ikey.NewLookup(userKey).EncodeSlice()
	return enc
}
