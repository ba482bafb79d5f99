// Package db is the engine's top-level API (spec §4.9): Open/Close,
// Put/Delete/Get/Scan, and the memtable rotation, flush, compaction and
// GC triggering that wire every internal package together. Grounded on
// the original engine's db_api.{hh,cc} surface and the teacher's
// pkg/lsm/lsm.go for the RWMutex-guarded rotation state and the
// non-blocking trigger-channel pattern driving background work.
//
// Per REDESIGN FLAG #3, flush and compaction never run inline on the
// write path: a rotation only notifies a bus; dedicated worker
// goroutines submit the actual work to the background pool, so Put's
// observable latency never includes a flush or compaction.
package db

import (
	"bytes"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nvmekv/ssdlsm/internal/bus"
	"github.com/nvmekv/ssdlsm/internal/cache"
	"github.com/nvmekv/ssdlsm/internal/compaction"
	"github.com/nvmekv/ssdlsm/internal/driver"
	"github.com/nvmekv/ssdlsm/internal/ikey"
	"github.com/nvmekv/ssdlsm/internal/leveltree"
	"github.com/nvmekv/ssdlsm/internal/logging"
	"github.com/nvmekv/ssdlsm/internal/memtable"
	"github.com/nvmekv/ssdlsm/internal/metrics"
	"github.com/nvmekv/ssdlsm/internal/pool"
	"github.com/nvmekv/ssdlsm/internal/sstable"
	"github.com/nvmekv/ssdlsm/internal/status"
	"github.com/nvmekv/ssdlsm/internal/valuelog"
)

// DB is a single open instance of the key-value store over one driver.
// The write path (Put/Delete/PutFromGC) serializes through mu; reads take
// the shared lock and never block each other or a concurrent write for
// longer than a map/slice snapshot.
type DB struct {
	mu sync.RWMutex

	drv     driver.Driver
	opts    Options
	logger  *logging.Logger
	metrics *metrics.Registry

	memTable     *memtable.MemTable
	immutable    *memtable.MemTable
	pendingBytes int // bytes Put/Delete have added to memTable since its last rotation

	vlog   *valuelog.Manager
	sstMgr *sstable.Manager
	tree   *leveltree.Tree
	cache  *cache.ReadCache
	picker *compaction.Picker
	runner *compaction.Runner
	pool   *pool.Pool

	transport driver.SearchTransport

	flushBus   bus.Bus
	compactBus bus.Bus

	seq atomic.Uint64

	closed    bool
	stopCh    chan struct{}
	workersWG sync.WaitGroup
}

// Open restores a DB from drv's persisted DB_INIT state (or initializes a
// fresh one if drv.OpenDB returns no prior state) and starts its
// background flush/compaction workers (spec §4.9, §4.11).
func Open(drv driver.Driver, opts Options) (*DB, status.Status) {
	if err := opts.Validate(); err != nil {
		return nil, status.InvalidArgument(err.Error())
	}

	logger := logging.New(os.Stdout, logging.ParseLevel(opts.LogLevel))

	buf, err := drv.OpenDB()
	if err != nil {
		return nil, status.IOError(err.Error())
	}

	var init driver.DBInit
	if len(buf) > 0 {
		var st status.Status
		init, st = driver.DecodeDBInit(buf)
		if !st.Ok() {
			return nil, st
		}
	}

	tree, terr := leveltree.Restore(init.Tree)
	if terr != nil {
		return nil, status.FromError(terr)
	}

	vlog := valuelog.New(drv, logger, opts.GCThreshold, opts.GCBlockNum)
	if len(buf) > 0 {
		vlog.Restore(init.NextLBN, init.CurrentLBN, init.PageOffset, init.ByteOffset, init.FirstBlockOffset, init.LogBlocks)
	}

	sstMgr := sstable.NewManager(drv, opts.PackingStrategy)
	sstMgr.SetSequence(init.SstableSeq)

	readCache := cache.New(opts.ReadCacheCapacity)
	reg := metrics.Default()

	memTable := newMemTable(opts)
	runner := compaction.NewRunner(tree, sstMgr, sstMgr, vlog, opts.MaxOpenChildren, sstable.Capacity(opts.PackingStrategy), logger)
	picker := compaction.NewPicker(opts.Thresholds())
	workerPool := pool.New(opts.PoolWorkers)

	d := &DB{
		drv:        drv,
		opts:       opts,
		logger:     logger,
		metrics:    reg,
		memTable:   memTable,
		vlog:       vlog,
		sstMgr:     sstMgr,
		tree:       tree,
		cache:      readCache,
		picker:     picker,
		runner:     runner,
		pool:       workerPool,
		transport:  driver.NewSearchTransport(drv),
		flushBus:   bus.New(),
		compactBus: bus.New(),
		stopCh:     make(chan struct{}),
	}
	d.seq.Store(init.GlobalSeq)
	vlog.SetIndex(d)
	vlog.SetGCWriter(d)

	for lvl := uint8(0); int(lvl) <= tree.MaxLevel(); lvl++ {
		reg.LevelFileCount.WithLabelValues(strconv.Itoa(int(lvl))).Set(float64(tree.LevelCount(lvl)))
	}
	reg.LogBlockCount.Set(float64(vlog.BlockCount()))

	d.workersWG.Add(2)
	go d.flushWorker()
	go d.compactionWorker()

	d.logger.Info("db opened", logging.Uint64("global_seq", init.GlobalSeq), logging.Count(len(init.Tree)))
	return d, status.OK()
}

func newMemTable(opts Options) *memtable.MemTable {
	return memtable.New(memtable.PackingType(opts.PackingStrategy), driver.PagesPerBlock, driver.SlotsPerPage)
}

// Close quiesces the background pool, flushes any non-empty memtable and
// the value log's page buffer, persists DB_INIT, and clears the
// in-memory tree. The DB is not usable again after Close (spec §4.9,
// §4.11's open question #1: reopen, not reuse).
func (d *DB) Close() status.Status {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return status.NotSupported("db: already closed")
	}
	d.closed = true
	d.mu.Unlock()

	close(d.stopCh)
	d.workersWG.Wait()
	d.pool.WaitForAll()

	d.mu.Lock()
	st := d.flushGiven(d.memTable)
	if st.Ok() {
		d.memTable = newMemTable(d.opts)
		d.pendingBytes = 0
	}
	d.mu.Unlock()
	if !st.Ok() {
		return st
	}

	if st := d.vlog.Flush(); !st.Ok() {
		return st
	}

	d.pool.Shutdown()
	d.flushBus.Close()
	d.compactBus.Close()
	if err := d.transport.Close(); err != nil {
		d.logger.Warn("search transport close failed", logging.Error(err))
	}

	nextLBN, currentLBN, pageOffset, byteOffset, firstBlockOffset, blocks := d.vlog.Snapshot()
	init := driver.DBInit{
		NextLBN:          nextLBN,
		CurrentLBN:       currentLBN,
		PageOffset:       pageOffset,
		ByteOffset:       byteOffset,
		FirstBlockOffset: firstBlockOffset,
		GlobalSeq:        d.seq.Load(),
		SstableSeq:       d.sstMgr.Sequence(),
		LogBlocks:        blocks,
		Tree:             d.tree.Snapshot(),
	}
	if err := d.drv.CloseDB(init.Encode()); err != nil {
		return status.IOError(err.Error())
	}

	d.mu.Lock()
	d.tree = leveltree.New()
	d.mu.Unlock()

	d.logger.Info("db closed", logging.Uint64("global_seq", init.GlobalSeq))
	return status.OK()
}

// Put writes userKey=value with a fresh sequence number (spec §4.9).
func (d *DB) Put(userKey, value []byte) status.Status {
	start := time.Now()
	st := d.putInternal(userKey, value, ikey.TypeValue, true)
	if d.metrics != nil {
		d.metrics.PutsTotal.Inc()
		d.metrics.WriteDuration.Observe(time.Since(start).Seconds())
		if st.Ok() {
			d.metrics.BytesWritten.Add(float64(len(value)))
		}
	}
	return st
}

// Delete writes a tombstone for userKey (spec §4.9).
func (d *DB) Delete(userKey []byte) status.Status {
	start := time.Now()
	st := d.putInternal(userKey, nil, ikey.TypeDeletion, true)
	if d.metrics != nil {
		d.metrics.DeletesTotal.Inc()
		d.metrics.WriteDuration.Observe(time.Since(start).Seconds())
	}
	return st
}

// PutFromGC implements valuelog.GCWriter: it re-inserts a record GC found
// still live, through the same write path as Put/Delete, except it never
// triggers a nested GC pass (spec §4.3 "identical to put except it must
// not recurse into GC"). It deliberately does NOT preserve rec.Key.Seq:
// SSTables are immutable, so the stale copy of this record sitting in an
// on-disk file can never be edited in place. Only a strictly higher seq
// is guaranteed to supersede that stale copy under the composite
// comparator everywhere in the tree; compaction later folds the dead
// duplicate away via its own last-writer-wins rule.
func (d *DB) PutFromGC(rec ikey.Record) status.Status {
	st := d.putInternal(rec.Key.UserKey, rec.Value, rec.Key.Type, false)
	if d.metrics != nil && st.Ok() {
		d.metrics.GCRecordsRewritten.Inc()
	}
	return st
}

// putInternal is the single write path underlying Put, Delete, and
// PutFromGC: obtain the record's value-log pointer, assign it a fresh
// seq, append it to the log, insert it into the active memtable, and
// rotate to an immutable memtable if the active one just became full.
// allowGC gates whether a full value log may trigger an async GC pass —
// PutFromGC runs from inside a GC pass already, so it must not recurse.
func (d *DB) putInternal(userKey, value []byte, typ ikey.ValueType, allowGC bool) status.Status {
	if len(userKey) == 0 || len(userKey) > ikey.MaxUserKeySize {
		return status.InvalidArgument("db: user key must be 1..40 bytes")
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return status.NotSupported("db: closed")
	}

	lpn, offset := d.vlog.CurrentPointer()
	seq := d.seq.Add(1)
	key := ikey.New(userKey, lpn, offset, seq, typ)
	rec := ikey.NewRecord(key, value)

	if st := d.vlog.Write(rec); !st.Ok() {
		d.mu.Unlock()
		return st
	}
	d.memTable.Put(rec)
	d.pendingBytes += rec.EncodedSize()

	// Only rotate if no immutable memtable is already waiting on a flush:
	// the active memtable keeps absorbing writes past its nominal
	// fullness threshold rather than blocking the caller (spec §4.11
	// "background work runs on a pool, not inline with Put").
	rotated := d.immutable == nil && (d.memTable.IsFull() || d.pendingBytes >= d.opts.MemtableBytes)
	if rotated {
		d.immutable = d.memTable
		d.memTable = newMemTable(d.opts)
		d.pendingBytes = 0
	}
	if d.metrics != nil {
		d.metrics.MemtableBytes.Set(float64(d.pendingBytes))
	}
	d.mu.Unlock()

	if rotated {
		d.flushBus.Notify()
	}
	if allowGC && d.vlog.ShouldRunGC() {
		d.pool.Submit(d.runGC)
	}
	return status.OK()
}

// Get returns the current value for userKey, or a NotFound status if
// absent or tombstoned (spec §4.9).
func (d *DB) Get(userKey []byte) ([]byte, status.Status) {
	start := time.Now()
	rec, found, st := d.lookupLocked(userKey)
	if d.metrics != nil {
		d.metrics.ReadDuration.Observe(time.Since(start).Seconds())
	}
	if !st.Ok() {
		return nil, st
	}
	if !found || rec.Key.Type == ikey.TypeDeletion {
		if d.metrics != nil {
			d.metrics.GetsTotal.WithLabelValues("not_found").Inc()
		}
		return nil, status.NotFound("db: key not found")
	}
	if d.metrics != nil {
		d.metrics.GetsTotal.WithLabelValues("found").Inc()
	}
	return rec.Value, status.OK()
}

// CurrentPointer implements valuelog.Index: it answers whether rec is
// still the index's current version of its user key by running the same
// lookup Get uses (spec §4.3's GC liveness check; grounded on the
// original engine's GC loop calling its own get()).
func (d *DB) CurrentPointer(userKey []byte) (lpn, offset uint32, valueSize int, ok bool) {
	rec, found, st := d.lookupLocked(userKey)
	if !st.Ok() || !found || rec.Key.Type == ikey.TypeDeletion {
		return 0, 0, 0, false
	}
	return rec.Key.LPN, rec.Key.Offset, len(rec.Value), true
}

// pointBounds derives the exact [lower, upper) internal-key range that
// contains every possible record for userKey, regardless of seq/type:
// lower is the highest-sorting lookup sentinel for userKey (ikey.Compare
// ranks it before every real entry sharing that user key); upper appends
// a trailing zero byte, which — since the comparator ranks a strict
// prefix before any longer key sharing it — sorts after every entry
// whose user key is exactly userKey while still excluding any entry
// whose user key properly extends past it.
func (d *DB) pointBounds(userKey []byte) (lower, upper ikey.InternalKey) {
	lower = ikey.NewLookup(userKey)
	extended := append(append([]byte(nil), userKey...), 0x00)
	upper = ikey.InternalKey{UserKey: extended, Seq: (uint64(1) << 56) - 1, Type: ikey.TypeMax}
	return lower, upper
}

// lookupLocked is the shared point-lookup path for Get and
// CurrentPointer: memtable, then immutable memtable, then level 0..N in
// order, returning at the first level holding any match (a shallower
// level's data is always at least as fresh as a deeper one's).
func (d *DB) lookupLocked(userKey []byte) (ikey.Record, bool, status.Status) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ikey.Record{}, false, status.NotSupported("db: closed")
	}

	if rec, ok := d.memTable.GetRecord(userKey); ok {
		return rec, true, status.OK()
	}
	if d.immutable != nil {
		if rec, ok := d.immutable.GetRecord(userKey); ok {
			return rec, true, status.OK()
		}
	}

	lower, upper := d.pointBounds(userKey)
	for level := uint8(0); int(level) <= d.tree.MaxLevel(); level++ {
		files := d.tree.FilesOverlapping(level, lower, true, upper, true)
		if len(files) == 0 {
			continue
		}
		rec, found, st := d.bestInFiles(files, userKey, lower)
		if !st.Ok() {
			return ikey.Record{}, false, st
		}
		if found {
			return rec, true, status.OK()
		}
	}
	return ikey.Record{}, false, status.OK()
}

// bestInFiles finds the freshest matching entry for userKey across a set
// of candidate files at one level, consulting the read cache to skip a
// file outright when its cached key set proves it cannot hold userKey.
func (d *DB) bestInFiles(files []leveltree.FileMeta, userKey []byte, lower ikey.InternalKey) (ikey.Record, bool, status.Status) {
	var bestIt *sstable.Iterator
	var bestKey ikey.InternalKey

	for _, f := range files {
		it, st := d.sstMgr.OpenIterator(f.FileName, d.vlog)
		if !st.Ok() {
			return ikey.Record{}, false, st
		}
		set := d.fileKeySet(f.FileName, it)
		if _, present := set[string(userKey)]; !present {
			continue
		}
		it.Seek(lower)
		if !it.Valid() {
			continue
		}
		k := it.Key()
		if !bytes.Equal(k.UserKey, userKey) {
			continue
		}
		if bestIt == nil || ikey.Compare(k, bestKey) < 0 {
			bestIt = it
			bestKey = k
		}
	}
	if bestIt == nil {
		return ikey.Record{}, false, status.OK()
	}
	val, st := bestIt.ReadValue()
	if !st.Ok() {
		return ikey.Record{}, false, st
	}
	return ikey.Record{Key: bestKey, Value: val}, true, status.OK()
}

// fileKeySet returns the set of user keys fileName holds, consulting the
// bounded read cache first and populating it from a full scan on a miss
// (spec §4.10).
func (d *DB) fileKeySet(fileName string, it *sstable.Iterator) map[string]struct{} {
	if set, ok := d.cache.Get(fileName); ok {
		if d.metrics != nil {
			d.metrics.CacheHitsTotal.Inc()
		}
		return set
	}
	if d.metrics != nil {
		d.metrics.CacheMissTotal.Inc()
	}
	set := make(map[string]struct{}, it.Len())
	for it.SeekToFirst(); it.Valid(); it.Next() {
		set[string(it.Key().UserKey)] = struct{}{}
	}
	d.cache.Put(fileName, set)
	return set
}

// flushGiven packs mt into a Level-0 SSTable and installs it in the
// tree. Callers must hold mu. A failed pack/write leaves mt untouched so
// a later retry (the next flushOnce, or Close) can attempt it again
// (spec §4.9 "a failed flush keeps the immutable memtable alive").
func (d *DB) flushGiven(mt *memtable.MemTable) status.Status {
	if mt == nil || mt.IsEmpty() {
		return status.OK()
	}
	it := mt.NewIterator()
	keys := make([][]byte, 0, mt.Len())
	for it.SeekToFirst(); it.Valid(); it.Next() {
		enc := it.Key().Encode()
		keys = append(keys, append([]byte(nil), enc[:]...))
	}
	info, st := d.sstMgr.PackAndWrite(0, keys)
	if !st.Ok() {
		return st
	}
	d.tree.InsertFile(leveltree.FileMeta{FileName: info.FileName, Level: info.Level, MinKey: info.MinKey, MaxKey: info.MaxKey})
	if d.metrics != nil {
		d.metrics.FlushesTotal.Inc()
		d.metrics.LevelFileCount.WithLabelValues("0").Set(float64(d.tree.LevelCount(0)))
	}
	return status.OK()
}

func (d *DB) flushWorker() {
	defer d.workersWG.Done()
	for {
		select {
		case <-d.stopCh:
			return
		case <-d.flushBus.C():
			d.pool.Submit(d.flushOnce)
		}
	}
}

func (d *DB) flushOnce() {
	d.mu.Lock()
	mt := d.immutable
	d.mu.Unlock()
	if mt == nil {
		return
	}

	start := time.Now()
	d.mu.Lock()
	st := d.flushGiven(mt)
	d.mu.Unlock()
	if d.metrics != nil {
		d.metrics.FlushDuration.Observe(time.Since(start).Seconds())
	}
	if !st.Ok() {
		d.logger.Error("flush failed", logging.Error(st))
		return
	}

	d.mu.Lock()
	if d.immutable == mt {
		d.immutable = nil
	}
	d.mu.Unlock()
	d.compactBus.Notify()
}

func (d *DB) compactionWorker() {
	defer d.workersWG.Done()
	for {
		select {
		case <-d.stopCh:
			return
		case <-d.compactBus.C():
			d.pool.Submit(d.compactLoop)
		}
	}
}

// compactLoop drains every pending compaction the picker can find,
// advancing the per-level cursor after each successful run, stopping at
// the first failure or once no level exceeds its threshold (spec §4.7).
func (d *DB) compactLoop() {
	for {
		d.mu.RLock()
		closed := d.closed
		d.mu.RUnlock()
		if closed {
			return
		}

		plan, ok := d.picker.Pick(d.tree)
		if !ok {
			return
		}

		start := time.Now()
		st := d.runner.Run(plan)
		level := strconv.Itoa(int(plan.SrcLevel))
		if d.metrics != nil {
			d.metrics.CompactionDuration.WithLabelValues(level).Observe(time.Since(start).Seconds())
		}
		if !st.Ok() {
			d.logger.Error("compaction failed", logging.Error(st), logging.Int("src_level", int(plan.SrcLevel)))
			return
		}

		for _, f := range plan.SrcFiles {
			d.cache.Remove(f.FileName)
		}
		for _, f := range plan.DstFiles {
			d.cache.Remove(f.FileName)
		}
		if d.metrics != nil {
			d.metrics.CompactionsTotal.WithLabelValues(level).Inc()
			d.metrics.LevelFileCount.WithLabelValues(level).Set(float64(d.tree.LevelCount(plan.SrcLevel)))
			d.metrics.LevelFileCount.WithLabelValues(strconv.Itoa(int(plan.DstLevel))).Set(float64(d.tree.LevelCount(plan.DstLevel)))
		}

		var maxKey ikey.InternalKey
		for i, f := range plan.SrcFiles {
			if i == 0 || ikey.Compare(f.MaxKey, maxKey) > 0 {
				maxKey = f.MaxKey
			}
		}
		d.picker.Advance(plan.SrcLevel, maxKey)
	}
}

func (d *DB) runGC() {
	before := d.vlog.BlockCount()
	st := d.vlog.RunGC()
	after := d.vlog.BlockCount()
	if d.metrics != nil {
		d.metrics.GCRunsTotal.Inc()
		if before > after {
			d.metrics.GCBlocksReclaimed.Add(float64(before - after))
		}
		d.metrics.LogBlockCount.Set(float64(after))
	}
	if !st.Ok() {
		d.logger.Error("gc pass failed", logging.Error(st))
	}
}
