package db

// Stats is a point-in-time snapshot of the engine's internal state,
// grounded on the teacher's LSMStats (pkg/lsm/lsm.go), exposed for
// cmd/lsmd's admin endpoint and cmd/lsmtop's polling TUI.
type Stats struct {
	GlobalSeq        uint64
	MemtableRecords  int
	ImmutablePending bool
	LevelFileCounts  []int
	LogBlockCount    int
	CacheEntries     int
}

// Stats returns a snapshot of the DB's current state.
func (d *DB) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	counts := make([]int, d.tree.MaxLevel()+1)
	for lvl := range counts {
		counts[lvl] = d.tree.LevelCount(uint8(lvl))
	}
	return Stats{
		GlobalSeq:        d.seq.Load(),
		MemtableRecords:  d.memTable.Len(),
		ImmutablePending: d.immutable != nil,
		LevelFileCounts:  counts,
		LogBlockCount:    d.vlog.BlockCount(),
		CacheEntries:     d.cache.Len(),
	}
}
