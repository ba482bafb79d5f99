// Package compaction implements the compaction runner (spec §4.7): a
// two-way merge that folds a source level into the next, with
// last-writer-wins folding and tombstone propagation.
//
// Per REDESIGN FLAG #4, the picker and runner are expressed around an
// explicit Plan{SrcLevel, DstLevel, SrcFiles, DstFiles} value rather than
// letting the runner infer the destination level from the source level,
// which is what the original engine's inline "level+1" actually meant
// but never made into a reusable abstraction.
package compaction

import (
	"github.com/nvmekv/ssdlsm/internal/ikey"
	"github.com/nvmekv/ssdlsm/internal/leveltree"
)

// Thresholds holds the per-level file-count limits that trigger
// compaction (spec §4.7): LEVEL0_MAX=4, LEVEL1_MAX=10, and
// LEVEL_k_MAX = LEVEL_{k-1}_MAX * 10 for k >= 2.
type Thresholds struct {
	Level0Max int
	Level1Max int
}

// DefaultThresholds matches spec §4.7's stated constants.
func DefaultThresholds() Thresholds {
	return Thresholds{Level0Max: 4, Level1Max: 10}
}

// MaxAt returns LEVEL_k_MAX for level k.
func (t Thresholds) MaxAt(level uint8) int {
	if level == 0 {
		return t.Level0Max
	}
	max := t.Level1Max
	for k := uint8(1); k < level; k++ {
		max *= 10
	}
	return max
}

// Plan describes one compaction: fold SrcFiles (from SrcLevel) into
// DstLevel, merging against DstFiles.
type Plan struct {
	SrcLevel uint8
	DstLevel uint8
	SrcFiles []leveltree.FileMeta
	DstFiles []leveltree.FileMeta
}

// Picker decides which level needs compacting and builds its Plan,
// tracking the per-level cursor (compaction_key_list[k] in spec §4.7)
// used to pick the next Lk file once k >= 1.
type Picker struct {
	thresholds Thresholds
	cursors    map[uint8]ikey.InternalKey
	hasCursor  map[uint8]bool
}

// NewPicker creates a picker with no cursor history (a fresh DB, or one
// that was not recording cursors across restarts — spec is silent on
// persisting compaction_key_list, so it is rebuilt from scratch each
// open and simply starts unconditionally picking the oldest/first file
// at each level, which is always safe, only potentially less optimal).
func NewPicker(thresholds Thresholds) *Picker {
	return &Picker{thresholds: thresholds, cursors: make(map[uint8]ikey.InternalKey), hasCursor: make(map[uint8]bool)}
}

// Pick returns the highest-priority plan across all levels whose file
// count exceeds its threshold, or false if no level needs compaction.
func (p *Picker) Pick(tree *leveltree.Tree) (Plan, bool) {
	maxLevel := tree.MaxLevel()
	for level := uint8(0); int(level) <= maxLevel; level++ {
		if tree.LevelCount(level) <= p.thresholds.MaxAt(level) {
			continue
		}
		if plan, ok := p.planFor(tree, level); ok {
			return plan, true
		}
	}
	return Plan{}, false
}

func (p *Picker) planFor(tree *leveltree.Tree, level uint8) (Plan, bool) {
	dstLevel := level + 1
	if level == 0 {
		oldest, ok := tree.OldestL0File()
		if !ok {
			return Plan{}, false
		}
		srcFiles := tree.FilesOverlapping(0, oldest.MinKey, true, oldest.MaxKey, true)
		union := unionRange(srcFiles)
		dstFiles := tree.FilesOverlapping(dstLevel, union.min, true, union.max, true)
		return Plan{SrcLevel: 0, DstLevel: dstLevel, SrcFiles: srcFiles, DstFiles: dstFiles}, true
	}

	cursor, hasCursor := p.cursors[level], p.hasCursor[level]
	var next leveltree.FileMeta
	var ok bool
	if hasCursor {
		next, ok = tree.NextFileAfter(level, cursor)
	}
	if !ok {
		files := tree.FilesAtLevel(level)
		if len(files) == 0 {
			return Plan{}, false
		}
		next = files[0]
		ok = true
	}
	srcFiles := []leveltree.FileMeta{next}
	dstFiles := tree.FilesOverlapping(dstLevel, next.MinKey, true, next.MaxKey, true)
	return Plan{SrcLevel: level, DstLevel: dstLevel, SrcFiles: srcFiles, DstFiles: dstFiles}, true
}

// Advance moves the per-level cursor to the upper sentinel of the
// compacted source range, per spec §4.7 ("the per-level cursor is
// advanced to the upper sentinel of the src range").
func (p *Picker) Advance(level uint8, upper ikey.InternalKey) {
	p.cursors[level] = upper
	p.hasCursor[level] = true
}

type keyRange struct{ min, max ikey.InternalKey }

func unionRange(files []leveltree.FileMeta) keyRange {
	r := keyRange{min: files[0].MinKey, max: files[0].MaxKey}
	for _, f := range files[1:] {
		if ikey.Compare(f.MinKey, r.min) < 0 {
			r.min = f.MinKey
		}
		if ikey.Compare(f.MaxKey, r.max) > 0 {
			r.max = f.MaxKey
		}
	}
	return r
}
