// Package leveltree implements the level metadata tree (spec §4.6): file
// lookup, insertion and removal by level, and the Level-0/Level-N
// per-level iterators. Grounded on the original engine's LSMTree and
// level_iter.{hh,cc}, generalized to Go's container/heap and
// golang.org/x/exp/slices for the disjoint-level binary searches.
package leveltree

import (
	"sort"
	"sync"

	"github.com/nvmekv/ssdlsm/internal/driver"
	"github.com/nvmekv/ssdlsm/internal/ikey"
	"golang.org/x/exp/slices"
)

// FileMeta is one SSTable's tree entry: its name, level, and the
// inclusive key range it spans.
type FileMeta struct {
	FileName string
	Level    uint8
	MinKey   ikey.InternalKey
	MaxKey   ikey.InternalKey
	fileSeq  uint64 // parsed file-name sequence, used as the L0 tie-break
}

// Tree holds the LSM tree's file metadata, one slice per level. Level 0
// is append-ordered (oldest first, overlap permitted); levels >= 1 are
// kept sorted by MinKey (disjoint ranges), per spec §4.6.
type Tree struct {
	mu     sync.RWMutex
	levels [][]FileMeta // levels[0] is L0
}

// New creates an empty tree.
func New() *Tree {
	return &Tree{levels: make([][]FileMeta, 1)}
}

func (t *Tree) ensureLevel(level uint8) {
	for len(t.levels) <= int(level) {
		t.levels = append(t.levels, nil)
	}
}

// InsertFile adds meta to its level, keeping levels >= 1 sorted by
// MinKey (spec §4.6 "insertion of a file").
func (t *Tree) InsertFile(meta FileMeta) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureLevel(meta.Level)
	seq, _ := driver.ParseFileName(meta.FileName)
	meta.fileSeq = uint64(seq)
	lvl := int(meta.Level)
	if lvl == 0 {
		t.levels[0] = append(t.levels[0], meta)
		return
	}
	idx, _ := slices.BinarySearchFunc(t.levels[lvl], meta, func(a, b FileMeta) int {
		return ikey.Compare(a.MinKey, b.MinKey)
	})
	t.levels[lvl] = slices.Insert(t.levels[lvl], idx, meta)
}

// RemoveFile deletes the named file from level (spec §4.6 "removal of a
// file"), used after a compaction folds a source/destination file.
func (t *Tree) RemoveFile(level uint8, fileName string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(level) >= len(t.levels) {
		return false
	}
	files := t.levels[level]
	for i, f := range files {
		if f.FileName == fileName {
			t.levels[level] = append(files[:i:i], files[i+1:]...)
			return true
		}
	}
	return false
}

// FilesAtLevel returns a copy of level's file list.
func (t *Tree) FilesAtLevel(level uint8) []FileMeta {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(level) >= len(t.levels) {
		return nil
	}
	return append([]FileMeta(nil), t.levels[level]...)
}

// LevelCount returns the number of files currently tracked at level.
func (t *Tree) LevelCount(level uint8) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(level) >= len(t.levels) {
		return 0
	}
	return len(t.levels[level])
}

// MaxLevel returns the highest level that has ever held a file.
func (t *Tree) MaxLevel() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.levels) - 1
}

func overlaps(f FileMeta, lower, upper ikey.InternalKey, hasLower, hasUpper bool) bool {
	if hasUpper && ikey.Compare(f.MinKey, upper) >= 0 {
		return false
	}
	if hasLower && ikey.Compare(f.MaxKey, lower) < 0 {
		return false
	}
	return true
}

// FilesOverlapping returns every file at level whose range intersects
// [lower, upper). For L0 this scans every file (overlap permitted); for
// L>=1 it binary-searches the disjoint, MinKey-sorted slice.
func (t *Tree) FilesOverlapping(level uint8, lower ikey.InternalKey, hasLower bool, upper ikey.InternalKey, hasUpper bool) []FileMeta {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(level) >= len(t.levels) {
		return nil
	}
	files := t.levels[level]
	if level == 0 {
		var out []FileMeta
		for _, f := range files {
			if overlaps(f, lower, upper, hasLower, hasUpper) {
				out = append(out, f)
			}
		}
		return out
	}

	start := 0
	if hasLower {
		// first file whose MaxKey >= lower: since ranges are disjoint and
		// sorted by MinKey, scan forward from the lower_bound on MinKey.
		idx, found := slices.BinarySearchFunc(files, lower, func(f FileMeta, target ikey.InternalKey) int {
			return ikey.Compare(f.MinKey, target)
		})
		if !found && idx > 0 {
			idx--
		}
		start = idx
	}
	var out []FileMeta
	for i := start; i < len(files); i++ {
		f := files[i]
		if hasUpper && ikey.Compare(f.MinKey, upper) >= 0 {
			break
		}
		if overlaps(f, lower, upper, hasLower, hasUpper) {
			out = append(out, f)
		}
	}
	return out
}

// OldestL0File returns the L0 file with the smallest file-name sequence
// (spec §4.6 "oldest file at level 0"), used by compaction to pick the
// L0→L1 source file.
func (t *Tree) OldestL0File() (FileMeta, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	files := t.levels[0]
	if len(files) == 0 {
		return FileMeta{}, false
	}
	oldest := files[0]
	for _, f := range files[1:] {
		if f.fileSeq < oldest.fileSeq {
			oldest = f
		}
	}
	return oldest, true
}

// NextFileAfter returns the first file at level (>=1) whose MinKey is
// strictly greater than cursor, used to advance the per-level compaction
// cursor (spec §4.7 compaction_key_list).
func (t *Tree) NextFileAfter(level uint8, cursor ikey.InternalKey) (FileMeta, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(level) >= len(t.levels) {
		return FileMeta{}, false
	}
	files := t.levels[level]
	idx := sort.Search(len(files), func(i int) bool {
		return ikey.Compare(files[i].MinKey, cursor) > 0
	})
	if idx >= len(files) {
		return FileMeta{}, false
	}
	return files[idx], true
}

// Snapshot serializes the tree into DB_INIT tree-node records (spec §6).
func (t *Tree) Snapshot() []driver.TreeNodeRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []driver.TreeNodeRecord
	for _, lvl := range t.levels {
		for _, f := range lvl {
			out = append(out, driver.TreeNodeRecord{
				FileName: f.FileName,
				Level:    f.Level,
				RangeMin: f.MinKey.Encode(),
				RangeMax: f.MaxKey.Encode(),
			})
		}
	}
	return out
}

// Restore rebuilds the tree from DB_INIT tree-node records on Open.
func Restore(records []driver.TreeNodeRecord) (*Tree, error) {
	t := New()
	for _, r := range records {
		minKey, st := ikey.Decode(r.RangeMin[:])
		if !st.Ok() {
			return nil, st
		}
		maxKey, st := ikey.Decode(r.RangeMax[:])
		if !st.Ok() {
			return nil, st
		}
		t.InsertFile(FileMeta{FileName: r.FileName, Level: r.Level, MinKey: minKey, MaxKey: maxKey})
	}
	return t, nil
}
