package compaction

import (
	"bytes"

	"github.com/nvmekv/ssdlsm/internal/ikey"
	"github.com/nvmekv/ssdlsm/internal/leveltree"
	"github.com/nvmekv/ssdlsm/internal/logging"
	"github.com/nvmekv/ssdlsm/internal/sstable"
	"github.com/nvmekv/ssdlsm/internal/status"
)

// mergeSide is the capability both Level0Iterator and LevelNIterator
// expose, the minimal contract the two-way merge needs (spec §9's
// "capability set... avoid deep inheritance").
type mergeSide interface {
	Valid() bool
	Key() ikey.InternalKey
	Next()
	ReadValue() ([]byte, status.Status)
	Status() status.Status
}

// Runner performs the two-way merge compaction described in spec §4.7.
type Runner struct {
	tree    *leveltree.Tree
	sstMgr  *sstable.Manager
	opener  leveltree.TableOpener
	log     sstable.ValueReader
	maxOpen int
	logger  *logging.Logger

	fullness int // flush threshold in records, matching the packer's strategy
}

// NewRunner creates a compaction runner. fullness is how many pending
// records accumulate before one destination SSTable is flushed (the
// packer's capacity under the configured strategy).
func NewRunner(tree *leveltree.Tree, sstMgr *sstable.Manager, opener leveltree.TableOpener, log sstable.ValueReader, maxOpen, fullness int, logger *logging.Logger) *Runner {
	return &Runner{tree: tree, sstMgr: sstMgr, opener: opener, log: log, maxOpen: maxOpen, fullness: fullness, logger: logger}
}

// Run executes plan: builds the src iterator (L0 heap-merge if
// plan.SrcLevel == 0, else LN sequential over plan.SrcFiles), a dst
// iterator over plan.DstFiles, performs the two-way merge with
// last-writer-wins folding and tombstone propagation, and on success
// removes every superseded file and installs the freshly packed ones.
// Failures abort with no partial removal (spec §4.7).
func (r *Runner) Run(plan Plan) status.Status {
	src, st := r.openSrc(plan)
	if !st.Ok() {
		return st
	}
	dst := leveltree.NewLevelNIteratorFromFiles(plan.DstFiles, r.opener, r.log, r.maxOpen, ikey.InternalKey{}, false, ikey.InternalKey{}, false)

	var pending [][]byte
	var lastUserKey []byte
	haveLast := false
	var newFiles []sstable.Info

	flush := func() status.Status {
		if len(pending) == 0 {
			return status.OK()
		}
		info, st := r.sstMgr.PackAndWrite(plan.DstLevel, pending)
		if !st.Ok() {
			return st
		}
		newFiles = append(newFiles, info)
		pending = nil
		return status.OK()
	}

	emit := func(k ikey.InternalKey) status.Status {
		if haveLast && bytes.Equal(k.UserKey, lastUserKey) {
			return status.OK() // newer version already kept
		}
		lastUserKey = append([]byte(nil), k.UserKey...)
		haveLast = true
		enc := k.Encode()
		pending = append(pending, append([]byte(nil), enc[:]...))
		if len(pending) >= r.fullness {
			return flush()
		}
		return status.OK()
	}

	for src.Valid() || dst.Valid() {
		var pick mergeSide
		switch {
		case src.Valid() && dst.Valid():
			c := ikey.Compare(src.Key(), dst.Key())
			if c <= 0 {
				pick = src
			} else {
				pick = dst
			}
		case src.Valid():
			pick = src
		default:
			pick = dst
		}
		k := pick.Key()
		if st := emit(k); !st.Ok() {
			return st
		}
		pick.Next()
	}
	if st := src.Status(); !st.Ok() {
		return st
	}
	if st := dst.Status(); !st.Ok() {
		return st
	}
	if st := flush(); !st.Ok() {
		return st
	}

	for _, f := range plan.SrcFiles {
		r.tree.RemoveFile(plan.SrcLevel, f.FileName)
		r.sstMgr.Erase(f.FileName)
	}
	for _, f := range plan.DstFiles {
		r.tree.RemoveFile(plan.DstLevel, f.FileName)
		r.sstMgr.Erase(f.FileName)
	}
	for _, info := range newFiles {
		r.tree.InsertFile(leveltree.FileMeta{FileName: info.FileName, Level: info.Level, MinKey: info.MinKey, MaxKey: info.MaxKey})
	}

	if r.logger != nil {
		r.logger.Info("compaction complete",
			logging.Int("src_level", int(plan.SrcLevel)),
			logging.Int("dst_level", int(plan.DstLevel)),
			logging.Count(len(plan.SrcFiles)+len(plan.DstFiles)),
		)
	}
	return status.OK()
}

func (r *Runner) openSrc(plan Plan) (mergeSide, status.Status) {
	if plan.SrcLevel == 0 {
		it, st := leveltree.NewLevel0IteratorFromFiles(plan.SrcFiles, r.opener, r.log, ikey.InternalKey{}, false, ikey.InternalKey{}, false)
		return it, st
	}
	it := leveltree.NewLevelNIteratorFromFiles(plan.SrcFiles, r.opener, r.log, r.maxOpen, ikey.InternalKey{}, false, ikey.InternalKey{}, false)
	return it, status.OK()
}
