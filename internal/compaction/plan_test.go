package compaction

import (
	"testing"

	"github.com/nvmekv/ssdlsm/internal/driver"
	"github.com/nvmekv/ssdlsm/internal/ikey"
	"github.com/nvmekv/ssdlsm/internal/leveltree"
)

func ik(userKey string) ikey.InternalKey {
	return ikey.New([]byte(userKey), 0, 0, 1, ikey.TypeValue)
}

func addFile(tree *leveltree.Tree, seq uint32, level uint8, minKey, maxKey string) {
	tree.InsertFile(leveltree.FileMeta{
		FileName: driver.FormatFileName(seq),
		Level:    level,
		MinKey:   ik(minKey),
		MaxKey:   ik(maxKey),
	})
}

func TestMaxAtDerivesHigherLevels(t *testing.T) {
	th := Thresholds{Level0Max: 4, Level1Max: 10}
	if th.MaxAt(0) != 4 {
		t.Errorf("expected LEVEL0_MAX 4, got %d", th.MaxAt(0))
	}
	if th.MaxAt(1) != 10 {
		t.Errorf("expected LEVEL1_MAX 10, got %d", th.MaxAt(1))
	}
	if th.MaxAt(2) != 100 {
		t.Errorf("expected LEVEL2_MAX 100 (10*10), got %d", th.MaxAt(2))
	}
	if th.MaxAt(3) != 1000 {
		t.Errorf("expected LEVEL3_MAX 1000, got %d", th.MaxAt(3))
	}
}

func TestPickReturnsFalseWhenNoLevelExceedsThreshold(t *testing.T) {
	tree := leveltree.New()
	addFile(tree, 1, 0, "a", "z")
	picker := NewPicker(Thresholds{Level0Max: 4, Level1Max: 10})

	if _, ok := picker.Pick(tree); ok {
		t.Error("expected no plan when every level is under its threshold")
	}
}

func TestPickL0PlansOldestFileAndOverlappingL1(t *testing.T) {
	tree := leveltree.New()
	addFile(tree, 1, 0, "a", "m")
	addFile(tree, 2, 0, "b", "n")
	addFile(tree, 3, 0, "c", "o")
	addFile(tree, 4, 0, "d", "p")
	addFile(tree, 5, 0, "e", "q") // 5 files, exceeds Level0Max=4
	addFile(tree, 10, 1, "a", "z")

	picker := NewPicker(Thresholds{Level0Max: 4, Level1Max: 10})
	plan, ok := picker.Pick(tree)
	if !ok {
		t.Fatal("expected a plan once L0 exceeds its threshold")
	}
	if plan.SrcLevel != 0 || plan.DstLevel != 1 {
		t.Errorf("expected L0 -> L1 plan, got src=%d dst=%d", plan.SrcLevel, plan.DstLevel)
	}
	if len(plan.SrcFiles) == 0 {
		t.Error("expected at least the oldest L0 file in SrcFiles")
	}
	// The oldest file (seq 1) must always be included.
	found := false
	for _, f := range plan.SrcFiles {
		if f.FileName == driver.FormatFileName(1) {
			found = true
		}
	}
	if !found {
		t.Error("expected SrcFiles to include the oldest L0 file")
	}
}

func TestPickLevelNUsesCursorAfterAdvance(t *testing.T) {
	tree := leveltree.New()
	for i := uint32(1); i <= 11; i++ {
		addFile(tree, i, 1, string(rune('a'+i)), string(rune('a'+i+1)))
	}
	picker := NewPicker(Thresholds{Level0Max: 4, Level1Max: 10})

	plan, ok := picker.Pick(tree)
	if !ok {
		t.Fatal("expected a plan once L1 exceeds its threshold")
	}
	if plan.SrcLevel != 1 {
		t.Fatalf("expected plan sourced from level 1, got %d", plan.SrcLevel)
	}
	first := plan.SrcFiles[0]

	picker.Advance(1, first.MaxKey)
	plan2, ok := picker.Pick(tree)
	if !ok {
		t.Fatal("expected a second plan after advancing the cursor")
	}
	if plan2.SrcFiles[0].FileName == first.FileName {
		t.Error("expected the cursor advance to pick a different file next time")
	}
}

func TestPickPrefersLowestLevelExceedingThreshold(t *testing.T) {
	tree := leveltree.New()
	for i := uint32(1); i <= 5; i++ {
		addFile(tree, i, 0, string(rune('a'+i)), string(rune('a'+i+1)))
	}
	picker := NewPicker(Thresholds{Level0Max: 4, Level1Max: 10})
	plan, ok := picker.Pick(tree)
	if !ok {
		t.Fatal("expected a plan")
	}
	if plan.SrcLevel != 0 {
		t.Errorf("expected the lowest over-threshold level (0) to be picked first, got %d", plan.SrcLevel)
	}
}
