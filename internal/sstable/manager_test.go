package sstable

import (
	"bytes"
	"testing"

	"github.com/nvmekv/ssdlsm/internal/driver"
	"github.com/nvmekv/ssdlsm/internal/ikey"
)

func TestPackAndWriteThenOpenIterator(t *testing.T) {
	drv := driver.NewMemDriver()
	mgr := NewManager(drv, PackingKeyPerPage)

	keys := encodedKeys(8)
	info, st := mgr.PackAndWrite(0, keys)
	if !st.Ok() {
		t.Fatalf("PackAndWrite failed: %v", st)
	}
	if info.Level != 0 {
		t.Errorf("expected level 0, got %d", info.Level)
	}
	wantMin, _ := ikey.Decode(keys[0])
	wantMax, _ := ikey.Decode(keys[len(keys)-1])
	if !bytes.Equal(info.MinKey.UserKey, wantMin.UserKey) {
		t.Errorf("expected MinKey %q, got %q", wantMin.UserKey, info.MinKey.UserKey)
	}
	if !bytes.Equal(info.MaxKey.UserKey, wantMax.UserKey) {
		t.Errorf("expected MaxKey %q, got %q", wantMax.UserKey, info.MaxKey.UserKey)
	}

	it, st := mgr.OpenIterator(info.FileName, &fakeValueReader{})
	if !st.Ok() {
		t.Fatalf("OpenIterator failed: %v", st)
	}
	if it.Len() != len(keys) {
		t.Errorf("expected %d entries, got %d", len(keys), it.Len())
	}
}

func TestPackAndWriteRejectsEmptyKeySet(t *testing.T) {
	mgr := NewManager(driver.NewMemDriver(), PackingKeyPerPage)
	if _, st := mgr.PackAndWrite(0, nil); st.Ok() {
		t.Fatal("expected an error packing an empty key set")
	}
}

func TestNextFileNameMonotonic(t *testing.T) {
	mgr := NewManager(driver.NewMemDriver(), PackingKeyPerPage)
	a := mgr.nextFileName()
	b := mgr.nextFileName()
	if a >= b {
		t.Errorf("expected monotonically increasing file names, got %q then %q", a, b)
	}
}

func TestSetSequenceAndSequence(t *testing.T) {
	mgr := NewManager(driver.NewMemDriver(), PackingKeyPerPage)
	mgr.SetSequence(42)
	if mgr.Sequence() != 42 {
		t.Errorf("expected Sequence() 42 after SetSequence, got %d", mgr.Sequence())
	}
	name := mgr.nextFileName()
	if name != driver.FormatFileName(42) {
		t.Errorf("expected next file name to use the restored sequence, got %q", name)
	}
}

func TestReadReturnsFullBlock(t *testing.T) {
	drv := driver.NewMemDriver()
	mgr := NewManager(drv, PackingKeyPerPage)
	keys := encodedKeys(4)
	info, st := mgr.PackAndWrite(0, keys)
	if !st.Ok() {
		t.Fatalf("PackAndWrite failed: %v", st)
	}

	block, st := mgr.Read(info.FileName)
	if !st.Ok() {
		t.Fatalf("Read failed: %v", st)
	}
	if len(block) != driver.BlockSize {
		t.Errorf("expected block size %d, got %d", driver.BlockSize, len(block))
	}
}

func TestEraseRemovesFile(t *testing.T) {
	drv := driver.NewMemDriver()
	mgr := NewManager(drv, PackingKeyPerPage)
	keys := encodedKeys(4)
	info, st := mgr.PackAndWrite(0, keys)
	if !st.Ok() {
		t.Fatalf("PackAndWrite failed: %v", st)
	}
	if st := mgr.Erase(info.FileName); !st.Ok() {
		t.Fatalf("Erase failed: %v", st)
	}
	if _, st := mgr.Read(info.FileName); st.Ok() {
		t.Error("expected Read to fail after Erase")
	}
}

func TestPackAndWriteSetsKeyRangeOnDriver(t *testing.T) {
	drv := driver.NewMemDriver()
	mgr := NewManager(drv, PackingKeyPerPage)
	keys := encodedKeys(4)
	info, st := mgr.PackAndWrite(0, keys)
	if !st.Ok() {
		t.Fatalf("PackAndWrite failed: %v", st)
	}

	page := make([]byte, driver.PageSize)
	if err := drv.ReadSSKeyRange(info.FileName, page); err != nil {
		t.Fatalf("expected SetSSKeyRange to have stored a key-range page for the file: %v", err)
	}
	minKey, _ := ikey.Decode(page[0:ikey.EncodedSize])
	if !bytes.Equal(minKey.UserKey, info.MinKey.UserKey) {
		t.Errorf("expected stored key-range page to start with MinKey %q, got %q", info.MinKey.UserKey, minKey.UserKey)
	}
}
