package valuelog

import (
	"bytes"
	"testing"

	"github.com/nvmekv/ssdlsm/internal/driver"
	"github.com/nvmekv/ssdlsm/internal/ikey"
)

func newTestManager() *Manager {
	return New(driver.NewMemDriver(), nil, 50, 4)
}

func writeRecord(t *testing.T, m *Manager, userKey, value string) ikey.InternalKey {
	t.Helper()
	lpn, offset := m.CurrentPointer()
	k := ikey.New([]byte(userKey), lpn, offset, 1, ikey.TypeValue)
	rec := ikey.NewRecord(k, []byte(value))
	if st := m.Write(rec); !st.Ok() {
		t.Fatalf("Write failed: %v", st)
	}
	return k
}

func TestWriteReadSmallRecord(t *testing.T) {
	m := newTestManager()
	k := writeRecord(t, m, "key", "value")
	m.Flush()

	rec, st := m.Read(k.LPN, k.Offset)
	if !st.Ok() {
		t.Fatalf("Read failed: %v", st)
	}
	if !bytes.Equal(rec.Value, []byte("value")) {
		t.Errorf("expected value %q, got %q", "value", rec.Value)
	}
}

func TestWriteReadMultipleRecords(t *testing.T) {
	m := newTestManager()
	type stored struct {
		key ikey.InternalKey
		val string
	}
	var all []stored
	for i := 0; i < 20; i++ {
		val := bytes.Repeat([]byte{byte('a' + i)}, 50)
		lpn, offset := m.CurrentPointer()
		k := ikey.New([]byte{byte('a' + i)}, lpn, offset, uint64(i+1), ikey.TypeValue)
		if st := m.Write(ikey.NewRecord(k, val)); !st.Ok() {
			t.Fatalf("Write failed: %v", st)
		}
		all = append(all, stored{key: k, val: string(val)})
	}
	m.Flush()

	for _, s := range all {
		rec, st := m.Read(s.key.LPN, s.key.Offset)
		if !st.Ok() {
			t.Fatalf("Read failed for key %q: %v", s.key.UserKey, st)
		}
		if string(rec.Value) != s.val {
			t.Errorf("value mismatch for key %q: got %q want %q", s.key.UserKey, rec.Value, s.val)
		}
	}
}

func TestWriteReadRecordStraddlingPageBoundary(t *testing.T) {
	m := newTestManager()
	// A large value forces the write to straddle at least one page
	// boundary inside flushBufferLocked.
	big := bytes.Repeat([]byte{0x7A}, driver.PageSize+500)
	k := writeRecord(t, m, "straddler", string(big))
	m.Flush()

	rec, st := m.Read(k.LPN, k.Offset)
	if !st.Ok() {
		t.Fatalf("Read failed: %v", st)
	}
	if !bytes.Equal(rec.Value, big) {
		t.Error("expected the straddling record's value to round trip exactly")
	}
}

func TestBlockCountGrowsAsPagesFill(t *testing.T) {
	m := newTestManager()
	initial := m.BlockCount()
	// Write enough pages to force at least one block rollover.
	val := bytes.Repeat([]byte{0x01}, driver.PageSize)
	for i := 0; i < driver.PagesPerBlock+2; i++ {
		lpn, offset := m.CurrentPointer()
		k := ikey.New([]byte{byte(i % 26) + 'a'}, lpn, offset, uint64(i+1), ikey.TypeValue)
		if st := m.Write(ikey.NewRecord(k, val)); !st.Ok() {
			t.Fatalf("Write failed at iteration %d: %v", i, st)
		}
	}
	if m.BlockCount() <= initial {
		t.Errorf("expected BlockCount to grow after writing more than one block's worth of pages, got %d (was %d)", m.BlockCount(), initial)
	}
}
