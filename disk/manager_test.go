package disk

import (
	"testing"

	"github.com/luminadb/luminadb/common"
)

func TestManagerReadWriteRoundTrip(t *testing.T) {
	m := OpenMemory()
	defer m.Close()

	var want [PageSize]byte
	for i := range want {
		want[i] = byte(i)
	}

	if err := m.WritePage(3, &want); err != nil {
		t.Fatalf("WritePage() error = %v", err)
	}

	var got [PageSize]byte
	if err := m.ReadPage(3, &got); err != nil {
		t.Fatalf("ReadPage() error = %v", err)
	}
	if got != want {
		t.Fatalf("ReadPage() did not round-trip the written bytes")
	}
}

func TestManagerReadBeyondEOFIsZeroFilled(t *testing.T) {
	m := OpenMemory()
	defer m.Close()

	var buf [PageSize]byte
	for i := range buf {
		buf[i] = 0xFF
	}

	if err := m.ReadPage(7, &buf); err != nil {
		t.Fatalf("ReadPage() error = %v", err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("ReadPage() byte %d = %#x, want 0 for a page never written", i, b)
		}
	}
}

func TestManagerPageCount(t *testing.T) {
	m := OpenMemory()
	defer m.Close()

	if got := m.PageCount(); got != 0 {
		t.Fatalf("PageCount() on empty manager = %d, want 0", got)
	}

	var buf [PageSize]byte
	if err := m.WritePage(4, &buf); err != nil {
		t.Fatalf("WritePage() error = %v", err)
	}
	if got, want := m.PageCount(), uint32(5); got != want {
		t.Fatalf("PageCount() after writing page 4 = %d, want %d", got, want)
	}
}

func TestOpenPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/store.db"

	m, err := Open(path, common.NopLogger)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	var want [PageSize]byte
	for i := range want {
		want[i] = byte(i * 7)
	}
	if err := m.WritePage(0, &want); err != nil {
		t.Fatalf("WritePage() error = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	m2, err := Open(path, common.NopLogger)
	if err != nil {
		t.Fatalf("re-Open() error = %v", err)
	}
	defer m2.Close()

	var got [PageSize]byte
	if err := m2.ReadPage(0, &got); err != nil {
		t.Fatalf("ReadPage() error = %v", err)
	}
	if got != want {
		t.Fatalf("page 0 did not survive close/reopen")
	}
	if m2.PageCount() != 1 {
		t.Fatalf("PageCount() after reopen = %d, want 1", m2.PageCount())
	}
}
