package luminadb

import (
	"errors"
	"testing"

	"github.com/luminadb/luminadb/common"
)

func TestDBInsertFindExists(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	defer db.Close()

	if err := db.Insert(1, []byte("one")); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := db.Insert(2, []byte("two")); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, found, err := db.Find(1)
	if err != nil || !found || string(got) != "one" {
		t.Fatalf("Find(1) = (%q, %v, %v), want (\"one\", true, nil)", got, found, err)
	}

	exists, err := db.Exists(2)
	if err != nil || !exists {
		t.Fatalf("Exists(2) = (%v, %v), want (true, nil)", exists, err)
	}

	exists, err = db.Exists(99)
	if err != nil || exists {
		t.Fatalf("Exists(99) = (%v, %v), want (false, nil)", exists, err)
	}
}

func TestDBInsertDuplicateKeyLeavesNoOrphanPage(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	defer db.Close()

	if err := db.Insert(1, []byte("first")); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	err = db.Insert(1, []byte("second"))
	if err == nil || common.ErrorKind(err) != common.KindDuplicateKey {
		t.Fatalf("duplicate Insert() error = %v, want KindDuplicateKey", err)
	}

	// The original value must be untouched.
	got, found, err := db.Find(1)
	if err != nil || !found || string(got) != "first" {
		t.Fatalf("Find(1) after failed duplicate insert = (%q, %v, %v), want (\"first\", true, nil)", got, found, err)
	}
}

func TestDBFindMissingKey(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	defer db.Close()

	_, found, err := db.Find(404)
	if err != nil || found {
		t.Fatalf("Find(404) = (_, %v, %v), want (_, false, nil)", found, err)
	}
}

func TestDBRemoveIsStub(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	defer db.Close()

	ok, err := db.Remove(1)
	if ok || err != nil {
		t.Fatalf("Remove() = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestDBPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/store.db"

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := db.Insert(10, []byte("persisted")); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	db2, err := Open(path)
	if err != nil {
		t.Fatalf("re-Open() error = %v", err)
	}
	defer db2.Close()

	got, found, err := db2.Find(10)
	if err != nil || !found || string(got) != "persisted" {
		t.Fatalf("Find(10) after reopen = (%q, %v, %v), want (\"persisted\", true, nil)", got, found, err)
	}
}

func TestDBWithPoolSizeClampsToMinimum(t *testing.T) {
	db, err := OpenMemory(WithPoolSize(1))
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	defer db.Close()

	if err := db.Insert(1, []byte("x")); err != nil {
		t.Fatalf("Insert() with a clamped tiny pool failed: %v", err)
	}
}

func TestDBSplitsAcrossManyInserts(t *testing.T) {
	db, err := OpenMemory(withMaxSize(4))
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	defer db.Close()

	const n = 100
	for i := uint32(0); i < n; i++ {
		if err := db.Insert(i, []byte{byte(i)}); err != nil {
			t.Fatalf("Insert(%d) error = %v", i, err)
		}
	}
	for i := uint32(0); i < n; i++ {
		got, found, err := db.Find(i)
		if err != nil || !found || len(got) != 1 || got[0] != byte(i) {
			t.Fatalf("Find(%d) = (%v, %v, %v), want ([%d], true, nil)", i, got, found, err, byte(i))
		}
	}
}

func TestDBRecordTooLargeForAPage(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	defer db.Close()

	huge := make([]byte, 5000)
	err = db.Insert(1, huge)
	if err == nil {
		t.Fatalf("Insert() of an oversized record succeeded, want KindRecordTooLarge")
	}
	if !errors.Is(err, common.ErrRecordTooLarge) {
		t.Fatalf("errors.Is(err, ErrRecordTooLarge) = false, got %v", err)
	}
}
