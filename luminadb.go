// Package luminadb is an embedded, single-process, file-persisted
// key-value store: u32 keys mapped to opaque byte-slice records, built
// from a disk manager, a slotted page format, an LRU-backed buffer pool,
// and a disk-backed B+Tree index. DB is the only entry point callers need.
package luminadb

import (
	"github.com/luminadb/luminadb/buffer"
	"github.com/luminadb/luminadb/common"
	"github.com/luminadb/luminadb/disk"
	"github.com/luminadb/luminadb/index"
)

const (
	defaultPoolSize = 64
	minPoolSize     = 3
)

// DB is an opened LuminaDB store. The zero value is not usable; build
// one with Open.
type DB struct {
	disk   *disk.Manager
	pool   *buffer.Pool
	tree   *index.BTree
	logger common.Logger
	objTyp common.ObjectType
}

// config collects the functional options before Open builds the DB.
type config struct {
	poolSize int
	logger   common.Logger
	objType  common.ObjectType
	maxSize  uint32
}

// Option configures a DB at Open time.
type Option func(*config)

// WithPoolSize sets the number of buffer-pool frames. Values below
// minPoolSize are clamped up to it: the smallest pool that can still hold
// a root, a leaf, and a sibling mid-split without deadlocking on itself.
func WithPoolSize(n int) Option {
	return func(c *config) { c.poolSize = n }
}

// WithLogger injects a logger for status and fallback messages. The
// default is common.NopLogger.
func WithLogger(logger common.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithObjectType sets the common.ObjectType stamped on every data page
// Insert allocates. Callers storing a single kind of record can use this
// to tag pages for their own bookkeeping; LuminaDB itself is agnostic to
// the value beyond reserving common.ObjectTypeBPlusTree for tree pages.
func WithObjectType(t common.ObjectType) Option {
	return func(c *config) { c.objType = t }
}

// withMaxSize overrides the B+Tree's node fan-out. Unexported: it exists
// for tests that want to force splits with a tiny tree, not for ordinary
// callers, who should let it default to storage.DefaultMaxSize.
func withMaxSize(n uint32) Option {
	return func(c *config) { c.maxSize = n }
}

// Open opens (creating if necessary) the database file at path.
func Open(path string, opts ...Option) (*DB, error) {
	cfg := config{poolSize: defaultPoolSize, logger: common.NopLogger, objType: common.ObjectTypeUnknown}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.poolSize < minPoolSize {
		cfg.poolSize = minPoolSize
	}

	d, err := disk.Open(path, cfg.logger)
	if err != nil {
		return nil, err
	}
	return open(d, cfg)
}

// OpenMemory opens an in-memory store backed by github.com/dsnet/golib/
// memfile instead of a file: a disposable index or a fast test fixture.
func OpenMemory(opts ...Option) (*DB, error) {
	cfg := config{poolSize: defaultPoolSize, logger: common.NopLogger, objType: common.ObjectTypeUnknown}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.poolSize < minPoolSize {
		cfg.poolSize = minPoolSize
	}
	return open(disk.OpenMemory(), cfg)
}

func open(d *disk.Manager, cfg config) (*DB, error) {
	pool := buffer.NewPool(d, cfg.poolSize, cfg.logger)

	tree, err := index.Open(pool, 0, cfg.maxSize)
	if err != nil {
		d.Close()
		return nil, err
	}

	return &DB{disk: d, pool: pool, tree: tree, logger: cfg.logger, objTyp: cfg.objType}, nil
}

// Close flushes every dirty page and closes the underlying file.
func (db *DB) Close() error {
	return db.pool.Close()
}

// Insert stores record under key. It fails with common.ErrDuplicateKey
// if key already exists, checked before any page is allocated, so a
// duplicate leaves no orphaned data page.
func (db *DB) Insert(key uint32, record []byte) error {
	if _, found, err := db.tree.GetValue(key); err != nil {
		return err
	} else if found {
		return common.NewError("luminadb.Insert", common.KindDuplicateKey, nil)
	}

	page, pageID, err := db.pool.NewPage(db.objTyp)
	if err != nil {
		return err
	}
	slot, ok := page.InsertRecord(record)
	if !ok {
		_ = db.pool.UnpinPage(pageID, false)
		return common.NewError("luminadb.Insert", common.KindRecordTooLarge, nil)
	}
	if err := db.pool.UnpinPage(pageID, true); err != nil {
		return err
	}

	rid := common.RecordID{PageID: pageID, SlotNum: slot}
	return db.tree.Insert(key, rid)
}

// Find returns the record stored under key, or ok=false if absent.
func (db *DB) Find(key uint32) ([]byte, bool, error) {
	rid, found, err := db.tree.GetValue(key)
	if err != nil || !found {
		return nil, false, err
	}

	page, err := db.pool.FetchPage(rid.PageID)
	if err != nil {
		return nil, false, err
	}
	record, ok := page.GetRecord(rid.SlotNum)
	if !ok {
		_ = db.pool.UnpinPage(rid.PageID, false)
		return nil, false, common.NewError("luminadb.Find", common.KindCorruptPage, nil)
	}

	out := make([]byte, len(record))
	copy(out, record)
	if err := db.pool.UnpinPage(rid.PageID, false); err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// Exists reports whether key is present, without fetching its record
// page.
func (db *DB) Exists(key uint32) (bool, error) {
	_, found, err := db.tree.GetValue(key)
	return found, err
}

// Remove is not yet implemented. It always returns (false, nil).
func (db *DB) Remove(key uint32) (bool, error) {
	return db.tree.Remove(key)
}
