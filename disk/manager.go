// Package disk reads and writes fixed-size pages at page-id offsets in a
// single backing file. It is the lowest layer of the engine: everything
// above it only ever sees whole PageSize-byte buffers.
package disk

import (
	"io"
	"os"

	"github.com/dsnet/golib/memfile"
	"github.com/ncw/directio"

	"github.com/luminadb/luminadb/common"
)

// PageSize is the unit of both disk I/O and buffer-pool allocation.
const PageSize = 4096

// file is the minimal surface Manager needs from its backing store. Both
// *os.File (opened directly or via directio) and *memfile.File satisfy it.
type file interface {
	io.ReaderAt
	io.WriterAt
	Close() error
}

// Manager reads and writes PageSize-byte pages. Its methods are not
// internally synchronized: safety depends on the buffer pool's coarse
// latch serializing every call, per the engine's single-threaded design.
type Manager struct {
	f      file
	path   string
	direct bool // true when f was opened with O_DIRECT via directio
	size   int64
	logger common.Logger
}

// Open opens (creating if necessary) the database file at path. It first
// tries github.com/ncw/directio so that reads and writes bypass the page
// cache and go through PageSize-aligned buffers (a natural fit, since
// PageSize already equals the platform's required alignment). Filesystems
// that reject O_DIRECT (tmpfs, overlayfs, many CI sandboxes) report an
// error opening the file; Open falls back to a normal buffered os.File in
// that case and logs once.
func Open(path string, logger common.Logger) (*Manager, error) {
	if logger == nil {
		logger = common.NopLogger
	}

	f, direct, err := openBackingFile(path, logger)
	if err != nil {
		return nil, common.NewError("disk.Open", common.KindIO, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		f.Close()
		return nil, common.NewError("disk.Open", common.KindIO, err)
	}

	return &Manager{f: f, path: path, direct: direct, size: info.Size(), logger: logger}, nil
}

func openBackingFile(path string, logger common.Logger) (*os.File, bool, error) {
	f, err := directio.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err == nil {
		return f, true, nil
	}

	logger.Printf("O_DIRECT unavailable for %s (%v), falling back to buffered I/O", path, err)
	f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, false, err
	}
	return f, false, nil
}

// OpenMemory returns a Manager backed by an in-memory buffer
// (github.com/dsnet/golib/memfile) instead of a real file. Useful for
// tests and for disposable, process-lifetime-only stores.
func OpenMemory() *Manager {
	return &Manager{f: memfile.New(nil), path: "", direct: false, size: 0, logger: common.NopLogger}
}

// ReadPage reads the PageSize bytes at page id's offset into buf. If that
// offset lies beyond the current file length, buf is zero-filled instead.
// This is how a freshly allocated page appears on its first read.
func (m *Manager) ReadPage(id common.PageID, buf *[PageSize]byte) error {
	for i := range buf {
		buf[i] = 0
	}

	offset := int64(id) * PageSize
	if offset >= m.size {
		return nil
	}

	var err error
	if m.direct {
		block := directio.AlignedBlock(PageSize)
		_, err = m.f.ReadAt(block, offset)
		copy(buf[:], block)
	} else {
		_, err = m.f.ReadAt(buf[:], offset)
	}
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return common.NewError("disk.ReadPage", common.KindIO, err)
	}
	return nil
}

// WritePage writes exactly PageSize bytes at page id's offset and flushes
// to the OS, extending the file as needed.
func (m *Manager) WritePage(id common.PageID, buf *[PageSize]byte) error {
	offset := int64(id) * PageSize

	var err error
	if m.direct {
		block := directio.AlignedBlock(PageSize)
		copy(block, buf[:])
		_, err = m.f.WriteAt(block, offset)
	} else {
		_, err = m.f.WriteAt(buf[:], offset)
	}
	if err != nil {
		return common.NewError("disk.WritePage", common.KindIO, err)
	}

	if end := offset + PageSize; end > m.size {
		m.size = end
	}

	if syncer, ok := m.f.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			return common.NewError("disk.WritePage", common.KindIO, err)
		}
	}
	return nil
}

// PageCount returns the current file length divided by PageSize,
// truncating. Called once at startup to pick the next page id to hand out.
func (m *Manager) PageCount() uint32 {
	return uint32(m.size / PageSize)
}

// Close closes the backing file.
func (m *Manager) Close() error {
	if err := m.f.Close(); err != nil {
		return common.NewError("disk.Close", common.KindIO, err)
	}
	return nil
}
