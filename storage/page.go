// Package storage interprets a raw PageSize-byte buffer two ways: as a
// slotted data page (Page) or, via LeafPage/InternalPage, as a B+Tree node.
// Both views alias the same bytes; the generic PageHeader's page_id field
// and the B+Tree's page_type field intentionally share offset 0.
package storage

import (
	"encoding/binary"

	"github.com/luminadb/luminadb/common"
)

// PageSize is the fixed size of every page, on disk and in a buffer frame.
const PageSize = 4096

// PageHeaderSize is sizeof(PageHeader): page_id(4) + object_type(4) +
// slot_count(2) + free_ptr(2).
const PageHeaderSize = 12

// SlotSize is sizeof(Slot): offset(2) + size(2).
const SlotSize = 4

// Page is an in-memory PageSize-byte frame, interpreted as a slotted page:
// a PageHeader followed by a slot directory growing forward from
// PageHeaderSize, with record bytes growing backward from PageSize.
type Page struct {
	buf [PageSize]byte
}

// Bytes exposes the page's raw buffer, e.g. for disk.Manager.ReadPage/
// WritePage or for reinterpreting as a B+Tree node via AsLeaf/AsInternal.
func (p *Page) Bytes() *[PageSize]byte { return &p.buf }

// PageID reads the page id stamped at offset 0. It is meaningful only under
// the slotted interpretation: on a B+Tree page offset 0 holds page_type.
func (p *Page) PageID() common.PageID {
	return common.PageID(binary.LittleEndian.Uint32(p.buf[0:4]))
}

func (p *Page) setPageID(id common.PageID) {
	binary.LittleEndian.PutUint32(p.buf[0:4], uint32(id))
}

// ObjectType reads the slotted-page object type tag at offset 4.
func (p *Page) ObjectType() common.ObjectType {
	return common.ObjectType(binary.LittleEndian.Uint32(p.buf[4:8]))
}

func (p *Page) slotCount() uint16 {
	return binary.LittleEndian.Uint16(p.buf[8:10])
}

func (p *Page) setSlotCount(n uint16) {
	binary.LittleEndian.PutUint16(p.buf[8:10], n)
}

func (p *Page) freePtr() uint16 {
	return binary.LittleEndian.Uint16(p.buf[10:12])
}

func (p *Page) setFreePtr(n uint16) {
	binary.LittleEndian.PutUint16(p.buf[10:12], n)
}

// Init zeroes the page and writes a fresh slotted PageHeader: no slots yet,
// free space starting at the very end of the page.
func (p *Page) Init(id common.PageID, objType common.ObjectType) {
	for i := range p.buf {
		p.buf[i] = 0
	}
	p.setPageID(id)
	binary.LittleEndian.PutUint32(p.buf[4:8], uint32(objType))
	p.setSlotCount(0)
	p.setFreePtr(PageSize)
}

// StampIdentity writes only the page_id and object_type fields of the
// PageHeader, leaving the rest of the buffer untouched. The buffer pool uses this instead of Init when handing a
// fresh page to the B+Tree codec, which immediately overwrites these same
// bytes with a BTreeHeader via InitLeaf/InitInternal.
func (p *Page) StampIdentity(id common.PageID, objType common.ObjectType) {
	p.setPageID(id)
	binary.LittleEndian.PutUint32(p.buf[4:8], uint32(objType))
}

func slotOffset(idx uint16) int { return PageHeaderSize + int(idx)*SlotSize }

func (p *Page) slotAt(idx uint16) (offset, size uint16) {
	o := slotOffset(idx)
	return binary.LittleEndian.Uint16(p.buf[o : o+2]), binary.LittleEndian.Uint16(p.buf[o+2 : o+4])
}

func (p *Page) setSlotAt(idx uint16, offset, size uint16) {
	o := slotOffset(idx)
	binary.LittleEndian.PutUint16(p.buf[o:o+2], offset)
	binary.LittleEndian.PutUint16(p.buf[o+2:o+4], size)
}

// FreeSpace is the number of bytes still available between the end of the
// slot directory and the start of the record heap.
func (p *Page) FreeSpace() uint16 {
	slotsEnd := uint16(PageHeaderSize) + p.slotCount()*SlotSize
	return p.freePtr() - slotsEnd
}

// InsertRecord copies record into the page's heap and appends a new slot
// for it, returning the new slot's index (its RecordID.SlotNum). It fails
// if record is empty or there isn't room for it plus a new Slot.
func (p *Page) InsertRecord(record []byte) (slotNum uint16, ok bool) {
	size := len(record)
	if size == 0 || size > 0xFFFF {
		return 0, false
	}
	if int(p.FreeSpace()) < size+SlotSize {
		return 0, false
	}

	newFreePtr := p.freePtr() - uint16(size)
	copy(p.buf[newFreePtr:p.freePtr()], record)
	p.setFreePtr(newFreePtr)

	idx := p.slotCount()
	p.setSlotAt(idx, newFreePtr, uint16(size))
	p.setSlotCount(idx + 1)

	return idx, true
}

// GetRecord returns the bytes stored at slotIdx, or ok=false if slotIdx is
// out of range. The returned slice aliases the page's buffer.
func (p *Page) GetRecord(slotIdx uint16) (record []byte, ok bool) {
	if slotIdx >= p.slotCount() {
		return nil, false
	}
	offset, size := p.slotAt(slotIdx)
	return p.buf[offset : offset+size], true
}

// SlotCount reports how many slots are currently populated.
func (p *Page) SlotCount() uint16 { return p.slotCount() }
