package storage

import (
	"encoding/binary"

	"github.com/luminadb/luminadb/common"
)

// BTreeHeaderSize is sizeof(BTreeHeader): page_type(4) + parent_page_id(4)
// + current_size(4) + max_size(4) + next_page_id(4).
const BTreeHeaderSize = 20

// KeySize is the width of one B+Tree key: a uint32.
const KeySize = 4

// RecordIDSize is the on-page width of a RecordID: page_id(4) + slot_num(2).
const RecordIDSize = 6

// PageIDSize is the on-page width of a child pointer in an internal node.
const PageIDSize = 4

// DefaultMaxSize is the largest fan-out that fits a leaf node (the binding
// layout, since a leaf's 6-byte RecordID values are wider than an
// internal node's 4-byte child pointers) inside one PageSize page.
const DefaultMaxSize = (PageSize - BTreeHeaderSize) / (KeySize + RecordIDSize)

// BTreeNodeType distinguishes a B+Tree page's two interpretations.
type BTreeNodeType uint32

const (
	BTreeNodeInternal BTreeNodeType = 0
	BTreeNodeLeaf     BTreeNodeType = 1
)

// BTreeNode is the shared header view both LeafPage and InternalPage embed.
// It reinterprets the same bytes a slotted Page would use for its
// PageHeader: offset 0 holds page_type here instead of page_id, so a
// B+Tree page cannot recover its own page id from its bytes. Callers
// track the id externally (the buffer pool's page table).
type BTreeNode struct {
	*Page
}

func (n BTreeNode) NodeType() BTreeNodeType {
	return BTreeNodeType(binary.LittleEndian.Uint32(n.buf[0:4]))
}

func (n BTreeNode) setNodeType(t BTreeNodeType) {
	binary.LittleEndian.PutUint32(n.buf[0:4], uint32(t))
}

func (n BTreeNode) IsLeaf() bool { return n.NodeType() == BTreeNodeLeaf }

func (n BTreeNode) ParentPageID() common.PageID {
	return common.PageID(binary.LittleEndian.Uint32(n.buf[4:8]))
}

func (n BTreeNode) SetParentPageID(id common.PageID) {
	binary.LittleEndian.PutUint32(n.buf[4:8], uint32(id))
}

func (n BTreeNode) Size() uint32 {
	return binary.LittleEndian.Uint32(n.buf[8:12])
}

func (n BTreeNode) SetSize(size uint32) {
	binary.LittleEndian.PutUint32(n.buf[8:12], size)
}

func (n BTreeNode) MaxSize() uint32 {
	return binary.LittleEndian.Uint32(n.buf[12:16])
}

func (n BTreeNode) setMaxSize(max uint32) {
	binary.LittleEndian.PutUint32(n.buf[12:16], max)
}

func (n BTreeNode) NextPageID() common.PageID {
	return common.PageID(binary.LittleEndian.Uint32(n.buf[16:20]))
}

func (n BTreeNode) SetNextPageID(id common.PageID) {
	binary.LittleEndian.PutUint32(n.buf[16:20], uint32(id))
}

// IsFull reports whether the node has no room for one more entry.
func (n BTreeNode) IsFull() bool { return n.Size() >= n.MaxSize() }

func (n BTreeNode) initHeader(t BTreeNodeType, parent common.PageID, maxSize uint32) {
	for i := range n.buf {
		n.buf[i] = 0
	}
	n.setNodeType(t)
	n.SetParentPageID(parent)
	n.SetSize(0)
	n.setMaxSize(maxSize)
	n.SetNextPageID(0)
}

// ValidateBTreeHeader reports whether p's bytes look like a plausible
// BTreeHeader. Used only at root-bootstrap time to decide whether page 0
// already holds a tree or needs to be created from scratch.
func ValidateBTreeHeader(p *Page) bool {
	n := BTreeNode{p}
	t := n.NodeType()
	if t != BTreeNodeInternal && t != BTreeNodeLeaf {
		return false
	}
	max := n.MaxSize()
	if max == 0 || max > DefaultMaxSize {
		return false
	}
	if n.Size() > max {
		return false
	}
	return true
}

// LeafPage interprets a B+Tree page as a leaf: a BTreeNode header followed
// by MaxSize keys, then MaxSize RecordID values.
type LeafPage struct{ BTreeNode }

// AsLeaf reinterprets p as a leaf node.
func AsLeaf(p *Page) LeafPage { return LeafPage{BTreeNode{p}} }

// InitLeaf zeroes p and writes a fresh, empty leaf header.
func InitLeaf(p *Page, parent common.PageID, maxSize uint32) LeafPage {
	l := AsLeaf(p)
	l.initHeader(BTreeNodeLeaf, parent, maxSize)
	return l
}

func (l LeafPage) valuesBase() int {
	return BTreeHeaderSize + int(l.MaxSize())*KeySize
}

func (l LeafPage) KeyAt(i uint32) uint32 {
	off := BTreeHeaderSize + int(i)*KeySize
	return binary.LittleEndian.Uint32(l.buf[off : off+KeySize])
}

func (l LeafPage) setKeyAt(i uint32, key uint32) {
	off := BTreeHeaderSize + int(i)*KeySize
	binary.LittleEndian.PutUint32(l.buf[off:off+KeySize], key)
}

func (l LeafPage) ValueAt(i uint32) common.RecordID {
	off := l.valuesBase() + int(i)*RecordIDSize
	return common.RecordID{
		PageID:  common.PageID(binary.LittleEndian.Uint32(l.buf[off : off+4])),
		SlotNum: binary.LittleEndian.Uint16(l.buf[off+4 : off+6]),
	}
}

func (l LeafPage) setValueAt(i uint32, v common.RecordID) {
	off := l.valuesBase() + int(i)*RecordIDSize
	binary.LittleEndian.PutUint32(l.buf[off:off+4], uint32(v.PageID))
	binary.LittleEndian.PutUint16(l.buf[off+4:off+6], v.SlotNum)
}

// Lookup returns the smallest index i in [0, Size()] with KeyAt(i) >= key
// (== Size() if key is greater than every key in the node). Callers check
// KeyAt(i) == key themselves to distinguish "found" from "insert here".
func (l LeafPage) Lookup(key uint32) uint32 {
	lo, hi := uint32(0), l.Size()
	for lo < hi {
		mid := lo + (hi-lo)/2
		if l.KeyAt(mid) >= key {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// Insert places (key, value) in sorted position. It fails if key already
// exists, or if the node is full (both cases the caller must distinguish
// itself by re-looking up the key to tell "duplicate" from "needs split").
func (l LeafPage) Insert(key uint32, value common.RecordID) bool {
	size := l.Size()
	idx := l.Lookup(key)
	if idx < size && l.KeyAt(idx) == key {
		return false
	}
	if size >= l.MaxSize() {
		return false
	}

	l.shiftKeysRight(idx, size)
	l.shiftValuesRight(idx, size)
	l.setKeyAt(idx, key)
	l.setValueAt(idx, value)
	l.SetSize(size + 1)
	return true
}

func (l LeafPage) shiftKeysRight(from, size uint32) {
	base := BTreeHeaderSize
	keys := l.buf[base : base+int(l.MaxSize())*KeySize]
	copy(keys[int(from+1)*KeySize:int(size+1)*KeySize], keys[int(from)*KeySize:int(size)*KeySize])
}

func (l LeafPage) shiftValuesRight(from, size uint32) {
	base := l.valuesBase()
	vals := l.buf[base : base+int(l.MaxSize())*RecordIDSize]
	copy(vals[int(from+1)*RecordIDSize:int(size+1)*RecordIDSize], vals[int(from)*RecordIDSize:int(size)*RecordIDSize])
}

// Split redistributes this full leaf's Size() entries plus one pending
// overflow (key, value) across this node (lower half) and sibling (upper
// half, assumed freshly initialized and empty), following the 50% rule:
// mid = (size+1)/2 entries stay, the rest move to sibling. It returns the
// key that should be promoted to the parent as the new separator: the
// sibling's first key, since a leaf's key belongs in the subtree named by
// its parent's separator.
//
// The caller handles everything outside this node's own key/value
// arrays: giving sibling the right parent link, splicing the leaf chain
// (sibling.NextPageID = this.NextPageID; this.NextPageID = sibling's page
// id), and propagating the separator into the parent. None of that is
// knowable from these bytes alone, since a B+Tree page cannot read back
// its own page id.
func (l LeafPage) Split(newKey uint32, newValue common.RecordID, sibling LeafPage) (middleKey uint32) {
	size := int(l.Size())
	keys := make([]uint32, size+1)
	vals := make([]common.RecordID, size+1)

	idx := int(l.Lookup(newKey))
	for i := 0; i < idx; i++ {
		keys[i], vals[i] = l.KeyAt(uint32(i)), l.ValueAt(uint32(i))
	}
	keys[idx], vals[idx] = newKey, newValue
	for i := idx; i < size; i++ {
		keys[i+1], vals[i+1] = l.KeyAt(uint32(i)), l.ValueAt(uint32(i))
	}

	mid := (size + 1) / 2

	for i := 0; i < mid; i++ {
		l.setKeyAt(uint32(i), keys[i])
		l.setValueAt(uint32(i), vals[i])
	}
	l.SetSize(uint32(mid))

	upper := (size + 1) - mid
	for i := 0; i < upper; i++ {
		sibling.setKeyAt(uint32(i), keys[mid+i])
		sibling.setValueAt(uint32(i), vals[mid+i])
	}
	sibling.SetSize(uint32(upper))

	return keys[mid]
}

// InternalPage interprets a B+Tree page as an internal node: a BTreeNode
// header, MaxSize keys, then MaxSize+1 child page ids. For a node of size
// n, child i covers keys strictly less than KeyAt(i), and the rightmost
// child (index n) covers keys >= KeyAt(n-1).
type InternalPage struct{ BTreeNode }

func AsInternal(p *Page) InternalPage { return InternalPage{BTreeNode{p}} }

func InitInternal(p *Page, parent common.PageID, maxSize uint32) InternalPage {
	n := AsInternal(p)
	n.initHeader(BTreeNodeInternal, parent, maxSize)
	return n
}

func (n InternalPage) childrenBase() int {
	return BTreeHeaderSize + int(n.MaxSize())*KeySize
}

func (n InternalPage) KeyAt(i uint32) uint32 {
	off := BTreeHeaderSize + int(i)*KeySize
	return binary.LittleEndian.Uint32(n.buf[off : off+KeySize])
}

func (n InternalPage) SetKeyAt(i uint32, key uint32) {
	off := BTreeHeaderSize + int(i)*KeySize
	binary.LittleEndian.PutUint32(n.buf[off:off+KeySize], key)
}

func (n InternalPage) ValueAt(i uint32) common.PageID {
	off := n.childrenBase() + int(i)*PageIDSize
	return common.PageID(binary.LittleEndian.Uint32(n.buf[off : off+PageIDSize]))
}

func (n InternalPage) SetValueAt(i uint32, child common.PageID) {
	off := n.childrenBase() + int(i)*PageIDSize
	binary.LittleEndian.PutUint32(n.buf[off:off+PageIDSize], uint32(child))
}

// Lookup returns the child page id that the search for key should descend
// into: the first child i with key < KeyAt(i), or the rightmost child
// (index Size()) if key is >= every separator.
func (n InternalPage) Lookup(key uint32) common.PageID {
	size := n.Size()
	var i uint32
	for i = 0; i < size; i++ {
		if key < n.KeyAt(i) {
			break
		}
	}
	return n.ValueAt(i)
}

// SetFirstChild sets child 0 directly. Used only when bootstrapping a
// brand-new root (size 0, one child, no keys yet).
func (n InternalPage) SetFirstChild(child common.PageID) {
	n.SetValueAt(0, child)
}

// InsertAfter inserts (key, rightChild) so that rightChild becomes the
// child immediately to the right of key's separator position. It fails if
// the node is already full; the caller must split first.
func (n InternalPage) InsertAfter(key uint32, rightChild common.PageID) bool {
	size := n.Size()
	if size >= n.MaxSize() {
		return false
	}

	var p uint32
	for p = 0; p < size; p++ {
		if key < n.KeyAt(p) {
			break
		}
	}

	n.shiftKeysRight(p, size)
	n.shiftChildrenRight(p+1, size+1)
	n.SetKeyAt(p, key)
	n.SetValueAt(p+1, rightChild)
	n.SetSize(size + 1)
	return true
}

func (n InternalPage) shiftKeysRight(from, size uint32) {
	base := BTreeHeaderSize
	keys := n.buf[base : base+int(n.MaxSize())*KeySize]
	copy(keys[int(from+1)*KeySize:int(size+1)*KeySize], keys[int(from)*KeySize:int(size)*KeySize])
}

func (n InternalPage) shiftChildrenRight(from, count uint32) {
	base := n.childrenBase()
	children := n.buf[base : base+(int(n.MaxSize())+1)*PageIDSize]
	copy(children[int(from+1)*PageIDSize:int(count+1)*PageIDSize], children[int(from)*PageIDSize:int(count)*PageIDSize])
}

// Split redistributes this full internal node's Size() keys / Size()+1
// children plus one pending (key, rightChild) insertion across this node
// and sibling (assumed freshly initialized and empty), symmetrically with
// LeafPage.Split: the median key is promoted to the parent and does not
// appear in either child afterwards (unlike a leaf split, where the
// promoted key is a copy of the sibling's first key).
func (n InternalPage) Split(newKey uint32, rightChild common.PageID, sibling InternalPage) (middleKey uint32) {
	size := int(n.Size())
	keys := make([]uint32, size+1)
	children := make([]common.PageID, size+2)

	var p int
	for p = 0; p < size; p++ {
		if newKey < n.KeyAt(uint32(p)) {
			break
		}
	}

	for i := 0; i < p; i++ {
		keys[i] = n.KeyAt(uint32(i))
	}
	keys[p] = newKey
	for i := p; i < size; i++ {
		keys[i+1] = n.KeyAt(uint32(i))
	}

	for i := 0; i <= p; i++ {
		children[i] = n.ValueAt(uint32(i))
	}
	children[p+1] = rightChild
	for i := p + 1; i <= size; i++ {
		children[i+1] = n.ValueAt(uint32(i))
	}

	mid := (size + 1) / 2

	for i := 0; i < mid; i++ {
		n.SetKeyAt(uint32(i), keys[i])
	}
	for i := 0; i <= mid; i++ {
		n.SetValueAt(uint32(i), children[i])
	}
	n.SetSize(uint32(mid))

	rightKeyCount := size - mid
	for i := 0; i < rightKeyCount; i++ {
		sibling.SetKeyAt(uint32(i), keys[mid+1+i])
	}
	for i := 0; i <= rightKeyCount; i++ {
		sibling.SetValueAt(uint32(i), children[mid+1+i])
	}
	sibling.SetSize(uint32(rightKeyCount))

	return keys[mid]
}
