// Package index implements the disk-backed B+Tree that maps uint32 keys
// to RecordIDs, built entirely on top of the buffer package's pinned
// frames: it never touches the disk manager directly.
package index

import (
	"github.com/luminadb/luminadb/buffer"
	"github.com/luminadb/luminadb/common"
	"github.com/luminadb/luminadb/storage"
)

// BTree is a disk-backed B+Tree keyed by uint32, storing RecordID values.
// It holds no page bytes itself: a root page id plus a *buffer.Pool is the
// entire state.
type BTree struct {
	pool       *buffer.Pool
	rootPageID common.PageID
	maxSize    uint32
}

// Open constructs a tree rooted at rootPageID. Passing 0 means "bootstrap":
// page 0 is fetched and, if it already holds a plausible BTreeHeader, its
// parent links are followed up to the node with no parent, which becomes
// the root (page 0 itself while the root has never split); otherwise a
// fresh empty leaf is allocated and becomes the root. maxSize bounds every
// node's fan-out; pass 0 to use storage.DefaultMaxSize.
func Open(pool *buffer.Pool, rootPageID common.PageID, maxSize uint32) (*BTree, error) {
	if maxSize == 0 {
		maxSize = storage.DefaultMaxSize
	}

	t := &BTree{pool: pool, maxSize: maxSize}

	if rootPageID != 0 {
		t.rootPageID = rootPageID
		return t, nil
	}

	page, err := pool.FetchPage(0)
	if err != nil {
		return nil, err
	}
	if storage.ValidateBTreeHeader(page) {
		parentID := storage.BTreeNode{Page: page}.ParentPageID()
		if err := pool.UnpinPage(0, false); err != nil {
			return nil, err
		}
		t.rootPageID = 0
		for parentID != 0 {
			t.rootPageID = parentID
			parentPage, err := pool.FetchPage(parentID)
			if err != nil {
				return nil, err
			}
			parentID = storage.BTreeNode{Page: parentPage}.ParentPageID()
			if err := pool.UnpinPage(t.rootPageID, false); err != nil {
				return nil, err
			}
		}
		return t, nil
	}
	if err := pool.UnpinPage(0, false); err != nil {
		return nil, err
	}

	root, id, err := pool.NewPage(common.ObjectTypeBPlusTree)
	if err != nil {
		return nil, err
	}
	storage.InitLeaf(root, 0, t.maxSize)
	t.rootPageID = id
	if err := pool.UnpinPage(id, true); err != nil {
		return nil, err
	}
	return t, nil
}

// RootPageID reports the tree's current root page, e.g. for a caller that
// wants to persist it alongside the store's other metadata.
func (t *BTree) RootPageID() common.PageID { return t.rootPageID }

// findLeaf fetches (and leaves pinned) the leaf page that key belongs in,
// descending from the root through internal nodes, and returns its page
// id alongside it. A B+Tree page cannot recover its own id from its bytes
// (offset 0 holds page_type, not page_id; see storage.BTreeNode), so every
// caller that needs the id must get it this way, not by reading the
// returned page back.
func (t *BTree) findLeaf(key uint32) (common.PageID, *storage.Page, error) {
	id := t.rootPageID
	for {
		page, err := t.pool.FetchPage(id)
		if err != nil {
			return 0, nil, err
		}
		node := storage.BTreeNode{Page: page}
		if node.IsLeaf() {
			return id, page, nil
		}
		next := storage.AsInternal(page).Lookup(key)
		if err := t.pool.UnpinPage(id, false); err != nil {
			return 0, nil, err
		}
		id = next
	}
}

// GetValue looks up key and returns its RecordID, or ok=false if absent.
func (t *BTree) GetValue(key uint32) (common.RecordID, bool, error) {
	leafID, page, err := t.findLeaf(key)
	if err != nil {
		return common.RecordID{}, false, err
	}
	leaf := storage.AsLeaf(page)
	idx := leaf.Lookup(key)

	if idx < leaf.Size() && leaf.KeyAt(idx) == key {
		value := leaf.ValueAt(idx)
		if err := t.pool.UnpinPage(leafID, false); err != nil {
			return common.RecordID{}, false, err
		}
		return value, true, nil
	}
	if err := t.pool.UnpinPage(leafID, false); err != nil {
		return common.RecordID{}, false, err
	}
	return common.RecordID{}, false, nil
}

// Insert places (key, value) in the tree, splitting leaves and internal
// nodes up to the root as needed.
func (t *BTree) Insert(key uint32, value common.RecordID) error {
	leafID, leafPage, err := t.findLeaf(key)
	if err != nil {
		return err
	}
	leaf := storage.AsLeaf(leafPage)

	if leaf.Insert(key, value) {
		return t.pool.UnpinPage(leafID, true)
	}

	// Insert failed: either a duplicate key, or the leaf is full. Both
	// leave the leaf unchanged, so a fresh lookup tells them apart.
	if idx := leaf.Lookup(key); idx < leaf.Size() && leaf.KeyAt(idx) == key {
		if err := t.pool.UnpinPage(leafID, false); err != nil {
			return err
		}
		return common.NewError("index.Insert", common.KindDuplicateKey, nil)
	}

	siblingPage, siblingID, err := t.pool.NewPage(common.ObjectTypeBPlusTree)
	if err != nil {
		_ = t.pool.UnpinPage(leafID, false)
		return err
	}
	sibling := storage.InitLeaf(siblingPage, leaf.ParentPageID(), t.maxSize)

	middleKey := leaf.Split(key, value, sibling)
	sibling.SetNextPageID(leaf.NextPageID())
	leaf.SetNextPageID(siblingID)

	if err := t.pool.UnpinPage(leafID, true); err != nil {
		_ = t.pool.UnpinPage(siblingID, true)
		return err
	}
	if err := t.pool.UnpinPage(siblingID, true); err != nil {
		return err
	}

	return t.insertIntoParent(leafID, middleKey, siblingID)
}

// insertIntoParent propagates a split's new separator (key, rightID) into
// leftID's parent, creating a new root if leftID was the root.
func (t *BTree) insertIntoParent(leftID common.PageID, key uint32, rightID common.PageID) error {
	leftPage, err := t.pool.FetchPage(leftID)
	if err != nil {
		return err
	}
	parentID := storage.BTreeNode{Page: leftPage}.ParentPageID()
	if err := t.pool.UnpinPage(leftID, false); err != nil {
		return err
	}

	if leftID == t.rootPageID {
		return t.createNewRoot(leftID, key, rightID)
	}

	parentPage, err := t.pool.FetchPage(parentID)
	if err != nil {
		return err
	}
	parent := storage.AsInternal(parentPage)

	if parent.InsertAfter(key, rightID) {
		return t.pool.UnpinPage(parentID, true)
	}

	// Parent is full: split it symmetrically with the leaf case.
	siblingPage, siblingID, err := t.pool.NewPage(common.ObjectTypeBPlusTree)
	if err != nil {
		_ = t.pool.UnpinPage(parentID, false)
		return err
	}
	sibling := storage.InitInternal(siblingPage, parent.ParentPageID(), t.maxSize)

	middleKey := parent.Split(key, rightID, sibling)

	if err := t.reparentChildren(sibling, siblingID); err != nil {
		return err
	}

	if err := t.pool.UnpinPage(parentID, true); err != nil {
		_ = t.pool.UnpinPage(siblingID, true)
		return err
	}
	if err := t.pool.UnpinPage(siblingID, true); err != nil {
		return err
	}

	return t.insertIntoParent(parentID, middleKey, siblingID)
}

// reparentChildren fixes up the parent_page_id of every child now owned
// by sibling (whose page id is siblingID; it cannot be read back from
// sibling's own bytes) after an internal-node split moved them out of
// their old parent.
func (t *BTree) reparentChildren(sibling storage.InternalPage, siblingID common.PageID) error {
	size := sibling.Size()
	for i := uint32(0); i <= size; i++ {
		childID := sibling.ValueAt(i)
		childPage, err := t.pool.FetchPage(childID)
		if err != nil {
			return err
		}
		storage.BTreeNode{Page: childPage}.SetParentPageID(siblingID)
		if err := t.pool.UnpinPage(childID, true); err != nil {
			return err
		}
	}
	return nil
}

// createNewRoot builds a fresh internal root over left/right, recording
// it as the tree's new root and fixing up both children's parent link.
func (t *BTree) createNewRoot(leftID common.PageID, key uint32, rightID common.PageID) error {
	rootPage, rootID, err := t.pool.NewPage(common.ObjectTypeBPlusTree)
	if err != nil {
		return err
	}
	root := storage.InitInternal(rootPage, 0, t.maxSize)
	root.SetFirstChild(leftID)
	root.SetKeyAt(0, key)
	root.SetValueAt(1, rightID)
	root.SetSize(1)

	if err := t.pool.UnpinPage(rootID, true); err != nil {
		return err
	}

	for _, childID := range [2]common.PageID{leftID, rightID} {
		childPage, err := t.pool.FetchPage(childID)
		if err != nil {
			return err
		}
		storage.BTreeNode{Page: childPage}.SetParentPageID(rootID)
		if err := t.pool.UnpinPage(childID, true); err != nil {
			return err
		}
	}

	t.rootPageID = rootID
	return nil
}

// Remove is not yet implemented; the tree supports insertion and lookup
// only.
func (t *BTree) Remove(key uint32) (bool, error) {
	return false, nil
}
