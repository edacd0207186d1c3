package buffer

import (
	"sync"

	"github.com/luminadb/luminadb/common"
	"github.com/luminadb/luminadb/disk"
	"github.com/luminadb/luminadb/storage"
)

// frame owns one page buffer plus the metadata the pool needs to decide
// whether it can be reused: pin count, dirty bit, and which page (if any)
// currently lives in it.
type frame struct {
	page       storage.Page
	pinCount   uint32
	isDirty    bool
	resident   bool
	residentID common.PageID
}

// Pool is the Buffer Pool Manager: the single place in the engine that
// turns a PageID into bytes you're allowed to read or write. Every method
// runs under one coarse mutex; one latch is exactly as much synchronization
// as a single caller at a time needs.
type Pool struct {
	mu sync.Mutex

	disk     *disk.Manager
	replacer *LRUReplacer
	logger   common.Logger

	frames    []frame
	freeList  []common.FrameID
	pageTable map[common.PageID]common.FrameID

	nextPageID common.PageID
}

// NewPool creates a pool of poolSize frames over d. It primes next_page_id
// from the disk manager's current page count, so ids stay unique across a
// close/reopen cycle.
func NewPool(d *disk.Manager, poolSize int, logger common.Logger) *Pool {
	if logger == nil {
		logger = common.NopLogger
	}
	if poolSize < 1 {
		poolSize = 1
	}

	p := &Pool{
		disk:       d,
		replacer:   NewLRUReplacer(poolSize),
		logger:     logger,
		frames:     make([]frame, poolSize),
		freeList:   make([]common.FrameID, poolSize),
		pageTable:  make(map[common.PageID]common.FrameID, poolSize),
		nextPageID: common.PageID(d.PageCount()),
	}
	for i := range p.freeList {
		p.freeList[i] = common.FrameID(i)
	}
	return p
}

// acquireFrame finds a frame to hold a page, preferring the free-list and
// falling back to evicting the replacer's victim. It must be called with
// mu held. Returns ok=false if the pool is exhausted (every frame pinned).
func (p *Pool) acquireFrame() (common.FrameID, bool) {
	if n := len(p.freeList); n > 0 {
		id := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return id, true
	}

	victim, ok := p.replacer.Victim()
	if !ok {
		return 0, false
	}

	f := &p.frames[victim]
	if f.isDirty {
		if err := p.disk.WritePage(f.residentID, f.page.Bytes()); err != nil {
			p.logger.Printf("buffer.acquireFrame: flushing victim frame %d: %v", victim, err)
		}
	}
	delete(p.pageTable, f.residentID)
	return victim, true
}

// FetchPage pins and returns the page at id, reading it from disk on first
// access. Callers must call UnpinPage exactly once for every successful
// FetchPage/NewPage.
func (p *Pool) FetchPage(id common.PageID) (*storage.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if fid, ok := p.pageTable[id]; ok {
		f := &p.frames[fid]
		f.pinCount++
		p.replacer.Pin(fid)
		return &f.page, nil
	}

	fid, ok := p.acquireFrame()
	if !ok {
		return nil, common.NewError("buffer.FetchPage", common.KindPoolExhausted, nil)
	}

	f := &p.frames[fid]
	if err := p.disk.ReadPage(id, f.page.Bytes()); err != nil {
		p.freeList = append(p.freeList, fid)
		return nil, common.NewError("buffer.FetchPage", common.KindIO, err)
	}

	f.resident, f.residentID = true, id
	f.pinCount, f.isDirty = 1, false
	p.pageTable[id] = fid
	p.replacer.Pin(fid)
	return &f.page, nil
}

// NewPage allocates a fresh page id and pins a frame for it. For
// objType == ObjectTypeBPlusTree only the generic {page_id, object_type}
// pair is stamped; the caller writes a BTreeHeader over the same bytes via
// storage.InitLeaf/InitInternal. Every other object type gets a full
// slotted-page header. The new page is never written to disk here;
// persistence happens on eviction, FlushPage, or Close.
func (p *Pool) NewPage(objType common.ObjectType) (*storage.Page, common.PageID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fid, ok := p.acquireFrame()
	if !ok {
		return nil, 0, common.NewError("buffer.NewPage", common.KindPoolExhausted, nil)
	}

	id := p.nextPageID
	p.nextPageID++

	f := &p.frames[fid]
	if objType == common.ObjectTypeBPlusTree {
		buf := f.page.Bytes()
		for i := range buf {
			buf[i] = 0
		}
		f.page.StampIdentity(id, objType)
	} else {
		f.page.Init(id, objType)
	}

	f.resident, f.residentID = true, id
	f.pinCount, f.isDirty = 1, false
	p.pageTable[id] = fid
	p.replacer.Pin(fid)
	return &f.page, id, nil
}

// UnpinPage decrements id's pin count, marking it dirty if dirty is true.
// Once the count reaches zero the frame becomes eligible for eviction.
func (p *Pool) UnpinPage(id common.PageID, dirty bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	fid, ok := p.pageTable[id]
	if !ok {
		return common.NewError("buffer.UnpinPage", common.KindUnknownPage, nil)
	}
	f := &p.frames[fid]
	if dirty {
		f.isDirty = true
	}
	if f.pinCount == 0 {
		return common.NewError("buffer.UnpinPage", common.KindDoubleUnpin, nil)
	}
	f.pinCount--
	if f.pinCount == 0 {
		p.replacer.Unpin(fid)
	}
	return nil
}

// FlushPage writes id's current bytes to disk and clears its dirty bit,
// without evicting it.
func (p *Pool) FlushPage(id common.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	fid, ok := p.pageTable[id]
	if !ok {
		return common.NewError("buffer.FlushPage", common.KindUnknownPage, nil)
	}
	f := &p.frames[fid]
	if err := p.disk.WritePage(id, f.page.Bytes()); err != nil {
		return common.NewError("buffer.FlushPage", common.KindIO, err)
	}
	f.isDirty = false
	return nil
}

// DeletePage removes id from the pool and returns its frame to the
// free-list. It refuses (returning false) if the page is resident and
// still pinned. Disk space is never reclaimed.
func (p *Pool) DeletePage(id common.PageID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fid, ok := p.pageTable[id]
	if !ok {
		return true, nil
	}
	f := &p.frames[fid]
	if f.pinCount > 0 {
		return false, nil
	}

	p.replacer.Pin(fid) // remove from replacer if present; no-op otherwise
	delete(p.pageTable, id)
	f.resident, f.isDirty, f.pinCount = false, false, 0
	p.freeList = append(p.freeList, fid)
	return true, nil
}

// Close flushes every dirty resident frame, unconditionally, then closes
// the underlying disk manager. It does not check for outstanding pins;
// callers are responsible for having unpinned everything first.
func (p *Pool) Close() error {
	p.mu.Lock()
	for id, fid := range p.pageTable {
		f := &p.frames[fid]
		if f.isDirty {
			if err := p.disk.WritePage(id, f.page.Bytes()); err != nil {
				p.logger.Printf("buffer.Close: flushing page %d: %v", id, err)
			}
		}
	}
	p.mu.Unlock()
	return p.disk.Close()
}
