// Package buffer implements the LRU Replacer and the Buffer Pool Manager
// that sit between the disk manager and every higher layer: no component
// above buffer ever touches a page's bytes without going through a pinned
// frame obtained here.
package buffer

import (
	"container/list"
	"sync"

	"github.com/luminadb/luminadb/common"
)

// LRUReplacer tracks which unpinned frames are eligible for eviction and
// picks the least recently used one. It knows nothing about pages, pins,
// or dirty bits: the pool adds a frame to it exactly when that frame's
// pin count drops to zero, and removes it exactly when the frame is pinned
// again or chosen as a victim.
type LRUReplacer struct {
	mu      sync.Mutex
	order   *list.List // front = most recently unpinned, back = victim
	entries map[common.FrameID]*list.Element
}

// NewLRUReplacer returns an empty replacer sized for capacity frames.
func NewLRUReplacer(capacity int) *LRUReplacer {
	return &LRUReplacer{
		order:   list.New(),
		entries: make(map[common.FrameID]*list.Element, capacity),
	}
}

// Unpin marks frame as evictable. A frame already tracked is a no-op.
func (r *LRUReplacer) Unpin(frame common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[frame]; ok {
		return
	}
	r.entries[frame] = r.order.PushFront(frame)
}

// Pin removes frame from eviction consideration. A frame not tracked is a
// no-op (the pool calls Pin on every fetch regardless of whether the
// frame was actually in the replacer).
func (r *LRUReplacer) Pin(frame common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if elem, ok := r.entries[frame]; ok {
		r.order.Remove(elem)
		delete(r.entries, frame)
	}
}

// Victim evicts and returns the least recently unpinned frame, or
// ok=false if every tracked frame is pinned (the replacer is empty).
func (r *LRUReplacer) Victim() (frame common.FrameID, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	back := r.order.Back()
	if back == nil {
		return 0, false
	}
	r.order.Remove(back)
	frame = back.Value.(common.FrameID)
	delete(r.entries, frame)
	return frame, true
}

// Size reports how many frames are currently evictable.
func (r *LRUReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}
