package eviction

import (
	"fmt"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"mit.edu/dsg/pagecache/common"
)

type lruEntry struct {
	evictable bool
}

// LRUReplacer evicts the least recently accessed evictable frame. Recency is kept by a simplelru list sized to the
// pool, so the list itself never drops entries.
type LRUReplacer struct {
	mu        sync.Mutex
	numFrames int
	order     *simplelru.LRU[common.FrameID, *lruEntry]
	size      int
}

// NewLRUReplacer creates a replacer tracking frames [0, numFrames).
func NewLRUReplacer(numFrames int) *LRUReplacer {
	common.Assert(numFrames > 0, "replacer needs at least one frame")
	order, err := simplelru.NewLRU[common.FrameID, *lruEntry](numFrames, nil)
	common.Assert(err == nil, "create lru list: %v", err)
	return &LRUReplacer{
		numFrames: numFrames,
		order:     order,
	}
}

func (r *LRUReplacer) RecordAccess(frame common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	checkFrame(frame, r.numFrames)

	// Get promotes a tracked frame to most recently used.
	if _, ok := r.order.Get(frame); ok {
		return
	}
	r.order.Add(frame, &lruEntry{})
}

func (r *LRUReplacer) SetEvictable(frame common.FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	checkFrame(frame, r.numFrames)

	e, ok := r.order.Peek(frame)
	if !ok || e.evictable == evictable {
		return
	}
	e.evictable = evictable
	if evictable {
		r.size++
	} else {
		r.size--
	}
}

func (r *LRUReplacer) Remove(frame common.FrameID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	checkFrame(frame, r.numFrames)

	e, ok := r.order.Peek(frame)
	if !ok {
		return nil
	}
	if !e.evictable {
		return fmt.Errorf("remove frame %d: %w", frame, ErrNotEvictable)
	}
	r.order.Remove(frame)
	r.size--
	return nil
}

// oldestEvictable requires r.mu.
func (r *LRUReplacer) oldestEvictable() (common.FrameID, bool) {
	if r.size == 0 {
		return common.InvalidFrameID, false
	}
	// Keys are ordered oldest to newest.
	for _, frame := range r.order.Keys() {
		if e, _ := r.order.Peek(frame); e.evictable {
			return frame, true
		}
	}
	return common.InvalidFrameID, false
}

func (r *LRUReplacer) Victim() (common.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.oldestEvictable()
}

func (r *LRUReplacer) Evict() (common.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frame, ok := r.oldestEvictable()
	if ok {
		r.order.Remove(frame)
		r.size--
	}
	return frame, ok
}

func (r *LRUReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}
