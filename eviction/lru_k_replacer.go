package eviction

import (
	"fmt"
	"sync"

	"github.com/tidwall/btree"
	"mit.edu/dsg/pagecache/common"
)

// rankKey orders evictable frames from best to worst victim.
//
// A frame with fewer than k accesses has infinite backward k-distance and is keyed by its most recent access; such
// frames come first, oldest access first. A frame with k accesses is keyed by its k-th most recent access, and the
// smallest such timestamp has the largest backward k-distance. Neither key moves between accesses, so the order is
// stable while frames sit in the tree.
type rankKey struct {
	finite bool
	ts     uint64
	frame  common.FrameID
}

func rankLess(a, b rankKey) bool {
	if a.finite != b.finite {
		return !a.finite
	}
	if a.ts != b.ts {
		return a.ts < b.ts
	}
	return a.frame < b.frame
}

type lruKNode struct {
	// history holds at most k timestamps, oldest first.
	history   []uint64
	evictable bool
}

// LRUKReplacer evicts the evictable frame with the largest backward k-distance: the gap between now and its k-th most
// recent access. Frames accessed fewer than k times have infinite distance and are evicted first, least recently
// used first.
type LRUKReplacer struct {
	mu               sync.Mutex
	k                int
	numFrames        int
	currentTimestamp uint64
	nodes            []*lruKNode
	evictable        *btree.BTreeG[rankKey]
}

// NewLRUKReplacer creates a replacer tracking frames [0, numFrames).
func NewLRUKReplacer(numFrames, k int) *LRUKReplacer {
	common.Assert(numFrames > 0, "replacer needs at least one frame")
	common.Assert(k > 0, "k must be positive, got %d", k)
	return &LRUKReplacer{
		k:         k,
		numFrames: numFrames,
		nodes:     make([]*lruKNode, numFrames),
		evictable: btree.NewBTreeGOptions(rankLess, btree.Options{NoLocks: true}),
	}
}

func (r *LRUKReplacer) rank(frame common.FrameID, node *lruKNode) rankKey {
	if len(node.history) < r.k {
		return rankKey{finite: false, ts: node.history[len(node.history)-1], frame: frame}
	}
	return rankKey{finite: true, ts: node.history[0], frame: frame}
}

func (r *LRUKReplacer) RecordAccess(frame common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	checkFrame(frame, r.numFrames)

	node := r.nodes[frame]
	if node == nil {
		node = &lruKNode{history: make([]uint64, 0, r.k)}
		r.nodes[frame] = node
	} else if node.evictable {
		r.evictable.Delete(r.rank(frame, node))
	}

	if len(node.history) == r.k {
		copy(node.history, node.history[1:])
		node.history = node.history[:r.k-1]
	}
	node.history = append(node.history, r.currentTimestamp)
	r.currentTimestamp++

	if node.evictable {
		r.evictable.Set(r.rank(frame, node))
	}
}

func (r *LRUKReplacer) SetEvictable(frame common.FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	checkFrame(frame, r.numFrames)

	node := r.nodes[frame]
	if node == nil || node.evictable == evictable {
		return
	}
	node.evictable = evictable
	if evictable {
		r.evictable.Set(r.rank(frame, node))
	} else {
		r.evictable.Delete(r.rank(frame, node))
	}
}

func (r *LRUKReplacer) Remove(frame common.FrameID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	checkFrame(frame, r.numFrames)

	node := r.nodes[frame]
	if node == nil {
		return nil
	}
	if !node.evictable {
		return fmt.Errorf("remove frame %d: %w", frame, ErrNotEvictable)
	}
	r.evictable.Delete(r.rank(frame, node))
	r.nodes[frame] = nil
	return nil
}

func (r *LRUKReplacer) Victim() (common.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	victim, ok := r.evictable.Min()
	if !ok {
		return common.InvalidFrameID, false
	}
	return victim.frame, true
}

func (r *LRUKReplacer) Evict() (common.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	victim, ok := r.evictable.PopMin()
	if !ok {
		return common.InvalidFrameID, false
	}
	r.nodes[victim.frame] = nil
	return victim.frame, true
}

func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictable.Len()
}

// BackwardKDistance reports the backward k-distance of a tracked frame relative to the current logical time.
// infinite is true when the frame has fewer than k recorded accesses. ok is false for untracked frames.
func (r *LRUKReplacer) BackwardKDistance(frame common.FrameID) (distance uint64, infinite bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	checkFrame(frame, r.numFrames)

	node := r.nodes[frame]
	if node == nil {
		return 0, false, false
	}
	if len(node.history) < r.k {
		return 0, true, true
	}
	return r.currentTimestamp - node.history[0], false, true
}
