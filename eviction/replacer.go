// Package eviction implements the replacement policies the buffer pool consults when it needs to reuse a frame.
//
// A Replacer only ever sees frame ids. The buffer pool records an access every time a frame is pinned, marks the
// frame non-evictable while its pin count is positive, and evictable again once the count drops to zero. Evict picks
// a victim among evictable frames and forgets its history.
package eviction

import (
	"errors"
	"fmt"

	"mit.edu/dsg/pagecache/common"
)

// ErrNotEvictable is returned by Remove when the frame is still pinned.
var ErrNotEvictable = errors.New("frame is not evictable")

// Replacer ranks frames for eviction. Implementations must be safe for concurrent use.
type Replacer interface {
	// RecordAccess notes that the frame was accessed at the current logical time.
	RecordAccess(frame common.FrameID)
	// SetEvictable toggles whether the frame may be chosen as a victim. Frames without recorded history are ignored.
	SetEvictable(frame common.FrameID, evictable bool)
	// Remove discards all history of an evictable frame without evicting it. Removing an untracked frame is a
	// no-op; removing a non-evictable frame returns ErrNotEvictable.
	Remove(frame common.FrameID) error
	// Victim returns the frame Evict would choose without changing any state. Returns false if no frame is
	// evictable.
	Victim() (common.FrameID, bool)
	// Evict chooses a victim among evictable frames, forgets its history and returns it. Returns false if no frame
	// is evictable.
	Evict() (common.FrameID, bool)
	// Size returns the number of evictable frames.
	Size() int
}

// Policy names a replacement policy.
type Policy string

const (
	PolicyLRUK Policy = "lru-k"
	PolicyLRU  Policy = "lru"
)

// New builds the replacer for the given policy over numFrames frames. k is ignored by PolicyLRU.
func New(policy Policy, numFrames, k int) (Replacer, error) {
	switch policy {
	case PolicyLRUK, "":
		return NewLRUKReplacer(numFrames, k), nil
	case PolicyLRU:
		return NewLRUReplacer(numFrames), nil
	}
	return nil, fmt.Errorf("unknown replacement policy %q", policy)
}

func checkFrame(frame common.FrameID, numFrames int) {
	common.Assert(frame >= 0 && int(frame) < numFrames, "frame id %d out of range [0, %d)", frame, numFrames)
}
