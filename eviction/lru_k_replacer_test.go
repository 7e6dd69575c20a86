package eviction

import (
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mit.edu/dsg/pagecache/common"
)

func evictExpect(t *testing.T, r Replacer, expected common.FrameID) {
	t.Helper()
	frame, ok := r.Evict()
	require.True(t, ok, "expected a victim")
	assert.Equal(t, expected, frame, "unexpected victim")
}

func TestLRUKReplacer_Sample(t *testing.T) {
	r := NewLRUKReplacer(7, 2)

	for i := 1; i <= 6; i++ {
		r.RecordAccess(common.FrameID(i))
	}
	for i := 1; i <= 5; i++ {
		r.SetEvictable(common.FrameID(i), true)
	}
	r.SetEvictable(6, false)
	assert.Equal(t, 5, r.Size())

	// Frame 1 now has two accesses; every other frame has infinite backward k-distance.
	r.RecordAccess(1)

	evictExpect(t, r, 2)
	evictExpect(t, r, 3)
	evictExpect(t, r, 4)
	assert.Equal(t, 2, r.Size())

	r.RecordAccess(3)
	r.RecordAccess(4)
	r.RecordAccess(5)
	r.RecordAccess(4)
	r.SetEvictable(3, true)
	r.SetEvictable(4, true)
	assert.Equal(t, 4, r.Size())

	// Frame 3 is the only evictable frame with fewer than two accesses.
	evictExpect(t, r, 3)
	assert.Equal(t, 3, r.Size())

	r.SetEvictable(6, true)
	assert.Equal(t, 4, r.Size())
	evictExpect(t, r, 6)
	assert.Equal(t, 3, r.Size())

	r.SetEvictable(1, false)
	assert.Equal(t, 2, r.Size())
	evictExpect(t, r, 5)
	assert.Equal(t, 1, r.Size())

	r.RecordAccess(1)
	r.RecordAccess(1)
	r.SetEvictable(1, true)
	assert.Equal(t, 2, r.Size())

	evictExpect(t, r, 4)
	assert.Equal(t, 1, r.Size())
	evictExpect(t, r, 1)
	assert.Equal(t, 0, r.Size())

	_, ok := r.Evict()
	assert.False(t, ok)
	assert.Equal(t, 0, r.Size())
}

// TestLRUKReplacer_InfiniteDistancePreferred checks that a frame with fewer than k accesses is always chosen over
// frames with k or more accesses, even if those were accessed long ago.
func TestLRUKReplacer_InfiniteDistancePreferred(t *testing.T) {
	r := NewLRUKReplacer(4, 3)
	for i := 0; i < 3; i++ {
		r.RecordAccess(0)
		r.RecordAccess(1)
	}
	r.RecordAccess(2)
	r.RecordAccess(2)
	for f := 0; f < 3; f++ {
		r.SetEvictable(common.FrameID(f), true)
	}

	_, infinite, ok := r.BackwardKDistance(2)
	require.True(t, ok)
	assert.True(t, infinite)
	d0, infinite, ok := r.BackwardKDistance(0)
	require.True(t, ok)
	assert.False(t, infinite)
	d1, _, _ := r.BackwardKDistance(1)
	assert.Greater(t, d0, d1, "frame 0's third most recent access is older")

	evictExpect(t, r, 2)
	evictExpect(t, r, 0)
	evictExpect(t, r, 1)
}

// TestLRUKReplacer_InfiniteTieBreak checks that frames with infinite distance are ordered by their most recent access.
func TestLRUKReplacer_InfiniteTieBreak(t *testing.T) {
	r := NewLRUKReplacer(3, 3)
	r.RecordAccess(0) // t=0
	r.RecordAccess(1) // t=1
	r.RecordAccess(2) // t=2
	r.RecordAccess(0) // t=3, frame 0 most recent access is now the latest
	for f := 0; f < 3; f++ {
		r.SetEvictable(common.FrameID(f), true)
	}
	evictExpect(t, r, 1)
	evictExpect(t, r, 2)
	evictExpect(t, r, 0)
}

func TestLRUKReplacer_HistoryBoundedToK(t *testing.T) {
	r := NewLRUKReplacer(2, 2)
	for i := 0; i < 10; i++ {
		r.RecordAccess(0)
	}
	r.RecordAccess(1)
	r.RecordAccess(1)
	r.mu.Lock()
	assert.Len(t, r.nodes[0].history, 2)
	assert.Equal(t, []uint64{8, 9}, r.nodes[0].history)
	r.mu.Unlock()

	r.SetEvictable(0, true)
	r.SetEvictable(1, true)
	// Frame 0's second most recent access (t=8) precedes frame 1's (t=10).
	evictExpect(t, r, 0)
}

func TestLRUKReplacer_AccessWhileEvictable(t *testing.T) {
	r := NewLRUKReplacer(2, 2)
	r.RecordAccess(0)
	r.RecordAccess(1)
	r.SetEvictable(0, true)
	r.SetEvictable(1, true)

	// Re-ranking an evictable frame must move it within the candidate set.
	r.RecordAccess(0)
	assert.Equal(t, 2, r.Size())
	evictExpect(t, r, 1)
	evictExpect(t, r, 0)
}

func TestLRUKReplacer_Victim(t *testing.T) {
	r := NewLRUKReplacer(3, 2)
	_, ok := r.Victim()
	assert.False(t, ok)

	for f := 0; f < 3; f++ {
		r.RecordAccess(common.FrameID(f))
		r.RecordAccess(common.FrameID(f))
		r.SetEvictable(common.FrameID(f), true)
	}
	d0, _, _ := r.BackwardKDistance(0)

	// Victim is repeatable and leaves history and size alone.
	for i := 0; i < 3; i++ {
		frame, ok := r.Victim()
		require.True(t, ok)
		assert.Equal(t, common.FrameID(0), frame)
	}
	assert.Equal(t, 3, r.Size())
	d, infinite, ok := r.BackwardKDistance(0)
	require.True(t, ok)
	assert.False(t, infinite)
	assert.Equal(t, d0, d)

	evictExpect(t, r, 0)
	frame, ok := r.Victim()
	require.True(t, ok)
	assert.Equal(t, common.FrameID(1), frame)
}

func TestLRUKReplacer_Remove(t *testing.T) {
	r := NewLRUKReplacer(3, 2)

	// Untracked frames are ignored.
	assert.NoError(t, r.Remove(0))
	r.SetEvictable(0, true)
	assert.Equal(t, 0, r.Size())

	r.RecordAccess(0)
	err := r.Remove(0)
	assert.True(t, errors.Is(err, ErrNotEvictable), "pinned frames cannot be removed")

	r.SetEvictable(0, true)
	require.Equal(t, 1, r.Size())
	require.NoError(t, r.Remove(0))
	assert.Equal(t, 0, r.Size())
	_, _, ok := r.BackwardKDistance(0)
	assert.False(t, ok, "history must be gone after Remove")

	// A frame reused after Remove starts with a clean history.
	r.RecordAccess(0)
	_, infinite, ok := r.BackwardKDistance(0)
	require.True(t, ok)
	assert.True(t, infinite)
}

func TestLRUKReplacer_OutOfRange(t *testing.T) {
	r := NewLRUKReplacer(2, 2)
	assert.Panics(t, func() { r.RecordAccess(2) })
	assert.Panics(t, func() { r.SetEvictable(-1, true) })
}

// TestLRUKReplacer_MatchesBruteForce compares the ordered-set implementation with a direct scan computing backward
// k-distances over a random workload.
func TestLRUKReplacer_MatchesBruteForce(t *testing.T) {
	const numFrames = 16
	const k = 3
	r := NewLRUKReplacer(numFrames, k)
	rng := rand.New(rand.NewSource(7))

	type ref struct {
		history   []uint64
		evictable bool
	}
	shadow := make(map[common.FrameID]*ref)
	var now uint64

	bruteVictim := func() (common.FrameID, bool) {
		best := common.InvalidFrameID
		var bestInf bool
		var bestTS uint64
		for f, e := range shadow {
			if !e.evictable {
				continue
			}
			inf := len(e.history) < k
			var ts uint64
			if inf {
				ts = e.history[len(e.history)-1]
			} else {
				ts = e.history[len(e.history)-k]
			}
			better := best == common.InvalidFrameID ||
				(inf && !bestInf) ||
				(inf == bestInf && ts < bestTS)
			if better {
				best, bestInf, bestTS = f, inf, ts
			}
		}
		return best, best != common.InvalidFrameID
	}

	for i := 0; i < 5000; i++ {
		f := common.FrameID(rng.Intn(numFrames))
		switch rng.Intn(4) {
		case 0, 1:
			r.RecordAccess(f)
			e, ok := shadow[f]
			if !ok {
				e = &ref{}
				shadow[f] = e
			}
			e.history = append(e.history, now)
			now++
		case 2:
			ev := rng.Intn(2) == 0
			r.SetEvictable(f, ev)
			if e, ok := shadow[f]; ok {
				e.evictable = ev
			}
		case 3:
			expected, expectedOK := bruteVictim()
			got, ok := r.Evict()
			require.Equal(t, expectedOK, ok)
			require.Equal(t, expected, got, "victim mismatch at op %d", i)
			if ok {
				delete(shadow, got)
			}
		}
	}
}

func TestLRUKReplacer_Concurrent(t *testing.T) {
	const numFrames = 64
	r := NewLRUKReplacer(numFrames, 2)
	var wg sync.WaitGroup
	for tid := 0; tid < 8; tid++ {
		wg.Add(1)
		go func(tid int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(tid)))
			for i := 0; i < 2000; i++ {
				f := common.FrameID(rng.Intn(numFrames))
				r.RecordAccess(f)
				r.SetEvictable(f, rng.Intn(2) == 0)
				if rng.Intn(10) == 0 {
					r.Evict()
				}
			}
		}(tid)
	}
	wg.Wait()

	n := r.Size()
	for i := 0; i < n; i++ {
		_, ok := r.Evict()
		assert.True(t, ok)
	}
	assert.Equal(t, 0, r.Size())
}
