package indexing

import (
	"sync"

	"mit.edu/dsg/pagecache/common"
)

// DefaultBucketSize is the bucket capacity used by the buffer pool's page directory.
const DefaultBucketSize = 4

// maxGlobalDepth bounds directory growth. Reaching it means more than bucketSize keys share all 64 hash bits.
const maxGlobalDepth = 32

type entry[K comparable, V any] struct {
	key   K
	value V
	hash  uint64
}

// bucket holds up to bucketSize entries whose hashes agree on the low `depth` bits.
type bucket[K comparable, V any] struct {
	depth   int
	entries []entry[K, V]
}

func (b *bucket[K, V]) find(key K) int {
	for i := range b.entries {
		if b.entries[i].key == key {
			return i
		}
	}
	return -1
}

// ExtendibleHashTable is a mutable hash index that grows by splitting full buckets and doubling its directory.
//
// The directory is an array of 2^globalDepth slots. Slots do not own buckets: they hold indices into an arena of
// buckets, and every bucket of local depth d is referenced by exactly 2^(globalDepth-d) slots. A split rewrites
// only the slots that referenced the split bucket. Buckets are never merged and the global depth never shrinks.
//
// All methods are safe for concurrent use; a single mutex protects the directory and the arena.
type ExtendibleHashTable[K comparable, V any] struct {
	mu          sync.Mutex
	hash        func(K) uint64
	bucketSize  int
	globalDepth int
	dir         []int
	buckets     []*bucket[K, V]
}

// NewExtendibleHashTable creates a table with a single empty bucket of depth 0. hash must be deterministic; the low
// bits of its result address the directory.
func NewExtendibleHashTable[K comparable, V any](bucketSize int, hash func(K) uint64) *ExtendibleHashTable[K, V] {
	common.Assert(bucketSize > 0, "bucket size must be positive, got %d", bucketSize)
	common.Assert(hash != nil, "hash function must be provided")
	return &ExtendibleHashTable[K, V]{
		hash:       hash,
		bucketSize: bucketSize,
		dir:        []int{0},
		buckets:    []*bucket[K, V]{{depth: 0, entries: make([]entry[K, V], 0, bucketSize)}},
	}
}

func (ht *ExtendibleHashTable[K, V]) indexOf(h uint64) int {
	mask := uint64(1)<<ht.globalDepth - 1
	return int(h & mask)
}

// Find returns the value stored under key.
func (ht *ExtendibleHashTable[K, V]) Find(key K) (value V, ok bool) {
	ht.mu.Lock()
	defer ht.mu.Unlock()

	b := ht.buckets[ht.dir[ht.indexOf(ht.hash(key))]]
	if i := b.find(key); i >= 0 {
		return b.entries[i].value, true
	}
	return value, false
}

// Remove deletes key from the table. Returns false if the key was not present.
func (ht *ExtendibleHashTable[K, V]) Remove(key K) bool {
	ht.mu.Lock()
	defer ht.mu.Unlock()

	b := ht.buckets[ht.dir[ht.indexOf(ht.hash(key))]]
	if len(b.entries) == 0 {
		return false
	}
	i := b.find(key)
	if i < 0 {
		return false
	}
	last := len(b.entries) - 1
	b.entries[i] = b.entries[last]
	b.entries[last] = entry[K, V]{}
	b.entries = b.entries[:last]
	return true
}

// Insert stores value under key. An existing entry is overwritten in place without resizing. Otherwise the target
// bucket is split (doubling the directory when needed) until the bucket addressed by key has room.
func (ht *ExtendibleHashTable[K, V]) Insert(key K, value V) {
	ht.mu.Lock()
	defer ht.mu.Unlock()

	h := ht.hash(key)
	for {
		bi := ht.dir[ht.indexOf(h)]
		b := ht.buckets[bi]
		if i := b.find(key); i >= 0 {
			b.entries[i].value = value
			return
		}
		if len(b.entries) < ht.bucketSize {
			b.entries = append(b.entries, entry[K, V]{key: key, value: value, hash: h})
			return
		}
		ht.split(bi)
	}
}

// split divides the bucket at arena index bi into two buckets one level deeper. Entries and directory slots are
// partitioned on bit `depth` of the entry hash and of the slot index respectively. The low half keeps arena slot
// bi; the high half is appended to the arena.
func (ht *ExtendibleHashTable[K, V]) split(bi int) {
	old := ht.buckets[bi]
	if old.depth == ht.globalDepth {
		common.Assert(ht.globalDepth < maxGlobalDepth, "directory depth limit reached; hash function is degenerate")
		ht.dir = append(ht.dir, ht.dir...)
		ht.globalDepth++
	}

	mask := uint64(1) << old.depth
	low := &bucket[K, V]{depth: old.depth + 1, entries: make([]entry[K, V], 0, ht.bucketSize)}
	high := &bucket[K, V]{depth: old.depth + 1, entries: make([]entry[K, V], 0, ht.bucketSize)}
	for _, e := range old.entries {
		if e.hash&mask != 0 {
			high.entries = append(high.entries, e)
		} else {
			low.entries = append(low.entries, e)
		}
	}

	ht.buckets[bi] = low
	ht.buckets = append(ht.buckets, high)
	hi := len(ht.buckets) - 1
	for slot, target := range ht.dir {
		if target == bi && uint64(slot)&mask != 0 {
			ht.dir[slot] = hi
		}
	}
}

// GlobalDepth returns the number of hash bits used to address the directory.
func (ht *ExtendibleHashTable[K, V]) GlobalDepth() int {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	return ht.globalDepth
}

// LocalDepth returns the depth of the bucket referenced by the given directory slot.
func (ht *ExtendibleHashTable[K, V]) LocalDepth(slot int) int {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	common.Assert(slot >= 0 && slot < len(ht.dir), "directory slot %d out of range [0, %d)", slot, len(ht.dir))
	return ht.buckets[ht.dir[slot]].depth
}

// NumBuckets returns the number of distinct buckets.
func (ht *ExtendibleHashTable[K, V]) NumBuckets() int {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	return len(ht.buckets)
}

// Len returns the number of stored entries.
func (ht *ExtendibleHashTable[K, V]) Len() int {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	n := 0
	for _, b := range ht.buckets {
		n += len(b.entries)
	}
	return n
}
