package storage

import (
	"math/bits"

	"mit.edu/dsg/pagecache/common"
)

// Bitmap is a fixed-size set of bits backed by 64-bit words. Scans skip full words at a time.
type Bitmap struct {
	words   []uint64
	numBits int
}

// NewBitmap creates a bitmap of numBits zero bits.
func NewBitmap(numBits int) Bitmap {
	common.Assert(numBits >= 0, "negative bitmap size")
	return Bitmap{
		words:   make([]uint64, (numBits+63)/64),
		numBits: numBits,
	}
}

// Len returns the number of bits in the bitmap.
func (b *Bitmap) Len() int {
	return b.numBits
}

// SetBit sets the bit at index i to the given value.
// Returns the previous value of the bit.
func (b *Bitmap) SetBit(i int, on bool) (originalValue bool) {
	common.Assert(i >= 0 && i < b.numBits, "bit index %d out of bounds", i)
	mask := uint64(1) << uint(i%64)
	ptr := &b.words[i/64]
	originalValue = (*ptr & mask) != 0
	if on {
		*ptr |= mask
	} else {
		*ptr &^= mask
	}
	return originalValue
}

// LoadBit returns the value of the bit at index i.
func (b *Bitmap) LoadBit(i int) bool {
	common.Assert(i >= 0 && i < b.numBits, "bit index %d out of bounds", i)
	return (b.words[i/64] & (1 << uint(i%64))) != 0
}

// FindFirstZero searches for the first bit set to 0 (false) in the bitmap.
// It begins the search at startHint and scans to the end of the bitmap.
// If no zero bit is found, it wraps around and scans from the beginning (index 0)
// up to startHint.
//
// Returns the index of the first zero bit found, or -1 if the bitmap is entirely full.
func (b *Bitmap) FindFirstZero(startHint int) int {
	if b.numBits == 0 {
		return -1
	}
	if r := b.findFirstZeroInRange(startHint, b.numBits); r != -1 {
		return r
	}
	return b.findFirstZeroInRange(0, startHint)
}

func (b *Bitmap) findFirstZeroInRange(start, end int) int {
	common.Assert(start >= 0 && start <= end && end <= b.numBits, "invalid Bitmap range")
	if start == end {
		return -1
	}
	startWord := start / 64
	endWord := (end - 1) / 64

	for i := startWord; i <= endWord; i++ {
		zeros := ^b.words[i]
		if i == startWord {
			zeros &= ^uint64(0) << uint(start%64)
		}
		if zeros == 0 {
			continue
		}
		idx := i*64 + bits.TrailingZeros64(zeros)
		if idx >= end {
			return -1
		}
		return idx
	}
	return -1
}

// freeFrameSet tracks which frames hold no page. A set bit marks a frame in use, so the lowest free frame is the
// first zero bit.
type freeFrameSet struct {
	used    Bitmap
	numFree int
}

// newFreeFrameSet returns a set in which every one of numFrames frames is free.
func newFreeFrameSet(numFrames int) *freeFrameSet {
	return &freeFrameSet{used: NewBitmap(numFrames), numFree: numFrames}
}

// take removes and returns the lowest free frame.
func (s *freeFrameSet) take() (common.FrameID, bool) {
	if s.numFree == 0 {
		return common.InvalidFrameID, false
	}
	idx := s.used.FindFirstZero(0)
	common.Assert(idx >= 0, "free count %d but no free frame", s.numFree)
	s.used.SetBit(idx, true)
	s.numFree--
	return common.FrameID(idx), true
}

// put returns a frame to the set.
func (s *freeFrameSet) put(frame common.FrameID) {
	wasUsed := s.used.SetBit(int(frame), false)
	common.Assert(wasUsed, "frame %d is already free", frame)
	s.numFree++
}

// contains reports whether the frame is free.
func (s *freeFrameSet) contains(frame common.FrameID) bool {
	return !s.used.LoadBit(int(frame))
}

func (s *freeFrameSet) len() int {
	return s.numFree
}
