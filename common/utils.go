package common

import "fmt"

// Assert checks a condition and panics if it is false.
//
// Assertions guard invariants of the cache's own data structures (a negative pin count, a directory slot pointing
// at a bucket deeper than the directory, a frame id outside the pool). Conditions a caller can legitimately cause,
// such as unpinning a page that is not resident, are reported through return values instead.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

const (
	offset64 = 14695981039346656037
	prime64  = 1099511628211
)

// HashInt64 computes the 64-bit FNV-1a hash of the little-endian encoding of v without allocating.
func HashInt64(v int64) uint64 {
	var h uint64 = offset64
	u := uint64(v)
	for i := 0; i < 8; i++ {
		h ^= u & 0xFF
		h *= prime64
		u >>= 8
	}
	return h
}

// HashPageID is the hash function used by the page directory.
func HashPageID(p PageID) uint64 {
	return HashInt64(int64(p))
}
