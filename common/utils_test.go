package common

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashInt64MatchesFNV(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 42, 1 << 40, -(1 << 62)} {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h := fnv.New64a()
		_, _ = h.Write(buf[:])
		assert.Equal(t, h.Sum64(), HashInt64(v), "hash mismatch for %d", v)
	}
	assert.Equal(t, HashInt64(7), HashPageID(PageID(7)))
}

func TestAssert(t *testing.T) {
	assert.NotPanics(t, func() { Assert(true, "never") })
	assert.PanicsWithValue(t, "bad frame 7", func() { Assert(false, "bad frame %d", 7) })
}

func TestErrorMatchesByCode(t *testing.T) {
	err := NewError(NoFreeFrameError, "fetch %s", PageID(3))
	assert.True(t, errors.Is(err, ErrNoFreeFrame))
	assert.False(t, errors.Is(err, ErrInvalidConfig))

	wrapped := fmt.Errorf("create page: %w", err)
	assert.True(t, errors.Is(wrapped, ErrNoFreeFrame))
	assert.Contains(t, wrapped.Error(), "NoFreeFrameError")
}

func TestPageIDString(t *testing.T) {
	assert.Equal(t, "Page(12)", PageID(12).String())
	assert.Equal(t, "Page(nil)", InvalidPageID.String())
	assert.True(t, InvalidPageID.IsNil())
	assert.False(t, PageID(0).IsNil())
}
