package storage

import (
	"sync"

	"mit.edu/dsg/pagecache/common"
)

// pageFrameMetadata is owned by the BufferPool and only touched under its lock.
type pageFrameMetadata struct {
	pageID   common.PageID
	pinCount int
	dirty    bool
}

// PageFrame represents a physical page of data in memory.
// It holds the raw bytes of the page and acts as the container for Buffer Pool management.
type PageFrame struct {
	// Bytes holds the raw physical data of the page.
	Bytes [common.PageSize]byte
	// PageLatch lets callers coordinate concurrent readers and writers of Bytes. The BufferPool never acquires it.
	PageLatch sync.RWMutex

	pageFrameMetadata
}

// PageID returns the id of the page currently held by the frame. The value is only stable while the caller holds a
// pin on the frame.
func (frame *PageFrame) PageID() common.PageID {
	return frame.pageID
}

// reset returns the frame to its free state: no page, no pins, clean, zeroed bytes.
func (frame *PageFrame) reset() {
	frame.pageID = common.InvalidPageID
	frame.pinCount = 0
	frame.dirty = false
	clear(frame.Bytes[:])
}
