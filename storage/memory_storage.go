package storage

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"mit.edu/dsg/pagecache/common"
)

// MemoryStorage is a StorageManager that keeps pages in process memory. Nothing survives Close.
type MemoryStorage struct {
	pages  *xsync.MapOf[common.PageID, *[common.PageSize]byte]
	closed atomic.Bool
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{pages: xsync.NewMapOf[common.PageID, *[common.PageSize]byte]()}
}

func (m *MemoryStorage) ReadPage(pageID common.PageID, buf []byte) error {
	common.Assert(len(buf) == common.PageSize, "buffer size must match PageSize")
	if m.closed.Load() {
		return common.ErrClosed
	}
	if page, ok := m.pages.Load(pageID); ok {
		copy(buf, page[:])
		return nil
	}
	clear(buf)
	return nil
}

func (m *MemoryStorage) WritePage(pageID common.PageID, buf []byte) error {
	common.Assert(len(buf) == common.PageSize, "buffer size must match PageSize")
	if m.closed.Load() {
		return common.ErrClosed
	}
	page := new([common.PageSize]byte)
	copy(page[:], buf)
	m.pages.Store(pageID, page)
	return nil
}

func (m *MemoryStorage) Sync() error {
	return nil
}

func (m *MemoryStorage) Close() error {
	m.closed.Store(true)
	m.pages.Clear()
	return nil
}

// NumPages returns the number of pages that have been written at least once.
func (m *MemoryStorage) NumPages() int {
	return m.pages.Size()
}
