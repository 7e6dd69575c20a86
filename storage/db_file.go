package storage

import (
	"mit.edu/dsg/pagecache/common"
)

// StorageManager is the block device the BufferPool reads pages from and writes dirty pages back to.
//
// Implementations should be safe for concurrent use. ReadPage of a page that was never written fills the buffer
// with zeros. Both methods take buffers of exactly common.PageSize bytes.
type StorageManager interface {
	ReadPage(pageID common.PageID, buf []byte) error
	WritePage(pageID common.PageID, buf []byte) error
	// Sync forces any buffered writes to stable storage, ensuring durability.
	Sync() error
	// Close releases all resources. The manager must not be used afterwards.
	Close() error
}

// DBFile abstracts a single physical file holding a contiguous range of pages.
// It handles page-level reads and writes addressed relative to the start of the file.
//
// Implementation should be safe for concurrent use. Specifically, multiple threads
// should be able to ReadPage and WritePage to different pages simultaneously.
type DBFile interface {
	// ReadPage reads the contents of the page identified by `pageNum` into the
	// provided byte slice. Pages beyond the end of the file read as zeros.
	ReadPage(pageNum int, frame []byte) error
	// WritePage writes the content of `frame` to the page identified by `pageNum`, growing the file if needed.
	WritePage(pageNum int, frame []byte) error
	// Sync forces any buffered writes to stable storage, ensuring durability.
	Sync() error
	// Close closes the underlying file handle and releases resources.
	Close() error
	// NumPages returns the number of pages currently backed by the file.
	NumPages() (int, error)
}
