package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"mit.edu/dsg/pagecache/common"
)

// DefaultSegmentPages is the number of pages stored in one segment file unless configured otherwise.
const DefaultSegmentPages = 1024

// DiskDBFile implements the DBFile interface using a standard OS file.
type DiskDBFile struct {
	file *os.File
	// numPages is a cached value of the file size (in pages) to avoid stat() syscalls on every read.
	// It only grows, and is updated after the write that extended the file has completed.
	numPages atomic.Int32
	// growMu serializes writes that extend the file.
	growMu sync.Mutex
}

// NewDiskDBFile creates a new DiskDBFile wrapper around an already open OS file.
// It initializes the page count based on the current file size.
func NewDiskDBFile(file *os.File) (*DiskDBFile, error) {
	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	// A torn trailing page still counts; ReadPage zero-fills whatever is missing.
	numPages := int32((stat.Size() + int64(common.PageSize) - 1) / int64(common.PageSize))

	dbFile := &DiskDBFile{
		file: file,
	}
	dbFile.numPages.Store(numPages)
	return dbFile, nil
}

// ReadPage reads the content of the page identified by `pageNum` into `frame`. Pages that were never written read
// as zeros.
func (f *DiskDBFile) ReadPage(pageNum int, frame []byte) error {
	common.Assert(len(frame) == common.PageSize, "buffer size must match PageSize")
	common.Assert(pageNum >= 0, "negative page number %d", pageNum)
	if int32(pageNum) >= f.numPages.Load() {
		clear(frame)
		return nil
	}

	offset := int64(pageNum) * int64(common.PageSize)
	n, err := f.file.ReadAt(frame, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	clear(frame[n:])
	return nil
}

// WritePage writes the content of `frame` to the page identified by `pageNum`. Writing past the end grows the file;
// any gap reads back as zeros.
func (f *DiskDBFile) WritePage(pageNum int, frame []byte) error {
	common.Assert(len(frame) == common.PageSize, "buffer size must match PageSize")
	common.Assert(pageNum >= 0, "negative page number %d", pageNum)

	offset := int64(pageNum) * int64(common.PageSize)
	if int32(pageNum) < f.numPages.Load() {
		_, err := f.file.WriteAt(frame, offset)
		return err
	}

	f.growMu.Lock()
	defer f.growMu.Unlock()
	if _, err := f.file.WriteAt(frame, offset); err != nil {
		return err
	}
	if next := int32(pageNum) + 1; next > f.numPages.Load() {
		f.numPages.Store(next)
	}
	return nil
}

// Sync flushes writes to stable storage.
func (f *DiskDBFile) Sync() error {
	return f.file.Sync()
}

// Close closes the underlying OS file.
func (f *DiskDBFile) Close() error {
	return f.file.Close()
}

// NumPages returns the number of pages currently in the file.
func (f *DiskDBFile) NumPages() (int, error) {
	return int(f.numPages.Load()), nil
}

// DiskStorageManager stores pages in segment files rooted at a directory. Page p lives in segment
// p / segmentPages at offset p % segmentPages, so the page space can grow without a single huge file.
type DiskStorageManager struct {
	rootPath     string
	segmentPages int
	segments     *xsync.MapOf[int64, DBFile]
	closed       atomic.Bool
}

// NewDiskStorageManager initializes a manager rooted at `rootPath`, creating the directory if needed.
func NewDiskStorageManager(rootPath string, segmentPages int) (*DiskStorageManager, error) {
	if segmentPages <= 0 {
		return nil, common.NewError(common.InvalidConfigError, "segment pages must be positive, got %d", segmentPages)
	}
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory %s: %w", rootPath, err)
	}
	return &DiskStorageManager{
		rootPath:     rootPath,
		segmentPages: segmentPages,
		segments:     xsync.NewMapOf[int64, DBFile](),
	}, nil
}

func segmentFileName(segment int64) string {
	return fmt.Sprintf("seg_%d.dat", segment)
}

// segment retrieves or opens the segment file holding pageID and returns it along with the page's position in it.
//
// It maintains a cache of open files to ensure only one instance of DiskDBFile exists per physical file.
func (dsm *DiskStorageManager) segment(pageID common.PageID) (DBFile, int, error) {
	if dsm.closed.Load() {
		return nil, 0, common.ErrClosed
	}
	if pageID.IsNil() {
		return nil, 0, fmt.Errorf("invalid page id %d", int64(pageID))
	}
	seg := int64(pageID) / int64(dsm.segmentPages)
	pageNum := int(int64(pageID) % int64(dsm.segmentPages))

	if file, ok := dsm.segments.Load(seg); ok {
		return file, pageNum, nil
	}

	path := filepath.Join(dsm.rootPath, segmentFileName(seg))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, 0, err
	}
	newFile, err := NewDiskDBFile(f)
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}

	actual, loaded := dsm.segments.LoadOrStore(seg, newFile)
	if loaded {
		// We lost the race. Another thread opened the file and inserted it first.
		_ = newFile.Close()
		return actual, pageNum, nil
	}
	return newFile, pageNum, nil
}

func (dsm *DiskStorageManager) ReadPage(pageID common.PageID, buf []byte) error {
	file, pageNum, err := dsm.segment(pageID)
	if err != nil {
		return err
	}
	return file.ReadPage(pageNum, buf)
}

func (dsm *DiskStorageManager) WritePage(pageID common.PageID, buf []byte) error {
	file, pageNum, err := dsm.segment(pageID)
	if err != nil {
		return err
	}
	return file.WritePage(pageNum, buf)
}

// Sync syncs every open segment and returns the first error encountered.
func (dsm *DiskStorageManager) Sync() error {
	var firstErr error
	dsm.segments.Range(func(seg int64, file DBFile) bool {
		if err := file.Sync(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("sync %s: %w", segmentFileName(seg), err)
		}
		return true
	})
	return firstErr
}

// Close closes every open segment. Later calls to ReadPage or WritePage fail with common.ErrClosed.
func (dsm *DiskStorageManager) Close() error {
	if !dsm.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	dsm.segments.Range(func(seg int64, file DBFile) bool {
		if err := file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", segmentFileName(seg), err))
		}
		dsm.segments.Delete(seg)
		return true
	})
	return errors.Join(errs...)
}

// NextPageID returns one past the highest page id backed by any segment file under the root directory, or 0 if
// there are none. It is used to resume id allocation when reopening existing storage.
func (dsm *DiskStorageManager) NextPageID() (common.PageID, error) {
	entries, err := os.ReadDir(dsm.rootPath)
	if err != nil {
		return common.InvalidPageID, err
	}
	var next int64
	for _, entry := range entries {
		var seg int64
		if entry.IsDir() {
			continue
		}
		if _, err := fmt.Sscanf(entry.Name(), "seg_%d.dat", &seg); err != nil || entry.Name() != segmentFileName(seg) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return common.InvalidPageID, err
		}
		pages := (info.Size() + int64(common.PageSize) - 1) / int64(common.PageSize)
		if pages == 0 {
			continue
		}
		if end := seg*int64(dsm.segmentPages) + pages; end > next {
			next = end
		}
	}
	return common.PageID(next), nil
}

// NumSegments returns the number of currently open segment files.
func (dsm *DiskStorageManager) NumSegments() int {
	return dsm.segments.Size()
}
