package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"mit.edu/dsg/pagecache/common"
	"mit.edu/dsg/pagecache/eviction"
	"mit.edu/dsg/pagecache/indexing"
)

// DefaultReplacerK is the history depth of the LRU-K replacer unless configured otherwise.
const DefaultReplacerK = 2

type options struct {
	logger     *zap.Logger
	meter      metric.Meter
	policy     eviction.Policy
	replacerK  int
	bucketSize int
	nextPageID common.PageID
}

// Option configures a BufferPool.
type Option func(*options)

// WithLogger sets the logger used for evictions and storage failures.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMeter sets the meter the pool registers its instruments with.
func WithMeter(meter metric.Meter) Option {
	return func(o *options) { o.meter = meter }
}

// WithReplacer selects the replacement policy and, for LRU-K, its history depth.
func WithReplacer(policy eviction.Policy, k int) Option {
	return func(o *options) {
		o.policy = policy
		o.replacerK = k
	}
}

// WithBucketSize sets the bucket capacity of the page directory.
func WithBucketSize(size int) Option {
	return func(o *options) { o.bucketSize = size }
}

// WithNextPageID makes the id allocator start at id instead of 0, e.g. when reopening existing storage.
func WithNextPageID(id common.PageID) Option {
	return func(o *options) { o.nextPageID = id }
}

// BufferPool manages the reading and writing of pages between a StorageManager and a fixed array of in-memory
// frames. Resident pages are located through an extendible hash directory, and when no frame is free the replacer
// picks an unpinned victim, which is written back first if dirty.
//
// Every public method runs under a single pool mutex. The directory and replacer have their own locks, which are
// only ever acquired while holding the pool mutex. Page bytes are not protected by the pool; callers coordinate
// through PageFrame.PageLatch.
type BufferPool struct {
	mu             sync.Mutex
	storageManager StorageManager
	frames         []PageFrame
	pageTable      *indexing.ExtendibleHashTable[common.PageID, common.FrameID]
	replacer       eviction.Replacer
	freeFrames     *freeFrameSet
	nextPageID     common.PageID

	logger  *zap.Logger
	metrics *bufferPoolMetrics
}

// NewBufferPool creates a new BufferPool with a fixed capacity of numFrames frames. It requires a storageManager to
// handle the underlying I/O operations.
func NewBufferPool(numFrames int, storageManager StorageManager, opts ...Option) (*BufferPool, error) {
	if numFrames <= 0 {
		return nil, common.NewError(common.InvalidConfigError, "buffer pool needs at least one frame, got %d", numFrames)
	}
	o := options{
		logger:     zap.NewNop(),
		meter:      noop.NewMeterProvider().Meter(meterName),
		policy:     eviction.PolicyLRUK,
		replacerK:  DefaultReplacerK,
		bucketSize: indexing.DefaultBucketSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.policy == "" {
		o.policy = eviction.PolicyLRUK
	}
	if o.bucketSize <= 0 {
		return nil, common.NewError(common.InvalidConfigError, "bucket size must be positive, got %d", o.bucketSize)
	}
	if o.policy == eviction.PolicyLRUK && o.replacerK <= 0 {
		return nil, common.NewError(common.InvalidConfigError, "replacer k must be positive, got %d", o.replacerK)
	}
	if o.nextPageID.IsNil() {
		return nil, common.NewError(common.InvalidConfigError, "first page id must not be negative, got %d", int64(o.nextPageID))
	}
	replacer, err := eviction.New(o.policy, numFrames, o.replacerK)
	if err != nil {
		return nil, common.NewError(common.InvalidConfigError, "%v", err)
	}

	bp := &BufferPool{
		storageManager: storageManager,
		frames:         make([]PageFrame, numFrames),
		pageTable:      indexing.NewExtendibleHashTable[common.PageID, common.FrameID](o.bucketSize, common.HashPageID),
		replacer:       replacer,
		freeFrames:     newFreeFrameSet(numFrames),
		nextPageID:     o.nextPageID,
		logger:         o.logger,
	}
	for i := range bp.frames {
		bp.frames[i].pageID = common.InvalidPageID
	}
	if bp.metrics, err = newBufferPoolMetrics(o.meter, bp); err != nil {
		return nil, fmt.Errorf("register buffer pool metrics: %w", err)
	}
	return bp, nil
}

// StorageManager returns the underlying storage backend.
func (bp *BufferPool) StorageManager() StorageManager {
	return bp.storageManager
}

// acquireFrame returns an empty frame, taken from the free set if possible and otherwise reclaimed from the replacer.
// The victim is only chosen, not removed, until its write-back has succeeded; if that write fails the free set,
// directory and replacer are left exactly as they were, and the error is returned.
//
// Requires bp.mu.
func (bp *BufferPool) acquireFrame(ctx context.Context) (common.FrameID, error) {
	if fid, ok := bp.freeFrames.take(); ok {
		return fid, nil
	}

	fid, ok := bp.replacer.Victim()
	if !ok {
		bp.metrics.noFreeFrame.Add(ctx, 1)
		return common.InvalidFrameID, common.ErrNoFreeFrame
	}
	frame := &bp.frames[fid]
	common.Assert(frame.pinCount == 0, "replacer chose pinned frame %d", fid)

	if frame.dirty {
		if err := bp.storageManager.WritePage(frame.pageID, frame.Bytes[:]); err != nil {
			bp.logger.Warn("write back failed",
				zap.Stringer("page", frame.pageID), zap.Int("frame", int(fid)), zap.Error(err))
			return common.InvalidFrameID, fmt.Errorf("%w: write back %s: %w", common.ErrStorageIO, frame.pageID, err)
		}
		frame.dirty = false
		bp.metrics.writebacks.Add(ctx, 1)
	}

	err := bp.replacer.Remove(fid)
	common.Assert(err == nil, "victim frame %d not evictable: %v", fid, err)
	bp.pageTable.Remove(frame.pageID)
	bp.metrics.evictions.Add(ctx, 1)
	bp.logger.Debug("evicted page", zap.Stringer("page", frame.pageID), zap.Int("frame", int(fid)))
	frame.reset()
	return fid, nil
}

// pin installs pageID into an empty frame with a single pin. Requires bp.mu.
func (bp *BufferPool) pin(fid common.FrameID, pageID common.PageID) *PageFrame {
	common.Assert(!bp.freeFrames.contains(fid), "frame %d is still in the free set", fid)
	frame := &bp.frames[fid]
	frame.pageID = pageID
	frame.pinCount = 1
	frame.dirty = false
	bp.pageTable.Insert(pageID, fid)
	bp.replacer.RecordAccess(fid)
	bp.replacer.SetEvictable(fid, false)
	return frame
}

// NewPage allocates a fresh page id and pins a zeroed frame for it. The id is only consumed once a frame has been
// secured, so a failed call leaves the allocator untouched. Returns common.ErrNoFreeFrame when every frame is pinned.
func (bp *BufferPool) NewPage() (common.PageID, *PageFrame, error) {
	ctx := context.Background()
	bp.mu.Lock()
	defer bp.mu.Unlock()

	fid, err := bp.acquireFrame(ctx)
	if err != nil {
		return common.InvalidPageID, nil, err
	}
	pageID := bp.nextPageID
	bp.nextPageID++
	return pageID, bp.pin(fid, pageID), nil
}

// FetchPage retrieves a page from the buffer pool, ensuring it is pinned (i.e. prevented from eviction until
// unpinned) and ready for use. If the page is already in the pool, the cached frame is returned. Otherwise a frame is
// acquired (possibly writing back a dirty victim) and the page is read from storage into it.
func (bp *BufferPool) FetchPage(pageID common.PageID) (*PageFrame, error) {
	if pageID.IsNil() {
		return nil, common.ErrInvalidPageID
	}
	ctx := context.Background()
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if fid, ok := bp.pageTable.Find(pageID); ok {
		frame := &bp.frames[fid]
		frame.pinCount++
		bp.replacer.RecordAccess(fid)
		bp.replacer.SetEvictable(fid, false)
		bp.metrics.hits.Add(ctx, 1)
		return frame, nil
	}

	bp.metrics.misses.Add(ctx, 1)
	fid, err := bp.acquireFrame(ctx)
	if err != nil {
		return nil, err
	}
	frame := &bp.frames[fid]
	if err := bp.storageManager.ReadPage(pageID, frame.Bytes[:]); err != nil {
		frame.reset()
		bp.freeFrames.put(fid)
		bp.logger.Warn("read failed", zap.Stringer("page", pageID), zap.Error(err))
		return nil, fmt.Errorf("%w: read %s: %w", common.ErrStorageIO, pageID, err)
	}
	return bp.pin(fid, pageID), nil
}

// UnpinPage indicates that the caller is done using a page. If isDirty is true the page is marked as modified, so it
// will be written back before its frame is reused. The dirty flag is only ever set here, never cleared.
//
// Returns false if the page is not resident or not pinned.
func (bp *BufferPool) UnpinPage(pageID common.PageID, isDirty bool) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	fid, ok := bp.pageTable.Find(pageID)
	if !ok {
		return false
	}
	frame := &bp.frames[fid]
	if frame.pinCount == 0 {
		return false
	}
	if isDirty {
		frame.dirty = true
	}
	frame.pinCount--
	if frame.pinCount == 0 {
		bp.replacer.SetEvictable(fid, true)
	}
	return true
}

// FlushPage writes a resident page to storage whether or not it is pinned or dirty. The dirty flag is left as is.
// Returns false if the page is not resident.
func (bp *BufferPool) FlushPage(pageID common.PageID) (bool, error) {
	if pageID.IsNil() {
		return false, nil
	}
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.flushPage(context.Background(), pageID)
}

// flushPage requires bp.mu.
func (bp *BufferPool) flushPage(ctx context.Context, pageID common.PageID) (bool, error) {
	fid, ok := bp.pageTable.Find(pageID)
	if !ok {
		return false, nil
	}
	frame := &bp.frames[fid]
	if err := bp.storageManager.WritePage(pageID, frame.Bytes[:]); err != nil {
		bp.logger.Warn("flush failed", zap.Stringer("page", pageID), zap.Error(err))
		return false, fmt.Errorf("%w: flush %s: %w", common.ErrStorageIO, pageID, err)
	}
	bp.metrics.flushes.Add(ctx, 1)
	return true, nil
}

// FlushAllPages writes every resident page to storage in frame order, regardless of pins. Failures do not stop the
// sweep; all of them are returned joined.
func (bp *BufferPool) FlushAllPages() error {
	ctx := context.Background()
	bp.mu.Lock()
	defer bp.mu.Unlock()

	var errs []error
	for i := range bp.frames {
		pageID := bp.frames[i].pageID
		if pageID.IsNil() {
			continue
		}
		if _, err := bp.flushPage(ctx, pageID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DeletePage drops a page from the pool and returns its frame to the free set. The page's content is discarded even
// if dirty, and its id is not recycled.
//
// Returns true if the page was deleted or was not resident to begin with, false if it is pinned.
func (bp *BufferPool) DeletePage(pageID common.PageID) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	fid, ok := bp.pageTable.Find(pageID)
	if !ok {
		return true
	}
	frame := &bp.frames[fid]
	if frame.pinCount > 0 {
		return false
	}
	err := bp.replacer.Remove(fid)
	common.Assert(err == nil, "unpinned frame %d not evictable: %v", fid, err)
	bp.pageTable.Remove(pageID)
	frame.reset()
	bp.freeFrames.put(fid)
	bp.logger.Debug("deleted page", zap.Stringer("page", pageID), zap.Int("frame", int(fid)))
	return true
}

// NumFrames returns the capacity of the pool.
func (bp *BufferPool) NumFrames() int {
	return len(bp.frames)
}

// NumFree returns the number of frames holding no page.
func (bp *BufferPool) NumFree() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.freeFrames.len()
}

// PinCount returns the pin count of a resident page.
func (bp *BufferPool) PinCount(pageID common.PageID) (int, bool) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	fid, ok := bp.pageTable.Find(pageID)
	if !ok {
		return 0, false
	}
	return bp.frames[fid].pinCount, true
}

// IsDirty reports whether a resident page has unflushed modifications.
func (bp *BufferPool) IsDirty(pageID common.PageID) (bool, bool) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	fid, ok := bp.pageTable.Find(pageID)
	if !ok {
		return false, false
	}
	return bp.frames[fid].dirty, true
}

// ResidentPages lists the resident pages in frame order.
func (bp *BufferPool) ResidentPages() []common.PageID {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	pages := make([]common.PageID, 0, len(bp.frames)-bp.freeFrames.len())
	for i := range bp.frames {
		if !bp.frames[i].pageID.IsNil() {
			pages = append(pages, bp.frames[i].pageID)
		}
	}
	return pages
}

// NextPageID returns the id the next NewPage call will hand out.
func (bp *BufferPool) NextPageID() common.PageID {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.nextPageID
}

func (bp *BufferPool) occupancy() (resident, pinned int) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for i := range bp.frames {
		if bp.frames[i].pageID.IsNil() {
			continue
		}
		resident++
		if bp.frames[i].pinCount > 0 {
			pinned++
		}
	}
	return resident, pinned
}
