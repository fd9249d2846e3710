// Package buffer implements the storage core's buffer pool: a fixed set of
// page-sized frames, an LRU-K replacement policy, and RAII-flavored page
// guards over it. Grounded on the teacher's buffer pool manager in
// core/write_engine/memtable/bufferpoolmanager.go for the pin/unpin/replacer
// wiring pattern, and on BusTub's buffer_pool_manager.cpp for the exact
// NewPage/FetchPage/DeletePage control flow this package's spec calls for.
package buffer

import (
	"fmt"
	"sync"

	"github.com/sushant-115/coredb/core/disk"
	"github.com/sushant-115/coredb/core/wal"
	"github.com/sushant-115/coredb/pkg/metrics"
	"go.uber.org/zap"
)

// BufferPoolManager mediates every access to page data: callers ask for a
// page by id and get back bytes resident in one of a fixed number of
// frames, evicting other pages via the replacer when the pool is full.
type BufferPoolManager struct {
	mu sync.Mutex

	disk     *disk.Manager
	replacer *lruKReplacer
	log      *wal.LogManager
	logger   *zap.Logger
	metrics  *metrics.BufferPool

	frames    []*frame
	freeList  []FrameID
	pageTable map[disk.PageID]FrameID
}

// replacerK is the K used by the pool's LRU-K replacer. The spec fixes no
// particular value; BusTub's default of 2 distinguishes "seen once" from
// "seen repeatedly" with the least bookkeeping, so the storage core keeps it.
const replacerK = 2

// NewBufferPoolManager builds a pool of poolSize frames backed by dm.
// logManager and m may both be nil; a nil logger defaults to a no-op logger
// and a nil metrics set records nothing. The logger is renamed under a
// "buffer_pool" scope so its lines are distinguishable from whatever else
// the caller's logger is shared with.
func NewBufferPoolManager(poolSize int, dm *disk.Manager, logManager *wal.LogManager, m *metrics.BufferPool, logger *zap.Logger) *BufferPoolManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("buffer_pool")
	frames := make([]*frame, poolSize)
	freeList := make([]FrameID, poolSize)
	for i := 0; i < poolSize; i++ {
		frames[i] = newFrame(FrameID(i), dm.PageSize())
		freeList[i] = FrameID(i)
	}
	return &BufferPoolManager{
		disk:      dm,
		replacer:  newLRUKReplacer(poolSize, replacerK),
		log:       logManager,
		logger:    logger,
		metrics:   m,
		frames:    frames,
		freeList:  freeList,
		pageTable: make(map[disk.PageID]FrameID, poolSize),
	}
}

// ErrNoFreeFrame is returned when every frame is pinned and the replacer has
// nothing evictable to offer, so no page can be brought into or created in
// the pool.
var ErrNoFreeFrame = fmt.Errorf("buffer: no free frame available")

// acquireFrame returns a frame ready to hold a new page's worth of data: a
// free-list entry if one exists, otherwise whatever the replacer evicts,
// flushed first if it was dirty. Per the spec's resolution of its Open
// Question, this is the ONLY point at which "pool full" can fail a
// NewPage/FetchPage call -- there is no earlier all-pinned scan.
func (bpm *BufferPoolManager) acquireFrame() (*frame, error) {
	if n := len(bpm.freeList); n > 0 {
		id := bpm.freeList[n-1]
		bpm.freeList = bpm.freeList[:n-1]
		return bpm.frames[id], nil
	}

	id, ok := bpm.replacer.Evict()
	if !ok {
		return nil, ErrNoFreeFrame
	}
	bpm.metrics.RecordEviction()
	f := bpm.frames[id]
	if f.dirty {
		bpm.disk.WritePage(f.pageID, f.data)
		bpm.metrics.RecordFlush()
	}
	delete(bpm.pageTable, f.pageID)
	f.reset()
	return f, nil
}

// NewPage allocates a fresh page id and pins it into a frame, returning
// its id and a direct view of the (zeroed) frame bytes. The returned slice
// is only valid while the page remains pinned.
func (bpm *BufferPoolManager) NewPage() (disk.PageID, []byte, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	f, err := bpm.acquireFrame()
	if err != nil {
		return disk.InvalidPageID, nil, err
	}
	pageID := bpm.disk.AllocatePage()
	f.pageID = pageID
	f.pinCount = 1
	bpm.pageTable[pageID] = f.id
	bpm.replacer.RecordAccess(f.id)
	bpm.replacer.SetEvictable(f.id, false)
	bpm.logger.Debug("new page", zap.Int64("page_id", int64(pageID)), zap.Int("frame_id", int(f.id)))
	return pageID, f.data, nil
}

// NewPageGuarded is NewPage's page-guard-returning counterpart.
func (bpm *BufferPoolManager) NewPageGuarded() (disk.PageID, BasicPageGuard, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	f, err := bpm.acquireFrame()
	if err != nil {
		return disk.InvalidPageID, BasicPageGuard{}, err
	}
	pageID := bpm.disk.AllocatePage()
	f.pageID = pageID
	f.pinCount = 1
	bpm.pageTable[pageID] = f.id
	bpm.replacer.RecordAccess(f.id)
	bpm.replacer.SetEvictable(f.id, false)
	return pageID, newBasicPageGuard(bpm, f), nil
}

// FetchPage pins pageID into a frame, reading it from disk if it is not
// already resident, and returns its bytes. Pins stack: a page fetched twice
// must be unpinned twice.
func (bpm *BufferPoolManager) FetchPage(pageID disk.PageID) ([]byte, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	f, err := bpm.fetch(pageID)
	if err != nil {
		return nil, err
	}
	return f.data, nil
}

// FetchPageBasic is FetchPage's BasicPageGuard-returning counterpart.
func (bpm *BufferPoolManager) FetchPageBasic(pageID disk.PageID) (BasicPageGuard, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	f, err := bpm.fetch(pageID)
	if err != nil {
		return BasicPageGuard{}, err
	}
	return newBasicPageGuard(bpm, f), nil
}

// FetchPageRead fetches pageID and returns it already read-latched.
func (bpm *BufferPoolManager) FetchPageRead(pageID disk.PageID) (ReadPageGuard, error) {
	bpm.mu.Lock()
	f, err := bpm.fetch(pageID)
	bpm.mu.Unlock()
	if err != nil {
		return ReadPageGuard{}, err
	}
	f.RLock()
	return ReadPageGuard{bpm: bpm, frame: f}, nil
}

// FetchPageWrite fetches pageID and returns it already write-latched.
func (bpm *BufferPoolManager) FetchPageWrite(pageID disk.PageID) (WritePageGuard, error) {
	bpm.mu.Lock()
	f, err := bpm.fetch(pageID)
	bpm.mu.Unlock()
	if err != nil {
		return WritePageGuard{}, err
	}
	f.Lock()
	return WritePageGuard{bpm: bpm, frame: f}, nil
}

// fetch is the shared body of FetchPage and its guard variants. Caller must
// hold bpm.mu.
func (bpm *BufferPoolManager) fetch(pageID disk.PageID) (*frame, error) {
	if id, ok := bpm.pageTable[pageID]; ok {
		f := bpm.frames[id]
		f.pinCount++
		bpm.replacer.RecordAccess(id)
		bpm.replacer.SetEvictable(id, false)
		bpm.metrics.RecordHit()
		return f, nil
	}

	bpm.metrics.RecordMiss()
	f, err := bpm.acquireFrame()
	if err != nil {
		return nil, err
	}
	f.pageID = pageID
	f.pinCount = 1
	bpm.disk.ReadPage(pageID, f.data)
	bpm.pageTable[pageID] = f.id
	bpm.replacer.RecordAccess(f.id)
	bpm.replacer.SetEvictable(f.id, false)
	return f, nil
}

// unpin is the shared body guards call on Drop: decrement the frame's pin
// count and, once it reaches zero, hand it back to the replacer as
// evictable. It is distinct from the exported UnpinPage so that a guard
// never needs to restate whether the page it held became dirty -- that was
// tracked by the guard's own MarkDirty calls already.
func (bpm *BufferPoolManager) unpin(id FrameID) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	f := bpm.frames[id]
	if f.pinCount == 0 {
		return
	}
	f.pinCount--
	if f.pinCount == 0 {
		bpm.replacer.SetEvictable(id, true)
	}
}

// UnpinPage decrements pageID's pin count. isDirty, if true, marks the page
// dirty; a page already marked dirty stays dirty even if isDirty is false
// on a later unpin, per the spec's monotonic-dirty-bit rule. Returns false
// if the page was not resident or was already unpinned to zero.
func (bpm *BufferPoolManager) UnpinPage(pageID disk.PageID, isDirty bool) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	id, ok := bpm.pageTable[pageID]
	if !ok {
		return false
	}
	f := bpm.frames[id]
	if f.pinCount == 0 {
		return false
	}
	if isDirty {
		f.dirty = true
	}
	f.pinCount--
	if f.pinCount == 0 {
		bpm.replacer.SetEvictable(id, true)
	}
	return true
}

// FlushPage writes pageID's current bytes to disk regardless of its dirty
// bit or pin count, and clears the dirty bit. Returns false if the page is
// not resident.
func (bpm *BufferPoolManager) FlushPage(pageID disk.PageID) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	id, ok := bpm.pageTable[pageID]
	if !ok {
		return false
	}
	f := bpm.frames[id]
	bpm.disk.WritePage(f.pageID, f.data)
	f.dirty = false
	bpm.metrics.RecordFlush()
	return true
}

// FlushAllPages flushes every resident page to disk.
func (bpm *BufferPoolManager) FlushAllPages() {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	for pageID, id := range bpm.pageTable {
		f := bpm.frames[id]
		bpm.disk.WritePage(pageID, f.data)
		f.dirty = false
		bpm.metrics.RecordFlush()
	}
}

// DeletePage removes pageID from the pool and deallocates it on disk. It
// refuses (returning false) while the page is still pinned. Deleting a page
// that is not resident is a no-op that reports success, matching BusTub's
// DeletePage semantics.
func (bpm *BufferPoolManager) DeletePage(pageID disk.PageID) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	id, ok := bpm.pageTable[pageID]
	if !ok {
		return true
	}
	f := bpm.frames[id]
	if f.pinCount > 0 {
		return false
	}
	bpm.replacer.Remove(id)
	delete(bpm.pageTable, pageID)
	f.reset()
	bpm.disk.DeallocatePage(pageID)
	bpm.freeList = append(bpm.freeList, id)
	return true
}
