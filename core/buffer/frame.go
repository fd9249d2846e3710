package buffer

import (
	"sync"

	"github.com/sushant-115/coredb/core/disk"
)

// FrameID is the index of a frame within the buffer pool's fixed array.
// It is distinct from disk.PageID: a frame is a slot, a page id is the
// stable logical identifier of the data currently (or not) resident there.
type FrameID int

// frame is one slot of the buffer pool: a fixed chunk of page-sized memory
// plus the metadata the spec assigns to it (page id, pin count, dirty bit)
// and a readers-writer latch over the byte contents. Everything here is
// guarded by the BPM mutex except the latch itself, which callers take
// after the pin has already been established (see buffer/guard.go).
type frame struct {
	id       FrameID
	pageID   disk.PageID
	data     []byte
	pinCount int
	dirty    bool
	latch    sync.RWMutex
}

func newFrame(id FrameID, pageSize int) *frame {
	return &frame{
		id:     id,
		pageID: disk.InvalidPageID,
		data:   make([]byte, pageSize),
	}
}

func (f *frame) reset() {
	f.pageID = disk.InvalidPageID
	f.pinCount = 0
	f.dirty = false
	for i := range f.data {
		f.data[i] = 0
	}
}

// Data returns the frame's backing byte slice. Valid only while the caller
// holds a guard over this frame (see buffer/guard.go) -- the BPM may
// recycle it to another page the instant the pin drops to zero.
func (f *frame) Data() []byte { return f.data }

// PageID returns the page id currently resident in this frame.
func (f *frame) PageID() disk.PageID { return f.pageID }

// PinCount returns the frame's current pin count.
func (f *frame) PinCount() int { return f.pinCount }

// IsDirty reports whether the frame has been written to since it was last
// read from or flushed to disk.
func (f *frame) IsDirty() bool { return f.dirty }

// RLock/RUnlock/Lock/Unlock implement the per-frame readers-writer latch.
// They must only be called once the frame is pinned.
func (f *frame) RLock()   { f.latch.RLock() }
func (f *frame) RUnlock() { f.latch.RUnlock() }
func (f *frame) Lock()    { f.latch.Lock() }
func (f *frame) Unlock()  { f.latch.Unlock() }
