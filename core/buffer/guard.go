package buffer

import "github.com/sushant-115/coredb/core/disk"

// BasicPageGuard owns a single pin on a page. Go has no destructors, so
// unlike the RAII guard it is modeled on, it is the caller's responsibility
// to call Drop when finished; Drop is idempotent so a deferred Drop after an
// explicit early one is always safe.
type BasicPageGuard struct {
	bpm     *BufferPoolManager
	frame   *frame
	dropped bool
}

func newBasicPageGuard(bpm *BufferPoolManager, f *frame) BasicPageGuard {
	return BasicPageGuard{bpm: bpm, frame: f}
}

// PageID returns the id of the page this guard is pinning.
func (g *BasicPageGuard) PageID() disk.PageID { return g.frame.PageID() }

// Data returns the page's backing bytes. Valid until Drop.
func (g *BasicPageGuard) Data() []byte { return g.frame.Data() }

// MarkDirty flags the underlying page as modified, so it is written back on
// the next flush or eviction.
func (g *BasicPageGuard) MarkDirty() {
	g.bpm.mu.Lock()
	g.frame.dirty = true
	g.bpm.mu.Unlock()
}

// Drop releases the pin this guard holds. Calling Drop more than once, or on
// a guard that was never initialized with a page, is a no-op.
func (g *BasicPageGuard) Drop() {
	if g.dropped || g.frame == nil {
		return
	}
	g.dropped = true
	g.bpm.unpin(g.frame.id)
}

// Upgrade consumes a BasicPageGuard and returns a ReadPageGuard over the
// same page, taking the frame's read latch. The BasicPageGuard must not be
// used or dropped afterward.
func (g *BasicPageGuard) Upgrade() ReadPageGuard {
	g.frame.RLock()
	rg := ReadPageGuard{bpm: g.bpm, frame: g.frame}
	g.dropped = true
	return rg
}

// UpgradeWrite is Upgrade's write-latch counterpart.
func (g *BasicPageGuard) UpgradeWrite() WritePageGuard {
	g.frame.Lock()
	wg := WritePageGuard{bpm: g.bpm, frame: g.frame}
	g.dropped = true
	return wg
}

// ReadPageGuard holds a pin plus the frame's read latch, guaranteeing the
// page's bytes are stable for as long as the guard is live.
type ReadPageGuard struct {
	bpm     *BufferPoolManager
	frame   *frame
	dropped bool
}

func (g *ReadPageGuard) PageID() disk.PageID { return g.frame.PageID() }
func (g *ReadPageGuard) Data() []byte        { return g.frame.Data() }

// Drop releases the read latch and the pin, in that order. Idempotent.
func (g *ReadPageGuard) Drop() {
	if g.dropped || g.frame == nil {
		return
	}
	g.dropped = true
	g.frame.RUnlock()
	g.bpm.unpin(g.frame.id)
}

// WritePageGuard holds a pin plus the frame's write latch. Any modification
// to a page's bytes must happen under a WritePageGuard.
type WritePageGuard struct {
	bpm     *BufferPoolManager
	frame   *frame
	dropped bool
}

func (g *WritePageGuard) PageID() disk.PageID { return g.frame.PageID() }
func (g *WritePageGuard) Data() []byte        { return g.frame.Data() }

// MarkDirty flags the underlying page as modified.
func (g *WritePageGuard) MarkDirty() {
	g.bpm.mu.Lock()
	g.frame.dirty = true
	g.bpm.mu.Unlock()
}

// Drop releases the write latch and the pin, in that order. Idempotent.
func (g *WritePageGuard) Drop() {
	if g.dropped || g.frame == nil {
		return
	}
	g.dropped = true
	g.frame.Unlock()
	g.bpm.unpin(g.frame.id)
}
