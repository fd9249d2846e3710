package bptree

import (
	"github.com/sushant-115/coredb/core/buffer"
	"github.com/sushant-115/coredb/core/disk"
)

// Iterator walks leaf entries in ascending key order. It holds a basic
// guard (pin only, no latch) on the leaf it is currently positioned over,
// per the spec's note that the iterator does not take shared latches --
// callers needing a consistent snapshot under concurrent mutation must
// arrange their own synchronization.
type Iterator struct {
	tree  *BTreeIndex
	guard buffer.BasicPageGuard
	leaf  leafPage
	idx   int32
	atEnd bool
}

// Begin returns an iterator positioned at the first entry of the tree's
// leftmost leaf.
func (t *BTreeIndex) Begin() (*Iterator, error) {
	rootID, err := t.GetRootPageID()
	if err != nil {
		return nil, err
	}
	return t.descendToLeaf(rootID, func(internalPage) int32 { return 0 }, 0)
}

// BeginAt returns an iterator positioned at the first entry whose key is >=
// key (the End() sentinel if no such entry exists).
func (t *BTreeIndex) BeginAt(key Key) (*Iterator, error) {
	rootID, err := t.GetRootPageID()
	if err != nil {
		return nil, err
	}
	it, err := t.descendToLeaf(rootID, func(ip internalPage) int32 { return ip.ChildIndex(key) }, -1)
	if err != nil {
		return nil, err
	}
	if it.atEnd {
		return it, nil
	}
	it.idx = it.leaf.KeyIndex(key)
	it.normalize()
	return it, nil
}

// End returns the exhausted iterator sentinel.
func (t *BTreeIndex) End() *Iterator {
	return &Iterator{tree: t, atEnd: true}
}

// descendToLeaf walks from pageID down to a leaf using pick to choose which
// child to follow at each internal page, and returns an iterator positioned
// at startIdx within that leaf (startIdx < 0 means "caller will set idx
// itself afterward", used by BeginAt).
func (t *BTreeIndex) descendToLeaf(pageID disk.PageID, pick func(internalPage) int32, startIdx int32) (*Iterator, error) {
	g, err := t.bpm.FetchPageBasic(pageID)
	if err != nil {
		return nil, err
	}
	for typeOf(g.Data()) == pageTypeInternal {
		ip := asInternalPage(g.Data())
		childID := ip.ValueAt(pick(ip))
		childGuard, err := t.bpm.FetchPageBasic(childID)
		g.Drop()
		if err != nil {
			return nil, err
		}
		g = childGuard
	}
	it := &Iterator{tree: t, guard: g, leaf: asLeafPage(g.Data())}
	if startIdx >= 0 {
		it.idx = startIdx
		it.normalize()
	}
	return it, nil
}

// normalize advances to the next leaf (or the end sentinel) whenever idx
// has run off the end of the current leaf's entries.
func (it *Iterator) normalize() {
	if it.atEnd {
		return
	}
	for it.idx >= it.leaf.Size() {
		next := it.leaf.NextPageID()
		it.guard.Drop()
		if next == disk.InvalidPageID {
			it.atEnd = true
			it.leaf = leafPage{}
			return
		}
		g, err := it.tree.bpm.FetchPageBasic(next)
		if err != nil {
			it.atEnd = true
			return
		}
		it.guard = g
		it.leaf = asLeafPage(g.Data())
		it.idx = 0
	}
}

// Valid reports whether the iterator is positioned at a real entry.
func (it *Iterator) Valid() bool { return !it.atEnd }

// Key returns the current entry's key. Valid() must be true.
func (it *Iterator) Key() Key { return it.leaf.KeyAt(it.idx) }

// Value returns the current entry's RID. Valid() must be true.
func (it *Iterator) Value() RID { return it.leaf.ValueAt(it.idx) }

// Next advances the iterator by one entry, swapping to the next leaf's
// guard when the current leaf is exhausted, or becoming End() when the
// last leaf's next_page_id is INVALID.
func (it *Iterator) Next() {
	if it.atEnd {
		return
	}
	it.idx++
	it.normalize()
}

// Close releases the iterator's guard on its current leaf. Safe to call on
// an already-exhausted or already-closed iterator.
func (it *Iterator) Close() {
	if it.atEnd {
		return
	}
	it.guard.Drop()
	it.atEnd = true
}
