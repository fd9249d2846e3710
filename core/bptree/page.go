// Package bptree implements the storage core's concurrent B+ tree index:
// typed views over buffer-pool frame bytes (grounded on the teacher's
// node.go serialize/deserialize pair in core/indexing/btree, generalized
// from a length-prefixed variable encoding to the spec's fixed-slot layout
// so every typed view is a plain offset calculation, the Go analogue of the
// struct-cast page access BusTub's C++ originals use), plus the tree
// algorithm itself in btree.go and a forward leaf iterator in iterator.go.
package bptree

import (
	"encoding/binary"

	"github.com/sushant-115/coredb/core/disk"
)

// Key is the tree's key type. The spec's non-goals rule out secondary index
// types beyond integer-keyed B+ trees, so a single fixed-width comparable
// type covers every case the storage core needs.
type Key int64

// RID (record id) is the payload a leaf entry maps a key to: the page and
// slot of the tuple it names. The tree itself never interprets a RID.
type RID struct {
	PageID  disk.PageID
	SlotNum uint32
}

const ridSize = 8 + 4 // disk.PageID (int64) + SlotNum (uint32)

func (r RID) encode(b []byte) {
	binary.LittleEndian.PutUint64(b[0:8], uint64(r.PageID))
	binary.LittleEndian.PutUint32(b[8:12], r.SlotNum)
}

func decodeRID(b []byte) RID {
	return RID{
		PageID:  disk.PageID(binary.LittleEndian.Uint64(b[0:8])),
		SlotNum: binary.LittleEndian.Uint32(b[8:12]),
	}
}

// pageType is the tagged-variant discriminator stored as the first byte of
// every page this package owns, replacing the dynamic-cast-on-read pattern
// the C++ original uses with an explicit typeOf check wherever the tree
// needs to know which view to apply to a raw page.
type pageType uint8

const (
	pageTypeInvalid  pageType = 0
	pageTypeHeader   pageType = 1
	pageTypeInternal pageType = 2
	pageTypeLeaf     pageType = 3
)

// Header page layout: [0] type, [8:16] root page id. Fixed size regardless
// of the backing page's actual byte count.
const (
	headerRootOffset = 8
)

type headerPage struct{ data []byte }

func initHeaderPage(data []byte, rootPageID disk.PageID) headerPage {
	h := headerPage{data: data}
	h.data[0] = byte(pageTypeHeader)
	h.setRootPageID(rootPageID)
	return h
}

func asHeaderPage(data []byte) headerPage { return headerPage{data: data} }

func (h headerPage) RootPageID() disk.PageID {
	return disk.PageID(int64(binary.LittleEndian.Uint64(h.data[headerRootOffset:])))
}

func (h headerPage) setRootPageID(id disk.PageID) {
	binary.LittleEndian.PutUint64(h.data[headerRootOffset:], uint64(int64(id)))
}

// Shared leaf/internal header: [0] type, [4:8] size, [8:12] maxSize.
const (
	sizeOffset    = 4
	maxSizeOffset = 8
)

// Leaf page layout: common header, [16:24] next_page_id, [24:24+max*8] keys,
// followed immediately by [24+max*8 : 24+max*8+max*ridSize] rids.
const (
	leafNextPageIDOffset = 16
	leafKeysOffset       = 24
)

type leafPage struct{ data []byte }

func initLeafPage(data []byte, maxSize int32) leafPage {
	l := leafPage{data: data}
	l.data[0] = byte(pageTypeLeaf)
	l.setSize(0)
	l.setMaxSize(maxSize)
	l.setNextPageID(disk.InvalidPageID)
	return l
}

func asLeafPage(data []byte) leafPage { return leafPage{data: data} }

func (l leafPage) Size() int32    { return int32(binary.LittleEndian.Uint32(l.data[sizeOffset:])) }
func (l leafPage) MaxSize() int32 { return int32(binary.LittleEndian.Uint32(l.data[maxSizeOffset:])) }
func (l leafPage) MinSize() int32 { return minSize(l.MaxSize()) }

func (l leafPage) setSize(n int32)    { binary.LittleEndian.PutUint32(l.data[sizeOffset:], uint32(n)) }
func (l leafPage) setMaxSize(n int32) { binary.LittleEndian.PutUint32(l.data[maxSizeOffset:], uint32(n)) }

func (l leafPage) NextPageID() disk.PageID {
	return disk.PageID(int64(binary.LittleEndian.Uint64(l.data[leafNextPageIDOffset:])))
}

func (l leafPage) setNextPageID(id disk.PageID) {
	binary.LittleEndian.PutUint64(l.data[leafNextPageIDOffset:], uint64(int64(id)))
}

func (l leafPage) keyOffset(i int32) int { return leafKeysOffset + int(i)*8 }
func (l leafPage) ridOffset(i int32) int {
	return leafKeysOffset + int(l.MaxSize())*8 + int(i)*ridSize
}

func (l leafPage) KeyAt(i int32) Key {
	return Key(int64(binary.LittleEndian.Uint64(l.data[l.keyOffset(i):])))
}

func (l leafPage) setKeyAt(i int32, k Key) {
	binary.LittleEndian.PutUint64(l.data[l.keyOffset(i):], uint64(int64(k)))
}

func (l leafPage) ValueAt(i int32) RID { return decodeRID(l.data[l.ridOffset(i):]) }

func (l leafPage) setValueAt(i int32, v RID) { v.encode(l.data[l.ridOffset(i):]) }

// KeyIndex returns the first index whose key is >= key, via binary search
// over the sorted key array -- the position a new key belongs at, and the
// position an exact match (if present) occupies.
func (l leafPage) KeyIndex(key Key) int32 {
	lo, hi := int32(0), l.Size()
	for lo < hi {
		mid := (lo + hi) / 2
		if l.KeyAt(mid) < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Lookup returns the RID stored for key and true, or false if absent.
func (l leafPage) Lookup(key Key) (RID, bool) {
	i := l.KeyIndex(key)
	if i < l.Size() && l.KeyAt(i) == key {
		return l.ValueAt(i), true
	}
	return RID{}, false
}

// Insert places (key, value) in sorted order. Returns false without
// modifying the page if key is already present.
func (l leafPage) Insert(key Key, value RID) bool {
	i := l.KeyIndex(key)
	if i < l.Size() && l.KeyAt(i) == key {
		return false
	}
	n := l.Size()
	for j := n; j > i; j-- {
		l.setKeyAt(j, l.KeyAt(j-1))
		l.setValueAt(j, l.ValueAt(j-1))
	}
	l.setKeyAt(i, key)
	l.setValueAt(i, value)
	l.setSize(n + 1)
	return true
}

// Remove deletes key if present, returning whether it was found.
func (l leafPage) Remove(key Key) bool {
	i := l.KeyIndex(key)
	if i >= l.Size() || l.KeyAt(i) != key {
		return false
	}
	l.removeAt(i)
	return true
}

func (l leafPage) removeAt(i int32) {
	n := l.Size()
	for j := i; j < n-1; j++ {
		l.setKeyAt(j, l.KeyAt(j+1))
		l.setValueAt(j, l.ValueAt(j+1))
	}
	l.setSize(n - 1)
}

// splitInto moves the upper half of l's entries into sibling, which must
// already be an empty leaf of the same max size. Returns the first key that
// now lives in sibling -- the separator the caller propagates upward.
func (l leafPage) splitInto(sibling leafPage) Key {
	n := l.Size()
	mid := n / 2
	for i := mid; i < n; i++ {
		sibling.setKeyAt(i-mid, l.KeyAt(i))
		sibling.setValueAt(i-mid, l.ValueAt(i))
	}
	sibling.setSize(n - mid)
	l.setSize(mid)
	sibling.setNextPageID(l.NextPageID())
	return sibling.KeyAt(0)
}

// mergeFrom appends right's entries onto l (l must be the left sibling) and
// inherits right's next_page_id link.
func (l leafPage) mergeFrom(right leafPage) {
	n, rn := l.Size(), right.Size()
	for i := int32(0); i < rn; i++ {
		l.setKeyAt(n+i, right.KeyAt(i))
		l.setValueAt(n+i, right.ValueAt(i))
	}
	l.setSize(n + rn)
	l.setNextPageID(right.NextPageID())
}

// Internal page layout: common header, [16:16+max*8] keys (index 0 unused),
// followed by [16+max*8 : 16+max*16] children page ids.
const internalKeysOffset = 16

type internalPage struct{ data []byte }

func initInternalPage(data []byte, maxSize int32) internalPage {
	p := internalPage{data: data}
	p.data[0] = byte(pageTypeInternal)
	p.setSize(0)
	p.setMaxSize(maxSize)
	return p
}

func asInternalPage(data []byte) internalPage { return internalPage{data: data} }

func (p internalPage) Size() int32 { return int32(binary.LittleEndian.Uint32(p.data[sizeOffset:])) }
func (p internalPage) MaxSize() int32 {
	return int32(binary.LittleEndian.Uint32(p.data[maxSizeOffset:]))
}
func (p internalPage) MinSize() int32 { return minSize(p.MaxSize()) }

func (p internalPage) setSize(n int32) { binary.LittleEndian.PutUint32(p.data[sizeOffset:], uint32(n)) }
func (p internalPage) setMaxSize(n int32) {
	binary.LittleEndian.PutUint32(p.data[maxSizeOffset:], uint32(n))
}

func (p internalPage) keyOffset(i int32) int { return internalKeysOffset + int(i)*8 }
func (p internalPage) childOffset(i int32) int {
	return internalKeysOffset + int(p.MaxSize())*8 + int(i)*8
}

// KeyAt(0) is the unused sentinel; only indices >= 1 hold real separators.
func (p internalPage) KeyAt(i int32) Key {
	return Key(int64(binary.LittleEndian.Uint64(p.data[p.keyOffset(i):])))
}

func (p internalPage) setKeyAt(i int32, k Key) {
	binary.LittleEndian.PutUint64(p.data[p.keyOffset(i):], uint64(int64(k)))
}

func (p internalPage) ValueAt(i int32) disk.PageID {
	return disk.PageID(int64(binary.LittleEndian.Uint64(p.data[p.childOffset(i):])))
}

func (p internalPage) setValueAt(i int32, id disk.PageID) {
	binary.LittleEndian.PutUint64(p.data[p.childOffset(i):], uint64(int64(id)))
}

// setRoot initializes a freshly allocated internal page as a new root with
// exactly two children split around separator.
func (p internalPage) setRoot(left disk.PageID, separator Key, right disk.PageID) {
	p.setValueAt(0, left)
	p.setKeyAt(1, separator)
	p.setValueAt(1, right)
	p.setSize(2)
}

// KeyIndex returns the first index i in [1, size) whose key is >= key, the
// same convention the spec's page-layout-helpers section specifies for
// internal pages.
func (p internalPage) KeyIndex(key Key) int32 {
	lo, hi := int32(1), p.Size()
	for lo < hi {
		mid := (lo + hi) / 2
		if p.KeyAt(mid) < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// ChildIndex returns the index of the child pointer that must be followed
// to reach key: the largest i such that i == 0 or KeyAt(i) <= key.
func (p internalPage) ChildIndex(key Key) int32 {
	i := p.KeyIndex(key)
	if i < p.Size() && p.KeyAt(i) == key {
		return i
	}
	return i - 1
}

// insertAt inserts (separator, childID) at position i, shifting entries at
// and beyond i to the right. Callers (the tree, not this type) are
// responsible for choosing i via KeyIndex.
func (p internalPage) insertAt(i int32, separator Key, childID disk.PageID) {
	n := p.Size()
	for j := n; j > i; j-- {
		p.setKeyAt(j, p.KeyAt(j-1))
		p.setValueAt(j, p.ValueAt(j-1))
	}
	p.setKeyAt(i, separator)
	p.setValueAt(i, childID)
	p.setSize(n + 1)
}

func (p internalPage) removeAt(i int32) {
	n := p.Size()
	for j := i; j < n-1; j++ {
		p.setKeyAt(j, p.KeyAt(j+1))
		p.setValueAt(j, p.ValueAt(j+1))
	}
	p.setSize(n - 1)
}

// indexOfChild returns the slot holding childID, or -1.
func (p internalPage) indexOfChild(childID disk.PageID) int32 {
	for i := int32(0); i < p.Size(); i++ {
		if p.ValueAt(i) == childID {
			return i
		}
	}
	return -1
}

// splitInto keeps the lower ceil(size/2) children in p and moves the rest
// (with the carried separator at the split point) into sibling, an empty
// internal page of the same max size. Returns the separator the caller
// propagates upward; that key is removed from both pages' key arrays (it
// becomes sibling's unused index-0 sentinel), per the spec's "one carry key
// moved up" note.
func (p internalPage) splitInto(sibling internalPage) Key {
	n := p.Size()
	mid := (n + 1) / 2
	separator := p.KeyAt(mid)
	for i := mid; i < n; i++ {
		sibling.setValueAt(i-mid, p.ValueAt(i))
		if i > mid {
			sibling.setKeyAt(i-mid, p.KeyAt(i))
		}
	}
	sibling.setSize(n - mid)
	p.setSize(mid)
	return separator
}

// mergeFrom absorbs right into p (p is the left sibling), reintroducing
// separator as the first real key of the appended block.
func (p internalPage) mergeFrom(right internalPage, separator Key) {
	n, rn := p.Size(), right.Size()
	p.setValueAt(n, right.ValueAt(0))
	p.setKeyAt(n, separator)
	for i := int32(1); i < rn; i++ {
		p.setKeyAt(n+i, right.KeyAt(i))
		p.setValueAt(n+i, right.ValueAt(i))
	}
	p.setSize(n + rn)
}

// minSize is deliberately floor(max_size/2), not a ceiling: splitting a
// page that has just reached max_size must produce two halves that each
// already satisfy min_size, and for odd max_size (the leaf_max_size=3
// scenario the tests exercise) a ceiling bound is unsatisfiable by any
// split of max_size items. BusTub's page types use the same floor
// convention for GetMinSize.
func minSize(maxSize int32) int32 { return maxSize / 2 }

func typeOf(data []byte) pageType { return pageType(data[0]) }
