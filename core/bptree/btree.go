package bptree

import (
	"fmt"
	"strings"

	"github.com/sushant-115/coredb/core/buffer"
	"github.com/sushant-115/coredb/core/disk"
)

// BTreeIndex is a concurrent, disk-backed B+ tree keyed by Key and storing
// RID payloads, grounded on the teacher's generic BTree in
// core/indexing/btree/btree_core/btree.go for the overall
// insert/split-propagate/remove/merge shape, and on BusTub's
// b_plus_tree.cpp for the latch-crabbing descent this package's spec
// requires in place of the teacher's single-mutex node access.
type BTreeIndex struct {
	bpm             *buffer.BufferPoolManager
	headerPageID    disk.PageID
	leafMaxSize     int32
	internalMaxSize int32
}

// New allocates a fresh header page and an empty leaf root, and returns a
// tree ready for use. leafMaxSize and internalMaxSize are the page
// capacities described in spec.md §4.3; min_size for each is derived as
// floor(max_size/2) (see minSize in page.go).
func New(bpm *buffer.BufferPoolManager, leafMaxSize, internalMaxSize int32) (*BTreeIndex, error) {
	headerPageID, headerGuard, err := bpm.NewPageGuarded()
	if err != nil {
		return nil, fmt.Errorf("bptree: allocating header page: %w", err)
	}
	rootPageID, rootGuard, err := bpm.NewPageGuarded()
	if err != nil {
		headerGuard.Drop()
		return nil, fmt.Errorf("bptree: allocating root page: %w", err)
	}
	initLeafPage(rootGuard.Data(), leafMaxSize)
	rootGuard.MarkDirty()
	rootGuard.Drop()

	initHeaderPage(headerGuard.Data(), rootPageID)
	headerGuard.MarkDirty()
	headerGuard.Drop()

	return &BTreeIndex{
		bpm:             bpm,
		headerPageID:    headerPageID,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
	}, nil
}

// GetRootPageID returns the tree's current root page id, taking the header
// latch briefly as the spec's concurrency model requires.
func (t *BTreeIndex) GetRootPageID() (disk.PageID, error) {
	g, err := t.bpm.FetchPageRead(t.headerPageID)
	if err != nil {
		return disk.InvalidPageID, err
	}
	defer g.Drop()
	return asHeaderPage(g.Data()).RootPageID(), nil
}

// IsEmpty reports whether the tree has no entries: an empty root is
// representable only as a leaf of size zero, per the spec.
func (t *BTreeIndex) IsEmpty() (bool, error) {
	rootID, err := t.GetRootPageID()
	if err != nil {
		return false, err
	}
	g, err := t.bpm.FetchPageRead(rootID)
	if err != nil {
		return false, err
	}
	defer g.Drop()
	if typeOf(g.Data()) != pageTypeLeaf {
		return false, nil
	}
	return asLeafPage(g.Data()).Size() == 0, nil
}

// GetValue looks up key via shared-latch crabbing descent: latch the child
// before releasing the parent, so at most two latches are held at once.
func (t *BTreeIndex) GetValue(key Key) (RID, bool, error) {
	rootID, err := t.GetRootPageID()
	if err != nil {
		return RID{}, false, err
	}
	guard, err := t.bpm.FetchPageRead(rootID)
	if err != nil {
		return RID{}, false, err
	}
	for typeOf(guard.Data()) == pageTypeInternal {
		ip := asInternalPage(guard.Data())
		childID := ip.ValueAt(ip.ChildIndex(key))
		childGuard, err := t.bpm.FetchPageRead(childID)
		guard.Drop()
		if err != nil {
			return RID{}, false, err
		}
		guard = childGuard
	}
	defer guard.Drop()
	rid, ok := asLeafPage(guard.Data()).Lookup(key)
	return rid, ok, nil
}

// pathEntry is one write-latched page on the current mutation's descent.
type pathEntry struct {
	pageID disk.PageID
	guard  buffer.WritePageGuard
}

// releaseAbove drops the header latch (if still held) and every path entry
// above the last one, implementing the crabbing invariant "when a safe
// ancestor is encountered, all strictly-higher latches may be released".
func releaseAbove(path []pathEntry, headerGuard *buffer.WritePageGuard, headerHeld *bool) []pathEntry {
	if *headerHeld {
		headerGuard.Drop()
		*headerHeld = false
	}
	for i := 0; i < len(path)-1; i++ {
		path[i].guard.Drop()
	}
	return path[len(path)-1:]
}

func releaseAll(path []pathEntry, headerGuard buffer.WritePageGuard, headerHeld bool) {
	if headerHeld {
		headerGuard.Drop()
	}
	for i := range path {
		path[i].guard.Drop()
	}
}

// Insert performs a unique-key insert, returning false if key already
// exists. Splits propagate upward along the retained path entries only --
// any ancestor proven safe during descent was already released.
func (t *BTreeIndex) Insert(key Key, value RID) (bool, error) {
	headerGuard, err := t.bpm.FetchPageWrite(t.headerPageID)
	if err != nil {
		return false, err
	}
	headerHeld := true
	cur := asHeaderPage(headerGuard.Data()).RootPageID()

	var path []pathEntry
	for {
		g, err := t.bpm.FetchPageWrite(cur)
		if err != nil {
			releaseAll(path, headerGuard, headerHeld)
			return false, err
		}
		path = append(path, pathEntry{pageID: cur, guard: g})
		if typeOf(g.Data()) == pageTypeLeaf {
			break
		}
		ip := asInternalPage(g.Data())
		if ip.Size() < ip.MaxSize()-1 {
			path = releaseAbove(path, &headerGuard, &headerHeld)
		}
		cur = ip.ValueAt(ip.ChildIndex(key))
	}

	leafIdx := len(path) - 1
	leaf := asLeafPage(path[leafIdx].guard.Data())
	if !leaf.Insert(key, value) {
		releaseAll(path, headerGuard, headerHeld)
		return false, nil
	}
	path[leafIdx].guard.MarkDirty()

	if leaf.Size() < leaf.MaxSize() {
		releaseAll(path, headerGuard, headerHeld)
		return true, nil
	}

	return true, t.splitLeafAndPropagate(path, &headerGuard, headerHeld)
}

// splitLeafAndPropagate handles the leaf-at-capacity case: split the leaf,
// then walk up the retained path splitting any internal ancestor that also
// reaches capacity, finally growing a new root when the split reaches the
// top of the retained path.
func (t *BTreeIndex) splitLeafAndPropagate(path []pathEntry, headerGuard *buffer.WritePageGuard, headerHeld bool) error {
	idx := len(path) - 1
	leftChildID := path[idx].pageID
	leaf := asLeafPage(path[idx].guard.Data())

	siblingID, siblingGuard, err := t.bpm.NewPageGuarded()
	if err != nil {
		releaseAll(path, *headerGuard, headerHeld)
		return fmt.Errorf("bptree: allocating leaf split sibling: %w", err)
	}
	sibling := initLeafPage(siblingGuard.Data(), t.leafMaxSize)
	separator := leaf.splitInto(sibling)
	leaf.setNextPageID(siblingID)
	path[idx].guard.MarkDirty()
	siblingGuard.MarkDirty()
	siblingGuard.Drop()

	rightChildID := siblingID
	path[idx].guard.Drop()
	idx--

	for {
		if idx < 0 {
			newRootID, newRootGuard, err := t.bpm.NewPageGuarded()
			if err != nil {
				if headerHeld {
					headerGuard.Drop()
				}
				return fmt.Errorf("bptree: allocating new root: %w", err)
			}
			newRoot := initInternalPage(newRootGuard.Data(), t.internalMaxSize)
			newRoot.setRoot(leftChildID, separator, rightChildID)
			newRootGuard.MarkDirty()
			newRootGuard.Drop()

			h := asHeaderPage(headerGuard.Data())
			h.setRootPageID(newRootID)
			headerGuard.MarkDirty()
			if headerHeld {
				headerGuard.Drop()
			}
			return nil
		}

		parent := asInternalPage(path[idx].guard.Data())
		insertPos := parent.KeyIndex(separator)
		parent.insertAt(insertPos, separator, rightChildID)
		path[idx].guard.MarkDirty()

		if parent.Size() < parent.MaxSize() {
			for i := 0; i <= idx; i++ {
				path[i].guard.Drop()
			}
			if headerHeld {
				headerGuard.Drop()
			}
			return nil
		}

		leftChildID = path[idx].pageID
		siblingID, siblingGuard, err := t.bpm.NewPageGuarded()
		if err != nil {
			for i := 0; i <= idx; i++ {
				path[i].guard.Drop()
			}
			if headerHeld {
				headerGuard.Drop()
			}
			return fmt.Errorf("bptree: allocating internal split sibling: %w", err)
		}
		newInternalSibling := initInternalPage(siblingGuard.Data(), t.internalMaxSize)
		separator = parent.splitInto(newInternalSibling)
		siblingGuard.MarkDirty()
		siblingGuard.Drop()

		rightChildID = siblingID
		path[idx].guard.Drop()
		idx--
	}
}

// Remove deletes key if present (no-op otherwise), rebalancing via borrow
// or merge up the retained path, and collapsing the root if it becomes an
// internal page with a single child.
func (t *BTreeIndex) Remove(key Key) (bool, error) {
	headerGuard, err := t.bpm.FetchPageWrite(t.headerPageID)
	if err != nil {
		return false, err
	}
	headerHeld := true
	cur := asHeaderPage(headerGuard.Data()).RootPageID()

	var path []pathEntry
	for {
		g, err := t.bpm.FetchPageWrite(cur)
		if err != nil {
			releaseAll(path, headerGuard, headerHeld)
			return false, err
		}
		path = append(path, pathEntry{pageID: cur, guard: g})
		if typeOf(g.Data()) == pageTypeLeaf {
			break
		}
		ip := asInternalPage(g.Data())
		if ip.Size() > ip.MinSize() {
			path = releaseAbove(path, &headerGuard, &headerHeld)
		}
		cur = ip.ValueAt(ip.ChildIndex(key))
	}

	leafIdx := len(path) - 1
	leaf := asLeafPage(path[leafIdx].guard.Data())
	if !leaf.Remove(key) {
		releaseAll(path, headerGuard, headerHeld)
		return false, nil
	}
	path[leafIdx].guard.MarkDirty()

	t.fixupAfterRemove(path, &headerGuard, headerHeld)
	return true, nil
}

// fixupAfterRemove walks path from the leaf upward, borrowing from or
// merging with a sibling wherever a node has underflowed below min_size,
// and collapses the root if it ends up an internal page with one child.
func (t *BTreeIndex) fixupAfterRemove(path []pathEntry, headerGuard *buffer.WritePageGuard, headerHeld bool) {
	idx := len(path) - 1
	for idx >= 0 {
		data := path[idx].guard.Data()
		isLeaf := typeOf(data) == pageTypeLeaf
		var curSize, minSz int32
		if isLeaf {
			lp := asLeafPage(data)
			curSize, minSz = lp.Size(), lp.MinSize()
		} else {
			ip := asInternalPage(data)
			curSize, minSz = ip.Size(), ip.MinSize()
		}

		// path[0] is the tree's root only while the header latch is still
		// held; otherwise it is a safe ancestor that cannot underflow.
		if idx == 0 {
			if headerHeld && !isLeaf {
				ip := asInternalPage(data)
				if ip.Size() == 1 {
					newRootID := ip.ValueAt(0)
					h := asHeaderPage(headerGuard.Data())
					h.setRootPageID(newRootID)
					headerGuard.MarkDirty()
					emptied := path[idx].pageID
					path[idx].guard.Drop()
					t.bpm.DeletePage(emptied)
					if headerHeld {
						headerGuard.Drop()
					}
					return
				}
			}
			path[idx].guard.Drop()
			if headerHeld {
				headerGuard.Drop()
			}
			return
		}

		if curSize >= minSz {
			path[idx].guard.Drop()
			idx--
			continue
		}

		parent := asInternalPage(path[idx-1].guard.Data())
		pos := parent.indexOfChild(path[idx].pageID)

		var leftGuard, rightGuard buffer.WritePageGuard
		haveLeft, haveRight := false, false
		if pos > 0 {
			if g, err := t.bpm.FetchPageWrite(parent.ValueAt(pos - 1)); err == nil {
				leftGuard, haveLeft = g, true
			}
		}
		if pos < parent.Size()-1 {
			if g, err := t.bpm.FetchPageWrite(parent.ValueAt(pos + 1)); err == nil {
				rightGuard, haveRight = g, true
			}
		}

		// Borrow from whichever sibling has spare capacity above min_size,
		// left before right; only merge once neither does. Checking both
		// siblings' spare capacity before choosing to merge is the spec's
		// documented borrow-before-merge precedence.
		switch {
		case haveLeft && hasSpareCapacity(leftGuard, isLeaf):
			t.borrowFromLeft(path[idx], leftGuard, parent, pos, isLeaf)
			leftGuard.Drop()
			if haveRight {
				rightGuard.Drop()
			}
		case haveRight && hasSpareCapacity(rightGuard, isLeaf):
			t.borrowFromRight(path[idx], rightGuard, parent, pos, isLeaf)
			rightGuard.Drop()
			if haveLeft {
				leftGuard.Drop()
			}
		case haveLeft:
			t.mergeWithLeft(&path[idx], leftGuard, parent, pos, isLeaf)
			leftGuard.Drop()
			if haveRight {
				rightGuard.Drop()
			}
		case haveRight:
			t.mergeWithRight(path[idx], rightGuard, parent, pos, isLeaf)
			if haveLeft {
				leftGuard.Drop()
			}
		}

		path[idx-1].guard.MarkDirty()
		path[idx].guard.Drop()
		idx--
	}
}

// hasSpareCapacity reports whether a sibling's page has an entry above
// min_size to lend without itself underflowing.
func hasSpareCapacity(g buffer.WritePageGuard, isLeaf bool) bool {
	if isLeaf {
		lp := asLeafPage(g.Data())
		return lp.Size() > lp.MinSize()
	}
	ip := asInternalPage(g.Data())
	return ip.Size() > ip.MinSize()
}

// borrowFromLeft moves leftGuard's last entry into node. Caller must have
// already confirmed leftGuard's page has spare capacity via
// hasSpareCapacity, and is responsible for dropping leftGuard afterward.
func (t *BTreeIndex) borrowFromLeft(node pathEntry, leftGuard buffer.WritePageGuard, parent internalPage, pos int32, isLeaf bool) {
	if isLeaf {
		left := asLeafPage(leftGuard.Data())
		nodeLeaf := asLeafPage(node.guard.Data())
		last := left.Size() - 1
		k, v := left.KeyAt(last), left.ValueAt(last)
		left.removeAt(last)
		nodeLeaf.Insert(k, v)
		parent.setKeyAt(pos, nodeLeaf.KeyAt(0))
		node.guard.MarkDirty()
		leftGuard.MarkDirty()
		return
	}

	left := asInternalPage(leftGuard.Data())
	nodeIP := asInternalPage(node.guard.Data())
	ls := left.Size()
	movedChild := left.ValueAt(ls - 1)
	promoted := left.KeyAt(ls - 1)
	oldSeparator := parent.KeyAt(pos)
	left.removeAt(ls - 1)
	for j := nodeIP.Size(); j >= 1; j-- {
		nodeIP.setValueAt(j, nodeIP.ValueAt(j-1))
	}
	for j := nodeIP.Size(); j >= 2; j-- {
		nodeIP.setKeyAt(j, nodeIP.KeyAt(j-1))
	}
	nodeIP.setValueAt(0, movedChild)
	nodeIP.setKeyAt(1, oldSeparator)
	nodeIP.setSize(nodeIP.Size() + 1)
	parent.setKeyAt(pos, promoted)
	node.guard.MarkDirty()
	leftGuard.MarkDirty()
}

// borrowFromRight is borrowFromLeft's mirror image, moving rightGuard's
// first entry into node. Caller drops rightGuard afterward.
func (t *BTreeIndex) borrowFromRight(node pathEntry, rightGuard buffer.WritePageGuard, parent internalPage, pos int32, isLeaf bool) {
	if isLeaf {
		right := asLeafPage(rightGuard.Data())
		nodeLeaf := asLeafPage(node.guard.Data())
		k, v := right.KeyAt(0), right.ValueAt(0)
		right.removeAt(0)
		nodeLeaf.Insert(k, v)
		parent.setKeyAt(pos+1, right.KeyAt(0))
		node.guard.MarkDirty()
		rightGuard.MarkDirty()
		return
	}

	right := asInternalPage(rightGuard.Data())
	nodeIP := asInternalPage(node.guard.Data())
	movedChild := right.ValueAt(0)
	oldSeparator := parent.KeyAt(pos + 1)
	nodeIP.setValueAt(nodeIP.Size(), movedChild)
	nodeIP.setKeyAt(nodeIP.Size(), oldSeparator)
	nodeIP.setSize(nodeIP.Size() + 1)
	newSeparator := right.KeyAt(1)
	right.removeAt(0)
	parent.setKeyAt(pos+1, newSeparator)
	node.guard.MarkDirty()
	rightGuard.MarkDirty()
}

// mergeWithLeft absorbs node into leftGuard's page and deletes node's
// now-empty page. Drops node.guard itself, since node no longer exists
// afterward; caller drops leftGuard.
func (t *BTreeIndex) mergeWithLeft(node *pathEntry, leftGuard buffer.WritePageGuard, parent internalPage, pos int32, isLeaf bool) {
	nodePageID := node.pageID
	if isLeaf {
		asLeafPage(leftGuard.Data()).mergeFrom(asLeafPage(node.guard.Data()))
	} else {
		separator := parent.KeyAt(pos)
		asInternalPage(leftGuard.Data()).mergeFrom(asInternalPage(node.guard.Data()), separator)
	}
	parent.removeAt(pos)
	leftGuard.MarkDirty()
	node.guard.Drop()
	t.bpm.DeletePage(nodePageID)
}

// mergeWithRight absorbs rightGuard's page into node and deletes right's
// now-empty page. Drops rightGuard itself; caller drops node.guard as part
// of the normal fixupAfterRemove cleanup since node survives.
func (t *BTreeIndex) mergeWithRight(node pathEntry, rightGuard buffer.WritePageGuard, parent internalPage, pos int32, isLeaf bool) {
	rightPageID := rightGuard.PageID()
	if isLeaf {
		asLeafPage(node.guard.Data()).mergeFrom(asLeafPage(rightGuard.Data()))
	} else {
		separator := parent.KeyAt(pos + 1)
		asInternalPage(node.guard.Data()).mergeFrom(asInternalPage(rightGuard.Data()), separator)
	}
	parent.removeAt(pos + 1)
	node.guard.MarkDirty()
	rightGuard.Drop()
	t.bpm.DeletePage(rightPageID)
}

// String renders the tree for debugging, grounded on the teacher's
// BTree.String debug dump in core/indexing/btree/btree_core/btree.go.
func (t *BTreeIndex) String() string {
	rootID, err := t.GetRootPageID()
	if err != nil {
		return fmt.Sprintf("<bptree: %v>", err)
	}
	var b strings.Builder
	t.draw(&b, rootID, 0)
	return b.String()
}

func (t *BTreeIndex) draw(b *strings.Builder, pageID disk.PageID, depth int) {
	g, err := t.bpm.FetchPageRead(pageID)
	if err != nil {
		fmt.Fprintf(b, "%s<error: %v>\n", strings.Repeat("  ", depth), err)
		return
	}
	defer g.Drop()
	indent := strings.Repeat("  ", depth)
	switch typeOf(g.Data()) {
	case pageTypeLeaf:
		lp := asLeafPage(g.Data())
		fmt.Fprintf(b, "%sleaf(page=%d size=%d next=%d)", indent, pageID, lp.Size(), lp.NextPageID())
		for i := int32(0); i < lp.Size(); i++ {
			fmt.Fprintf(b, " %d", lp.KeyAt(i))
		}
		b.WriteByte('\n')
	case pageTypeInternal:
		ip := asInternalPage(g.Data())
		fmt.Fprintf(b, "%sinternal(page=%d size=%d)\n", indent, pageID, ip.Size())
		for i := int32(0); i < ip.Size(); i++ {
			t.draw(b, ip.ValueAt(i), depth+1)
		}
	}
}
