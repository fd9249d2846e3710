package bptree

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sushant-115/coredb/core/buffer"
	"github.com/sushant-115/coredb/core/disk"
)

func newTestTree(t *testing.T, leafMaxSize, internalMaxSize int32) *BTreeIndex {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := disk.Open(path, disk.DefaultPageSize)
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })

	bpm := buffer.NewBufferPoolManager(64, dm, nil, nil, nil)
	tree, err := New(bpm, leafMaxSize, internalMaxSize)
	require.NoError(t, err)
	return tree
}

func collect(t *testing.T, it *Iterator) []Key {
	t.Helper()
	var keys []Key
	for it.Valid() {
		keys = append(keys, it.Key())
		it.Next()
	}
	return keys
}

func TestBTreeEmptyAfterConstruction(t *testing.T) {
	tree := newTestTree(t, 3, 3)
	empty, err := tree.IsEmpty()
	require.NoError(t, err)
	require.True(t, empty)
}

// TestBTreeInsertAndSplit is the spec's B+ tree insert/split scenario:
// leaf_max_size=3, internal_max_size=3, insert 1..=10 in order, iterate
// yields 1..=10, tree height >= 2.
func TestBTreeInsertAndSplit(t *testing.T) {
	tree := newTestTree(t, 3, 3)
	for i := 1; i <= 10; i++ {
		ok, err := tree.Insert(Key(i), RID{PageID: disk.PageID(i)})
		require.NoError(t, err)
		require.True(t, ok)
	}

	empty, err := tree.IsEmpty()
	require.NoError(t, err)
	require.False(t, empty)

	it, err := tree.Begin()
	require.NoError(t, err)
	got := collect(t, it)
	want := make([]Key, 10)
	for i := range want {
		want[i] = Key(i + 1)
	}
	require.Equal(t, want, got)

	rootID, err := tree.GetRootPageID()
	require.NoError(t, err)
	g, err := tree.bpm.FetchPageRead(rootID)
	require.NoError(t, err)
	require.Equal(t, pageTypeInternal, typeOf(g.Data()))
	g.Drop()
}

func TestBTreeInsertDuplicateFails(t *testing.T) {
	tree := newTestTree(t, 3, 3)
	ok, err := tree.Insert(Key(1), RID{PageID: 1})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tree.Insert(Key(1), RID{PageID: 2})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBTreeGetValue(t *testing.T) {
	tree := newTestTree(t, 3, 3)
	for i := 1; i <= 10; i++ {
		_, err := tree.Insert(Key(i), RID{PageID: disk.PageID(i), SlotNum: uint32(i)})
		require.NoError(t, err)
	}

	rid, ok, err := tree.GetValue(Key(7))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, disk.PageID(7), rid.PageID)
	require.Equal(t, uint32(7), rid.SlotNum)

	_, ok, err = tree.GetValue(Key(42))
	require.NoError(t, err)
	require.False(t, ok)
}

// TestBTreeRemoveAndMerge is the spec's B+ tree remove/merge scenario:
// after inserting 1..=10 with leaf_max_size=internal_max_size=3, remove
// 3,4,5,6; iterate yields 1,2,7,8,9,10 and no non-root page underflows.
func TestBTreeRemoveAndMerge(t *testing.T) {
	tree := newTestTree(t, 3, 3)
	for i := 1; i <= 10; i++ {
		_, err := tree.Insert(Key(i), RID{PageID: disk.PageID(i)})
		require.NoError(t, err)
	}

	for _, k := range []Key{3, 4, 5, 6} {
		ok, err := tree.Remove(k)
		require.NoError(t, err)
		require.True(t, ok)
	}

	it, err := tree.Begin()
	require.NoError(t, err)
	got := collect(t, it)
	require.Equal(t, []Key{1, 2, 7, 8, 9, 10}, got)

	require.NoError(t, tree.checkNoUnderflow(t))
}

func TestBTreeRemoveMissingKeyIsNoop(t *testing.T) {
	tree := newTestTree(t, 3, 3)
	_, err := tree.Insert(Key(1), RID{PageID: 1})
	require.NoError(t, err)

	ok, err := tree.Remove(Key(99))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBTreeRemoveToEmptyLeavesEmptyLeafRoot(t *testing.T) {
	tree := newTestTree(t, 3, 3)
	_, err := tree.Insert(Key(1), RID{PageID: 1})
	require.NoError(t, err)
	ok, err := tree.Remove(Key(1))
	require.NoError(t, err)
	require.True(t, ok)

	empty, err := tree.IsEmpty()
	require.NoError(t, err)
	require.True(t, empty)

	rootID, err := tree.GetRootPageID()
	require.NoError(t, err)
	require.NotEqual(t, disk.InvalidPageID, rootID)
}

// TestBTreeIteratorStabilityAcrossLeaves is the spec's iterator-stability
// scenario: insert 1..=100, begin(42), advance 10 times, crossing at least
// one leaf boundary along the way.
func TestBTreeIteratorStabilityAcrossLeaves(t *testing.T) {
	tree := newTestTree(t, 3, 3)
	for i := 1; i <= 100; i++ {
		_, err := tree.Insert(Key(i), RID{PageID: disk.PageID(i)})
		require.NoError(t, err)
	}

	it, err := tree.BeginAt(Key(42))
	require.NoError(t, err)

	var got []Key
	for i := 0; i < 10; i++ {
		require.True(t, it.Valid())
		got = append(got, it.Key())
		it.Next()
	}

	want := make([]Key, 10)
	for i := range want {
		want[i] = Key(42 + i)
	}
	require.Equal(t, want, got)
}

func TestBTreeBeginAtPastEndIsEnd(t *testing.T) {
	tree := newTestTree(t, 3, 3)
	for i := 1; i <= 5; i++ {
		_, err := tree.Insert(Key(i), RID{PageID: disk.PageID(i)})
		require.NoError(t, err)
	}
	it, err := tree.BeginAt(Key(1000))
	require.NoError(t, err)
	require.False(t, it.Valid())
}

// checkNoUnderflow walks the whole tree asserting every non-root page has
// size >= min_size, the invariant the spec's remove/merge scenario checks.
func (t *BTreeIndex) checkNoUnderflow(tt *testing.T) error {
	rootID, err := t.GetRootPageID()
	if err != nil {
		return err
	}
	t.walkCheckUnderflow(tt, rootID, true)
	return nil
}

func (t *BTreeIndex) walkCheckUnderflow(tt *testing.T, pageID disk.PageID, isRoot bool) {
	g, err := t.bpm.FetchPageRead(pageID)
	require.NoError(tt, err)
	defer g.Drop()

	switch typeOf(g.Data()) {
	case pageTypeLeaf:
		lp := asLeafPage(g.Data())
		if !isRoot {
			require.GreaterOrEqual(tt, lp.Size(), lp.MinSize())
		}
	case pageTypeInternal:
		ip := asInternalPage(g.Data())
		if !isRoot {
			require.GreaterOrEqual(tt, ip.Size(), ip.MinSize())
		}
		for i := int32(0); i < ip.Size(); i++ {
			t.walkCheckUnderflow(tt, ip.ValueAt(i), false)
		}
	}
}
