package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestLRUKReplacerBasicScenario walks the exact access/evict sequence from
// the spec's LRU-K basic scenario: K=2, 7 frames, accesses 1,2,3,4,5,6,1,2,
// all marked evictable, then evict/evict/access(5)/evict.
func TestLRUKReplacerBasicScenario(t *testing.T) {
	r := newLRUKReplacer(7, 2)

	for _, id := range []FrameID{1, 2, 3, 4, 5, 6, 1, 2} {
		r.RecordAccess(id)
	}
	for _, id := range []FrameID{1, 2, 3, 4, 5, 6} {
		r.SetEvictable(id, true)
	}
	require.Equal(t, 6, r.Size())

	id, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, FrameID(3), id)

	id, ok = r.Evict()
	require.True(t, ok)
	require.Equal(t, FrameID(4), id)

	r.RecordAccess(5)

	id, ok = r.Evict()
	require.True(t, ok)
	require.Equal(t, FrameID(6), id)

	require.Equal(t, 3, r.Size())
}

func TestLRUKReplacerSetEvictableIsIdempotentOnNoChange(t *testing.T) {
	r := newLRUKReplacer(2, 2)
	r.RecordAccess(1)
	r.SetEvictable(1, true)
	require.Equal(t, 1, r.Size())
	r.SetEvictable(1, true)
	require.Equal(t, 1, r.Size())
	r.SetEvictable(1, false)
	require.Equal(t, 0, r.Size())
}

func TestLRUKReplacerEvictReturnsFalseWhenNothingEvictable(t *testing.T) {
	r := newLRUKReplacer(4, 2)
	r.RecordAccess(1)
	_, ok := r.Evict()
	require.False(t, ok)
}

func TestLRUKReplacerRemovePanicsOnNonEvictable(t *testing.T) {
	r := newLRUKReplacer(4, 2)
	r.RecordAccess(1)
	require.Panics(t, func() { r.Remove(1) })
}

func TestLRUKReplacerRemoveOnUnknownFrameIsNoop(t *testing.T) {
	r := newLRUKReplacer(4, 2)
	require.NotPanics(t, func() { r.Remove(99) })
}

func TestLRUKReplacerNewSetPreferredOverCacheSet(t *testing.T) {
	r := newLRUKReplacer(4, 2)
	// Frame 1 reaches K=2 accesses, moving to the cache set.
	r.RecordAccess(1)
	r.RecordAccess(1)
	r.SetEvictable(1, true)
	// Frame 2 has only one access, staying in the new set with infinite
	// backward k-distance -- it must be preferred for eviction even though
	// it was accessed more recently than frame 1's oldest access.
	r.RecordAccess(2)
	r.SetEvictable(2, true)

	id, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, FrameID(2), id)
}
