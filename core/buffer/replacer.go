package buffer

import (
	"container/list"
	"fmt"
	"sync"
)

// replacerNode is a frame's access history inside the LRU-K replacer: a
// sliding window of at most k timestamps (oldest first) plus the flag that
// says whether this frame may currently be evicted. history[0] is always
// either the frame's earliest-ever access (fewer than k accesses so far,
// giving an infinite backward k-distance) or the k-th most recent access
// (k accesses recorded, giving a finite backward k-distance) -- the two
// cases the spec calls the "new" and "cache" sets.
type replacerNode struct {
	history   []uint64
	evictable bool
	elem      *list.Element // the node's element in whichever list currently owns it
}

func (n *replacerNode) inCache(k int) bool { return len(n.history) >= k }

// lruKReplacer selects an evictable frame by backward-K-distance, grounded
// on the container/list-based LRU bookkeeping the teacher's buffer pool
// manager uses for plain LRU, generalized to two populations ("new" and
// "cache") the way the spec's LRU-K state model describes. It carries its
// own mutex so it is usable and testable independently of the BPM mutex,
// per the spec's concurrency model.
type lruKReplacer struct {
	mu  sync.Mutex
	k   int
	ts  uint64
	new_, cache *list.List // both hold FrameID values
	nodes       map[FrameID]*replacerNode
	size        int
}

func newLRUKReplacer(numFrames, k int) *lruKReplacer {
	return &lruKReplacer{
		k:     k,
		new_:  list.New(),
		cache: list.New(),
		nodes: make(map[FrameID]*replacerNode, numFrames),
	}
}

// RecordAccess appends an access timestamp for frame_id, creating its
// history if this is the frame's first access. When the access completes
// the frame's k-th recorded access, the frame moves from the new set to
// the cache set. Recording an access never changes evictability.
func (r *lruKReplacer) RecordAccess(frameID FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ts++

	n, ok := r.nodes[frameID]
	if !ok {
		n = &replacerNode{}
		n.elem = r.new_.PushBack(frameID)
		r.nodes[frameID] = n
		n.history = append(n.history, r.ts)
		return
	}

	wasInCache := n.inCache(r.k)
	n.history = append(n.history, r.ts)
	if len(n.history) > r.k {
		n.history = n.history[1:]
	}
	if !wasInCache && n.inCache(r.k) {
		r.new_.Remove(n.elem)
		n.elem = r.cache.PushBack(frameID)
	}
}

// SetEvictable adjusts frame_id's evictable flag, bumping size exactly when
// the flag transitions. Unknown frames and no-op transitions are ignored.
func (r *lruKReplacer) SetEvictable(frameID FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[frameID]
	if !ok || n.evictable == evictable {
		return
	}
	n.evictable = evictable
	if evictable {
		r.size++
	} else {
		r.size--
	}
}

// Evict returns the evictable frame with the greatest backward k-distance,
// preferring any evictable frame in the new set (infinite k-distance) over
// the cache set, ties broken by earliest timestamp. It removes the winning
// frame's history entirely. Returns false if no frame is evictable.
func (r *lruKReplacer) Evict() (FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.evictFrom(r.new_); ok {
		return id, true
	}
	return r.evictFrom(r.cache)
}

// evictFrom scans l for the evictable frame with the smallest history[0]
// (i.e. the oldest qualifying timestamp), which for the new set is the
// earliest access and for the cache set is the oldest of the last k
// accesses -- exactly the tie-break / distance rule the spec describes.
func (r *lruKReplacer) evictFrom(l *list.List) (FrameID, bool) {
	var best *list.Element
	var bestID FrameID
	var bestTS uint64
	for e := l.Front(); e != nil; e = e.Next() {
		id := e.Value.(FrameID)
		n := r.nodes[id]
		if !n.evictable {
			continue
		}
		if best == nil || n.history[0] < bestTS {
			best = e
			bestID = id
			bestTS = n.history[0]
		}
	}
	if best == nil {
		return 0, false
	}
	l.Remove(best)
	delete(r.nodes, bestID)
	r.size--
	return bestID, true
}

// Remove forcibly evicts frame_id, which the caller must already know to be
// evictable. Removing a tracked frame that is not evictable is a programmer
// error and panics; removing an unknown frame is a no-op, per the spec.
func (r *lruKReplacer) Remove(frameID FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[frameID]
	if !ok {
		return
	}
	if !n.evictable {
		panic(fmt.Sprintf("buffer: Remove called on non-evictable frame %d", frameID))
	}
	if n.inCache(r.k) {
		r.cache.Remove(n.elem)
	} else {
		r.new_.Remove(n.elem)
	}
	delete(r.nodes, frameID)
	r.size--
}

// Size returns the number of currently evictable frames.
func (r *lruKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}
