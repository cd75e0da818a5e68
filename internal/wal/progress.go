package wal

import (
	"sort"
	"sync"
	"sync/atomic"
)

// interval is a half-open byte range [Start, End) reported as complete
// by a single done() call.
type interval struct {
	start LSN
	end   LSN
}

// Tracker coalesces out-of-order completion notifications into a single
// monotonically advancing high-water mark. Writers call Done as their
// I/O completes; readers call Get or Wait to observe how far the mark
// has advanced. The mark only ever advances: Done never retreats it.
//
// Internal state (the pending, unmerged intervals) is protected by mu;
// the published mark is additionally stored atomically so Get never
// blocks on mu, and Wait uses a condition variable keyed on the same
// mutex so waiters are woken exactly when the mark moves.
type Tracker struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []interval // sorted by start, disjoint from [initial, mark)
	mark    atomic.Uint64
}

// NewTracker creates a tracker whose high-water mark starts at initial.
func NewTracker(initial LSN) *Tracker {
	t := &Tracker{}
	t.cond = sync.NewCond(&t.mu)
	t.mark.Store(uint64(initial))
	return t
}

// Done reports that [start, end) has completed. Completions may arrive
// out of order relative to other Done calls; the tracker merges them
// and advances the published mark only when a contiguous run starting
// at the current mark is known complete.
func (t *Tracker) Done(start, end LSN) {
	if end <= start {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := LSN(t.mark.Load())
	if end <= cur {
		// Already covered by the published mark; nothing to do.
		return
	}
	if start < cur {
		start = cur
	}

	t.insertLocked(interval{start: start, end: end})
	t.advanceLocked()
}

// insertLocked inserts iv into t.pending, merging with any overlapping
// or adjacent neighbors so the list stays sorted and disjoint.
func (t *Tracker) insertLocked(iv interval) {
	i := sort.Search(len(t.pending), func(i int) bool {
		return t.pending[i].start >= iv.start
	})
	t.pending = append(t.pending, interval{})
	copy(t.pending[i+1:], t.pending[i:])
	t.pending[i] = iv

	// Merge backward into the previous interval if it overlaps/touches.
	if i > 0 && t.pending[i-1].end >= t.pending[i].start {
		if t.pending[i].end > t.pending[i-1].end {
			t.pending[i-1].end = t.pending[i].end
		}
		t.pending = append(t.pending[:i], t.pending[i+1:]...)
		i--
	}
	// Merge forward, possibly absorbing several successors.
	for i+1 < len(t.pending) && t.pending[i].end >= t.pending[i+1].start {
		if t.pending[i+1].end > t.pending[i].end {
			t.pending[i].end = t.pending[i+1].end
		}
		t.pending = append(t.pending[:i+1], t.pending[i+2:]...)
	}
}

// advanceLocked publishes the mark forward while the front of pending
// starts at or before the current mark, then wakes waiters.
func (t *Tracker) advanceLocked() {
	cur := LSN(t.mark.Load())
	advanced := false
	for len(t.pending) > 0 && t.pending[0].start <= cur {
		if t.pending[0].end > cur {
			cur = t.pending[0].end
			advanced = true
		}
		t.pending = t.pending[1:]
	}
	if advanced {
		t.mark.Store(uint64(cur))
		t.cond.Broadcast()
	}
}

// Get returns the current high-water mark.
func (t *Tracker) Get() LSN {
	return LSN(t.mark.Load())
}

// Wait blocks until the high-water mark reaches at least p.
func (t *Tracker) Wait(p LSN) {
	if LSN(t.mark.Load()) >= p {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for LSN(t.mark.Load()) < p {
		t.cond.Wait()
	}
}
