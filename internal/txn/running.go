package txn

import (
	"sort"
	"sync"

	"github.com/kuibadb/kuiba/internal/wal"
)

// RunningState is the in-memory running-xact state: the in-flight xid
// set, the last completed xid, and the next xid to hand out.
// Invariants: nextxid > lastCompleted; every member of the in-flight
// set is < nextxid; lastCompleted never moves backward.
type RunningState struct {
	mu           sync.RWMutex
	xids         map[wal.Xid]struct{}
	lastCompleted wal.Xid
	nextXid      wal.Xid
	xidStopLimit uint64
}

// NewRunningState seeds the running state with the first xid to
// allocate (e.g. wal.FirstNormalXid on a fresh cluster, or a
// checkpoint's NextXid on restart) and the configured stop headroom.
func NewRunningState(nextXid wal.Xid, xidStopLimit uint64) *RunningState {
	return &RunningState{
		xids:         make(map[wal.Xid]struct{}),
		lastCompleted: wal.InvalidXid,
		nextXid:      nextXid,
		xidStopLimit: xidStopLimit,
	}
}

// StartXid allocates a new xid, refusing once nextxid has advanced
// within xidStopLimit of the reserved stop ceiling.
func (r *RunningState) StartXid() (wal.Xid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if uint64(r.nextXid) >= uint64(wal.XidStop)-r.xidStopLimit {
		return wal.InvalidXid, ErrXidExhausted
	}
	xid := r.nextXid
	r.nextXid++
	r.xids[xid] = struct{}{}
	return xid, nil
}

// EndXid removes xid from the in-flight set and advances lastCompleted
// if xid is newer than the current value.
func (r *RunningState) EndXid(xid wal.Xid) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.xids, xid)
	if xid > r.lastCompleted {
		r.lastCompleted = xid
	}
}

// LastCompleted returns the highest xid known to have ended.
func (r *RunningState) LastCompleted() wal.Xid {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastCompleted
}

// NextXid returns the next xid that would be allocated.
func (r *RunningState) NextXid() wal.Xid {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nextXid
}

// inFlightSorted returns a sorted snapshot of the in-flight set.
func (r *RunningState) inFlightSorted() []wal.Xid {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]wal.Xid, 0, len(r.xids))
	for x := range r.xids {
		out = append(out, x)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// minInFlight returns the smallest in-flight xid, if any.
func (r *RunningState) minInFlight() (wal.Xid, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	min, ok := wal.Xid(0), false
	for x := range r.xids {
		if !ok || x < min {
			min, ok = x, true
		}
	}
	return min, ok
}

// xminSet is a bag of snapshot lower bounds currently held by live
// snapshots. Its minimum is the global xmin floor below which xids may
// be reused or vacuumed.
type xminSet struct {
	mu     sync.Mutex
	counts map[wal.Xid]int
}

func newXminSet() *xminSet {
	return &xminSet{counts: make(map[wal.Xid]int)}
}

func (s *xminSet) add(xmin wal.Xid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[xmin]++
}

func (s *xminSet) remove(xmin wal.Xid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[xmin]--
	if s.counts[xmin] <= 0 {
		delete(s.counts, xmin)
	}
}

func (s *xminSet) min() (wal.Xid, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	min, ok := wal.Xid(0), false
	for x := range s.counts {
		if !ok || x < min {
			min, ok = x, true
		}
	}
	return min, ok
}
