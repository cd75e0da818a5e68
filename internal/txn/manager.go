package txn

import (
	"sync/atomic"

	"github.com/kuibadb/kuiba/internal/wal"
)

// Manager ties the running-xact state and the xmins multiset
// together, and exposes the checkpoint-delay counter the session
// commit protocol uses to hold off a racing checkpoint while a commit
// record is mid-flight.
type Manager struct {
	running *RunningState
	xmins   *xminSet

	ckptDelayNum atomic.Int64
}

// NewManager seeds a manager with the next xid to allocate and the
// configured wraparound headroom.
func NewManager(nextXid wal.Xid, xidStopLimit uint64) *Manager {
	return &Manager{
		running: NewRunningState(nextXid, xidStopLimit),
		xmins:   newXminSet(),
	}
}

// StartXid allocates a new xid.
func (m *Manager) StartXid() (wal.Xid, error) { return m.running.StartXid() }

// NextXid returns the xid that would be allocated next, the value a
// checkpoint stamps into its body so a restart resumes allocation at
// the right place.
func (m *Manager) NextXid() wal.Xid { return m.running.NextXid() }

// EndXid retires xid from the running set.
func (m *Manager) EndXid(xid wal.Xid) { m.running.EndXid(xid) }

// GetSnapshot builds a new snapshot and registers its xmin in the
// xmins multiset for the duration the caller holds it. Callers must
// call ReleaseSnapshot when done.
//
// xmax is the last completed xid at this instant: Snapshot.IsRunning
// treats any xid greater than xmax as running, since such an xid could
// only have been allocated after this snapshot was taken.
func (m *Manager) GetSnapshot() Snapshot {
	inFlight := m.running.inFlightSorted()
	lastCompleted := m.running.LastCompleted()
	xmax := lastCompleted

	var xmin wal.Xid
	xidset := make(map[wal.Xid]struct{})
	if len(inFlight) == 0 {
		xmin = lastCompleted + 1
	} else {
		xmin = inFlight[0]
		for _, x := range inFlight[1:] {
			xidset[x] = struct{}{}
		}
	}
	m.xmins.add(xmin)
	return Snapshot{Xmin: xmin, Xmax: xmax, XidSet: xidset}
}

// ReleaseSnapshot removes s's xmin registration from the xmins
// multiset once the holder no longer needs repeatable visibility.
func (m *Manager) ReleaseSnapshot(s Snapshot) {
	m.xmins.remove(s.Xmin)
}

// GlobalXmin returns min(lastCompleted+1, min(in-flight), min(xmins)):
// the floor below which xids may safely be reused or vacuumed.
func (m *Manager) GlobalXmin() wal.Xid {
	min := m.running.LastCompleted() + 1
	if x, ok := m.running.minInFlight(); ok && x < min {
		min = x
	}
	if x, ok := m.xmins.min(); ok && x < min {
		min = x
	}
	return min
}

// BeginCheckpointDelay increments ckpt_delay_num, signaling that a
// checkpoint must not advance its redo pointer past the in-flight
// commit this session is performing.
func (m *Manager) BeginCheckpointDelay() { m.ckptDelayNum.Add(1) }

// EndCheckpointDelay decrements ckpt_delay_num.
func (m *Manager) EndCheckpointDelay() { m.ckptDelayNum.Add(-1) }

// CheckpointDelayed reports whether any session is currently between
// BeginCheckpointDelay and EndCheckpointDelay. Deciding when to take a
// checkpoint is left to the caller; this is the hook a scheduler would
// consult before doing so.
func (m *Manager) CheckpointDelayed() bool { return m.ckptDelayNum.Load() > 0 }
