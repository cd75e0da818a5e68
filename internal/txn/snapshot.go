package txn

import "github.com/kuibadb/kuiba/internal/wal"

// Snapshot is a point-in-time view of which transactions count as
// already completed.
type Snapshot struct {
	Xmin   wal.Xid
	Xmax   wal.Xid
	XidSet map[wal.Xid]struct{}
}

// IsRunning reports whether t should be treated as still running from
// this snapshot's perspective. Checked in order: t > xmax is running
// (allocated after this snapshot was taken); t < xmin is not running
// (completed before any xid this snapshot needed to track); t == xmax
// is not running; t == xmin is running; otherwise t is running iff
// it's in xidset.
func (s Snapshot) IsRunning(t wal.Xid) bool {
	if t > s.Xmax {
		return true
	}
	if t < s.Xmin {
		return false
	}
	if t == s.Xmax {
		return false
	}
	if t == s.Xmin {
		return true
	}
	_, inSet := s.XidSet[t]
	return inSet
}

// Visible reports whether a row last written by xid t is visible to a
// reader holding this snapshot: the exact complement of IsRunning.
func (s Snapshot) Visible(t wal.Xid) bool {
	return !s.IsRunning(t)
}
