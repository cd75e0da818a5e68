package txn

import (
	"sync"

	"github.com/kuibadb/kuiba/internal/wal"
)

// Status is a transaction's commit-log outcome.
type Status uint8

const (
	StatusInProgress Status = iota
	StatusCommitted
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusCommitted:
		return "committed"
	case StatusAborted:
		return "aborted"
	default:
		return "in-progress"
	}
}

// Clog is the commit-log: an in-memory map from xid to outcome, plus
// the LSN of the commit/abort record that produced it. An xid with no
// entry is InProgress by definition; clog never records that state
// explicitly, using map absence as the sentinel instead of
// pre-populating every xid.
type Clog struct {
	mu     sync.RWMutex
	status map[wal.Xid]Status
	atLSN  map[wal.Xid]wal.LSN
}

// NewClog returns an empty commit log.
func NewClog() *Clog {
	return &Clog{
		status: make(map[wal.Xid]Status),
		atLSN:  make(map[wal.Xid]wal.LSN),
	}
}

// Get returns xid's current status, defaulting to InProgress.
func (c *Clog) Get(xid wal.Xid) Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.status[xid]; ok {
		return s
	}
	return StatusInProgress
}

// SetCommitted implements wal.ClogWriter: records xid as Committed and
// the LSN of the commit record that established it.
func (c *Clog) SetCommitted(xid wal.Xid, lsn wal.LSN) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status[xid] = StatusCommitted
	c.atLSN[xid] = lsn
}

// SetAborted implements wal.ClogWriter: records xid as Aborted.
func (c *Clog) SetAborted(xid wal.Xid, lsn wal.LSN) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status[xid] = StatusAborted
	c.atLSN[xid] = lsn
}

// RecordLSN returns the LSN of the commit/abort record that set xid's
// status, if known.
func (c *Clog) RecordLSN(xid wal.Xid) (wal.LSN, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	lsn, ok := c.atLSN[xid]
	return lsn, ok
}
