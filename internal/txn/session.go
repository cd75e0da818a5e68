package txn

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kuibadb/kuiba/internal/wal"
)

// nowUnix returns the current wall-clock time in whole seconds.
func nowUnix() int64 { return time.Now().Unix() }

// TranState is the low-level transaction lifecycle.
type TranState int

const (
	TranDefault TranState = iota
	TranStart
	TranInprogress
	TranCommit
	TranAbort
)

// TBlockState is the SQL-visible block state a session presents to
// its driving loop.
type TBlockState int

const (
	BlockDefault TBlockState = iota
	BlockStarted
	BlockBegin
	BlockInprogress
	BlockEnd
	BlockAbort
	BlockAbortEnd
	BlockAbortPending
)

// Session is one SQL session's transaction state: its id (for log
// correlation, independent of its xid), the two-level state machine,
// and the resources (WAL, manager, clog) it drives commit/abort
// through.
type Session struct {
	ID uuid.UUID

	wal    *wal.Global
	mgr    *Manager
	clog   *Clog
	logger *slog.Logger

	mu         sync.Mutex
	tran       TranState
	block      TBlockState
	dead       bool
	xid        wal.Xid
	snap       *Snapshot
	lastRecEnd wal.LSN
}

// NewSession returns a fresh session in TranDefault/BlockDefault.
func NewSession(g *wal.Global, mgr *Manager, clog *Clog, logger *slog.Logger) *Session {
	return &Session{
		ID:     uuid.New(),
		wal:    g,
		mgr:    mgr,
		clog:   clog,
		logger: logger,
		xid:    wal.InvalidXid,
	}
}

// fatal marks the session dead and logs the invariant violation,
// returning an error to the caller rather than letting a panic escape.
// Once dead, every further call on this session returns ErrSessionDead.
func (s *Session) fatal(msg string, err error) error {
	s.dead = true
	if s.logger != nil {
		s.logger.Error(msg, "session", s.ID, "error", err)
	}
	return err
}

// StartCommand implements the start-of-command entry point.
func (s *Session) StartCommand() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return ErrSessionDead
	}
	switch s.block {
	case BlockDefault:
		if err := s.startTranLocked(); err != nil {
			return s.fatal("start-of-command: start tran failed", err)
		}
		s.block = BlockStarted
		return nil
	case BlockInprogress, BlockAbort:
		return nil
	default:
		return s.fatal("start-of-command: unexpected block state", fmt.Errorf("%w: block=%d", ErrInvalidTransition, s.block))
	}
}

// EndCommand implements the end-of-command entry point.
func (s *Session) EndCommand() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return ErrSessionDead
	}
	switch s.block {
	case BlockStarted, BlockEnd:
		if err := s.commitLocked(); err != nil {
			return s.fatal("end-of-command: commit failed", err)
		}
		s.block = BlockDefault
		return nil
	case BlockBegin:
		s.block = BlockInprogress
		return nil
	case BlockInprogress, BlockAbort:
		return nil
	case BlockAbortEnd:
		s.cleanupLocked()
		s.block = BlockDefault
		return nil
	case BlockAbortPending:
		if err := s.abortLocked(); err != nil {
			return s.fatal("end-of-command: abort failed", err)
		}
		s.cleanupLocked()
		s.block = BlockDefault
		return nil
	default:
		return s.fatal("end-of-command: unexpected block state", fmt.Errorf("%w: block=%d", ErrInvalidTransition, s.block))
	}
}

// AbortCurrent routes the session through abort by its current block
// state: an implicit single-statement transaction aborts and cleans up
// immediately; a statement failing inside an explicit BEGIN block
// aborts the xid but leaves the block open (BlockAbort) until an
// explicit ROLLBACK or COMMIT attempt closes it, matching how a SQL
// client expects a failed statement inside BEGIN/COMMIT to still
// require an explicit END.
func (s *Session) AbortCurrent() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return ErrSessionDead
	}
	switch s.block {
	case BlockDefault, BlockAbort, BlockAbortEnd, BlockAbortPending:
		return nil
	case BlockStarted:
		if err := s.abortLocked(); err != nil {
			return s.fatal("abort-current: abort failed", err)
		}
		s.cleanupLocked()
		s.block = BlockDefault
		return nil
	default: // BlockBegin, BlockInprogress, BlockEnd
		if err := s.abortLocked(); err != nil {
			return s.fatal("abort-current: abort failed", err)
		}
		s.block = BlockAbort
		return nil
	}
}

// Begin marks an explicit SQL BEGIN: the block the next end-of-command
// will commit becomes an explicit, multi-statement block.
func (s *Session) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return ErrSessionDead
	}
	if s.block == BlockStarted {
		s.block = BlockBegin
		return nil
	}
	return s.fatal("BEGIN: unexpected block state", fmt.Errorf("%w: block=%d", ErrInvalidTransition, s.block))
}

// Commit marks an explicit SQL COMMIT: the next end-of-command commits
// and returns to BlockDefault. In a block that has already aborted,
// COMMIT closes the block like ROLLBACK does: the next end-of-command
// cleans up without committing.
func (s *Session) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return ErrSessionDead
	}
	switch s.block {
	case BlockInprogress:
		s.block = BlockEnd
		return nil
	case BlockAbort:
		s.block = BlockAbortEnd
		return nil
	}
	return s.fatal("COMMIT: unexpected block state", fmt.Errorf("%w: block=%d", ErrInvalidTransition, s.block))
}

// Rollback marks an explicit SQL ROLLBACK: the next end-of-command
// aborts (if the block hadn't already) and cleans up.
func (s *Session) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return ErrSessionDead
	}
	switch s.block {
	case BlockInprogress:
		s.block = BlockAbortPending
		return nil
	case BlockAbort:
		s.block = BlockAbortEnd
		return nil
	default:
		return s.fatal("ROLLBACK: unexpected block state", fmt.Errorf("%w: block=%d", ErrInvalidTransition, s.block))
	}
}

func (s *Session) startTranLocked() error {
	xid, err := s.mgr.StartXid()
	if err != nil {
		return err
	}
	s.xid = xid
	s.tran = TranInprogress
	if s.logger != nil {
		s.logger.Debug("transaction started", "session", s.ID, "xid", xid)
	}
	return nil
}

// commitLocked implements the per-session commit protocol.
func (s *Session) commitLocked() error {
	hasXid := s.xid != wal.InvalidXid

	if hasXid {
		s.mgr.BeginCheckpointDelay()
		defer s.mgr.EndCheckpointDelay()
	}

	body := encodeXactTimeBody(nowUnix())
	lsn := s.wal.InsertRecord(wal.RmgrXact, wal.XactInfoCommit, s.xid, body)
	s.lastRecEnd = lsn

	if s.lastRecEnd.Valid() {
		if err := s.wal.Fsync(s.lastRecEnd); err != nil {
			return fmt.Errorf("txn: commit fsync: %w", err)
		}
	}

	if hasXid {
		s.clog.SetCommitted(s.xid, lsn)
		s.mgr.EndXid(s.xid)
	}

	s.tran = TranCommit
	s.releaseSnapshotLocked()
	if s.logger != nil {
		s.logger.Debug("transaction committed", "session", s.ID, "xid", s.xid, "lsn", lsn)
	}
	s.xid = wal.InvalidXid
	return nil
}

// abortLocked implements the per-session abort protocol.
func (s *Session) abortLocked() error {
	if s.xid != wal.InvalidXid {
		if s.clog.Get(s.xid) == StatusCommitted {
			return ErrCommitAfterCommitted
		}
	}

	body := encodeXactTimeBody(nowUnix())
	lsn := s.wal.InsertRecord(wal.RmgrXact, wal.XactInfoAbort, s.xid, body)

	if s.xid != wal.InvalidXid {
		s.clog.SetAborted(s.xid, lsn)
		s.mgr.EndXid(s.xid)
	}
	s.tran = TranAbort
	if s.logger != nil {
		s.logger.Debug("transaction aborted", "session", s.ID, "xid", s.xid, "lsn", lsn)
	}
	return nil
}

func (s *Session) cleanupLocked() {
	s.releaseSnapshotLocked()
	s.xid = wal.InvalidXid
	s.tran = TranDefault
}

func (s *Session) releaseSnapshotLocked() {
	if s.snap != nil {
		s.mgr.ReleaseSnapshot(*s.snap)
		s.snap = nil
	}
}

// Snapshot returns a fresh snapshot for this session, releasing any
// previously held one first.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseSnapshotLocked()
	snap := s.mgr.GetSnapshot()
	s.snap = &snap
	return snap
}

// Dead reports whether a fatal transition has retired this session.
func (s *Session) Dead() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dead
}

// Xid returns the xid this session currently owns, or InvalidXid.
func (s *Session) Xid() wal.Xid {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.xid
}

// encodeXactTimeBody builds the body of a commit/abort record: the
// wall-clock time the statement was issued, truncated to whole seconds.
func encodeXactTimeBody(t int64) []byte {
	buf := make([]byte, 8)
	wal.ByteOrder.PutUint64(buf, uint64(t))
	return buf
}
