// Package txn implements the transaction manager: xid allocation, the
// in-flight running-xact set, snapshot construction, the commit-log,
// and the per-session TranState x TBlockState state machine that
// drives commit/abort ordering against the WAL.
package txn

import "errors"

// ErrXidExhausted is returned by StartXid when nextxid has advanced to
// within XidStopLimit of the wraparound stop point.
var ErrXidExhausted = errors.New("txn: xid allocation refused: approaching wraparound stop limit")

// ErrSessionDead is returned by any session entry point once a fatal
// state transition has marked the session dead.
var ErrSessionDead = errors.New("txn: session is dead, further commands refused")

// ErrInvalidTransition is returned when a session entry point is
// invoked from a block state the state machine does not expect there;
// it also marks the session dead.
var ErrInvalidTransition = errors.New("txn: invalid session state transition")

// ErrCommitAfterCommitted is the fatal inconsistency the abort
// protocol guards against: clog already says Committed for an xid
// this session is trying to abort.
var ErrCommitAfterCommitted = errors.New("txn: abort requested for an already-committed xid")
