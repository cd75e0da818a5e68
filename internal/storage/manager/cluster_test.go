package manager

import (
	"os"
	"testing"
	"time"

	"github.com/kuibadb/kuiba/internal/txn"
	"github.com/kuibadb/kuiba/internal/wal"
)

func tempDataDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "kuiba-manager")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func testWalConfig() wal.Config {
	cfg := wal.DefaultConfig("")
	cfg.WalBuffMaxSize = 4096
	cfg.WalFileMaxSize = 1 << 20
	return cfg
}

// TestOpenReplaysCommittedTransactionAcrossRestart is the baseline the
// crash tests below are measured against: a transaction committed (and
// durably fsynced) through the ordinary session protocol comes back as
// Committed once the directory is reopened, because its commit record
// falls after the control file's redo LSN and replay dispatches it.
// The cluster is torn down without an intervening checkpoint: clog
// carries no durable state of its own here (see the crash tests
// below), so a checkpoint taken after the commit would advance redo
// past the record and lose it on reopen, which would defeat the point
// of this particular check.
func TestOpenReplaysCommittedTransactionAcrossRestart(t *testing.T) {
	dir := tempDataDir(t)

	a, err := Open(dir, testWalConfig(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := a.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	sess := a.NewSession()
	if err := sess.StartCommand(); err != nil {
		t.Fatalf("StartCommand: %v", err)
	}
	xid := sess.Xid()
	if err := sess.EndCommand(); err != nil {
		t.Fatalf("EndCommand: %v", err)
	}
	a.wal.Close()
	if err := a.pageStore.Close(); err != nil {
		t.Fatalf("pageStore.Close: %v", err)
	}

	b, err := Open(dir, testWalConfig(), nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b.Close()
	if got := b.clog.Get(xid); got != txn.StatusCommitted {
		t.Fatalf("xid %d: got %s, want committed", xid, got)
	}
}

// TestReplayMarksCommittedWhenCrashFollowsFsyncButPrecedesClogUpdate
// drives the crash-before-clog-store scenario: the commit record is
// inserted and fsynced, but the process is abandoned before the
// in-memory clog is ever told about it. Because clog is rebuilt
// entirely from replayed WAL records rather than carrying any durable
// state of its own, a fresh Open still recovers xid as Committed.
func TestReplayMarksCommittedWhenCrashFollowsFsyncButPrecedesClogUpdate(t *testing.T) {
	dir := tempDataDir(t)

	a, err := Open(dir, testWalConfig(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := a.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	xid, err := a.txnMgr.StartXid()
	if err != nil {
		t.Fatalf("StartXid: %v", err)
	}
	body := make([]byte, 8)
	wal.ByteOrder.PutUint64(body, uint64(time.Now().Unix()))
	lsn := a.wal.InsertRecord(wal.RmgrXact, wal.XactInfoCommit, xid, body)
	if err := a.wal.Fsync(lsn); err != nil {
		t.Fatalf("Fsync: %v", err)
	}
	// Deliberately never call a.clog.SetCommitted or a.txnMgr.EndXid:
	// the crash is simulated as happening between the fsync above and
	// whatever in-memory bookkeeping a live session would have done
	// next. Release the file handles without checkpointing so the
	// control file still points at the redo LSN from before this xid.
	a.wal.Close()
	if err := a.pageStore.Close(); err != nil {
		t.Fatalf("pageStore.Close: %v", err)
	}

	b, err := Open(dir, testWalConfig(), nil)
	if err != nil {
		t.Fatalf("reopen after crash: %v", err)
	}
	defer b.Close()
	if got := b.clog.Get(xid); got != txn.StatusCommitted {
		t.Fatalf("xid %d: got %s, want committed (replay should have recovered it)", xid, got)
	}
}

// TestReplayLeavesInProgressWhenCrashPrecedesFsync drives the
// complementary crash-before-fsync scenario. The commit record is
// inserted into the in-memory append buffer but the buffer is never
// flushed or fsynced, so the bytes never reach the segment file at
// all. A fresh Open's replay has nothing to dispatch for xid, and it
// is left InProgress exactly as an aborted-looking crash would leave
// it.
func TestReplayLeavesInProgressWhenCrashPrecedesFsync(t *testing.T) {
	dir := tempDataDir(t)

	a, err := Open(dir, testWalConfig(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := a.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	xid, err := a.txnMgr.StartXid()
	if err != nil {
		t.Fatalf("StartXid: %v", err)
	}
	body := make([]byte, 8)
	wal.ByteOrder.PutUint64(body, uint64(time.Now().Unix()))
	_ = a.wal.InsertRecord(wal.RmgrXact, wal.XactInfoCommit, xid, body)
	// No Fsync call: the record sits in the append buffer only. Close
	// tears down the writing file without draining that buffer, the
	// same loss a real process crash at this point would produce.
	a.wal.Close()
	if err := a.pageStore.Close(); err != nil {
		t.Fatalf("pageStore.Close: %v", err)
	}

	b, err := Open(dir, testWalConfig(), nil)
	if err != nil {
		t.Fatalf("reopen after crash: %v", err)
	}
	defer b.Close()
	if got := b.clog.Get(xid); got != txn.StatusInProgress {
		t.Fatalf("xid %d: got %s, want in-progress (unflushed commit must not survive replay)", xid, got)
	}
}

// TestReplayDistinguishesFlushedFromUnflushedCommitsInSameCrash drives
// two transactions through the same crash: one commits normally
// (fsynced by the ordinary session commit protocol), the other is
// inserted but never fsynced. Both records fall after the control
// file's redo LSN, so replay walks both: the durable one recovers as
// Committed, the unflushed one is lost and stays InProgress. This is
// the boundary the other two crash tests each exercise from one side.
func TestReplayDistinguishesFlushedFromUnflushedCommitsInSameCrash(t *testing.T) {
	dir := tempDataDir(t)

	a, err := Open(dir, testWalConfig(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := a.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	first := a.NewSession()
	if err := first.StartCommand(); err != nil {
		t.Fatalf("StartCommand: %v", err)
	}
	firstXid := first.Xid()
	if err := first.EndCommand(); err != nil {
		t.Fatalf("EndCommand: %v", err)
	}

	secondXid, err := a.txnMgr.StartXid()
	if err != nil {
		t.Fatalf("StartXid: %v", err)
	}
	body := make([]byte, 8)
	_ = a.wal.InsertRecord(wal.RmgrXact, wal.XactInfoCommit, secondXid, body)
	a.wal.Close()
	if err := a.pageStore.Close(); err != nil {
		t.Fatalf("pageStore.Close: %v", err)
	}

	b, err := Open(dir, testWalConfig(), nil)
	if err != nil {
		t.Fatalf("reopen after crash: %v", err)
	}
	defer b.Close()
	if got := b.clog.Get(firstXid); got != txn.StatusCommitted {
		t.Fatalf("firstXid %d: got %s, want committed", firstXid, got)
	}
	if got := b.clog.Get(secondXid); got != txn.StatusInProgress {
		t.Fatalf("secondXid %d: got %s, want in-progress", secondXid, got)
	}
}
