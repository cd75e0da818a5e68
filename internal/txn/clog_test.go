package txn

import (
	"testing"

	"github.com/kuibadb/kuiba/internal/wal"
)

func TestClogDefaultsToInProgress(t *testing.T) {
	c := NewClog()
	if got := c.Get(wal.Xid(5)); got != StatusInProgress {
		t.Fatalf("Get: got %v, want StatusInProgress", got)
	}
}

func TestClogRecordsCommittedWithLSN(t *testing.T) {
	c := NewClog()
	c.SetCommitted(wal.Xid(5), wal.LSN(1000))
	if got := c.Get(wal.Xid(5)); got != StatusCommitted {
		t.Fatalf("Get: got %v, want StatusCommitted", got)
	}
	lsn, ok := c.RecordLSN(wal.Xid(5))
	if !ok || lsn != wal.LSN(1000) {
		t.Fatalf("RecordLSN: got lsn=%d ok=%v, want 1000/true", lsn, ok)
	}
}

func TestClogRecordsAborted(t *testing.T) {
	c := NewClog()
	c.SetAborted(wal.Xid(7), wal.LSN(2000))
	if got := c.Get(wal.Xid(7)); got != StatusAborted {
		t.Fatalf("Get: got %v, want StatusAborted", got)
	}
}
