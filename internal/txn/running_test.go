package txn

import (
	"testing"

	"github.com/kuibadb/kuiba/internal/wal"
)

func TestRunningStateAllocatesIncreasingXids(t *testing.T) {
	r := NewRunningState(wal.FirstNormalXid, 1000)
	first, err := r.StartXid()
	if err != nil {
		t.Fatalf("StartXid: %v", err)
	}
	second, err := r.StartXid()
	if err != nil {
		t.Fatalf("StartXid: %v", err)
	}
	if second <= first {
		t.Fatalf("xids must increase: first=%d second=%d", first, second)
	}
	if r.NextXid() != second+1 {
		t.Fatalf("NextXid: got %d, want %d", r.NextXid(), second+1)
	}
}

func TestRunningStateRefusesNearWraparound(t *testing.T) {
	r := NewRunningState(wal.Xid(wal.XidStop)-5, 10)
	if _, err := r.StartXid(); err != ErrXidExhausted {
		t.Fatalf("StartXid: got err=%v, want ErrXidExhausted", err)
	}
}

func TestRunningStateEndXidAdvancesLastCompleted(t *testing.T) {
	r := NewRunningState(wal.FirstNormalXid, 1000)
	a, _ := r.StartXid()
	b, _ := r.StartXid()
	r.EndXid(b)
	if r.LastCompleted() != b {
		t.Fatalf("LastCompleted: got %d, want %d", r.LastCompleted(), b)
	}
	r.EndXid(a)
	if r.LastCompleted() != b {
		t.Fatalf("LastCompleted should not regress: got %d, want %d", r.LastCompleted(), b)
	}
}

func TestRunningStateMinInFlight(t *testing.T) {
	r := NewRunningState(wal.FirstNormalXid, 1000)
	a, _ := r.StartXid()
	_, _ = r.StartXid()
	r.EndXid(a)
	c, _ := r.StartXid()
	min, ok := r.minInFlight()
	if !ok {
		t.Fatalf("expected an in-flight xid")
	}
	if min == a {
		t.Fatalf("ended xid %d should not be the reported minimum", a)
	}
	_ = c
}

func TestXminSetTracksMinimumAcrossAddRemove(t *testing.T) {
	s := newXminSet()
	if _, ok := s.min(); ok {
		t.Fatalf("empty set should report no minimum")
	}
	s.add(wal.Xid(10))
	s.add(wal.Xid(5))
	s.add(wal.Xid(5))
	if min, ok := s.min(); !ok || min != wal.Xid(5) {
		t.Fatalf("min: got %d, ok=%v, want 5", min, ok)
	}
	s.remove(wal.Xid(5))
	if min, ok := s.min(); !ok || min != wal.Xid(5) {
		t.Fatalf("min after single remove: got %d, ok=%v, want 5 (still one ref)", min, ok)
	}
	s.remove(wal.Xid(5))
	if min, ok := s.min(); !ok || min != wal.Xid(10) {
		t.Fatalf("min after both refs removed: got %d, ok=%v, want 10", min, ok)
	}
}
