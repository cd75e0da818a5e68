package wal

import "testing"

type fakeClog struct {
	committed map[Xid]LSN
	aborted   map[Xid]LSN
}

func newFakeClog() *fakeClog {
	return &fakeClog{committed: make(map[Xid]LSN), aborted: make(map[Xid]LSN)}
}

func (c *fakeClog) SetCommitted(xid Xid, lsn LSN) { c.committed[xid] = lsn }
func (c *fakeClog) SetAborted(xid Xid, lsn LSN)   { c.aborted[xid] = lsn }

func TestRegistryDispatchesByRmgrID(t *testing.T) {
	state := &XlogRedoState{}
	clog := newFakeClog()
	reg := NewRegistry()
	reg.Register(RmgrXlog, NewXlogResourceManager(state))
	reg.Register(RmgrXact, NewXactResourceManager(clog))

	ckpt := CheckpointBody{Redo: LSN(500), NextXid: Xid(9), NextOID: OID(16384)}
	if err := reg.Dispatch(LSN(1000), RecordHeader{ID: RmgrXlog, Info: XlogInfoCkpt}, ckpt.Encode()); err != nil {
		t.Fatalf("Dispatch ckpt: %v", err)
	}
	if state.Redo.Load() != uint64(500) || state.NextXid.Load() != uint64(9) {
		t.Fatalf("xlog rm did not fold checkpoint state: redo=%d nextxid=%d", state.Redo.Load(), state.NextXid.Load())
	}

	if err := reg.Dispatch(LSN(2000), RecordHeader{ID: RmgrXact, Info: XactInfoCommit, Xid: Xid(3)}, nil); err != nil {
		t.Fatalf("Dispatch commit: %v", err)
	}
	if clog.committed[Xid(3)] != LSN(2000) {
		t.Fatalf("commit not recorded: got %v", clog.committed)
	}

	if err := reg.Dispatch(LSN(3000), RecordHeader{ID: RmgrXact, Info: XactInfoAbort, Xid: Xid(4)}, nil); err != nil {
		t.Fatalf("Dispatch abort: %v", err)
	}
	if clog.aborted[Xid(4)] != LSN(3000) {
		t.Fatalf("abort not recorded: got %v", clog.aborted)
	}
}

func TestRegistryDispatchUnregisteredRmgrFails(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Dispatch(LSN(1), RecordHeader{ID: 99}, nil); err == nil {
		t.Fatalf("expected an error dispatching to an unregistered rmgr id")
	}
}

func TestXactResourceManagerRejectsUnknownInfo(t *testing.T) {
	m := NewXactResourceManager(newFakeClog())
	if err := m.Redo(LSN(1), 0x99, Xid(1), nil); err == nil {
		t.Fatalf("expected an error for an unknown xact info opcode")
	}
}

func TestDescribeFallsBackForUnregisteredRmgr(t *testing.T) {
	reg := NewRegistry()
	got := reg.Describe(RecordHeader{ID: 7, Info: 0x10}, nil)
	if got == "" {
		t.Fatalf("expected a non-empty fallback description")
	}
}
