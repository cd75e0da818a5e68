package wal

import (
	"os"
	"testing"
)

func TestReaderWalksRecordsInOrder(t *testing.T) {
	cfg := testConfig(t, 1<<20)
	g, err := Open(cfg, FirstValidLSN, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	var lsns []LSN
	for i := 0; i < 5; i++ {
		lsns = append(lsns, g.InsertRecord(RmgrXact, XactInfoCommit, Xid(uint64(i+1)), []byte("payload")))
	}
	last := lsns[len(lsns)-1]
	if err := g.Fsync(last); err != nil {
		t.Fatalf("Fsync: %v", err)
	}
	g.Close()

	storage := NewDirStorage(cfg.Dir, cfg.Timeline, cfg.WalFileMaxSize)
	r := NewReader(storage, cfg.Timeline, cfg.WalFileMaxSize, FirstValidLSN)
	defer r.Close()

	for i := 0; i < 5; i++ {
		lsn, h, body, err := r.Next()
		if err != nil {
			t.Fatalf("Next (record %d): %v", i, err)
		}
		if h.ID != RmgrXact || h.RmgrInfo() != XactInfoCommit {
			t.Fatalf("record %d: unexpected header %+v", i, h)
		}
		if h.Xid != Xid(i+1) {
			t.Fatalf("record %d: Xid got %d, want %d", i, h.Xid, i+1)
		}
		if string(body) != "payload" {
			t.Fatalf("record %d: body got %q", i, body)
		}
		// Next reports a record's start LSN; InsertRecord returned
		// each record's end LSN, which is where the next one starts.
		want := FirstValidLSN
		if i > 0 {
			want = lsns[i-1]
		}
		if lsn != want {
			t.Fatalf("record %d: lsn got %s, want %s", i, lsn, want)
		}
	}
}

// TestReaderCrossesSegmentBoundary checks that a sequential walk
// continues past a rotation onto the next file transparently.
func TestReaderCrossesSegmentBoundary(t *testing.T) {
	cfg := testConfig(t, 256) // small enough to force multiple segments
	g, err := Open(cfg, FirstValidLSN, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	const n = 10
	var lsns []LSN
	for i := 0; i < n; i++ {
		lsns = append(lsns, g.InsertRecord(RmgrXact, XactInfoCommit, Xid(uint64(i+1)), []byte("0123456789abcdef")))
	}
	if err := g.Fsync(lsns[len(lsns)-1]); err != nil {
		t.Fatalf("Fsync: %v", err)
	}
	g.Close()

	storage := NewDirStorage(cfg.Dir, cfg.Timeline, cfg.WalFileMaxSize)
	r := NewReader(storage, cfg.Timeline, cfg.WalFileMaxSize, FirstValidLSN)
	defer r.Close()

	for i := 0; i < n; i++ {
		lsn, _, _, err := r.Next()
		if err != nil {
			t.Fatalf("Next (record %d): %v", i, err)
		}
		want := FirstValidLSN
		if i > 0 {
			want = lsns[i-1]
		}
		if lsn != want {
			t.Fatalf("record %d: lsn got %s, want %s", i, lsn, want)
		}
	}
}

func TestReaderDetectsCorruption(t *testing.T) {
	cfg := testConfig(t, 1<<20)
	g, err := Open(cfg, FirstValidLSN, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	lsn := g.InsertRecord(RmgrXact, XactInfoCommit, Xid(1), []byte("payload"))
	if err := g.Fsync(lsn); err != nil {
		t.Fatalf("Fsync: %v", err)
	}
	g.Close()

	path := segmentPath(cfg.Dir, cfg.Timeline, FirstValidLSN)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read segment: %v", err)
	}
	raw[RecordHeaderSize] ^= 0xFF // flip a body byte
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write segment: %v", err)
	}

	storage := NewDirStorage(cfg.Dir, cfg.Timeline, cfg.WalFileMaxSize)
	r := NewReader(storage, cfg.Timeline, cfg.WalFileMaxSize, FirstValidLSN)
	defer r.Close()
	if _, _, _, err := r.Next(); err == nil {
		t.Fatalf("expected a checksum error from the corrupted record")
	}
}
