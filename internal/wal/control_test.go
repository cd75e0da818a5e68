package wal

import (
	"os"
	"testing"
)

// TestControlFileRoundTrip checks that loading a persisted control
// file reproduces what was written.
func TestControlFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := Ctl{
		CtlVer:      CtlVer,
		CatVer:      CatVer,
		Time:        1_700_000_000,
		LastCkptLSN: LSN(0x0133F0E2),
		Ckpt: CheckpointBody{
			Redo:         LSN(0x0133F0E2),
			ThisTimeline: FirstTimelineID,
			NextXid:      FirstNormalXid,
			NextOID:      OID(16384),
			Time:         1_700_000_000,
		},
	}
	if err := WriteControlFile(dir, c); err != nil {
		t.Fatalf("WriteControlFile: %v", err)
	}
	got, err := LoadControlFile(dir)
	if err != nil {
		t.Fatalf("LoadControlFile: %v", err)
	}
	if got != c {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, c)
	}
}

func TestLoadControlFileRejectsVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	c := Ctl{CtlVer: CtlVer + 1, CatVer: CatVer}
	if err := WriteControlFile(dir, c); err != nil {
		t.Fatalf("WriteControlFile: %v", err)
	}
	if _, err := LoadControlFile(dir); err == nil {
		t.Fatalf("expected a version-mismatch error")
	}
}

func TestLoadControlFileRejectsCorruption(t *testing.T) {
	dir := t.TempDir()
	c := Ctl{CtlVer: CtlVer, CatVer: CatVer}
	if err := WriteControlFile(dir, c); err != nil {
		t.Fatalf("WriteControlFile: %v", err)
	}
	path := dir + "/" + ControlFileName
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	raw[0] ^= 0xFF
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadControlFile(dir); err == nil {
		t.Fatalf("expected a checksum-mismatch error")
	}
}
