package wal

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

// CtlVer and CatVer are the control-file and catalog format version
// stamps. A cluster whose on-disk versions don't match refuses to
// start rather than silently misinterpreting an incompatible layout.
const (
	CtlVer uint32 = 20130203
	CatVer uint32 = 20181218
)

// ControlFileName is the path, relative to the data directory, of the
// control file.
const ControlFileName = "global/kb_control"

// Ctl is the cluster control file: format version stamps, the time it
// was last written, the LSN of the last checkpoint, and that
// checkpoint's body, all protected by a trailing CRC-32C.
type Ctl struct {
	CtlVer      uint32
	CatVer      uint32
	Time        int64
	LastCkptLSN LSN
	Ckpt        CheckpointBody
}

// ctlBodySize is the serialized size of Ctl excluding its trailing CRC.
const ctlBodySize = 4 + 4 + 8 + 8 + CheckpointBodySize

// ctlFileSize is the full on-disk control file size, body plus CRC.
const ctlFileSize = ctlBodySize + 4

func (c Ctl) encode() []byte {
	buf := make([]byte, ctlFileSize)
	ByteOrder.PutUint32(buf[0:4], c.CtlVer)
	ByteOrder.PutUint32(buf[4:8], c.CatVer)
	ByteOrder.PutUint64(buf[8:16], uint64(c.Time))
	ByteOrder.PutUint64(buf[16:24], uint64(c.LastCkptLSN))
	c.Ckpt.EncodeInto(buf[24:ctlBodySize])
	crc := crc32.Checksum(buf[:ctlBodySize], castagnoli)
	ByteOrder.PutUint32(buf[ctlBodySize:ctlFileSize], crc)
	return buf
}

func decodeCtl(buf []byte) (Ctl, error) {
	if len(buf) != ctlFileSize {
		return Ctl{}, fmt.Errorf("wal: control file has wrong size: got %d, want %d", len(buf), ctlFileSize)
	}
	wantCRC := ByteOrder.Uint32(buf[ctlBodySize:ctlFileSize])
	gotCRC := crc32.Checksum(buf[:ctlBodySize], castagnoli)
	if wantCRC != gotCRC {
		return Ctl{}, fmt.Errorf("wal: control file checksum mismatch")
	}
	ckpt, err := DecodeCheckpointBody(buf[24:ctlBodySize])
	if err != nil {
		return Ctl{}, err
	}
	c := Ctl{
		CtlVer:      ByteOrder.Uint32(buf[0:4]),
		CatVer:      ByteOrder.Uint32(buf[4:8]),
		Time:        int64(ByteOrder.Uint64(buf[8:16])),
		LastCkptLSN: LSN(ByteOrder.Uint64(buf[16:24])),
		Ckpt:        ckpt,
	}
	if c.CtlVer != CtlVer {
		return Ctl{}, fmt.Errorf("wal: control file version %d, binary expects %d", c.CtlVer, CtlVer)
	}
	if c.CatVer != CatVer {
		return Ctl{}, fmt.Errorf("wal: catalog version %d, binary expects %d", c.CatVer, CatVer)
	}
	return c, nil
}

// LoadControlFile reads and validates the control file under dataDir.
func LoadControlFile(dataDir string) (Ctl, error) {
	path := filepath.Join(dataDir, ControlFileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		return Ctl{}, fmt.Errorf("wal: read control file: %w", err)
	}
	return decodeCtl(raw)
}

// WriteControlFile persists c atomically: a crash or power loss can
// never observe a torn half-write of the control file, since a rename
// of a fully-written temp file is the only way the target path changes.
func WriteControlFile(dataDir string, c Ctl) error {
	path := filepath.Join(dataDir, ControlFileName)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("wal: create control file directory: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(c.encode())); err != nil {
		return fmt.Errorf("wal: write control file: %w", err)
	}
	return nil
}
