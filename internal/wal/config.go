package wal

import "encoding/binary"

// ByteOrder is the byte order used for every on-disk WAL and control
// structure: little-endian throughout.
var ByteOrder = binary.LittleEndian

// Config carries the tunables the WAL core needs at Open time. There
// is no external config-file library wired here: these are plain
// constructor parameters, so Config is a plain struct rather than a
// parsed document.
type Config struct {
	// Dir is the WAL directory ("kb_wal/" under the data directory).
	Dir string
	// Timeline is the timeline new segments are created on.
	Timeline TimelineID
	// WalBuffMaxSize is the in-memory append-buffer high-water mark, in bytes.
	WalBuffMaxSize uint64
	// WalFileMaxSize is the on-disk segment size, in bytes.
	WalFileMaxSize uint64
	// XidStopLimit is the headroom before new-xid allocation refuses.
	XidStopLimit uint64
}

// DefaultConfig returns conservative defaults suitable for tests and
// small deployments.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:            dir,
		Timeline:       FirstTimelineID,
		WalBuffMaxSize: 8 * 1024 * 1024,
		WalFileMaxSize: 16 * 1024 * 1024,
		XidStopLimit:   1_000_000,
	}
}

// Resource-manager ids.
const (
	RmgrXlog uint8 = 0
	RmgrXact uint8 = 1
)

// Info opcodes.
const (
	XlogInfoCkpt   uint8 = 0x10
	XactInfoCommit uint8 = 0x00
	XactInfoAbort  uint8 = 0x20
)
