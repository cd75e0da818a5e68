// Package wal implements the write-ahead log core: position arithmetic,
// record framing, the insert path, the writing-file handle, checkpoint
// and control-file persistence, resource-manager dispatch, and the
// record reader used by recovery.
package wal

import (
	"fmt"
	"math"
)

// LSN is a log sequence number: a monotonic byte offset into the
// logical, infinite append-only log. Zero means "absent".
type LSN uint64

// InvalidLSN is the sentinel for "no LSN".
const InvalidLSN LSN = 0

// FirstValidLSN is the offset of the first real record. LSNs below it
// are reserved, matching the repository's historical layout.
const FirstValidLSN LSN = 0x0133F0E2

// Valid reports whether the LSN is non-zero.
func (l LSN) Valid() bool { return l != InvalidLSN }

// Add returns the LSN advanced by n bytes.
func (l LSN) Add(n uint64) LSN { return l + LSN(n) }

// String renders an LSN as high32/low32 hex, the conventional
// human-readable form for a byte-offset log position.
func (l LSN) String() string {
	return fmt.Sprintf("%X/%X", uint64(l)>>32, uint32(l))
}

// TimelineID labels a branch of WAL history created by a
// point-in-time recovery. Zero is invalid.
type TimelineID uint32

// FirstTimelineID is the timeline a freshly initialized cluster starts on.
const FirstTimelineID TimelineID = 1

// Xid is a transaction identifier. Ordering is total and defines
// visibility; xid 0 means "no transaction".
type Xid uint64

// InvalidXid is the sentinel for "no transaction".
const InvalidXid Xid = 0

// FirstNormalXid is the first xid handed out by a fresh cluster.
const FirstNormalXid Xid = 3

// XidStop is the reserved ceiling xid allocation refuses to cross minus
// the configured headroom. It sits strictly below math.MaxUint64 so a
// wraparound comparison never overflows.
const XidStop Xid = Xid(math.MaxUint64 - 333)

// Before reports whether a precedes b in total xid order.
func (a Xid) Before(b Xid) bool { return a < b }

// OID is a 32-bit non-zero object identifier.
type OID uint32

// InvalidOID is the sentinel for "no object".
const InvalidOID OID = 0
