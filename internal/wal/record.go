package wal

import "hash/crc32"

// castagnoli is the CRC-32C polynomial table used by every on-disk
// checksum in this package.
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// RecordHeaderSize is the fixed, packed, little-endian size of
// RecordHeader: totlen(4) + info(1) + id(1) + xid(8) + prev(8) + crc32c(4).
const RecordHeaderSize = 26

// headerPrefixSize is RecordHeaderSize minus the trailing CRC field:
// the span the CRC is folded over.
const headerPrefixSize = RecordHeaderSize - 4

// RecordHeader is the fixed-layout header prepended to every WAL record.
type RecordHeader struct {
	TotLen uint32 // total bytes including this header
	Info   uint8  // top nibble: resource-manager private opcode
	ID     uint8  // resource-manager id
	Xid    Xid    // 0 if none
	Prev   LSN    // LSN of the preceding record in insertion order, also across segment files; 0 for the first record after Open
	CRC32C uint32
}

// RmgrInfo returns the resource-manager's private opcode carried in the
// top nibble of Info; the low nibble is reserved.
func (h RecordHeader) RmgrInfo() uint8 { return h.Info & 0xF0 }

// encodeHeader writes h into a freshly allocated RecordHeaderSize buffer.
func encodeHeader(h RecordHeader) []byte {
	buf := make([]byte, RecordHeaderSize)
	encodeHeaderInto(buf, h)
	return buf
}

func encodeHeaderInto(buf []byte, h RecordHeader) {
	ByteOrder.PutUint32(buf[0:4], h.TotLen)
	buf[4] = h.Info
	buf[5] = h.ID
	ByteOrder.PutUint64(buf[6:14], uint64(h.Xid))
	ByteOrder.PutUint64(buf[14:22], uint64(h.Prev))
	ByteOrder.PutUint32(buf[22:26], h.CRC32C)
}

func decodeHeader(buf []byte) RecordHeader {
	return RecordHeader{
		TotLen: ByteOrder.Uint32(buf[0:4]),
		Info:   buf[4],
		ID:     buf[5],
		Xid:    Xid(ByteOrder.Uint64(buf[6:14])),
		Prev:   LSN(ByteOrder.Uint64(buf[14:22])),
		CRC32C: ByteOrder.Uint32(buf[22:26]),
	}
}

// NewRecordBuffer allocates a record buffer with RecordHeaderSize bytes
// reserved at the front, followed by body.
func NewRecordBuffer(body []byte) []byte {
	buf := make([]byte, RecordHeaderSize+len(body))
	copy(buf[RecordHeaderSize:], body)
	return buf
}

// FinishRecord stamps the id/info/xid header fields of an
// already-allocated record buffer (see NewRecordBuffer) and computes
// the CRC-32C of the body only. The prev back-link and the final,
// header-folded CRC are filled in later by the inserter under the
// insert lock, because prev depends on insertion order.
func FinishRecord(buf []byte, id uint8, info uint8, xid Xid) {
	body := buf[RecordHeaderSize:]
	h := RecordHeader{
		TotLen: uint32(len(buf)),
		Info:   info,
		ID:     id,
		Xid:    xid,
		CRC32C: crc32.Checksum(body, castagnoli),
	}
	encodeHeaderInto(buf, h)
}

// foldPrevAndCRC fills in prev (decided under the insert lock) and
// extends the body-only CRC over the header prefix, producing the
// final on-disk checksum.
func foldPrevAndCRC(buf []byte, prev LSN) {
	ByteOrder.PutUint64(buf[14:22], uint64(prev))
	bodyCRC := ByteOrder.Uint32(buf[22:26])
	final := crc32.Update(bodyCRC, castagnoli, buf[0:headerPrefixSize])
	ByteOrder.PutUint32(buf[22:26], final)
}

// checkRecord validates totlen and the folded CRC of a fully decoded
// record, returning the header and the body slice on success.
func checkRecord(buf []byte) (RecordHeader, []byte, bool) {
	if len(buf) < RecordHeaderSize {
		return RecordHeader{}, nil, false
	}
	h := decodeHeader(buf)
	if h.TotLen < RecordHeaderSize || int(h.TotLen) != len(buf) {
		return RecordHeader{}, nil, false
	}
	body := buf[RecordHeaderSize:]
	bodyCRC := crc32.Checksum(body, castagnoli)
	want := crc32.Update(bodyCRC, castagnoli, buf[0:headerPrefixSize])
	if want != h.CRC32C {
		return h, body, false
	}
	return h, body, true
}
