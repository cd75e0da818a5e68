package wal

import "fmt"

// CheckpointBody is the body of a Ckpt record (RmgrXlog/XlogInfoCkpt):
// the redo LSN recovery must start at, the timeline lineage, and the
// allocator high-water marks needed to resume issuing new ids after a
// restart.
type CheckpointBody struct {
	Redo         LSN
	ThisTimeline TimelineID
	PrevTimeline TimelineID
	NextXid      Xid
	NextOID      OID
	Time         int64 // wall-clock time the checkpoint was taken, Unix seconds
}

// CheckpointBodySize is the fixed wire size of CheckpointBody.
const CheckpointBodySize = 8 + 4 + 4 + 8 + 4 + 8

// Encode serializes the checkpoint body into a freshly allocated buffer.
func (c CheckpointBody) Encode() []byte {
	buf := make([]byte, CheckpointBodySize)
	c.EncodeInto(buf)
	return buf
}

// EncodeInto writes c into buf, which must be at least CheckpointBodySize bytes.
func (c CheckpointBody) EncodeInto(buf []byte) {
	ByteOrder.PutUint64(buf[0:8], uint64(c.Redo))
	ByteOrder.PutUint32(buf[8:12], uint32(c.ThisTimeline))
	ByteOrder.PutUint32(buf[12:16], uint32(c.PrevTimeline))
	ByteOrder.PutUint64(buf[16:24], uint64(c.NextXid))
	ByteOrder.PutUint32(buf[24:28], uint32(c.NextOID))
	ByteOrder.PutUint64(buf[28:36], uint64(c.Time))
}

// DecodeCheckpointBody parses a checkpoint body previously produced by Encode.
func DecodeCheckpointBody(buf []byte) (CheckpointBody, error) {
	if len(buf) < CheckpointBodySize {
		return CheckpointBody{}, fmt.Errorf("wal: checkpoint body too short: %d bytes", len(buf))
	}
	return CheckpointBody{
		Redo:         LSN(ByteOrder.Uint64(buf[0:8])),
		ThisTimeline: TimelineID(ByteOrder.Uint32(buf[8:12])),
		PrevTimeline: TimelineID(ByteOrder.Uint32(buf[12:16])),
		NextXid:      Xid(ByteOrder.Uint64(buf[16:24])),
		NextOID:      OID(ByteOrder.Uint32(buf[24:28])),
		Time:         int64(ByteOrder.Uint64(buf[28:36])),
	}, nil
}

// WriteCheckpoint inserts a Ckpt record, waits for it to become durable,
// and publishes its redo LSN so TryInsertRecord can start skipping
// records for pages already covered by it.
func WriteCheckpoint(g *Global, body CheckpointBody) (LSN, error) {
	lsn := g.InsertRecord(RmgrXlog, XlogInfoCkpt, InvalidXid, body.Encode())
	if err := g.Fsync(lsn); err != nil {
		return InvalidLSN, err
	}
	g.SetRedo(body.Redo)
	return lsn, nil
}
