package wal

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// insertState is the central mutex-protected structure holding the
// in-memory append buffer, current file, next-LSN cursor, prev-record
// back-link and the active segment.
type insertState struct {
	buf    [][]byte // queued, fully-finalized record buffers not yet written
	bufLSN LSN      // LSN of the first byte in buf
	bufSize uint64
	prevLSN LSN // LSN of the last inserted record, or InvalidLSN
	file    *writingFile
}

func (s *insertState) nextLSN() LSN { return s.bufLSN.Add(s.bufSize) }

// Global is the WAL insert core: the mutex plus the write and flush
// progress trackers, exposing InsertRecord, TryInsertRecord and Fsync.
type Global struct {
	mu sync.Mutex
	st insertState

	cfg    Config
	logger *slog.Logger

	redo atomic.Uint64 // published snapshot of the checkpoint redo LSN

	// WriteTracker and FlushTracker are deliberately exported as
	// *Tracker rather than embedded values: the writing-file handle
	// holds references to them directly, and per the "leaked statics"
	// design note they are meant to outlive any single segment file.
	WriteTracker *Tracker
	FlushTracker *Tracker
}

// actionKind tags the work insertLocked hands back to run outside the
// insert mutex.
type actionKind int

const (
	actionNoop actionKind = iota
	actionWrite
	actionWriteAndCreate
)

type pendingAction struct {
	kind actionKind

	file    *writingFile // target file for actionWrite
	oldFile *writingFile // file to drain and close for actionWriteAndCreate

	bufLSN       LSN
	buffers      [][]byte
	newFileStart LSN // for actionWriteAndCreate
}

// Open creates the WAL directory if needed and establishes the first
// active segment at startLSN. Opening always starts a fresh writing
// segment at startLSN; scanning existing WAL for a resume position is
// the caller's job (see manager.Cluster.Open), not this constructor's.
func Open(cfg Config, startLSN LSN, logger *slog.Logger) (*Global, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: create directory %s: %w", cfg.Dir, err)
	}
	g := &Global{
		cfg:          cfg,
		logger:       logger,
		WriteTracker: NewTracker(startLSN),
		FlushTracker: NewTracker(startLSN),
	}
	f, err := createWritingFile(cfg.Dir, cfg.Timeline, startLSN, cfg.WalFileMaxSize, g.WriteTracker, g.FlushTracker, logger)
	if err != nil {
		return nil, err
	}
	g.st = insertState{bufLSN: startLSN, file: f}
	return g, nil
}

// NextLSN returns the LSN the next inserted record would start at.
func (g *Global) NextLSN() LSN {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.nextLSN()
}

// SetRedo publishes a new redo LSN, as established by a checkpoint.
func (g *Global) SetRedo(lsn LSN) { g.redo.Store(uint64(lsn)) }

// Redo returns the last published redo LSN.
func (g *Global) Redo() LSN { return LSN(g.redo.Load()) }

// InsertRecord builds a record from id/info/xid/body, appends it to
// the in-memory queue, and returns the LSN at which the *next* record
// would begin.
func (g *Global) InsertRecord(id, info uint8, xid Xid, body []byte) LSN {
	buf := NewRecordBuffer(body)
	FinishRecord(buf, id, info, xid)
	return g.insert(buf)
}

// TryInsertRecord inserts only if pageLSN is not already protected by
// the last checkpoint (pageLSN > redo); otherwise it is a no-op,
// because a page whose LSN predates redo needs no new WAL.
func (g *Global) TryInsertRecord(id, info uint8, xid Xid, body []byte, pageLSN LSN) (LSN, bool) {
	g.mu.Lock()
	redo := LSN(g.redo.Load())
	g.mu.Unlock()
	if pageLSN <= redo {
		return InvalidLSN, false
	}
	buf := NewRecordBuffer(body)
	FinishRecord(buf, id, info, xid)
	return g.insert(buf), true
}

func (g *Global) insert(buf []byte) LSN {
	act, lsn := g.insertLocked(buf)
	g.runAction(act)
	return lsn
}

// insertLocked performs the three-case dispatch (append to the pending
// buffer, flush the buffer, or roll to a new segment) under the insert
// mutex and returns the action to run once the mutex is released, plus
// the LSN the caller should report back.
func (g *Global) insertLocked(buf []byte) (pendingAction, LSN) {
	var act pendingAction
	var lsn LSN
	withAbortOnPanic(g.logger, "insert_record", func() {
		g.mu.Lock()
		defer g.mu.Unlock()

		foldPrevAndCRC(buf, g.st.prevLSN)
		reclsn := g.st.nextLSN()
		recEnd := reclsn.Add(uint64(len(buf)))
		newbufsize := g.st.bufSize + uint64(len(buf))

		var newfilesize uint64
		if g.st.file != nil {
			newfilesize = uint64(recEnd - g.st.file.startLSN)
		}

		switch {
		case g.st.file != nil && newfilesize >= g.cfg.WalFileMaxSize:
			combined := append(append([][]byte{}, g.st.buf...), buf)
			act = pendingAction{
				kind:         actionWriteAndCreate,
				oldFile:      g.st.file,
				bufLSN:       g.st.bufLSN,
				buffers:      combined,
				newFileStart: recEnd,
			}
			g.st.file = nil
			g.st.buf = nil
			g.st.bufLSN = recEnd
			g.st.bufSize = 0

		case newbufsize >= g.cfg.WalBuffMaxSize:
			combined := append(append([][]byte{}, g.st.buf...), buf)
			act = pendingAction{
				kind:    actionWrite,
				file:    g.st.file,
				bufLSN:  g.st.bufLSN,
				buffers: combined,
			}
			g.st.buf = nil
			g.st.bufLSN = recEnd
			g.st.bufSize = 0

		default:
			g.st.buf = append(g.st.buf, buf)
			g.st.bufSize = newbufsize
			act = pendingAction{kind: actionNoop}
		}

		g.st.prevLSN = reclsn
		lsn = recEnd
	})
	return act, lsn
}

// runAction executes the action computed under the insert lock,
// outside the lock: scatter-write, and for actionWriteAndCreate, drain
// and close the old segment before the new one accepts writes.
func (g *Global) runAction(act pendingAction) {
	switch act.kind {
	case actionNoop:
		return

	case actionWrite:
		g.writeAndReport(act.file, act.bufLSN, act.buffers)

	case actionWriteAndCreate:
		g.writeAndReport(act.oldFile, act.bufLSN, act.buffers)
		act.oldFile.Close()

		newFile, err := createWritingFile(g.cfg.Dir, g.cfg.Timeline, act.newFileStart, g.cfg.WalFileMaxSize, g.WriteTracker, g.FlushTracker, g.logger)
		if err != nil {
			abortf(g.logger, "fatal: failed to create next WAL segment", "error", err)
			return
		}
		g.mu.Lock()
		g.st.file = newFile
		g.mu.Unlock()
	}
}

// writeAndReport performs the scatter-write of buffers at bufLSN into
// file and reports the written extent to the write progress tracker.
// Any I/O failure here is fatal: the LSN stream has already committed
// callers to this layout and cannot be rewound in-process.
func (g *Global) writeAndReport(file *writingFile, bufLSN LSN, buffers [][]byte) {
	offset := int64(bufLSN - file.startLSN)
	n, err := pwritev(file.f, buffers, offset)
	if err != nil {
		abortf(g.logger, "fatal: WAL scatter-write failed", "segment", file.f.Name(), "error", err)
		return
	}
	end := bufLSN.Add(uint64(n))
	file.recordWritten(end)
	g.WriteTracker.Done(bufLSN, end)
}

// Fsync returns once the flush progress mark is at least lsn.
func (g *Global) Fsync(lsn LSN) error {
	if g.FlushTracker.Get() >= lsn {
		return nil
	}

	g.mu.Lock()
	file := g.st.file
	writtenUpTo := LSN(file.writtenUpTo.Load())

	switch {
	case lsn <= writtenUpTo:
		// Already written, not yet fsynced: flush the current file.
		g.mu.Unlock()
		return file.Fsync(writtenUpTo)

	case lsn <= g.st.nextLSN():
		// Buffered but unwritten: take ownership of the buffer and
		// write it out ourselves, then fsync.
		combined := g.st.buf
		bufLSN := g.st.bufLSN
		recEnd := g.st.nextLSN()
		g.st.buf = nil
		g.st.bufLSN = recEnd
		g.st.bufSize = 0
		g.mu.Unlock()

		if len(combined) > 0 {
			g.writeAndReport(file, bufLSN, combined)
		}
		return file.Fsync(recEnd)

	default:
		// Target lies ahead of anything we can see locally (e.g. a
		// concurrent writer is about to produce it); wait for the
		// flush mark to catch up rather than racing it.
		g.mu.Unlock()
		g.FlushTracker.Wait(lsn)
		return nil
	}
}

// Close fsyncs and closes the currently active segment file. Records
// still queued in the in-memory append buffer are not written.
func (g *Global) Close() {
	g.mu.Lock()
	file := g.st.file
	g.st.file = nil
	g.mu.Unlock()
	if file != nil {
		file.Close()
	}
}
