package wal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
)

// segmentName returns the on-disk file name for a segment starting at
// startLSN on the given timeline: "{timeline:08X}{start_lsn:016X}.wal".
func segmentName(timeline TimelineID, startLSN LSN) string {
	return fmt.Sprintf("%08X%016X.wal", uint32(timeline), uint64(startLSN))
}

// segmentPath returns the file path for a segment in dir.
func segmentPath(dir string, timeline TimelineID, startLSN LSN) string {
	return filepath.Join(dir, segmentName(timeline, startLSN))
}

// writingFile owns a single on-disk WAL segment file. It knows its
// starting LSN, exposes Fsync with flush-progress bookkeeping, and
// guarantees on Close that every buffered byte is both written and
// fsynced before it disappears.
type writingFile struct {
	f        *os.File
	timeline TimelineID
	startLSN LSN
	maxSize  uint64

	writeTracker *Tracker
	flushTracker *Tracker
	logger       *slog.Logger

	// writtenUpTo is the highest LSN this file is known to have
	// accepted bytes up to (exclusive), used by Close to know how
	// much of the file still needs to be confirmed durable.
	writtenUpTo atomic.Uint64
	closed      atomic.Bool
}

// createWritingFile opens (create+truncate+write) a fresh segment file
// starting at startLSN.
func createWritingFile(dir string, timeline TimelineID, startLSN LSN, maxSize uint64, writeTracker, flushTracker *Tracker, logger *slog.Logger) (*writingFile, error) {
	path := segmentPath(dir, timeline, startLSN)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: create segment %s: %w", path, err)
	}
	wf := &writingFile{
		f:            f,
		timeline:     timeline,
		startLSN:     startLSN,
		maxSize:      maxSize,
		writeTracker: writeTracker,
		flushTracker: flushTracker,
		logger:       logger,
	}
	wf.writtenUpTo.Store(uint64(startLSN))
	return wf, nil
}

// EndLSN returns startLSN+maxSize, the configured size limit of this
// segment. The record that reaches the limit is still written whole
// into this file, so the file can hold bytes past EndLSN.
func (w *writingFile) EndLSN() LSN { return w.startLSN.Add(w.maxSize) }

// recordWritten notes that this file is now known to hold bytes up to
// (but not including) upTo; called by the inserter right after a
// successful scatter-write.
func (w *writingFile) recordWritten(upTo LSN) {
	for {
		cur := LSN(w.writtenUpTo.Load())
		if upTo <= cur {
			return
		}
		if w.writtenUpTo.CompareAndSwap(uint64(cur), uint64(upTo)) {
			return
		}
	}
}

// Fsync calls the OS data-sync primitive and, on success, reports
// [startLSN, endLSN) as flushed to the flush progress tracker.
func (w *writingFile) Fsync(endLSN LSN) error {
	if err := fdatasync(w.f); err != nil {
		return fmt.Errorf("wal: fsync segment %s: %w", w.f.Name(), err)
	}
	w.flushTracker.Done(w.startLSN, endLSN)
	return nil
}

// Close waits for this file's buffered bytes to be durable in the
// write sense, fsyncs, reports them flushed, then closes the
// underlying file. A failure here is fatal: once other writers have
// moved on to later segments, a torn tail write at Close time cannot
// be safely surfaced to any in-process caller.
func (w *writingFile) Close() {
	if !w.closed.CompareAndSwap(false, true) {
		return
	}
	endLSN := LSN(w.writtenUpTo.Load())
	w.writeTracker.Wait(endLSN)
	if err := fdatasync(w.f); err != nil {
		abortf(w.logger, "fatal: segment fsync failed on close", "segment", w.f.Name(), "error", err)
	}
	w.flushTracker.Done(w.startLSN, endLSN)
	if err := w.f.Close(); err != nil {
		abortf(w.logger, "fatal: segment close failed", "segment", w.f.Name(), "error", err)
	}
}
