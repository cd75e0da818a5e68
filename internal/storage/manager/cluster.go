package manager

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kuibadb/kuiba/internal/buffer"
	"github.com/kuibadb/kuiba/internal/logging"
	"github.com/kuibadb/kuiba/internal/txn"
	"github.com/kuibadb/kuiba/internal/wal"
)

// Cluster is one open database directory's durability core: the WAL
// global, the resource-manager registry it replays through on startup,
// the transaction manager and clog, and a pinned page cache backed by
// a single flat file. It is the one object sessions, pages, and
// checkpoints all hang off of.
type Cluster struct {
	dir string

	wal       *wal.Global
	xlogState *wal.XlogRedoState
	rmgr      *wal.Registry

	txnMgr *txn.Manager
	clog   *txn.Clog

	pages     *buffer.Cache[PageID, []byte]
	pageStore *pageStore

	logger *slog.Logger
}

const (
	pageFileName       = "base.dat"
	bufferCacheSlots   = 256
	defaultXidStopSlop = 1_000_000
)

// Open bootstraps or reopens a cluster rooted at dir: on a directory
// with no control file it starts a new WAL at wal.FirstValidLSN and
// writes no control file (the first Checkpoint does that); on one with
// a control file it replays every WAL record since the last checkpoint
// through the resource-manager registry before accepting new writes.
func Open(dir string, cfg wal.Config, logger *slog.Logger) (*Cluster, error) {
	cfg.Dir = wal.Dir(dir)
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("manager: create wal directory: %w", err)
	}

	xlogState := &wal.XlogRedoState{}
	clog := txn.NewClog()
	rmgr := wal.NewRegistry()
	rmgr.Register(wal.RmgrXlog, wal.NewXlogResourceManager(xlogState))
	rmgr.Register(wal.RmgrXact, wal.NewXactResourceManager(clog))

	ctl, err := wal.LoadControlFile(dir)
	startLSN := wal.FirstValidLSN
	nextXid := wal.FirstNormalXid
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Fresh cluster: nothing to replay.
	case err != nil:
		return nil, fmt.Errorf("manager: load control file: %w", err)
	default:
		startLSN, err = replay(cfg, ctl, rmgr, logging.Component(logger, "wal"))
		if err != nil {
			return nil, fmt.Errorf("manager: replay: %w", err)
		}
	}

	g, err := wal.Open(cfg, startLSN, logging.Component(logger, "wal"))
	if err != nil {
		return nil, fmt.Errorf("manager: open wal: %w", err)
	}
	if v := xlogState.NextXid.Load(); v != 0 {
		nextXid = wal.Xid(v)
	}

	stopSlop := cfg.XidStopLimit
	if stopSlop == 0 {
		stopSlop = defaultXidStopSlop
	}
	txnMgr := txn.NewManager(nextXid, stopSlop)

	ps, err := openPageStore(filepath.Join(dir, pageFileName))
	if err != nil {
		g.Close()
		return nil, err
	}
	pages := buffer.NewCache[PageID, []byte](bufferCacheSlots, ps, ps, buffer.NewFIFOPolicy[PageID](), logging.Component(logger, "buffer"))

	c := &Cluster{
		dir:       dir,
		wal:       g,
		xlogState: xlogState,
		rmgr:      rmgr,
		txnMgr:    txnMgr,
		clog:      clog,
		pages:     pages,
		pageStore: ps,
		logger:    logger,
	}
	return c, nil
}

// replay walks every record from the last checkpoint's redo LSN through
// rmgr, returning the LSN new writes should resume at. A reader error,
// including the ordinary case of hitting the physically-unwritten tail
// after an unclean shutdown, ends the walk at the last record whose end
// was observed. Only the resource-manager dispatch interface runs here
// (transaction-log state, allocator high-water marks); replaying
// page-level changes from record bodies is not implemented.
func replay(cfg wal.Config, ctl wal.Ctl, rmgr *wal.Registry, logger *slog.Logger) (wal.LSN, error) {
	storage := wal.NewDirStorage(cfg.Dir, cfg.Timeline, cfg.WalFileMaxSize)
	r := wal.NewReader(storage, cfg.Timeline, cfg.WalFileMaxSize, ctl.Ckpt.Redo)
	defer r.Close()

	resumeLSN := ctl.Ckpt.Redo
	records := 0
	for {
		lsn, h, body, err := r.Next()
		if err != nil {
			break
		}
		if err := rmgr.Dispatch(lsn, h, body); err != nil {
			return resumeLSN, fmt.Errorf("replay record at %s: %w", lsn, err)
		}
		resumeLSN = lsn.Add(uint64(h.TotLen))
		records++
	}
	if logger != nil {
		logger.Info("wal recovery complete", "records_replayed", records, "resume_lsn", resumeLSN.String())
	}
	return resumeLSN, nil
}

// NewSession returns a fresh transaction session bound to this cluster.
func (c *Cluster) NewSession() *txn.Session {
	return txn.NewSession(c.wal, c.txnMgr, c.clog, logging.Component(c.logger, "txn"))
}

// ReadPage pins and returns the page at id, loading it from disk on a
// cache miss.
func (c *Cluster) ReadPage(id PageID) (*buffer.PinGuard[PageID, []byte], error) {
	return c.pages.Read(id)
}

// Checkpoint writes a checkpoint record, fsyncs it, and persists the
// control file so a future Open can resume recovery from here instead
// of the start of the log.
func (c *Cluster) Checkpoint() (wal.LSN, error) {
	body := wal.CheckpointBody{
		Redo:         c.wal.NextLSN(),
		ThisTimeline: wal.FirstTimelineID,
		NextXid:      c.txnMgr.NextXid(),
		NextOID:      wal.InvalidOID,
		Time:         time.Now().Unix(),
	}
	lsn, err := wal.WriteCheckpoint(c.wal, body)
	if err != nil {
		return wal.InvalidLSN, fmt.Errorf("manager: write checkpoint: %w", err)
	}
	ctl := wal.Ctl{
		CtlVer:      wal.CtlVer,
		CatVer:      wal.CatVer,
		Time:        body.Time,
		LastCkptLSN: lsn,
		Ckpt:        body,
	}
	if err := wal.WriteControlFile(c.dir, ctl); err != nil {
		return wal.InvalidLSN, fmt.Errorf("manager: write control file: %w", err)
	}
	if err := c.pageStore.Sync(); err != nil {
		return wal.InvalidLSN, err
	}
	return lsn, nil
}

// Close checkpoints and releases every resource the cluster owns.
func (c *Cluster) Close() error {
	if _, err := c.Checkpoint(); err != nil {
		return err
	}
	c.wal.Close()
	return c.pageStore.Close()
}
