package main

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/kuibadb/kuiba/internal/logging"
	"github.com/kuibadb/kuiba/internal/storage/manager"
	"github.com/kuibadb/kuiba/internal/wal"
)

const (
	basePath = "databases"
	dbName   = "testdb"
)

func main() {
	logger, closeFn := logging.SetupLogger()
	defer closeFn()

	logger.Info("starting kuibadb")

	dbPath := filepath.Join(basePath, dbName)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		if err := manager.CreateDatabase(dbName, basePath); err != nil {
			logger.Error("failed to create database", "error", err)
			os.Exit(1)
		}
		logger.Info("created database", "name", dbName)
	}

	cluster, err := manager.Open(dbPath, wal.DefaultConfig(dbPath), logger)
	if err != nil {
		logger.Error("failed to open cluster", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := cluster.Close(); err != nil {
			logger.Error("failed to close cluster cleanly", "error", err)
		}
	}()

	session := cluster.NewSession()
	logger.Info("opened session", "id", session.ID)

	if err := session.StartCommand(); err != nil {
		logger.Error("start command failed", "error", err)
		os.Exit(1)
	}

	snap := session.Snapshot()
	logger.Info("took snapshot", "xmin", snap.Xmin, "xmax", snap.Xmax)

	const greeterPage manager.PageID = 0
	guard, err := cluster.ReadPage(greeterPage)
	if err != nil {
		logger.Error("failed to read page", "error", err)
		os.Exit(1)
	}
	page := guard.Value()
	counter := binary.LittleEndian.Uint64(page[:8])
	counter++
	binary.LittleEndian.PutUint64(page[:8], counter)
	guard.Set(page)
	guard.Unpin()

	committedXid := session.Xid()
	if err := session.EndCommand(); err != nil {
		logger.Error("end command failed", "error", err)
		os.Exit(1)
	}
	logger.Info("committed transaction", "xid", committedXid, "counter", counter)

	ckptLSN, err := cluster.Checkpoint()
	if err != nil {
		logger.Error("checkpoint failed", "error", err)
		os.Exit(1)
	}
	logger.Info("checkpoint complete", "lsn", ckptLSN.String())

	logger.Info("kuibadb ready")
}
