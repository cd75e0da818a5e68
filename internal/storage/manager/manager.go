// Package manager bootstraps on-disk database directories and wires
// the durability core (WAL, transaction manager, buffer cache) together
// for a single open database.
package manager

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// databaseMeta is the small JSON sidecar file that marks a directory as
// a valid database and records its format version.
type databaseMeta struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
}

const metaFileName = "meta.json"

// CreateDatabase creates a new database directory and its meta.json.
func CreateDatabase(name string, basePath string) error {
	dbPath := filepath.Join(basePath, name)

	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		return fmt.Errorf("database '%s' already exists", name)
	}
	if err := os.MkdirAll(dbPath, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	meta := databaseMeta{Name: name, Version: 1}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dbPath, metaFileName), data, 0o644); err != nil {
		return fmt.Errorf("failed to write meta.json: %w", err)
	}
	return nil
}

// DropDatabase removes a database directory.
func DropDatabase(name string, basePath string) error {
	dbPath := filepath.Join(basePath, name)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("database '%s' does not exist", name)
	}
	if err := os.RemoveAll(dbPath); err != nil {
		return fmt.Errorf("failed to remove database directory: %w", err)
	}
	return nil
}

// RenameDatabase renames a database directory and updates its meta.json.
func RenameDatabase(oldName, newName string, basePath string) error {
	oldPath := filepath.Join(basePath, oldName)
	newPath := filepath.Join(basePath, newName)

	if _, err := os.Stat(oldPath); os.IsNotExist(err) {
		return fmt.Errorf("database '%s' does not exist", oldName)
	}
	if _, err := os.Stat(newPath); !os.IsNotExist(err) {
		return fmt.Errorf("database '%s' already exists", newName)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("failed to rename database directory: %w", err)
	}

	metaPath := filepath.Join(newPath, metaFileName)
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("failed to read meta.json: %w", err)
	}
	var meta databaseMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("failed to parse meta.json: %w", err)
	}
	meta.Name = newName
	newData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, newData, 0o644); err != nil {
		return fmt.Errorf("failed to write meta.json: %w", err)
	}
	return nil
}

// ListDatabases returns the names of every valid database under basePath.
func ListDatabases(basePath string) ([]string, error) {
	entries, err := os.ReadDir(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read databases directory: %w", err)
	}
	var databases []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(basePath, entry.Name(), metaFileName)); err == nil {
			databases = append(databases, entry.Name())
		}
	}
	return databases, nil
}
