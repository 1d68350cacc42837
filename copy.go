package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// prepareOutput makes sure nothing is in the way of the working copy. An
// existing file is only removed when force is set.
func prepareOutput(path string, force bool) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat output: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("output %s is a directory", path)
	}
	if !force {
		return fmt.Errorf("%s already exists but --force was not given", path)
	}

	log.Infof("removing existing %s", path)
	return removeDatabaseFiles(path)
}

// removeDatabaseFiles deletes a database file and its journals. A stale
// journal left next to a new copy would be replayed into it.
func removeDatabaseFiles(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

// copyDatabase snapshots src into dst with VACUUM INTO over a read-only
// connection. Unlike a file copy this includes pages still in src's WAL and
// never writes to src.
func copyDatabase(ctx context.Context, src, dst string) error {
	uri, err := sqliteReadOnlyURI(src)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(dst)
	if err != nil {
		return fmt.Errorf("resolve output: %w", err)
	}

	db, err := openSQLite(ctx, uri)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer db.Close()

	log.Infof("copying %s to %s...", src, abs)
	if _, err := db.ExecContext(ctx, "VACUUM INTO "+quoteLiteral(abs)); err != nil {
		return fmt.Errorf("copy database: %w", err)
	}
	return nil
}
