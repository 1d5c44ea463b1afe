// SPDX-License-Identifier: MIT

package datastore

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ManuGH/skylib/internal/fsutil"
	sklog "github.com/ManuGH/skylib/internal/log"
)

// BackupDir is the directory, next to the database file, that receives backups.
const BackupDir = "database_backups"

// Backup copies the sqlite database at sourcePath into BackupDir while the
// queue is paused and drained. The WAL is checkpointed first so the copied
// file is complete. It returns the path of the copy. A queue that Backup
// paused is resumed on every path out; one that was already paused stays
// paused.
func Backup(ctx context.Context, q *WriteQueue, sourcePath string) (string, error) {
	if q.pool.cfg.Driver != DriverSQLite {
		return "", fmt.Errorf("datastore: backup: unsupported driver %q", q.pool.cfg.Driver)
	}
	logger := q.logger.With().Str(sklog.FieldPath, sourcePath).Logger()

	if q.Pause() {
		defer q.Resume()
	}

	if err := q.Wait(ctx); err != nil {
		return "", fmt.Errorf("datastore: backup: drain queue: %w", err)
	}

	// The queue is paused, so the checkpoint bypasses it.
	err := WithConn(ctx, q.pool, func(ctx context.Context, c *Conn) error {
		_, err := Exec(ctx, c, NewStatement("PRAGMA wal_checkpoint(TRUNCATE)"))
		return err
	})
	if err != nil {
		return "", fmt.Errorf("datastore: backup: checkpoint: %w", err)
	}

	dst := fsutil.BackupPath(filepath.Join(filepath.Dir(sourcePath), BackupDir), sourcePath, time.Now())
	start := time.Now()
	if err := fsutil.CopyFileAtomic(ctx, sourcePath, dst); err != nil {
		logger.Error().Err(err).Str(sklog.FieldEvent, "datastore.backup_failed").Msg("database backup failed")
		return "", fmt.Errorf("datastore: backup: %w", err)
	}
	logger.Info().
		Str(sklog.FieldEvent, "datastore.backup_created").
		Str("backup", dst).
		Int64(sklog.FieldDuration, time.Since(start).Milliseconds()).
		Msg("database backup created")
	return dst, nil
}
