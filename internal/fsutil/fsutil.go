// SPDX-License-Identifier: MIT

// Package fsutil holds the durable file operations shared by the configuration
// backends and the data store backups.
package fsutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	sklog "github.com/ManuGH/skylib/internal/log"
	"github.com/ManuGH/skylib/pkg/timeutil"
)

// DirPerm is used for every directory created by the library.
const DirPerm = 0o750

// BackupStampPattern is the timestamp appended to backup file names.
const BackupStampPattern = "yyyy-MM-dd_HH-mm-ss-SSS"

// EnsureDir creates dir and its parents if needed.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, DirPerm); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return nil
}

// WriteFileAtomic writes data to path durably: a pending file in the same
// directory is written, fsynced and renamed over path. A failed write leaves
// the previous content of path untouched.
func WriteFileAtomic(ctx context.Context, path string, data []byte, perm os.FileMode) error {
	return writeAtomic(ctx, path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// CopyFileAtomic copies src to dst with the same guarantees as WriteFileAtomic.
func CopyFileAtomic(ctx context.Context, src, dst string) error {
	in, err := os.Open(src) // #nosec G304 -- paths come from library configuration
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	return writeAtomic(ctx, dst, info.Mode().Perm(), func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

func writeAtomic(ctx context.Context, path string, perm os.FileMode, write func(io.Writer) error) error {
	logger := sklog.FromContext(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(perm))
	if err != nil {
		return fmt.Errorf("create pending file for %s: %w", path, err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			logger.Debug().Err(err).Str(sklog.FieldPath, path).Msg("cleanup pending file")
		}
	}()

	if err := write(pendingFile); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// BackupPath returns dir/<name>-<stamp><ext> for the file at source, where stamp
// follows BackupStampPattern in UTC.
func BackupPath(dir, source string, at time.Time) string {
	base := filepath.Base(source)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	stamp := timeutil.FormatTimestamp(at, time.UTC, BackupStampPattern)
	return filepath.Join(dir, name+"-"+stamp+ext)
}
