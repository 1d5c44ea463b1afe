// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/ManuGH/skylib/internal/fsutil"
	"github.com/ManuGH/skylib/pkg/document"
)

// Backend stores the raw bytes of one configuration document. Read returns an
// error wrapping fs.ErrNotExist when nothing has been stored yet.
type Backend interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Format() document.Format
	Describe() string
}

// FilePerm is the mode of configuration files written by FileBackend.
const FilePerm = 0o640

// FileBackend keeps a document in a file whose extension selects the format.
type FileBackend struct {
	path   string
	format document.Format
}

// NewFileBackend returns a backend for path (.yml, .yaml or .json).
func NewFileBackend(path string) (*FileBackend, error) {
	format, err := document.FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	return &FileBackend{path: path, format: format}, nil
}

// Read returns the file content.
func (b *FileBackend) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.path, err)
	}
	return data, nil
}

// Write replaces the file atomically.
func (b *FileBackend) Write(ctx context.Context, data []byte) error {
	return fsutil.WriteFileAtomic(ctx, b.path, data, FilePerm)
}

// Format returns the document format selected by the file extension.
func (b *FileBackend) Format() document.Format { return b.format }

// Describe returns the file path.
func (b *FileBackend) Describe() string { return b.path }

// Path returns the file path.
func (b *FileBackend) Path() string { return b.path }

// MemoryBackend keeps a document in memory. It serves tests and documents
// embedded in the consuming plugin.
type MemoryBackend struct {
	mu     sync.RWMutex
	data   []byte
	exists bool
	format document.Format
	name   string
}

// NewMemoryBackend returns a backend holding initial; a nil initial behaves
// like a missing file.
func NewMemoryBackend(format document.Format, initial []byte) *MemoryBackend {
	b := &MemoryBackend{format: format, name: "memory:" + format.String()}
	if initial != nil {
		b.data = append([]byte(nil), initial...)
		b.exists = true
	}
	return b
}

// Read returns a copy of the stored bytes.
func (b *MemoryBackend) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.exists {
		return nil, fmt.Errorf("read %s: %w", b.name, fs.ErrNotExist)
	}
	return append([]byte(nil), b.data...), nil
}

// Write stores a copy of data.
func (b *MemoryBackend) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append([]byte(nil), data...)
	b.exists = true
	return nil
}

// Format returns the configured format.
func (b *MemoryBackend) Format() document.Format { return b.format }

// Describe names the backend in logs and errors.
func (b *MemoryBackend) Describe() string { return b.name }

// Bytes returns the stored bytes and whether anything was stored.
func (b *MemoryBackend) Bytes() ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]byte(nil), b.data...), b.exists
}
