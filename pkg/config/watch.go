// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	sklog "github.com/ManuGH/skylib/internal/log"
)

// Watch reloads the document whenever its file changes, until ctx is done or
// Close is called. Bursts of events are coalesced into one reload after the
// debounce delay. Only FileBackend documents can be watched.
//
// The containing directory is watched rather than the file, so editors that
// replace the file by rename keep being tracked.
func (m *Manager) Watch(ctx context.Context) error {
	fb, ok := m.backend.(*FileBackend)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotWatchable, m.backend.Describe())
	}

	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	if m.watchDone != nil {
		select {
		case <-m.watchDone:
		default:
			return nil
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(fb.Path())
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close() // Ignore close error in error path
		return fmt.Errorf("watch config dir: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.watchStop = cancel
	m.watchDone = done

	m.logger.Info().
		Str(sklog.FieldEvent, "config.watcher_started").
		Str(sklog.FieldPath, fb.Path()).
		Msg("watching config file for changes")

	go func() {
		defer close(done)
		m.watchLoop(ctx, watcher, filepath.Base(fb.Path()))
	}()
	return nil
}

func (m *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, name string) {
	defer func() { _ = watcher.Close() }()

	// A stopped timer whose channel is drained; Reset arms it.
	debounce := time.NewTimer(time.Hour)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Str(sklog.FieldEvent, "config.watcher_stopped").Msg("config watcher stopped")
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			// Write and Create cover in-place edits; Rename covers atomic replacement.
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				m.logger.Debug().
					Str(sklog.FieldEvent, "config.file_changed").
					Str("op", event.Op.String()).
					Msg("config file changed")
				debounce.Reset(m.debounce)
			}

		case <-debounce.C:
			if _, err := m.Reload(ctx); err != nil {
				m.logger.Error().
					Err(err).
					Str(sklog.FieldEvent, "config.auto_reload_failed").
					Msg("automatic config reload failed")
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error().
				Err(err).
				Str(sklog.FieldEvent, "config.watcher_error").
				Msg("config watcher error")
		}
	}
}

func (m *Manager) stopWatch() {
	m.watchMu.Lock()
	stop, done := m.watchStop, m.watchDone
	m.watchStop, m.watchDone = nil, nil
	m.watchMu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
}
