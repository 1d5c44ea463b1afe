// SPDX-License-Identifier: MIT

package skylib

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/skylib/pkg/codec"
	"github.com/ManuGH/skylib/pkg/config"
	"github.com/ManuGH/skylib/pkg/document"
)

// SettingsFile is the name of the library settings document in the data directory.
const SettingsFile = "settings.yml"

// settingsVersion 2 moved the flat worker keys under "workers".
const settingsVersion = 2

// Workers sizes the background runner.
type Workers struct {
	Core      int
	Max       int
	KeepAlive time.Duration // grace period for in-flight work on Close
}

// Size is the number of tasks the runner executes at once.
func (w Workers) Size() int {
	switch {
	case w.Max > 0:
		return w.Max
	case w.Core > 0:
		return w.Core
	default:
		return DefaultSettings().Workers.Max
	}
}

// Settings are the library's own settings.
type Settings struct {
	Workers  Workers
	LogLevel string
}

// DefaultSettings returns the settings written to a fresh settings file.
func DefaultSettings() Settings {
	return Settings{
		Workers:  Workers{Core: 2, Max: 4, KeepAlive: 60 * time.Second},
		LogLevel: "info",
	}
}

// Validate rejects negative sizes and timeouts and unknown log levels.
func (s Settings) Validate() error {
	var errs []error
	if s.Workers.Core < 0 {
		errs = append(errs, fmt.Errorf("workers.core-pool-size must be >= 0, got %d", s.Workers.Core))
	}
	if s.Workers.Max < 0 {
		errs = append(errs, fmt.Errorf("workers.max-pool-size must be >= 0, got %d", s.Workers.Max))
	}
	if s.Workers.KeepAlive < 0 {
		errs = append(errs, fmt.Errorf("workers.keep-alive must be >= 0, got %s", s.Workers.KeepAlive))
	}
	if s.LogLevel != "" {
		if _, err := zerolog.ParseLevel(s.LogLevel); err != nil {
			errs = append(errs, fmt.Errorf("log-level: %w", err))
		}
	}
	return errors.Join(errs...)
}

// WorkersCodec encodes Workers with the keys of the settings file.
var WorkersCodec = codec.Record(
	codec.FieldWithDefault("core-pool-size", codec.Int, DefaultSettings().Workers.Core,
		func(w Workers) int { return w.Core }, func(w *Workers, v int) { w.Core = v }),
	codec.FieldWithDefault("max-pool-size", codec.Int, DefaultSettings().Workers.Max,
		func(w Workers) int { return w.Max }, func(w *Workers, v int) { w.Max = v }),
	codec.FieldWithDefault("keep-alive", codec.Duration, DefaultSettings().Workers.KeepAlive,
		func(w Workers) time.Duration { return w.KeepAlive }, func(w *Workers, v time.Duration) { w.KeepAlive = v }),
)

// SettingsCodec encodes Settings.
var SettingsCodec = codec.Record(
	codec.FieldWithDefault("workers", WorkersCodec, DefaultSettings().Workers,
		func(s Settings) Workers { return s.Workers }, func(s *Settings, v Workers) { s.Workers = v }),
	codec.FieldWithDefault("log-level", codec.String, DefaultSettings().LogLevel,
		func(s Settings) string { return s.LogLevel }, func(s *Settings, v string) { s.LogLevel = v }),
)

// RegisterCodecs registers Workers and Settings on r.
func RegisterCodecs(r *codec.Registry) error {
	return errors.Join(
		codec.Register(r, WorkersCodec),
		codec.Register(r, SettingsCodec),
	)
}

// SettingsSchema describes settings.yml. Values can be overridden with
// SKYLIB_CORE_POOL_SIZE, SKYLIB_MAX_POOL_SIZE, SKYLIB_KEEP_ALIVE and
// SKYLIB_LOG_LEVEL.
func SettingsSchema() (*config.Schema, error) {
	defaults, err := SettingsCodec.Encode(DefaultSettings())
	if err != nil {
		return nil, err
	}
	integer := codec.TypeNameOf[int]()
	return config.NewSchema(SettingsFile, settingsVersion, defaults,
		config.WithFields(
			config.Field{Path: "workers.core-pool-size", Type: integer, Required: true, Env: "SKYLIB_CORE_POOL_SIZE"},
			config.Field{Path: "workers.max-pool-size", Type: integer, Required: true, Env: "SKYLIB_MAX_POOL_SIZE"},
			config.Field{Path: "workers.keep-alive", Type: codec.TypeNameOf[time.Duration](), Env: "SKYLIB_KEEP_ALIVE"},
			config.Field{Path: "log-level", Type: codec.TypeNameOf[string](), Env: "SKYLIB_LOG_LEVEL"},
		),
		config.WithCheck(func(r *codec.Registry, root document.Node) error {
			s, err := codec.Decode[Settings](r, root)
			if err != nil {
				return err
			}
			return s.Validate()
		}),
		config.WithMigration(1, migrateFlatWorkers),
		config.WithStrictKeys(),
	)
}

// migrateFlatWorkers moves the version 1 keys core-pool-size, max-pool-size
// and timeout-time-seconds into the workers mapping.
func migrateFlatWorkers(root document.Node) (document.Node, error) {
	workers, ok := root.Get("workers")
	if !ok || workers.Kind() != document.KindMapping {
		workers = document.Mapping()
	}
	for _, key := range []string{"core-pool-size", "max-pool-size"} {
		if v, ok := root.Get(key); ok {
			workers = workers.Set(key, v)
			root = root.Delete(key)
		}
	}
	if v, ok := root.Get("timeout-time-seconds"); ok {
		secs, isInt := v.AsInt()
		if !isInt {
			return root, fmt.Errorf("timeout-time-seconds: expected an integer, got %s", v.Kind())
		}
		workers = workers.Set("keep-alive", document.String(fmt.Sprintf("%ds", secs)))
		root = root.Delete("timeout-time-seconds")
	}
	if workers.Len() == 0 {
		return root, nil
	}
	return root.Set("workers", workers), nil
}

// SettingsFrom decodes the settings held by inst.
func SettingsFrom(inst *config.Instance, r *codec.Registry) (Settings, error) {
	return config.Get[Settings](inst, r, "$")
}
