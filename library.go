// SPDX-License-Identifier: MIT

package skylib

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/skylib/internal/fsutil"
	sklog "github.com/ManuGH/skylib/internal/log"
	"github.com/ManuGH/skylib/internal/metrics"
	"github.com/ManuGH/skylib/pkg/async"
	"github.com/ManuGH/skylib/pkg/codec"
	"github.com/ManuGH/skylib/pkg/config"
	"github.com/ManuGH/skylib/pkg/datastore"
	"github.com/ManuGH/skylib/pkg/state"
)

// Library owns the shared components of one application.
type Library struct {
	dataDir  string
	logger   zerolog.Logger
	registry *codec.Registry
	settings *config.Manager
	runner   *async.Runner
	tp       trace.TracerProvider
	env      config.EnvLookup

	configMetrics *metrics.ConfigMetrics
	poolMetrics   *metrics.PoolMetrics

	closeOnce sync.Once
	closeErr  error
}

type options struct {
	logger     *zerolog.Logger
	registerer prometheus.Registerer
	tp         trace.TracerProvider
	env        config.EnvLookup
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger every component derives its logger from.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = &logger }
}

// WithRegisterer registers the library metrics on reg. Without it no metrics
// are collected.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithTracerProvider traces reloads and statements with tp instead of the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tp = tp }
}

// WithEnv replaces the process environment for configuration overrides.
func WithEnv(lookup config.EnvLookup) Option {
	return func(o *options) { o.env = lookup }
}

// New creates dataDir if needed, loads settings.yml from it (seeding it with
// defaults on first start) and starts the background runner sized from the
// settings.
func New(ctx context.Context, dataDir string, opts ...Option) (*Library, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := sklog.WithComponent("skylib")
	if o.logger != nil {
		logger = *o.logger
	}
	logger = logger.With().Str(sklog.FieldPath, dataDir).Logger()

	if err := fsutil.EnsureDir(dataDir); err != nil {
		return nil, fmt.Errorf("skylib: data directory: %w", err)
	}

	registry := codec.NewRegistry(codec.WithBuiltins())
	if err := errors.Join(
		RegisterCodecs(registry),
		state.RegisterCodecs(registry),
		datastore.RegisterCodecs(registry),
	); err != nil {
		return nil, fmt.Errorf("skylib: register codecs: %w", err)
	}

	l := &Library{
		dataDir:  dataDir,
		logger:   logger,
		registry: registry,
		tp:       o.tp,
		env:      o.env,
	}
	if o.registerer != nil {
		l.configMetrics = metrics.NewConfigMetrics(o.registerer)
		l.poolMetrics = metrics.NewPoolMetrics(o.registerer)
	}

	schema, err := SettingsSchema()
	if err != nil {
		return nil, err
	}
	mgr, err := l.newManager(SettingsFile, schema, nil)
	if err != nil {
		return nil, err
	}
	inst, err := mgr.Reload(ctx)
	if err != nil {
		return nil, fmt.Errorf("skylib: load settings: %w", err)
	}
	if inst.Migrated() {
		if err := mgr.Save(ctx); err != nil {
			logger.Warn().Err(err).Str(sklog.FieldEvent, "skylib.settings_migrate_save_failed").Msg("migrated settings not written back")
		}
	}
	settings, err := SettingsFrom(inst, registry)
	if err != nil {
		return nil, fmt.Errorf("skylib: decode settings: %w", err)
	}
	if settings.LogLevel != "" {
		if lvl, err := zerolog.ParseLevel(settings.LogLevel); err == nil {
			l.logger = l.logger.Level(lvl)
		}
	}

	runnerLog := l.logger.With().Str(sklog.FieldComponent, "async").Logger()
	l.settings = mgr
	l.runner = async.NewRunner(async.Options{Workers: settings.Workers.Size(), Logger: &runnerLog})

	l.logger.Info().
		Str(sklog.FieldEvent, "skylib.started").
		Int("workers", settings.Workers.Size()).
		Msg("library initialised")
	return l, nil
}

func (l *Library) newManager(name string, s *config.Schema, runner *async.Runner) (*config.Manager, error) {
	path, err := fsutil.ConfineRelPath(l.dataDir, name)
	if err != nil {
		return nil, err
	}
	b, err := config.NewFileBackend(path)
	if err != nil {
		return nil, err
	}
	loadOpts := []config.LoadOption{config.WithLogger(l.logger.With().Str(sklog.FieldComponent, "config").Logger())}
	if l.env != nil {
		loadOpts = append(loadOpts, config.WithEnv(l.env))
	}
	opts := []config.ManagerOption{
		config.WithLoadOptions(loadOpts...),
		config.WithTracerProvider(l.tp),
	}
	if l.configMetrics != nil {
		opts = append(opts, config.WithMetrics(l.configMetrics))
	}
	if runner != nil {
		opts = append(opts, config.WithRunner(runner))
	}
	return config.NewManager(b, s, l.registry, opts...), nil
}

// DataDir returns the directory holding the application's documents.
func (l *Library) DataDir() string { return l.dataDir }

// Logger returns the library logger.
func (l *Library) Logger() zerolog.Logger { return l.logger }

// Registry returns the shared codec registry. Register application codecs on
// it before loading documents that use them.
func (l *Library) Registry() *codec.Registry { return l.registry }

// Runner returns the background runner.
func (l *Library) Runner() *async.Runner { return l.runner }

// SettingsManager returns the manager of settings.yml.
func (l *Library) SettingsManager() *config.Manager { return l.settings }

// Settings decodes the current library settings.
func (l *Library) Settings() (Settings, error) {
	return SettingsFrom(l.settings.Current(), l.registry)
}

// ConfigManager returns a manager for the document name in the data
// directory, which name may not escape, wired to the library runner, logger, metrics and tracer. The
// caller loads it with Reload and closes it when done.
func (l *Library) ConfigManager(name string, s *config.Schema) (*config.Manager, error) {
	return l.newManager(name, s, l.runner)
}

// StateAdapter returns a persistent state adapter over the library registry.
func (l *Library) StateAdapter() *state.Adapter {
	return state.NewAdapter(l.registry, state.WithLogger(l.logger.With().Str(sklog.FieldComponent, "state").Logger()))
}

// OpenPool opens a data store pool named name. A relative sqlite path is
// resolved against the data directory and may not escape it.
func (l *Library) OpenPool(ctx context.Context, name string, cfg datastore.Config) (*datastore.Pool, error) {
	if cfg.Driver == datastore.DriverSQLite && cfg.Path != "" && !filepath.IsAbs(cfg.Path) {
		path, err := fsutil.ConfineRelPath(l.dataDir, cfg.Path)
		if err != nil {
			return nil, err
		}
		cfg.Path = path
	}
	opts := []datastore.Option{
		datastore.WithName(name),
		datastore.WithLogger(l.logger.With().Str(sklog.FieldComponent, "datastore").Logger()),
		datastore.WithTracerProvider(l.tp),
	}
	if l.poolMetrics != nil {
		opts = append(opts, datastore.WithMetrics(l.poolMetrics))
	}
	return datastore.Open(ctx, cfg, opts...)
}

// Close stops the settings manager and waits for background work. Without a
// deadline on ctx it waits at most the configured keep-alive. Close is
// idempotent.
func (l *Library) Close(ctx context.Context) error {
	l.closeOnce.Do(func() {
		l.settings.Close()

		if _, ok := ctx.Deadline(); !ok {
			grace := DefaultSettings().Workers.KeepAlive
			if s, err := l.Settings(); err == nil {
				grace = s.Workers.KeepAlive
			}
			if grace > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, grace)
				defer cancel()
			}
		}
		start := time.Now()
		l.closeErr = l.runner.Close(ctx)
		l.logger.Info().
			Err(l.closeErr).
			Str(sklog.FieldEvent, "skylib.stopped").
			Int64(sklog.FieldDuration, time.Since(start).Milliseconds()).
			Msg("library closed")
	})
	return l.closeErr
}
