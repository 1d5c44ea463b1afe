// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	sklog "github.com/ManuGH/skylib/internal/log"
	"github.com/ManuGH/skylib/internal/metrics"
	"github.com/ManuGH/skylib/internal/telemetry"
	"github.com/ManuGH/skylib/pkg/async"
	"github.com/ManuGH/skylib/pkg/codec"
	"github.com/ManuGH/skylib/pkg/document"
)

// DefaultDebounce is the delay between the last file event and the reload it triggers.
const DefaultDebounce = 500 * time.Millisecond

// Manager owns one configuration document. Readers call Current and get an
// immutable snapshot; reloads, updates and saves swap the snapshot atomically,
// so a reader never sees a partially merged document.
type Manager struct {
	backend  Backend
	schema   *Schema
	registry *codec.Registry
	opts     loadOptions
	logger   zerolog.Logger
	runner   *async.Runner
	metrics  *metrics.ConfigMetrics
	tp       trace.TracerProvider
	tracer   trace.Tracer
	debounce time.Duration

	current    atomic.Pointer[Instance]
	generation atomic.Uint64
	reloads    singleflight.Group
	writeMu    sync.Mutex // serializes Update and Save

	listenMu  sync.RWMutex
	listeners map[int]chan<- *Instance
	nextID    int

	watchMu   sync.Mutex
	watchStop context.CancelFunc
	watchDone chan struct{}
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRunner sets the background runner used by ReloadAsync and SaveAsync.
func WithRunner(r *async.Runner) ManagerOption {
	return func(m *Manager) { m.runner = r }
}

// WithMetrics records reload outcomes and generations.
func WithMetrics(cm *metrics.ConfigMetrics) ManagerOption {
	return func(m *Manager) { m.metrics = cm }
}

// WithTracerProvider traces reloads with tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) ManagerOption {
	return func(m *Manager) { m.tp = tp }
}

// WithDebounce overrides DefaultDebounce for Watch.
func WithDebounce(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.debounce = d
		}
	}
}

// WithLoadOptions forwards options to every Load the manager performs.
func WithLoadOptions(opts ...LoadOption) ManagerOption {
	return func(m *Manager) {
		for _, opt := range opts {
			opt(&m.opts)
		}
	}
}

// NewManager returns a manager with no current instance; call Reload to load it.
func NewManager(b Backend, s *Schema, r *codec.Registry, opts ...ManagerOption) *Manager {
	m := &Manager{
		backend:   b,
		schema:    s,
		registry:  r,
		opts:      newLoadOptions(nil),
		debounce:  DefaultDebounce,
		listeners: make(map[int]chan<- *Instance),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.tracer = telemetry.Tracer(m.tp)
	m.logger = m.opts.logger.With().
		Str(sklog.FieldSchema, s.Name()).
		Str(sklog.FieldBackend, b.Describe()).
		Logger()
	m.opts.logger = m.logger
	return m
}

// Schema returns the managed schema.
func (m *Manager) Schema() *Schema { return m.schema }

// Registry returns the codec registry used for validation.
func (m *Manager) Registry() *codec.Registry { return m.registry }

// Current returns the current snapshot, or nil before the first successful load.
func (m *Manager) Current() *Instance { return m.current.Load() }

func (m *Manager) publish(inst *Instance) *Instance {
	inst = inst.with(func(i *Instance) { i.generation = m.generation.Add(1) })
	m.current.Store(inst)
	if m.metrics != nil {
		m.metrics.SetGeneration(m.schema.Name(), inst.generation)
	}
	return inst
}

// Reload loads the document again and swaps it in. A failed reload keeps the
// previous instance. Concurrent calls share one load.
func (m *Manager) Reload(ctx context.Context) (*Instance, error) {
	v, err, _ := m.reloads.Do("reload", func() (any, error) {
		return m.reload(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Instance), nil
}

func (m *Manager) reload(ctx context.Context) (_ *Instance, err error) {
	ctx, span := telemetry.StartSpan(ctx, m.tracer, "config.reload",
		telemetry.ConfigAttributes(m.schema.Name(), m.generation.Load())...)
	defer func() { telemetry.EndSpan(span, err, "config_reload") }()

	m.logger.Info().Str(sklog.FieldEvent, "config.reload_start").Msg("reloading configuration")

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	next, err := Load(ctx, m.backend, m.schema, m.registry, m.loadOpts()...)
	if err != nil {
		m.logger.Error().
			Err(err).
			Str(sklog.FieldEvent, "config.reload_failed").
			Msg("failed to load new configuration")
		m.observe("failure")
		return nil, err
	}

	old := m.Current()
	next = m.publish(next)
	span.SetAttributes(telemetry.ConfigAttributes(m.schema.Name(), next.generation)...)
	m.logChanges(old, next)
	m.notifyListeners(next)
	m.observe("success")

	m.logger.Info().
		Str(sklog.FieldEvent, "config.reload_success").
		Uint64(sklog.FieldGeneration, next.generation).
		Msg("configuration reloaded successfully")
	return next, nil
}

func (m *Manager) loadOpts() []LoadOption {
	o := m.opts
	return []LoadOption{func(lo *loadOptions) { *lo = o }}
}

func (m *Manager) observe(result string) {
	if m.metrics != nil {
		m.metrics.ObserveReload(m.schema.Name(), result)
	}
}

// Update applies fn to the persisted layer of the current document and swaps
// in the validated result as a dirty instance. Environment overrides are applied
// on top again, so they keep winning over updated values.
func (m *Manager) Update(fn func(document.Node) (document.Node, error)) (*Instance, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	cur := m.Current()
	if cur == nil {
		return nil, ErrNotLoaded
	}
	file, err := fn(cur.file)
	if err != nil {
		return nil, &Error{Kind: ValidationFailure, Schema: m.schema.Name(), Source: m.backend.Describe(), Err: err}
	}
	file = file.Set(VersionKey, document.Int(int64(m.schema.Version())))

	next := cur.with(func(i *Instance) {
		i.file = file
		i.dirty = true
		i.loadedAt = m.opts.now()
	})
	if err := resolve(next, m.schema, m.registry, m.opts, m.logger); err != nil {
		return nil, &Error{Kind: ValidationFailure, Schema: m.schema.Name(), Source: m.backend.Describe(), Paths: pathsOf(err), Err: err}
	}

	next = m.publish(next)
	m.logChanges(cur, next)
	m.notifyListeners(next)
	return next, nil
}

// Set is Update for a single path.
func (m *Manager) Set(path string, value document.Node) (*Instance, error) {
	p, err := document.ParsePath(path)
	if err != nil {
		return nil, err
	}
	return m.Update(func(root document.Node) (document.Node, error) {
		return root.With(p, value)
	})
}

// Save persists the current instance and swaps in a clean copy.
func (m *Manager) Save(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	cur := m.Current()
	if cur == nil {
		return ErrNotLoaded
	}
	if err := Save(ctx, m.backend, m.schema, cur); err != nil {
		m.logger.Error().
			Err(err).
			Str(sklog.FieldEvent, "config.save_failed").
			Msg("failed to save configuration")
		return err
	}
	m.publish(cur.with(func(i *Instance) {
		i.dirty = false
		i.migrated = false
	}))
	m.logger.Info().Str(sklog.FieldEvent, "config.saved").Msg("configuration saved")
	return nil
}

// ReloadAsync runs Reload on the background runner and delivers the outcome
// through sched.
func (m *Manager) ReloadAsync(sched async.Scheduler, cb func(*Instance, error)) error {
	if m.runner == nil {
		return ErrNoRunner
	}
	return async.Submit(m.runner, sched, m.Reload, cb)
}

// SaveAsync runs Save on the background runner and delivers the outcome through sched.
func (m *Manager) SaveAsync(sched async.Scheduler, cb func(error)) error {
	if m.runner == nil {
		return ErrNoRunner
	}
	return async.Submit(m.runner, sched, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.Save(ctx)
	}, func(_ struct{}, err error) {
		if cb != nil {
			cb(err)
		}
	})
}

// Subscribe registers ch to receive every newly published instance from
// reloads and updates. Sends never block: a full channel misses the
// notification. The returned function unregisters ch.
func (m *Manager) Subscribe(ch chan<- *Instance) (unsubscribe func()) {
	m.listenMu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = ch
	m.listenMu.Unlock()
	return func() {
		m.listenMu.Lock()
		delete(m.listeners, id)
		m.listenMu.Unlock()
	}
}

func (m *Manager) notifyListeners(inst *Instance) {
	m.listenMu.RLock()
	defer m.listenMu.RUnlock()

	for _, ch := range m.listeners {
		select {
		case ch <- inst:
		default:
			m.logger.Warn().
				Str(sklog.FieldEvent, "config.listener_skip").
				Msg("skipped notifying listener (channel full)")
		}
	}
}

// logChanges logs the paths that differ between old and next. Values of
// sensitive fields are masked.
func (m *Manager) logChanges(old, next *Instance) {
	if old == nil {
		return
	}
	for _, c := range Changes(old, next) {
		ev := m.logger.Info().Str(sklog.FieldPath, c.Path)
		if f, ok := m.schema.Field(c.Path); ok && (f.Sensitive || isSensitive(f.Env)) {
			ev = ev.Str("old", "***").Str("new", "***")
		} else {
			ev = ev.Str("old", c.Old.String()).Str("new", c.New.String())
		}
		ev.Msg("config changed: " + c.Path)
	}
}

// Close stops the file watcher, if any. It is idempotent.
func (m *Manager) Close() {
	m.stopWatch()
}
