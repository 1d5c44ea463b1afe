// SPDX-License-Identifier: MIT

// Package datastore is a bounded connection pool over database/sql with typed
// statements whose parameters and rows go through the codec registry.
package datastore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
	_ "modernc.org/sqlite" // Pure Go driver

	sklog "github.com/ManuGH/skylib/internal/log"
	"github.com/ManuGH/skylib/internal/metrics"
	"github.com/ManuGH/skylib/internal/telemetry"
)

// Pool leases at most Config.MaxSize connections at a time. Physical
// connections are created lazily, reused while idle and closed after
// Config.IdleTimeout. Broken connections are discarded on release and
// replaced on demand.
type Pool struct {
	db      *sql.DB
	cfg     Config
	name    string
	logger  zerolog.Logger
	metrics *metrics.PoolMetrics
	tracer  trace.Tracer
	now     func() time.Time

	slots    *semaphore.Weighted
	warnRate rate.Sometimes
	nextID   atomic.Uint64

	mu     sync.Mutex
	idle   []*idleConn // most recently used last
	leased int
	closed bool

	stopReaper context.CancelFunc
	reaperDone chan struct{}
}

type idleConn struct {
	conn  *sql.Conn
	id    uint64
	since time.Time
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pool) { p.logger = logger }
}

// WithName labels logs, metrics and spans of the pool. Defaults to the driver name.
func WithName(name string) Option {
	return func(p *Pool) { p.name = name }
}

// WithMetrics records pool state in m.
func WithMetrics(m *metrics.PoolMetrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// WithTracerProvider traces statements with tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Pool) { p.tracer = telemetry.Tracer(tp) }
}

// Open opens a database for cfg and wraps it in a pool. The connection is
// checked with a ping before Open returns.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open(cfg.Driver.sqlDriverName(), cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("datastore: open %s: %w", cfg.Driver, err)
	}
	p, err := NewPool(db, cfg, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("datastore: ping %s: %w", cfg.Redacted(), classify("", err))
	}
	return p, nil
}

// NewPool wraps db. The pool takes ownership of db and closes it on Close.
func NewPool(db *sql.DB, cfg Config, opts ...Option) (*Pool, error) {
	if cfg.MaxSize < 1 {
		return nil, fmt.Errorf("%w: max-size must be >= 1, got %d", errInvalidConfig, cfg.MaxSize)
	}
	if cfg.AcquireTimeout <= 0 {
		return nil, fmt.Errorf("%w: acquire-timeout must be positive", errInvalidConfig)
	}

	// database/sql keeps no idle connections of its own; the pool does.
	db.SetMaxOpenConns(cfg.MaxSize)
	db.SetMaxIdleConns(0)

	p := &Pool{
		db:       db,
		cfg:      cfg,
		name:     string(cfg.Driver),
		logger:   sklog.WithComponent("datastore"),
		tracer:   telemetry.Tracer(nil),
		now:      time.Now,
		slots:    semaphore.NewWeighted(int64(cfg.MaxSize)),
		warnRate: rate.Sometimes{Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With().
		Str(sklog.FieldDriver, string(cfg.Driver)).
		Str("pool", p.name).
		Logger()

	if cfg.IdleTimeout > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		p.stopReaper = cancel
		p.reaperDone = make(chan struct{})
		go p.reapLoop(ctx)
	}
	return p, nil
}

// Config returns the pool configuration.
func (p *Pool) Config() Config { return p.cfg }

// DB returns the underlying database handle.
func (p *Pool) DB() *sql.DB { return p.db }

// Stats is a snapshot of pool occupancy.
type Stats struct {
	Leased  int
	Idle    int
	MaxSize int
}

// Stats returns the current occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Leased: p.leased, Idle: len(p.idle), MaxSize: p.cfg.MaxSize}
}

// Acquire leases a connection, waiting up to Config.AcquireTimeout for a free
// slot. It fails with ErrPoolExhausted when the timeout expires first and with
// the context error when ctx is done first.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	return p.acquire(ctx, false)
}

// acquire leases a connection. With fresh set it always opens a new physical
// connection, closing one idle connection first to make room for it.
func (p *Pool) acquire(ctx context.Context, fresh bool) (*Conn, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}

	deadline := time.Now().Add(p.cfg.AcquireTimeout)
	start := p.now()
	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	err := p.slots.Acquire(waitCtx, 1)
	cancel()
	if p.metrics != nil {
		p.metrics.ObserveAcquireWait(p.name, p.now().Sub(start))
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.exhausted(p.now().Sub(start))
		return nil, ErrPoolExhausted
	}

	c, err := p.lease(ctx, deadline, fresh)
	if err != nil {
		p.slots.Release(1)
		return nil, err
	}
	return c, nil
}

func (p *Pool) exhausted(waited time.Duration) {
	if p.metrics != nil {
		p.metrics.IncExhausted(p.name)
	}
	p.warnRate.Do(func() {
		st := p.Stats()
		p.logger.Warn().
			Str(sklog.FieldEvent, "datastore.pool_exhausted").
			Int(sklog.FieldLeased, st.Leased).
			Int(sklog.FieldMaxSize, st.MaxSize).
			Int64(sklog.FieldWaitMS, waited.Milliseconds()).
			Msg("no connection available within acquire timeout")
	})
}

// lease hands out an idle connection, health-checking it when it sat idle
// longer than the check interval, or opens a new one before deadline.
func (p *Pool) lease(ctx context.Context, deadline time.Time, fresh bool) (*Conn, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		n := len(p.idle)
		if n == 0 {
			p.leased++
			p.mu.Unlock()
			break
		}
		if fresh {
			// Idle connections hold driver slots; free one so the dial
			// cannot wait on them.
			ic := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.leased++
			p.mu.Unlock()
			p.discard(ic.conn, ic.id, "replaced")
			break
		}
		ic := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.leased++
		p.mu.Unlock()

		if p.cfg.HealthCheckInterval > 0 && p.now().Sub(ic.since) > p.cfg.HealthCheckInterval {
			if err := p.ping(ctx, ic.conn); err != nil {
				p.logger.Debug().
					Err(err).
					Str(sklog.FieldEvent, "datastore.health_check_failed").
					Uint64(sklog.FieldConnID, ic.id).
					Msg("discarding idle connection")
				p.mu.Lock()
				p.leased--
				p.mu.Unlock()
				p.discard(ic.conn, ic.id, "health_check")
				continue
			}
		}
		p.report()
		return &Conn{pool: p, conn: ic.conn, id: ic.id}, nil
	}

	dialCtx, cancel := context.WithDeadline(ctx, deadline)
	conn, err := p.db.Conn(dialCtx)
	cancel()
	if err != nil {
		p.mu.Lock()
		p.leased--
		p.mu.Unlock()
		p.report()
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			p.exhausted(p.cfg.AcquireTimeout)
			return nil, ErrPoolExhausted
		}
		return nil, fmt.Errorf("datastore: connect: %w", classify("", err))
	}
	id := p.nextID.Add(1)
	p.logger.Debug().
		Str(sklog.FieldEvent, "datastore.conn_opened").
		Uint64(sklog.FieldConnID, id).
		Msg("opened connection")
	p.report()
	return &Conn{pool: p, conn: conn, id: id}, nil
}

func (p *Pool) ping(ctx context.Context, conn *sql.Conn) error {
	timeout := p.cfg.HealthCheckTimeout
	if timeout <= 0 {
		timeout = p.cfg.AcquireTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return conn.PingContext(ctx)
}

// Release returns c to the pool. Broken connections and connections released
// after Close are closed instead. Releasing twice is a no-op.
func (p *Pool) Release(c *Conn) {
	if c == nil || !c.released.CompareAndSwap(false, true) {
		return
	}

	p.mu.Lock()
	p.leased--
	keep := !p.closed && !c.broken.Load()
	if keep {
		p.idle = append(p.idle, &idleConn{conn: c.conn, id: c.id, since: p.now()})
	}
	closed := p.closed
	p.mu.Unlock()
	p.slots.Release(1)

	if !keep {
		reason := "broken"
		if closed {
			reason = "closed"
		}
		p.discard(c.conn, c.id, reason)
	}
	p.report()
}

// discard closes conn and makes database/sql drop the physical connection.
func (p *Pool) discard(conn *sql.Conn, id uint64, reason string) {
	_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	if err := conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		p.logger.Debug().Err(err).Uint64(sklog.FieldConnID, id).Msg("close discarded connection")
	}
	if p.metrics != nil {
		p.metrics.IncDiscarded(p.name, reason)
	}
	p.logger.Debug().
		Str(sklog.FieldEvent, "datastore.conn_discarded").
		Uint64(sklog.FieldConnID, id).
		Str("reason", reason).
		Msg("discarded connection")
}

func (p *Pool) report() {
	if p.metrics == nil {
		return
	}
	st := p.Stats()
	p.metrics.SetLeased(p.name, st.Leased)
	p.metrics.SetIdle(p.name, st.Idle)
}

func (p *Pool) reapLoop(ctx context.Context) {
	defer close(p.reaperDone)

	interval := p.cfg.IdleTimeout / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.reapIdle()
		}
	}
}

// reapIdle closes connections idle longer than Config.IdleTimeout.
func (p *Pool) reapIdle() {
	cutoff := p.now().Add(-p.cfg.IdleTimeout)

	p.mu.Lock()
	var expired []*idleConn
	kept := p.idle[:0]
	for _, ic := range p.idle {
		if ic.since.Before(cutoff) {
			expired = append(expired, ic)
		} else {
			kept = append(kept, ic)
		}
	}
	clear(p.idle[len(kept):])
	p.idle = kept
	p.mu.Unlock()

	for _, ic := range expired {
		p.discard(ic.conn, ic.id, "idle_timeout")
	}
	if len(expired) > 0 {
		p.report()
	}
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close closes idle connections and the database. Leased connections are
// closed when they are released. Close is idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	if p.stopReaper != nil {
		p.stopReaper()
		<-p.reaperDone
	}
	for _, ic := range idle {
		p.discard(ic.conn, ic.id, "closed")
	}
	p.report()

	p.logger.Info().Str(sklog.FieldEvent, "datastore.pool_closed").Msg("connection pool closed")
	return p.db.Close()
}
