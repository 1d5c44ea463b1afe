// SPDX-License-Identifier: MIT

package datastore

import (
	"context"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/skylib/internal/metrics"
	"github.com/ManuGH/skylib/pkg/codec"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sqliteConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig(DriverSQLite)
	cfg.Path = filepath.Join(t.TempDir(), "store.db")
	return cfg
}

func openPool(t *testing.T, cfg Config, opts ...Option) *Pool {
	t.Helper()
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	p, err := Open(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func mustExec(t *testing.T, p *Pool, sql string, args ...Param) {
	t.Helper()
	err := WithConn(context.Background(), p, func(ctx context.Context, c *Conn) error {
		_, err := Exec(ctx, c, NewStatement(sql, args...))
		return err
	})
	require.NoError(t, err)
}

func count(t *testing.T, p *Pool, table string) int {
	t.Helper()
	var n int
	err := WithConn(context.Background(), p, func(ctx context.Context, c *Conn) error {
		var err error
		n, err = QueryOne(ctx, c, NewQuery("SELECT COUNT(*) FROM "+table, codec.Int))
		return err
	})
	require.NoError(t, err)
	return n
}

func TestAcquire_ExhaustedAfterTimeout(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := sqliteConfig(t)
	cfg.MaxSize = 1
	cfg.AcquireTimeout = 100 * time.Millisecond
	p := openPool(t, cfg, WithName("main"), WithMetrics(metrics.NewPoolMetrics(reg)))

	ctx := context.Background()
	first, err := p.Acquire(ctx)
	require.NoError(t, err)
	defer p.Release(first)

	start := time.Now()
	_, err = p.Acquire(ctx)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrPoolExhausted)
	assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond)
	assert.Less(t, elapsed, time.Second)

	expected := `
# HELP skylib_pool_exhausted_total Acquire attempts that timed out waiting for a slot
# TYPE skylib_pool_exhausted_total counter
skylib_pool_exhausted_total{pool="main"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "skylib_pool_exhausted_total"))
}

func TestAcquire_ContextEndsFirst(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.MaxSize = 1
	cfg.AcquireTimeout = 5 * time.Second
	p := openPool(t, cfg)

	first, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(first)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrPoolExhausted)
}

func TestAcquire_LeasedNeverExceedsMaxSize(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.MaxSize = 3
	cfg.AcquireTimeout = 10 * time.Second
	p := openPool(t, cfg)

	var peak atomic.Int64
	var g errgroup.Group
	for range 16 {
		g.Go(func() error {
			for range 5 {
				err := WithConn(context.Background(), p, func(ctx context.Context, c *Conn) error {
					leased := int64(p.Stats().Leased)
					for {
						cur := peak.Load()
						if leased <= cur || peak.CompareAndSwap(cur, leased) {
							break
						}
					}
					_, err := Exec(ctx, c, NewStatement("SELECT 1"))
					time.Sleep(time.Millisecond)
					return err
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.LessOrEqual(t, peak.Load(), int64(3))
	st := p.Stats()
	assert.Equal(t, 0, st.Leased)
	assert.LessOrEqual(t, st.Idle, 3)
}

func TestRelease_ReusesIdleConnection(t *testing.T) {
	p := openPool(t, sqliteConfig(t))
	ctx := context.Background()

	c, err := p.Acquire(ctx)
	require.NoError(t, err)
	id := c.ID()
	p.Release(c)
	p.Release(c) // no-op

	assert.Equal(t, Stats{Leased: 0, Idle: 1, MaxSize: 10}, p.Stats())

	again, err := p.Acquire(ctx)
	require.NoError(t, err)
	defer again.Release()
	assert.Equal(t, id, again.ID())
}

func TestReleasedConnectionRejectsStatements(t *testing.T) {
	p := openPool(t, sqliteConfig(t))

	c, err := p.Acquire(context.Background())
	require.NoError(t, err)
	c.Release()

	_, err = Exec(context.Background(), c, NewStatement("SELECT 1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "used after release")
}

func TestIdleConnectionsAreReaped(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.IdleTimeout = 40 * time.Millisecond
	p := openPool(t, cfg)

	c, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(c)
	require.Equal(t, 1, p.Stats().Idle)

	require.Eventually(t, func() bool { return p.Stats().Idle == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestClose_Idempotent(t *testing.T) {
	cfg := sqliteConfig(t)
	p, err := Open(context.Background(), cfg, WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	leased, err := p.Acquire(context.Background())
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err = p.Acquire(context.Background())
	require.ErrorIs(t, err, ErrPoolClosed)

	// A connection leased across Close is closed on release.
	p.Release(leased)
	assert.Equal(t, Stats{Leased: 0, Idle: 0, MaxSize: cfg.MaxSize}, p.Stats())
}

func TestOpen_RejectsInvalidConfig(t *testing.T) {
	_, err := Open(context.Background(), DefaultConfig(DriverSQLite))
	require.ErrorIs(t, err, errInvalidConfig)
	assert.Contains(t, err.Error(), "path is required")
}

type scoreRow struct {
	Name  string
	Score int
	Tags  string
}

var scoreRowCodec = codec.Record(
	codec.Field("name", codec.String, func(r scoreRow) string { return r.Name }, func(r *scoreRow, v string) { r.Name = v }),
	codec.Field("score", codec.Int, func(r scoreRow) int { return r.Score }, func(r *scoreRow, v int) { r.Score = v }),
	codec.Field("tags", codec.String, func(r scoreRow) string { return r.Tags }, func(r *scoreRow, v string) { r.Tags = v }),
)

func TestExecAndQuery(t *testing.T) {
	r := codec.NewRegistry(codec.WithBuiltins())
	p := openPool(t, sqliteConfig(t))
	ctx := context.Background()

	mustExec(t, p, "CREATE TABLE scores (name TEXT PRIMARY KEY, score INTEGER NOT NULL, tags TEXT NOT NULL)")

	c, err := p.Acquire(ctx)
	require.NoError(t, err)
	defer c.Release()

	insert := "INSERT INTO scores (name, score, tags) VALUES (?, ?, ?)"
	n, err := Exec(ctx, c, NewStatement(insert, MustArg(r, "alex"), MustArg(r, 3), MustArg(r, []string{"a", "b"})))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = Exec(ctx, c, NewStatement(insert, MustArg(r, "sam"), MustArg(r, 9), MustArg(r, []string{})))
	require.NoError(t, err)

	scores, err := Query(ctx, c, NewQuery("SELECT score FROM scores ORDER BY name", codec.Int))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 9}, scores)

	rows, err := Query(ctx, c, NewQuery("SELECT name, score, tags FROM scores WHERE score > ?", scoreRowCodec, MustArg(r, 1)))
	require.NoError(t, err)
	assert.Equal(t, []scoreRow{
		{Name: "alex", Score: 3, Tags: `["a","b"]`},
		{Name: "sam", Score: 9, Tags: `[]`},
	}, rows)

	_, err = QueryOne(ctx, c, NewQuery("SELECT score FROM scores WHERE name = ?", codec.Int, MustArg(r, "nobody")))
	require.ErrorIs(t, err, ErrNoRows)

	_, err = Query(ctx, c, NewQuery("SELECT name FROM scores", codec.Bool))
	var qerr *QueryError
	require.ErrorAs(t, err, &qerr)
	assert.Contains(t, qerr.Error(), "row 0")
}

func TestExec_ConstraintViolationIsQueryError(t *testing.T) {
	r := codec.NewRegistry(codec.WithBuiltins())
	p := openPool(t, sqliteConfig(t))
	ctx := context.Background()
	mustExec(t, p, "CREATE TABLE users (name TEXT PRIMARY KEY)")
	mustExec(t, p, "INSERT INTO users (name) VALUES (?)", MustArg(r, "alex"))

	c, err := p.Acquire(ctx)
	require.NoError(t, err)
	defer c.Release()

	_, err = Exec(ctx, c, NewStatement("INSERT INTO users (name) VALUES (?)", MustArg(r, "alex")))
	var qerr *QueryError
	require.ErrorAs(t, err, &qerr)
	assert.True(t, strings.HasPrefix(qerr.Code, "SQLITE_CONSTRAINT"), qerr.Code)
	assert.NotErrorIs(t, err, ErrConnectionLost)
	assert.False(t, c.Broken())
}

func TestWithRetry_FreshConnectionReplacesIdle(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.MaxSize = 1
	cfg.AcquireTimeout = 100 * time.Millisecond
	p := openPool(t, cfg)

	// The first attempt's connection goes back to the idle set, so the
	// retry finds the only driver slot taken by an idle connection.
	var ids []uint64
	start := time.Now()
	err := WithRetry(context.Background(), p, func(ctx context.Context, c *Conn) error {
		ids = append(ids, c.ID())
		if len(ids) == 1 {
			return ErrConnectionLost
		}
		_, err := Exec(ctx, c, NewStatement("CREATE TABLE t (id INTEGER)"))
		return err
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
	assert.Equal(t, Stats{Leased: 0, Idle: 1, MaxSize: 1}, p.Stats())
	assert.Equal(t, 0, count(t, p, "t"))
}

func TestAcquire_DialBoundedByAcquireTimeout(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.MaxSize = 2
	cfg.AcquireTimeout = 100 * time.Millisecond
	p := openPool(t, cfg)
	p.DB().SetMaxOpenConns(1)

	held, err := p.DB().Conn(context.Background())
	require.NoError(t, err)
	defer held.Close()

	start := time.Now()
	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 0, p.Stats().Leased)
}
