// SPDX-License-Identifier: MIT

package datastore

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ManuGH/skylib/internal/metrics"
)

// newMockPool wraps a sqlmock database in a pool. sqlmock forgets its
// expectations once the last driver connection closes, so one connection is
// held open for the lifetime of the test.
func newMockPool(t *testing.T, opts ...Option) (*Pool, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual),
		sqlmock.MonitorPingsOption(true),
	)
	require.NoError(t, err)

	hold, err := db.Conn(context.Background())
	require.NoError(t, err)

	cfg := DefaultConfig(DriverPostgres)
	cfg.Database = "app"
	cfg.MaxSize = 2
	cfg.AcquireTimeout = time.Second
	cfg.IdleTimeout = 0

	p, err := NewPool(db, cfg, append([]Option{WithLogger(zerolog.Nop())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = hold.Close()
		_ = p.Close()
	})
	return p, mock
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		lost     bool
		code     string
		passThru bool
	}{
		{name: "bad conn", err: driver.ErrBadConn, lost: true},
		{name: "eof", err: fmt.Errorf("read: %w", io.EOF), lost: true},
		{name: "admin shutdown", err: &pgconn.PgError{Code: "57P01"}, lost: true},
		{name: "connection failure", err: &pgconn.PgError{Code: "08006"}, lost: true},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505", Message: "duplicate key"}, code: "23505"},
		{name: "syntax", err: &pgconn.PgError{Code: "42601"}, code: "42601"},
		{name: "plain", err: errors.New("boom")},
		{name: "cancelled", err: context.Canceled, passThru: true},
		{name: "deadline", err: fmt.Errorf("wait: %w", context.DeadlineExceeded), passThru: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("SELECT 1", tt.err)
			switch {
			case tt.passThru:
				assert.Equal(t, tt.err, got)
			case tt.lost:
				require.ErrorIs(t, got, ErrConnectionLost)
				require.ErrorIs(t, got, tt.err)
			default:
				var qerr *QueryError
				require.ErrorAs(t, got, &qerr)
				assert.Equal(t, tt.code, qerr.Code)
				assert.Equal(t, "SELECT 1", qerr.SQL)
				assert.NotErrorIs(t, got, ErrConnectionLost)
			}
		})
	}
	assert.NoError(t, classify("", nil))
}

func TestExec_ConnectionLostDiscardsConnection(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, mock := newMockPool(t, WithName("pg"), WithMetrics(metrics.NewPoolMetrics(reg)))
	ctx := context.Background()

	mock.ExpectExec("UPDATE players SET score = 1").WillReturnError(driver.ErrBadConn)

	c, err := p.Acquire(ctx)
	require.NoError(t, err)
	_, err = Exec(ctx, c, NewStatement("UPDATE players SET score = 1"))
	require.ErrorIs(t, err, ErrConnectionLost)
	assert.True(t, c.Broken())

	p.Release(c)
	assert.Equal(t, 0, p.Stats().Idle, "broken connection is not reused")
	expected := `
# HELP skylib_pool_connections_discarded_total Connections closed instead of returned to the idle set
# TYPE skylib_pool_connections_discarded_total counter
skylib_pool_connections_discarded_total{pool="pg",reason="broken"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "skylib_pool_connections_discarded_total"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExec_PostgresErrorCode(t *testing.T) {
	p, mock := newMockPool(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO players VALUES (1)").
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	c, err := p.Acquire(ctx)
	require.NoError(t, err)
	defer c.Release()

	_, err = Exec(ctx, c, NewStatement("INSERT INTO players VALUES (1)"))
	var qerr *QueryError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, "23505", qerr.Code)
	assert.Equal(t, "INSERT INTO players VALUES (1)", qerr.SQL)
	assert.False(t, c.Broken())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithRetry_RetriesOnceOnFreshConnection(t *testing.T) {
	p, mock := newMockPool(t)
	ctx := context.Background()

	mock.ExpectExec("DELETE FROM sessions").WillReturnError(&pgconn.PgError{Code: "08006"})
	mock.ExpectExec("DELETE FROM sessions").WillReturnResult(sqlmock.NewResult(0, 4))

	var attempts []uint64
	var affected int64
	err := WithRetry(ctx, p, func(ctx context.Context, c *Conn) error {
		attempts = append(attempts, c.ID())
		var err error
		affected, err = Exec(ctx, c, NewStatement("DELETE FROM sessions"))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), affected)
	require.Len(t, attempts, 2)
	assert.NotEqual(t, attempts[0], attempts[1])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithRetry_GivesUpAfterSecondFailure(t *testing.T) {
	p, mock := newMockPool(t)

	mock.ExpectExec("DELETE FROM sessions").WillReturnError(driver.ErrBadConn)
	mock.ExpectExec("DELETE FROM sessions").WillReturnError(driver.ErrBadConn)

	calls := 0
	err := WithRetry(context.Background(), p, func(ctx context.Context, c *Conn) error {
		calls++
		_, err := Exec(ctx, c, NewStatement("DELETE FROM sessions"))
		return err
	})
	require.ErrorIs(t, err, ErrConnectionLost)
	assert.Equal(t, 2, calls)
}

func TestWithRetry_DoesNotRetryQueryErrors(t *testing.T) {
	p, mock := newMockPool(t)

	mock.ExpectExec("DELETE FROM sessions").WillReturnError(&pgconn.PgError{Code: "42P01"})

	calls := 0
	err := WithRetry(context.Background(), p, func(ctx context.Context, c *Conn) error {
		calls++
		_, err := Exec(ctx, c, NewStatement("DELETE FROM sessions"))
		return err
	})
	var qerr *QueryError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, "42P01", qerr.Code)
	assert.Equal(t, 1, calls)
}

func TestAcquire_StaleIdleConnectionIsHealthChecked(t *testing.T) {
	p, mock := newMockPool(t)
	p.cfg.HealthCheckInterval = time.Minute
	now := time.Now()
	p.now = func() time.Time { return now }
	ctx := context.Background()

	c, err := p.Acquire(ctx)
	require.NoError(t, err)
	first := c.ID()
	p.Release(c)

	now = now.Add(2 * time.Minute)
	mock.ExpectPing().WillReturnError(errors.New("server closed the connection"))

	c, err = p.Acquire(ctx)
	require.NoError(t, err)
	defer c.Release()
	assert.NotEqual(t, first, c.ID(), "failed health check replaces the connection")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExec_IsTraced(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	p, mock := newMockPool(t, WithTracerProvider(tp))
	ctx := context.Background()

	mock.ExpectExec("UPDATE players SET score = 2").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE players SET score = 3").WillReturnError(&pgconn.PgError{Code: "23514"})

	c, err := p.Acquire(ctx)
	require.NoError(t, err)
	defer c.Release()
	_, err = Exec(ctx, c, NewStatement("UPDATE players SET score = 2"))
	require.NoError(t, err)
	_, err = Exec(ctx, c, NewStatement("UPDATE players SET score = 3"))
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "datastore.exec", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("db.system", "postgres"))
	assert.Contains(t, spans[0].Attributes(), attribute.String("db.statement", "UPDATE players SET score = 2"))
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Contains(t, spans[1].Status().Description, "23514")
}
