// SPDX-License-Identifier: MIT

package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ManuGH/skylib/internal/telemetry"
	"github.com/ManuGH/skylib/pkg/document"
)

// Conn is a leased connection. It belongs to one caller until released and
// must not be used concurrently.
type Conn struct {
	pool     *Pool
	conn     *sql.Conn
	id       uint64
	released atomic.Bool
	broken   atomic.Bool
}

// ID identifies the physical connection in logs.
func (c *Conn) ID() uint64 { return c.id }

// Broken reports whether the connection failed and will be discarded on release.
func (c *Conn) Broken() bool { return c.broken.Load() }

// Release returns the connection to its pool. It is equivalent to Pool.Release.
func (c *Conn) Release() { c.pool.Release(c) }

// fail classifies err and marks the connection broken on ErrConnectionLost.
func (c *Conn) fail(query string, err error) error {
	err = classify(query, err)
	if errors.Is(err, ErrConnectionLost) {
		c.broken.Store(true)
	}
	return err
}

func (c *Conn) check() error {
	if c.released.Load() {
		return fmt.Errorf("datastore: connection %d used after release", c.id)
	}
	return nil
}

// observe wraps one statement in a span and the query latency metric.
func (c *Conn) observe(ctx context.Context, op, query string, fn func(ctx context.Context) error) error {
	p := c.pool
	ctx, span := telemetry.StartSpan(ctx, p.tracer, "datastore."+op,
		telemetry.DBAttributes(string(p.cfg.Driver), p.cfg.Database, op, query)...)
	start := time.Now()
	err := fn(ctx)
	if p.metrics != nil {
		p.metrics.ObserveQuery(p.name, op, time.Since(start), err)
	}
	errType := ""
	switch {
	case errors.Is(err, ErrConnectionLost):
		errType = "connection_lost"
	case err != nil:
		errType = "query_error"
	}
	telemetry.EndSpan(span, err, errType)
	return err
}

// Exec runs a statement and returns the number of affected rows.
func Exec(ctx context.Context, c *Conn, stmt Statement) (int64, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	var affected int64
	err := c.observe(ctx, "exec", stmt.SQL, func(ctx context.Context) error {
		res, err := c.conn.ExecContext(ctx, stmt.SQL, stmt.args()...)
		if err != nil {
			return c.fail(stmt.SQL, err)
		}
		affected, err = res.RowsAffected()
		if err != nil {
			// Not every driver reports affected rows.
			affected = -1
		}
		return nil
	})
	return affected, err
}

// Query runs q and decodes every row.
func Query[T any](ctx context.Context, c *Conn, q TypedQuery[T]) ([]T, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	var out []T
	err := c.observe(ctx, "query", q.SQL, func(ctx context.Context) error {
		rows, err := c.conn.QueryContext(ctx, q.SQL, q.statement().args()...)
		if err != nil {
			return c.fail(q.SQL, err)
		}
		defer rows.Close()

		out, err = decodeRows(rows, q)
		if err != nil {
			var qe *QueryError
			if errors.As(err, &qe) {
				return err
			}
			return c.fail(q.SQL, err)
		}
		if err := rows.Err(); err != nil {
			return c.fail(q.SQL, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// QueryOne runs q and decodes its first row. It fails with ErrNoRows when the
// query yields nothing.
func QueryOne[T any](ctx context.Context, c *Conn, q TypedQuery[T]) (T, error) {
	var zero T
	rows, err := Query(ctx, c, q)
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, ErrNoRows
	}
	return rows[0], nil
}

func decodeRows[T any](rows *sql.Rows, q TypedQuery[T]) ([]T, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	values := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}

	var out []T
	for rowIndex := 0; rows.Next(); rowIndex++ {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		var n document.Node
		if len(cols) == 1 {
			n = columnNode(values[0])
		} else {
			pairs := make([]document.Pair, len(cols))
			for i, col := range cols {
				pairs[i] = document.Pair{Key: col, Value: columnNode(values[i])}
			}
			n = document.Mapping(pairs...)
		}
		v, err := q.Codec.Decode(n)
		if err != nil {
			return nil, &QueryError{SQL: q.SQL, Err: fmt.Errorf("row %d: %w", rowIndex, err)}
		}
		out = append(out, v)
	}
	return out, nil
}

// columnNode converts a scanned column value into a node.
func columnNode(v any) document.Node {
	switch x := v.(type) {
	case nil:
		return document.Null()
	case bool:
		return document.Bool(x)
	case int64:
		return document.Int(x)
	case float64:
		return document.Float(x)
	case string:
		return document.String(x)
	case []byte:
		return document.String(string(x))
	case time.Time:
		return document.String(x.Format(time.RFC3339Nano))
	default:
		return document.String(fmt.Sprint(x))
	}
}

// InTx runs fn inside a transaction on c, committing when fn succeeds.
func InTx(ctx context.Context, c *Conn, fn func(tx *Tx) error) error {
	if err := c.check(); err != nil {
		return err
	}
	sqlTx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return c.fail("BEGIN", err)
	}
	tx := &Tx{conn: c, tx: sqlTx}
	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			c.pool.logger.Warn().Err(rbErr).Uint64("conn_id", c.id).Msg("rollback failed")
			_ = c.fail("ROLLBACK", rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return c.fail("COMMIT", err)
	}
	return nil
}

// Tx is an open transaction of InTx.
type Tx struct {
	conn *Conn
	tx   *sql.Tx
}

// Exec runs stmt inside the transaction.
func (t *Tx) Exec(ctx context.Context, stmt Statement) (int64, error) {
	var affected int64
	err := t.conn.observe(ctx, "exec", stmt.SQL, func(ctx context.Context) error {
		res, err := t.tx.ExecContext(ctx, stmt.SQL, stmt.args()...)
		if err != nil {
			return t.conn.fail(stmt.SQL, err)
		}
		affected, err = res.RowsAffected()
		if err != nil {
			affected = -1
		}
		return nil
	})
	return affected, err
}
