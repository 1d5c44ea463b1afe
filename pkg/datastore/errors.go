// SPDX-License-Identifier: MIT

package datastore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrPoolExhausted is returned by Acquire when no connection became
	// available within the acquire timeout.
	ErrPoolExhausted = errors.New("datastore: pool exhausted")
	// ErrConnectionLost marks failures of the connection rather than the
	// statement. The connection is discarded on release; retrying with a
	// fresh connection is up to the caller (see WithRetry).
	ErrConnectionLost = errors.New("datastore: connection lost")
	// ErrPoolClosed is returned by Acquire after Close.
	ErrPoolClosed = errors.New("datastore: pool closed")
	// ErrNoRows is returned by QueryOne when the query yields no row.
	ErrNoRows = errors.New("datastore: no rows")
)

// QueryError is a failure reported by the store for one statement.
type QueryError struct {
	SQL  string
	Code string // driver specific: SQLSTATE for postgres, result code name for sqlite
	Err  error
}

func (e *QueryError) Error() string {
	var sb strings.Builder
	sb.WriteString("datastore: query failed")
	if e.Code != "" {
		sb.WriteString(" (" + e.Code + ")")
	}
	sb.WriteString(": ")
	sb.WriteString(e.Err.Error())
	return sb.String()
}

func (e *QueryError) Unwrap() error { return e.Err }

// classify maps a driver error to ErrConnectionLost or *QueryError. Context
// errors are returned unchanged.
func classify(query string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if connectionLost(err) {
		return fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	return &QueryError{SQL: query, Code: errorCode(err), Err: err}
}

func connectionLost(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception. 57P01-57P03: server shutting down.
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P0")
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_NOTADB:
			return true
		}
	}
	return false
}

func errorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return sqliteCodeName(liteErr.Code())
	}
	return ""
}

// sqliteCodeName returns the symbolic result code, e.g. "SQLITE_CONSTRAINT".
// Extended codes without a name of their own fall back to their primary code.
func sqliteCodeName(code int) string {
	name, ok := sqlite.ErrorCodeString[code]
	if !ok {
		name, ok = sqlite.ErrorCodeString[code&0xff]
	}
	if !ok {
		return strconv.Itoa(code)
	}
	if i := strings.LastIndexByte(name, '('); i >= 0 && strings.HasSuffix(name, ")") {
		return name[i+1 : len(name)-1]
	}
	return name
}
