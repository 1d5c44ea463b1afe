// SPDX-License-Identifier: MIT

package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// VerifyMode selects the depth of VerifyIntegrity.
type VerifyMode string

const (
	VerifyQuick VerifyMode = "quick" // PRAGMA quick_check
	VerifyFull  VerifyMode = "full"  // PRAGMA integrity_check
)

// VerifyIntegrity checks the sqlite database at path for structural damage.
// The file is opened read-only. It returns the diagnostic rows reported by
// sqlite, or nil when the database is healthy.
func VerifyIntegrity(ctx context.Context, path string, mode VerifyMode) ([]string, error) {
	pragma := "PRAGMA quick_check"
	switch mode {
	case VerifyQuick, "":
	case VerifyFull:
		pragma = "PRAGMA integrity_check"
	default:
		return nil, fmt.Errorf("datastore: verify: unknown mode %q", mode)
	}

	dsn := "file:" + path + "?mode=ro&_pragma=busy_timeout(2000)"
	db, err := sql.Open(DriverSQLite.sqlDriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("datastore: verify: open %s: %w", path, err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, pragma)
	if err != nil {
		return nil, fmt.Errorf("datastore: verify: %w", classify(pragma, err))
	}
	defer func() { _ = rows.Close() }()

	var results []string
	for rows.Next() {
		var res string
		if err := rows.Scan(&res); err != nil {
			return nil, fmt.Errorf("datastore: verify: scan: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("datastore: verify: %w", classify(pragma, err))
	}

	switch {
	case len(results) == 1 && strings.EqualFold(results[0], "ok"):
		return nil, nil
	case len(results) == 0:
		return []string{"no results returned from integrity check"}, nil
	default:
		return results, nil
	}
}
