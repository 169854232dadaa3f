package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/npezzotti/nodechat/internal/store"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

type dialect struct {
	name        string
	getQuery    string
	rangeQuery  string
	upsertQuery string
	deleteQuery string
	txOptions   *sql.TxOptions
	isConflict  func(error) bool
}

var postgresDialect = dialect{
	name:        DriverPostgres,
	getQuery:    "SELECT value FROM kv WHERE key = $1",
	rangeQuery:  "SELECT key, value FROM kv WHERE key >= $1 AND key < $2 ORDER BY key",
	upsertQuery: "INSERT INTO kv (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value",
	deleteQuery: "DELETE FROM kv WHERE key = $1",
	txOptions:   &sql.TxOptions{Isolation: sql.LevelSerializable},
	isConflict:  isPostgresConflict,
}

var sqliteDialect = dialect{
	name:        DriverSQLite,
	getQuery:    "SELECT value FROM kv WHERE key = ?",
	rangeQuery:  "SELECT key, value FROM kv WHERE key >= ? AND key < ? ORDER BY key",
	upsertQuery: "INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value",
	deleteQuery: "DELETE FROM kv WHERE key = ?",
	isConflict:  isSQLiteConflict,
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverPostgres:
		return postgresDialect, nil
	case DriverSQLite:
		return sqliteDialect, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func (d dialect) rangeSQL(opts store.RangeOptions) string {
	q := d.rangeQuery
	if opts.Reverse {
		q += " DESC"
	}
	if opts.Limit > 0 {
		q += " LIMIT " + strconv.Itoa(opts.Limit)
	}
	return q
}

// classify turns a driver error into a *store.StoreError.
func (d dialect) classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if d.isConflict(err) {
		return store.NewConflictError(op, err)
	}
	return store.NewUnavailableError(op, err)
}

// serialization_failure, deadlock_detected and unique_violation
var postgresConflictCodes = map[pq.ErrorCode]bool{
	"40001": true,
	"40P01": true,
	"23505": true,
}

func isPostgresConflict(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return postgresConflictCodes[pqErr.Code]
	}
	return false
}

func isSQLiteConflict(err error) bool {
	var sqErr sqlite3.Error
	if !errors.As(err, &sqErr) {
		return false
	}
	switch sqErr.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return true
	case sqlite3.ErrConstraint:
		return sqErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
