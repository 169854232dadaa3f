// Package database implements store.Store on top of a SQL database holding a
// single ordered key-value table. Postgres (lib/pq) and SQLite
// (mattn/go-sqlite3) are supported.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/npezzotti/nodechat/internal/store"
)

type DB struct {
	conn        *sql.DB
	dialect     dialect
	maxAttempts int
}

type Option func(*DB)

func WithMaxAttempts(n int) Option {
	return func(db *DB) {
		db.maxAttempts = n
	}
}

// Open connects to the database and verifies the connection. The schema is
// expected to exist already; see Migrate.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*DB, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	db := &DB{
		conn:        conn,
		dialect:     d,
		maxAttempts: store.DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(db)
	}

	return db, nil
}

func (db *DB) Transact(ctx context.Context, fn func(store.Tx) error) error {
	return store.Retry(ctx, db.dialect.name+".transact", db.maxAttempts, func(ctx context.Context) error {
		return db.runTx(ctx, false, func(t *txn) error { return fn(t) })
	})
}

func (db *DB) ReadTransact(ctx context.Context, fn func(store.ReadTx) error) error {
	return store.Retry(ctx, db.dialect.name+".read_transact", db.maxAttempts, func(ctx context.Context) error {
		return db.runTx(ctx, true, func(t *txn) error { return fn(t) })
	})
}

func (db *DB) runTx(ctx context.Context, readOnly bool, fn func(*txn) error) (err error) {
	var opts *sql.TxOptions
	if db.dialect.txOptions != nil {
		o := *db.dialect.txOptions
		o.ReadOnly = readOnly
		opts = &o
	}

	tx, err := db.conn.BeginTx(ctx, opts)
	if err != nil {
		return db.dialect.classify("begin", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(&txn{ctx: ctx, tx: tx, dialect: db.dialect, readOnly: readOnly}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return db.dialect.classify("commit", err)
	}

	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return store.NewUnavailableError("ping", err)
	}
	return nil
}

func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

var errReadOnly = errors.New("write in read-only transaction")

type txn struct {
	ctx      context.Context
	tx       *sql.Tx
	dialect  dialect
	readOnly bool
}

func (t *txn) Get(key []byte) ([]byte, error) {
	var value []byte
	err := t.tx.QueryRowContext(t.ctx, t.dialect.getQuery, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, t.dialect.classify("get", err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

func (t *txn) GetRange(begin, end []byte, opts store.RangeOptions) ([]store.KeyValue, error) {
	rows, err := t.tx.QueryContext(t.ctx, t.dialect.rangeSQL(opts), begin, end)
	if err != nil {
		return nil, t.dialect.classify("get range", err)
	}
	defer rows.Close()

	var kvs []store.KeyValue
	for rows.Next() {
		var kv store.KeyValue
		if err := rows.Scan(&kv.Key, &kv.Value); err != nil {
			return nil, t.dialect.classify("get range", err)
		}
		kvs = append(kvs, kv)
	}

	if err := rows.Err(); err != nil {
		return nil, t.dialect.classify("get range", err)
	}

	return kvs, nil
}

func (t *txn) Set(key, value []byte) error {
	if t.readOnly {
		return errReadOnly
	}
	if value == nil {
		value = []byte{}
	}
	if _, err := t.tx.ExecContext(t.ctx, t.dialect.upsertQuery, key, value); err != nil {
		return t.dialect.classify("set", err)
	}
	return nil
}

func (t *txn) Clear(key []byte) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, err := t.tx.ExecContext(t.ctx, t.dialect.deleteQuery, key); err != nil {
		return t.dialect.classify("clear", err)
	}
	return nil
}
