// Package store defines the transactional ordered key-value contract that the
// event log and presence set are built on.
package store

import "context"

// KeyValue is one entry returned by a range read.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// RangeOptions controls a range read. A Limit of zero means no limit.
type RangeOptions struct {
	Reverse bool
	Limit   int
}

// ReadTx is the read half of a transaction.
type ReadTx interface {
	// Get returns the value for key, or nil when the key is absent.
	Get(key []byte) ([]byte, error)
	// GetRange returns the entries with begin <= key < end in key order
	// (descending when opts.Reverse is set).
	GetRange(begin, end []byte, opts RangeOptions) ([]KeyValue, error)
}

// Tx is a read-write transaction. Reads observe the transaction's own writes.
type Tx interface {
	ReadTx
	Set(key, value []byte) error
	Clear(key []byte) error
}

// Store runs functions inside transactions. Transact commits when fn returns
// nil and aborts otherwise; no partial effect of an aborted transaction is
// ever visible.
type Store interface {
	Transact(ctx context.Context, fn func(Tx) error) error
	ReadTransact(ctx context.Context, fn func(ReadTx) error) error
	Ping(ctx context.Context) error
	Close() error
}
