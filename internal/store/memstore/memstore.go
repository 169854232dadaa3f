// Package memstore is an in-process implementation of store.Store. It keeps
// keys sorted in memory and detects conflicting transactions optimistically:
// a transaction fails to commit when a key it read, or a key inside a range it
// read, was written by a transaction that committed after it started.
package memstore

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"sort"
	"sync"

	"github.com/npezzotti/nodechat/internal/store"
)

// commitLogSize bounds the commit history kept for conflict checks. A
// transaction older than the retained history always conflicts.
const commitLogSize = 1024

var errReadOnly = errors.New("write in read-only transaction")

type commitRecord struct {
	version uint64
	keys    []string
}

type Store struct {
	mu          sync.RWMutex
	keys        []string
	data        map[string][]byte
	version     uint64
	commits     []commitRecord
	maxAttempts int
	offline     bool
	closed      bool
}

type Option func(*Store)

// WithMaxAttempts sets how many times a conflicting transaction is tried.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		s.maxAttempts = n
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		data:        make(map[string][]byte),
		maxAttempts: store.DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetOffline makes every following operation fail as unavailable until it is
// called again with false.
func (s *Store) SetOffline(offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = offline
}

func (s *Store) Transact(ctx context.Context, fn func(store.Tx) error) error {
	return store.Retry(ctx, "memstore.transact", s.maxAttempts, func(ctx context.Context) error {
		t, err := s.begin(ctx, false)
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
		return s.commit(t)
	})
}

func (s *Store) ReadTransact(ctx context.Context, fn func(store.ReadTx) error) error {
	t, err := s.begin(ctx, true)
	if err != nil {
		return err
	}
	return fn(t)
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.availableLocked("ping")
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) availableLocked(op string) error {
	switch {
	case s.closed:
		return store.NewUnavailableError(op, errors.New("store closed"))
	case s.offline:
		return store.NewUnavailableError(op, errors.New("store offline"))
	}
	return nil
}

func (s *Store) begin(ctx context.Context, readOnly bool) (*tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.NewUnavailableError("begin", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.availableLocked("begin"); err != nil {
		return nil, err
	}

	return &tx{
		s:           s,
		ctx:         ctx,
		readOnly:    readOnly,
		readVersion: s.version,
		writes:      make(map[string]write),
		readKeys:    make(map[string]struct{}),
	}, nil
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.availableLocked("commit"); err != nil {
		return err
	}
	if len(t.writes) == 0 {
		return nil
	}
	if len(s.commits) > 0 && s.commits[0].version > t.readVersion+1 {
		return store.NewConflictError("commit", errors.New("transaction too old"))
	}

	for _, c := range s.commits {
		if c.version <= t.readVersion {
			continue
		}
		for _, k := range c.keys {
			if t.readConflicts(k) {
				return store.NewConflictError("commit", nil)
			}
		}
	}

	written := make([]string, 0, len(t.writes))
	for k, w := range t.writes {
		if w.clear {
			s.deleteLocked(k)
		} else {
			s.putLocked(k, w.value)
		}
		written = append(written, k)
	}

	s.version++
	s.commits = append(s.commits, commitRecord{version: s.version, keys: written})
	if len(s.commits) > commitLogSize {
		s.commits = slices.Delete(s.commits, 0, len(s.commits)-commitLogSize)
	}

	return nil
}

func (s *Store) putLocked(k string, v []byte) {
	if _, ok := s.data[k]; !ok {
		i := sort.SearchStrings(s.keys, k)
		s.keys = slices.Insert(s.keys, i, k)
	}
	s.data[k] = v
}

func (s *Store) deleteLocked(k string) {
	if _, ok := s.data[k]; !ok {
		return
	}
	delete(s.data, k)
	i := sort.SearchStrings(s.keys, k)
	s.keys = slices.Delete(s.keys, i, i+1)
}

type write struct {
	value []byte
	clear bool
}

type keyRange struct {
	begin, end string
}

type tx struct {
	s           *Store
	ctx         context.Context
	readOnly    bool
	readVersion uint64
	writes      map[string]write
	readKeys    map[string]struct{}
	readRanges  []keyRange
}

func (t *tx) readConflicts(k string) bool {
	if _, ok := t.readKeys[k]; ok {
		return true
	}
	for _, r := range t.readRanges {
		if k >= r.begin && k < r.end {
			return true
		}
	}
	return false
}

func (t *tx) Get(key []byte) ([]byte, error) {
	if err := t.ctx.Err(); err != nil {
		return nil, store.NewUnavailableError("get", err)
	}

	k := string(key)
	t.readKeys[k] = struct{}{}
	if w, ok := t.writes[k]; ok {
		if w.clear {
			return nil, nil
		}
		return bytes.Clone(w.value), nil
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	if err := t.s.availableLocked("get"); err != nil {
		return nil, err
	}
	v, ok := t.s.data[k]
	if !ok {
		return nil, nil
	}
	return bytes.Clone(v), nil
}

func (t *tx) GetRange(begin, end []byte, opts store.RangeOptions) ([]store.KeyValue, error) {
	if err := t.ctx.Err(); err != nil {
		return nil, store.NewUnavailableError("get range", err)
	}

	b, e := string(begin), string(end)
	t.readRanges = append(t.readRanges, keyRange{begin: b, end: e})

	merged := make(map[string][]byte)

	t.s.mu.RLock()
	if err := t.s.availableLocked("get range"); err != nil {
		t.s.mu.RUnlock()
		return nil, err
	}
	for i := sort.SearchStrings(t.s.keys, b); i < len(t.s.keys) && t.s.keys[i] < e; i++ {
		k := t.s.keys[i]
		merged[k] = t.s.data[k]
	}
	t.s.mu.RUnlock()

	for k, w := range t.writes {
		if k < b || k >= e {
			continue
		}
		if w.clear {
			delete(merged, k)
		} else {
			merged[k] = w.value
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if opts.Reverse {
		slices.Reverse(keys)
	}
	if opts.Limit > 0 && len(keys) > opts.Limit {
		keys = keys[:opts.Limit]
	}

	kvs := make([]store.KeyValue, len(keys))
	for i, k := range keys {
		kvs[i] = store.KeyValue{Key: []byte(k), Value: bytes.Clone(merged[k])}
	}
	return kvs, nil
}

func (t *tx) Set(key, value []byte) error {
	if t.readOnly {
		return errReadOnly
	}
	t.writes[string(key)] = write{value: bytes.Clone(value)}
	return nil
}

func (t *tx) Clear(key []byte) error {
	if t.readOnly {
		return errReadOnly
	}
	t.writes[string(key)] = write{clear: true}
	return nil
}
