// Package eventlog is the append-only chat history. Events are keyed by an
// integer id in the events namespace; the next id is always computed from the
// largest key in the store, inside the same transaction that writes it.
package eventlog

import (
	"context"
	"fmt"
	"log"
	"math"
	"slices"
	"sync/atomic"

	"github.com/npezzotti/nodechat/internal/stats"
	"github.com/npezzotti/nodechat/internal/store"
	"github.com/npezzotti/nodechat/internal/store/tuple"
	"github.com/npezzotti/nodechat/internal/types"
)

// Pulser receives the activity pulse emitted after every successful append.
type Pulser interface {
	Pulse()
}

type Log struct {
	store  store.Store
	space  tuple.Subspace
	pulser Pulser
	stats  stats.StatsProvider
	logger *log.Logger

	// lastID is the largest id this process has seen. It is only used when
	// the namespace is empty.
	lastID atomic.Int64
}

func New(st store.Store, space tuple.Subspace, pulser Pulser, statsProvider stats.StatsProvider, logger *log.Logger) *Log {
	return &Log{
		store:  st,
		space:  space,
		pulser: pulser,
		stats:  statsProvider,
		logger: logger,
	}
}

// Append stores ev under the next free id and returns that id.
func (l *Log) Append(ctx context.Context, ev types.Event) (int64, error) {
	var id int64
	err := l.store.Transact(ctx, func(tx store.Tx) error {
		var err error
		id, err = l.AppendTx(tx, ev)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("append: %w", err)
	}

	l.Committed(id)
	return id, nil
}

// AppendTx appends ev inside a transaction owned by the caller. Once that
// transaction commits the caller must report the id through Committed.
func (l *Log) AppendTx(tx store.Tx, ev types.Event) (int64, error) {
	value, err := Encode(ev)
	if err != nil {
		return 0, err
	}

	maxID, ok, err := l.maxID(tx)
	if err != nil {
		return 0, err
	}
	if !ok {
		maxID = l.lastID.Load()
	}

	id := maxID + 1
	if err := tx.Set(keyForID(l.space, id), value); err != nil {
		return 0, err
	}

	return id, nil
}

// Committed records an appended id and emits the activity pulse.
func (l *Log) Committed(id int64) {
	l.observe(id)
	l.stats.Incr(stats.EventsAppended)
	l.Pulse()
}

func (l *Log) Pulse() {
	if l.pulser != nil {
		l.pulser.Pulse()
	}
}

// ReadSince returns the events with an id greater than cursor in ascending
// order, and the largest id read. The cursor is returned unchanged when
// nothing newer exists. Entries that fail to decode are logged and skipped.
func (l *Log) ReadSince(ctx context.Context, cursor int64) ([]types.Event, int64, error) {
	if cursor == math.MaxInt64 {
		// no id can follow the largest one
		return []types.Event{}, cursor, nil
	}

	begin, end := l.space.Range()
	if cursor > 0 {
		begin = keyForID(l.space, cursor+1)
	}

	var kvs []store.KeyValue
	err := l.store.ReadTransact(ctx, func(tx store.ReadTx) error {
		var err error
		kvs, err = tx.GetRange(begin, end, store.RangeOptions{})
		return err
	})
	if err != nil {
		return nil, cursor, fmt.Errorf("read since %d: %w", cursor, err)
	}

	events, maxID := l.decodeAll(kvs)
	if maxID > cursor {
		cursor = maxID
	}

	return events, cursor, nil
}

// LookupLatest returns the largest stored event id, or 0 when the log is
// empty.
func (l *Log) LookupLatest(ctx context.Context) (int64, error) {
	var id int64
	err := l.store.ReadTransact(ctx, func(tx store.ReadTx) error {
		var err error
		id, _, err = l.maxID(tx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("lookup latest: %w", err)
	}

	l.observe(id)
	return id, nil
}

// Recent returns up to n of the newest events in ascending order.
func (l *Log) Recent(ctx context.Context, n int) ([]types.Event, error) {
	if n <= 0 {
		return []types.Event{}, nil
	}

	begin, end := l.space.Range()
	var kvs []store.KeyValue
	err := l.store.ReadTransact(ctx, func(tx store.ReadTx) error {
		var err error
		kvs, err = tx.GetRange(begin, end, store.RangeOptions{Reverse: true, Limit: n})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("recent: %w", err)
	}

	slices.Reverse(kvs)
	events, _ := l.decodeAll(kvs)
	return events, nil
}

func (l *Log) maxID(tx store.ReadTx) (int64, bool, error) {
	begin, end := l.space.Range()
	kvs, err := tx.GetRange(begin, end, store.RangeOptions{Reverse: true, Limit: 1})
	if err != nil {
		return 0, false, err
	}
	if len(kvs) == 0 {
		return 0, false, nil
	}

	id, err := idFromKey(l.space, kvs[0].Key)
	if err != nil {
		return 0, false, &CorruptEventError{Key: kvs[0].Key, Err: err}
	}
	return id, true, nil
}

// decodeAll decodes kvs in order. The returned id is the largest key id seen,
// including entries whose value is corrupt, so a bad entry is reported once.
func (l *Log) decodeAll(kvs []store.KeyValue) ([]types.Event, int64) {
	events := make([]types.Event, 0, len(kvs))
	var maxID int64
	for _, kv := range kvs {
		id, err := idFromKey(l.space, kv.Key)
		if err != nil {
			l.corrupt(&CorruptEventError{Key: kv.Key, Err: err})
			continue
		}
		if id > maxID {
			maxID = id
		}

		ev, err := Decode(id, kv.Value)
		if err != nil {
			l.corrupt(&CorruptEventError{Key: kv.Key, Err: err})
			continue
		}
		events = append(events, ev)
	}

	l.observe(maxID)
	return events, maxID
}

func (l *Log) corrupt(err *CorruptEventError) {
	l.logger.Println("skipping event:", err)
	l.stats.Incr(stats.CorruptEvents)
}

func (l *Log) observe(id int64) {
	for {
		cur := l.lastID.Load()
		if id <= cur || l.lastID.CompareAndSwap(cur, id) {
			return
		}
	}
}
