// Package presence keeps the set of joined users in the users namespace. Each
// user is stored under its own name, so a name can be present at most once.
package presence

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/npezzotti/nodechat/internal/eventlog"
	"github.com/npezzotti/nodechat/internal/store"
	"github.com/npezzotti/nodechat/internal/store/tuple"
	"github.com/npezzotti/nodechat/internal/types"
)

type Set struct {
	store  store.Store
	space  tuple.Subspace
	events *eventlog.Log
	logger *log.Logger
	now    func() time.Time
}

func New(st store.Store, space tuple.Subspace, events *eventlog.Log, logger *log.Logger) *Set {
	return &Set{
		store:  st,
		space:  space,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// AddUser marks name as present, records a joined event and returns the
// users present afterwards. Adding a present user only records the event.
func (s *Set) AddUser(ctx context.Context, name string) ([]string, error) {
	users, err := s.mutate(ctx, name, types.PresenceJoined)
	if err != nil {
		return nil, fmt.Errorf("add user %q: %w", name, err)
	}
	return users, nil
}

// RemoveUser clears name, records a disconnected event and returns the users
// present afterwards. Removing an absent user is not an error.
func (s *Set) RemoveUser(ctx context.Context, name string) ([]string, error) {
	users, err := s.mutate(ctx, name, types.PresenceDisconnected)
	if err != nil {
		return nil, fmt.Errorf("remove user %q: %w", name, err)
	}
	return users, nil
}

// List returns the present users in key order.
func (s *Set) List(ctx context.Context) ([]string, error) {
	var users []string
	err := s.store.ReadTransact(ctx, func(tx store.ReadTx) error {
		var err error
		users, err = s.list(tx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *Set) mutate(ctx context.Context, name string, state types.PresenceState) ([]string, error) {
	var (
		users []string
		id    int64
	)
	key := s.space.Pack(tuple.Tuple{name})

	err := s.store.Transact(ctx, func(tx store.Tx) error {
		var err error
		if state == types.PresenceJoined {
			err = tx.Set(key, []byte(name))
		} else {
			err = tx.Clear(key)
		}
		if err != nil {
			return err
		}

		id, err = s.events.AppendTx(tx, types.NewPresenceEvent(name, state, s.now()))
		if err != nil {
			return err
		}

		users, err = s.list(tx)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.events.Committed(id)
	return users, nil
}

func (s *Set) list(tx store.ReadTx) ([]string, error) {
	begin, end := s.space.Range()
	kvs, err := tx.GetRange(begin, end, store.RangeOptions{})
	if err != nil {
		return nil, err
	}

	users := make([]string, 0, len(kvs))
	for _, kv := range kvs {
		t, err := s.space.Unpack(kv.Key)
		if err != nil || len(t) != 1 {
			s.logger.Printf("skipping presence key %x: %v", kv.Key, err)
			continue
		}
		name, ok := t[0].(string)
		if !ok {
			s.logger.Printf("skipping presence key %x: not a name", kv.Key)
			continue
		}
		users = append(users, name)
	}
	return users, nil
}
