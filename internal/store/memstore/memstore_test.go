package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/npezzotti/nodechat/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func set(t *testing.T, s *Store, key, value string) {
	t.Helper()
	err := s.Transact(context.Background(), func(tx store.Tx) error {
		return tx.Set([]byte(key), []byte(value))
	})
	require.NoError(t, err)
}

func TestTransact_CommitAndAbort(t *testing.T) {
	s := New()
	set(t, s, "a", "1")

	abortErr := errors.New("abort")
	err := s.Transact(context.Background(), func(tx store.Tx) error {
		if err := tx.Set([]byte("a"), []byte("2")); err != nil {
			return err
		}
		if err := tx.Set([]byte("b"), []byte("3")); err != nil {
			return err
		}
		return abortErr
	})
	assert.ErrorIs(t, err, abortErr)

	err = s.ReadTransact(context.Background(), func(tx store.ReadTx) error {
		v, err := tx.Get([]byte("a"))
		require.NoError(t, err)
		assert.Equal(t, "1", string(v))

		v, err = tx.Get([]byte("b"))
		require.NoError(t, err)
		assert.Nil(t, v, "expected aborted write to be invisible")
		return nil
	})
	require.NoError(t, err)
}

func TestTx_ReadsOwnWrites(t *testing.T) {
	s := New()
	set(t, s, "k1", "old")
	set(t, s, "k3", "three")

	err := s.Transact(context.Background(), func(tx store.Tx) error {
		require.NoError(t, tx.Set([]byte("k1"), []byte("new")))
		require.NoError(t, tx.Set([]byte("k2"), []byte("two")))
		require.NoError(t, tx.Clear([]byte("k3")))

		v, err := tx.Get([]byte("k1"))
		require.NoError(t, err)
		assert.Equal(t, "new", string(v))

		v, err = tx.Get([]byte("k3"))
		require.NoError(t, err)
		assert.Nil(t, v)

		kvs, err := tx.GetRange([]byte("k"), []byte("l"), store.RangeOptions{})
		require.NoError(t, err)
		require.Len(t, kvs, 2)
		assert.Equal(t, "k1", string(kvs[0].Key))
		assert.Equal(t, "new", string(kvs[0].Value))
		assert.Equal(t, "k2", string(kvs[1].Key))
		return nil
	})
	require.NoError(t, err)
}

func TestGetRange(t *testing.T) {
	s := New()
	for _, k := range []string{"a", "b1", "b2", "b3", "c"} {
		set(t, s, k, "v"+k)
	}

	tcases := []struct {
		name string
		opts store.RangeOptions
		want []string
	}{
		{name: "forward", want: []string{"b1", "b2", "b3"}},
		{name: "reverse", opts: store.RangeOptions{Reverse: true}, want: []string{"b3", "b2", "b1"}},
		{name: "limit", opts: store.RangeOptions{Limit: 2}, want: []string{"b1", "b2"}},
		{name: "reverse limit", opts: store.RangeOptions{Reverse: true, Limit: 1}, want: []string{"b3"}},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			var got []string
			err := s.ReadTransact(context.Background(), func(tx store.ReadTx) error {
				kvs, err := tx.GetRange([]byte("b"), []byte("c"), tc.opts)
				for _, kv := range kvs {
					got = append(got, string(kv.Key))
				}
				return err
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestReadTransact_RejectsWrites(t *testing.T) {
	s := New()
	err := s.ReadTransact(context.Background(), func(tx store.ReadTx) error {
		return tx.(store.Tx).Set([]byte("a"), []byte("b"))
	})
	assert.ErrorIs(t, err, errReadOnly)
}

func TestCommit_ConflictOnReadKey(t *testing.T) {
	s := New(WithMaxAttempts(1))
	set(t, s, "counter", "0")

	err := s.Transact(context.Background(), func(tx store.Tx) error {
		if _, err := tx.Get([]byte("counter")); err != nil {
			return err
		}
		// A concurrent writer commits between the read and the commit.
		set(t, s, "counter", "1")
		return tx.Set([]byte("counter"), []byte("2"))
	})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestCommit_ConflictOnReadRange(t *testing.T) {
	s := New(WithMaxAttempts(1))

	err := s.Transact(context.Background(), func(tx store.Tx) error {
		if _, err := tx.GetRange([]byte("log/"), []byte("log0"), store.RangeOptions{Reverse: true, Limit: 1}); err != nil {
			return err
		}
		set(t, s, "log/5", "x")
		return tx.Set([]byte("log/1"), []byte("y"))
	})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestCommit_NoConflictOnDisjointWrite(t *testing.T) {
	s := New(WithMaxAttempts(1))

	err := s.Transact(context.Background(), func(tx store.Tx) error {
		if _, err := tx.Get([]byte("mine")); err != nil {
			return err
		}
		set(t, s, "theirs", "x")
		return tx.Set([]byte("mine"), []byte("y"))
	})
	assert.NoError(t, err)
}

func TestTransact_RetriesConflicts(t *testing.T) {
	s := New()
	set(t, s, "counter", "0")

	attempts := 0
	err := s.Transact(context.Background(), func(tx store.Tx) error {
		attempts++
		if _, err := tx.Get([]byte("counter")); err != nil {
			return err
		}
		if attempts == 1 {
			set(t, s, "counter", "1")
		}
		return tx.Set([]byte("counter"), []byte("done"))
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestTransact_ConcurrentIncrementsAreSerializable(t *testing.T) {
	s := New(WithMaxAttempts(1000))
	set(t, s, "n", "")

	const workers = 20
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Transact(context.Background(), func(tx store.Tx) error {
				v, err := tx.Get([]byte("n"))
				if err != nil {
					return err
				}
				return tx.Set([]byte("n"), append(v, 'x'))
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	err := s.ReadTransact(context.Background(), func(tx store.ReadTx) error {
		v, err := tx.Get([]byte("n"))
		assert.Len(t, v, workers, "expected every increment to be applied once")
		return err
	})
	require.NoError(t, err)
}

func TestOfflineAndClosed(t *testing.T) {
	s := New()
	s.SetOffline(true)

	err := s.Transact(context.Background(), func(tx store.Tx) error { return nil })
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.ErrorIs(t, s.Ping(context.Background()), store.ErrUnavailable)

	s.SetOffline(false)
	assert.NoError(t, s.Ping(context.Background()))

	require.NoError(t, s.Close())
	err = s.ReadTransact(context.Background(), func(tx store.ReadTx) error { return nil })
	assert.ErrorIs(t, err, store.ErrUnavailable)
}
