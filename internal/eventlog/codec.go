package eventlog

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/npezzotti/nodechat/internal/store/tuple"
	"github.com/npezzotti/nodechat/internal/types"
)

// CorruptEventError reports a stored entry that could not be decoded.
type CorruptEventError struct {
	Key []byte
	Err error
}

func (e *CorruptEventError) Error() string {
	return fmt.Sprintf("corrupt event at key %x: %v", e.Key, e.Err)
}

func (e *CorruptEventError) Unwrap() error {
	return e.Err
}

// Encode serializes an event for storage. The id is not part of the value;
// it lives in the key.
func Encode(ev types.Event) ([]byte, error) {
	if ev.User == "" {
		return nil, errors.New("encode event: empty user")
	}
	r := ev.Record()
	if r.Type == "" {
		return nil, fmt.Errorf("encode event: unknown kind %q", ev.Kind)
	}
	return json.Marshal(r)
}

// Decode parses a stored value into the event with the given id.
func Decode(id int64, value []byte) (types.Event, error) {
	var r types.Record
	if err := json.Unmarshal(value, &r); err != nil {
		return types.Event{}, err
	}
	if r.User == "" {
		return types.Event{}, errors.New("empty user")
	}
	ev, ok := r.Event(id)
	if !ok {
		return types.Event{}, fmt.Errorf("unknown event type %q", r.Type)
	}
	return ev, nil
}

func idFromKey(space tuple.Subspace, key []byte) (int64, error) {
	t, err := space.Unpack(key)
	if err != nil {
		return 0, err
	}
	if len(t) != 1 {
		return 0, fmt.Errorf("%w: expected one element, got %d", tuple.ErrInvalidTuple, len(t))
	}
	id, ok := t[0].(int64)
	if !ok {
		return 0, fmt.Errorf("%w: expected integer id, got %T", tuple.ErrInvalidTuple, t[0])
	}
	return id, nil
}

func keyForID(space tuple.Subspace, id int64) []byte {
	return space.Pack(tuple.Tuple{id})
}
