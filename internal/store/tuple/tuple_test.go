package tuple

import (
	"bytes"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpack(t *testing.T) {
	tcases := []struct {
		name string
		in   Tuple
		want Tuple
	}{
		{name: "zero", in: Tuple{0}, want: Tuple{int64(0)}},
		{name: "small positive", in: Tuple{1}, want: Tuple{int64(1)}},
		{name: "large positive", in: Tuple{int64(math.MaxInt64)}, want: Tuple{int64(math.MaxInt64)}},
		{name: "negative", in: Tuple{-300}, want: Tuple{int64(-300)}},
		{name: "min int", in: Tuple{int64(math.MinInt64)}, want: Tuple{int64(math.MinInt64)}},
		{name: "string with nul", in: Tuple{"a\x00b"}, want: Tuple{"a\x00b"}},
		{name: "bytes", in: Tuple{[]byte{0x00, 0xff}}, want: Tuple{[]byte{0x00, 0xff}}},
		{name: "mixed", in: Tuple{"events", 42, nil}, want: Tuple{"events", int64(42), nil}},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Unpack(tc.in.Pack())
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPack_KnownEncodings(t *testing.T) {
	assert.Equal(t, []byte{0x14}, Tuple{0}.Pack())
	assert.Equal(t, []byte{0x15, 0x01}, Tuple{1}.Pack())
	assert.Equal(t, []byte{0x16, 0x01, 0x00}, Tuple{256}.Pack())
	assert.Equal(t, []byte{0x13, 0xfe}, Tuple{-1}.Pack())
	assert.Equal(t, []byte{0x02, 'h', 'i', 0x00}, Tuple{"hi"}.Pack())
}

func TestPack_PreservesIntegerOrder(t *testing.T) {
	values := []int64{math.MinInt64, -70000, -256, -255, -1, 0, 1, 9, 255, 256, 1 << 20, math.MaxInt64}

	keys := make([][]byte, len(values))
	for i, v := range values {
		keys[i] = Tuple{v}.Pack()
	}

	assert.True(t, sort.SliceIsSorted(keys, func(i, j int) bool {
		return bytes.Compare(keys[i], keys[j]) < 0
	}), "expected packed integers to sort in numeric order")
}

func TestPack_PreservesStringOrder(t *testing.T) {
	values := []string{"", "a", "a\x00", "ab", "b", "carol", "zz"}

	keys := make([][]byte, len(values))
	for i, v := range values {
		keys[i] = Tuple{v}.Pack()
	}

	assert.True(t, sort.SliceIsSorted(keys, func(i, j int) bool {
		return bytes.Compare(keys[i], keys[j]) < 0
	}), "expected packed strings to sort lexicographically")
}

func TestPack_UnsupportedTypePanics(t *testing.T) {
	assert.Panics(t, func() { Tuple{3.14}.Pack() })
}

func TestUnpack_Invalid(t *testing.T) {
	tcases := []struct {
		name string
		in   []byte
	}{
		{name: "unknown code", in: []byte{0x30}},
		{name: "unterminated string", in: []byte{0x02, 'a'}},
		{name: "short integer", in: []byte{0x16, 0x01}},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Unpack(tc.in)
			assert.ErrorIs(t, err, ErrInvalidTuple)
		})
	}
}

func TestSubspace(t *testing.T) {
	events := NewSubspace("events")
	users := NewSubspace("users")

	key := events.Pack(Tuple{7})
	assert.True(t, events.Contains(key))
	assert.False(t, users.Contains(key))

	got, err := events.Unpack(key)
	require.NoError(t, err)
	assert.Equal(t, Tuple{int64(7)}, got)

	_, err = users.Unpack(key)
	assert.ErrorIs(t, err, ErrInvalidTuple)

	begin, end := events.Range()
	assert.True(t, bytes.Compare(begin, key) <= 0, "expected key after range begin")
	assert.True(t, bytes.Compare(key, end) < 0, "expected key before range end")

	ubegin, _ := users.Range()
	assert.True(t, bytes.Compare(end, ubegin) <= 0, "expected namespaces not to overlap")
	assert.Equal(t, "events", events.Name())
}
