package tuple

import (
	"bytes"
	"fmt"
)

// Subspace is a key prefix shared by every key of one namespace.
type Subspace struct {
	name   string
	prefix []byte
}

// NewSubspace returns the namespace whose keys start with the packed name.
func NewSubspace(name string) Subspace {
	return Subspace{name: name, prefix: Tuple{name}.Pack()}
}

func (s Subspace) Name() string {
	return s.name
}

// Bytes returns a copy of the subspace prefix.
func (s Subspace) Bytes() []byte {
	return bytes.Clone(s.prefix)
}

// Pack returns the key for t inside the subspace.
func (s Subspace) Pack(t Tuple) []byte {
	packed := t.Pack()
	key := make([]byte, 0, len(s.prefix)+len(packed))
	key = append(key, s.prefix...)
	return append(key, packed...)
}

// Unpack decodes a key of this subspace back into its tuple.
func (s Subspace) Unpack(key []byte) (Tuple, error) {
	if !s.Contains(key) {
		return nil, fmt.Errorf("%w: key is outside subspace %q", ErrInvalidTuple, s.name)
	}
	return Unpack(key[len(s.prefix):])
}

func (s Subspace) Contains(key []byte) bool {
	return bytes.HasPrefix(key, s.prefix)
}

// Range returns the [begin, end) bounds covering every packed tuple in the
// subspace.
func (s Subspace) Range() (begin, end []byte) {
	begin = append(bytes.Clone(s.prefix), 0x00)
	end = append(bytes.Clone(s.prefix), 0xff)
	return begin, end
}
