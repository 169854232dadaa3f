// Package tuple encodes ordered keys in the FoundationDB tuple format, so the
// byte order of packed keys matches the natural order of their elements.
package tuple

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	nilCode    = 0x00
	bytesCode  = 0x01
	stringCode = 0x02
	intZero    = 0x14
)

var ErrInvalidTuple = errors.New("invalid tuple")

// Tuple is an ordered list of elements. Supported element types are nil,
// []byte, string and the signed integer types.
type Tuple []any

// Pack encodes the tuple. It panics on an unsupported element type.
func (t Tuple) Pack() []byte {
	var buf bytes.Buffer
	for i, el := range t {
		switch v := el.(type) {
		case nil:
			buf.WriteByte(nilCode)
		case []byte:
			buf.WriteByte(bytesCode)
			writeEscaped(&buf, v)
		case string:
			buf.WriteByte(stringCode)
			writeEscaped(&buf, []byte(v))
		case int:
			writeInt(&buf, int64(v))
		case int32:
			writeInt(&buf, int64(v))
		case int64:
			writeInt(&buf, v)
		default:
			panic(fmt.Sprintf("tuple: unsupported element %d of type %T", i, el))
		}
	}
	return buf.Bytes()
}

// Unpack decodes a packed tuple. Integers decode as int64.
func Unpack(b []byte) (Tuple, error) {
	var t Tuple
	for i := 0; i < len(b); {
		code := b[i]
		i++
		switch {
		case code == nilCode:
			t = append(t, nil)
		case code == bytesCode, code == stringCode:
			raw, n, err := readEscaped(b[i:])
			if err != nil {
				return nil, err
			}
			i += n
			if code == stringCode {
				t = append(t, string(raw))
			} else {
				t = append(t, raw)
			}
		case code >= intZero-8 && code <= intZero+8:
			v, n, err := readInt(code, b[i:])
			if err != nil {
				return nil, err
			}
			i += n
			t = append(t, v)
		default:
			return nil, fmt.Errorf("%w: unknown type code 0x%02x", ErrInvalidTuple, code)
		}
	}
	return t, nil
}

func writeEscaped(buf *bytes.Buffer, b []byte) {
	for _, c := range b {
		buf.WriteByte(c)
		if c == 0x00 {
			buf.WriteByte(0xff)
		}
	}
	buf.WriteByte(0x00)
}

func readEscaped(b []byte) ([]byte, int, error) {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != 0x00 {
			out = append(out, b[i])
			continue
		}
		if i+1 < len(b) && b[i+1] == 0xff {
			out = append(out, 0x00)
			i++
			continue
		}
		return out, i + 1, nil
	}
	return nil, 0, fmt.Errorf("%w: unterminated byte string", ErrInvalidTuple)
}

func writeInt(buf *bytes.Buffer, v int64) {
	if v == 0 {
		buf.WriteByte(intZero)
		return
	}

	var raw [8]byte
	if v > 0 {
		binary.BigEndian.PutUint64(raw[:], uint64(v))
		n := byteLen(uint64(v))
		buf.WriteByte(byte(intZero + n))
		buf.Write(raw[8-n:])
		return
	}

	// negative values are stored as the one's complement of their magnitude
	mag := uint64(-(v + 1)) + 1
	n := byteLen(mag)
	binary.BigEndian.PutUint64(raw[:], ^mag)
	buf.WriteByte(byte(intZero - n))
	buf.Write(raw[8-n:])
}

func readInt(code byte, b []byte) (int64, int, error) {
	if code == intZero {
		return 0, 0, nil
	}

	n := int(code) - intZero
	neg := n < 0
	if neg {
		n = -n
	}
	if len(b) < n {
		return 0, 0, fmt.Errorf("%w: short integer", ErrInvalidTuple)
	}

	var raw [8]byte
	if neg {
		for i := range raw {
			raw[i] = 0xff
		}
	}
	copy(raw[8-n:], b[:n])
	u := binary.BigEndian.Uint64(raw[:])
	if !neg {
		if u > 1<<63-1 {
			return 0, 0, fmt.Errorf("%w: integer overflow", ErrInvalidTuple)
		}
		return int64(u), n, nil
	}
	mag := ^u
	if mag > 1<<63 {
		return 0, 0, fmt.Errorf("%w: integer overflow", ErrInvalidTuple)
	}
	return -int64(mag-1) - 1, n, nil
}

func byteLen(u uint64) int {
	n := 0
	for u > 0 {
		n++
		u >>= 8
	}
	return n
}
