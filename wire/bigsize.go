package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// BigSize is a variable-length encoding for unsigned 64-bit integers
// described in BOLT #1. Unlike btcd's VarInt, every encoding width has
// exactly one representation: a decoder that accepts the non-canonical
// encoding of a small value is vulnerable to malleability, so encode/decode
// here are exact inverses of each other only for canonical byte strings.
const (
	bigSizePrefix16 = 0xfd
	bigSizePrefix32 = 0xfe
	bigSizePrefix64 = 0xff
)

// EncodeBigSize writes the canonical BigSize encoding of v to w and returns
// the number of bytes written.
func EncodeBigSize(w io.Writer, v uint64) (int, error) {
	switch {
	case v < bigSizePrefix16:
		b := [1]byte{byte(v)}
		return w.Write(b[:])

	case v <= 0xffff:
		var b [3]byte
		b[0] = bigSizePrefix16
		binary.BigEndian.PutUint16(b[1:], uint16(v))
		return w.Write(b[:])

	case v <= 0xffffffff:
		var b [5]byte
		b[0] = bigSizePrefix32
		binary.BigEndian.PutUint32(b[1:], uint32(v))
		return w.Write(b[:])

	default:
		var b [9]byte
		b[0] = bigSizePrefix64
		binary.BigEndian.PutUint64(b[1:], v)
		return w.Write(b[:])
	}
}

// DecodeBigSize reads a canonical BigSize-encoded integer from r. It rejects
// any encoding that could have been represented in a shorter form.
func DecodeBigSize(r io.Reader) (uint64, int, error) {
	var prefix [1]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return 0, 0, err
	}

	switch prefix[0] {
	case bigSizePrefix16:
		var b [2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, 0, err
		}
		v := uint64(binary.BigEndian.Uint16(b[:]))
		if v < bigSizePrefix16 {
			return 0, 0, fmt.Errorf("non-canonical bigsize: "+
				"%d encoded with 0xfd prefix", v)
		}
		return v, 3, nil

	case bigSizePrefix32:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, 0, err
		}
		v := uint64(binary.BigEndian.Uint32(b[:]))
		if v <= 0xffff {
			return 0, 0, fmt.Errorf("non-canonical bigsize: "+
				"%d encoded with 0xfe prefix", v)
		}
		return v, 5, nil

	case bigSizePrefix64:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, 0, err
		}
		v := binary.BigEndian.Uint64(b[:])
		if v <= 0xffffffff {
			return 0, 0, fmt.Errorf("non-canonical bigsize: "+
				"%d encoded with 0xff prefix", v)
		}
		return v, 9, nil

	default:
		return uint64(prefix[0]), 1, nil
	}
}

// BigSizeLen returns the number of bytes EncodeBigSize would write for v,
// without performing any I/O.
func BigSizeLen(v uint64) int {
	switch {
	case v < bigSizePrefix16:
		return 1
	case v <= 0xffff:
		return 3
	case v <= 0xffffffff:
		return 5
	default:
		return 9
	}
}
