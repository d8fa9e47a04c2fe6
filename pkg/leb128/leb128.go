// Package leb128 implements unsigned LEB128 variable-length integer
// encoding as used in the encrypted frame trailer: 7 payload bits per byte,
// with the high bit of each byte signaling a continuation.
package leb128

import (
	qerrors "github.com/pzverkov/e2ee-media/internal/errors"
)

// maxBytes bounds the number of bytes a 64-bit value can ever require and
// matches the original implementation's overflow guard: the 10th
// continuation byte may only ever carry 0 or 1 of the top bit.
const maxBytes = 10

// Size returns the number of bytes WriteUint64 will emit for v.
func Size(v uint64) int {
	n := 1
	for v >>= 7; v != 0; v >>= 7 {
		n++
	}
	return n
}

// WriteUint64 encodes v into dst and returns the number of bytes written.
// dst must have at least Size(v) bytes of capacity.
func WriteUint64(v uint64, dst []byte) int {
	i := 0
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		dst[i] = b
		i++
		if v == 0 {
			return i
		}
	}
}

// ReadUint64 decodes a varint from the start of src, returning the value
// and the number of bytes consumed. It returns ErrTruncatedVarint if src
// ends before a terminating byte, and ErrVarintOverflow if more than
// maxBytes continuation bytes are present or the final byte would shift
// bits past 64.
func ReadUint64(src []byte) (uint64, int, error) {
	var value uint64
	var shift uint

	for i := 0; i < len(src); i++ {
		if i >= maxBytes {
			return 0, 0, qerrors.ErrVarintOverflow
		}

		b := src[i]
		if i == maxBytes-1 && b > 1 {
			// The 10th byte can only ever contribute bit 63; any more and
			// the value overflows 64 bits.
			return 0, 0, qerrors.ErrVarintOverflow
		}

		value |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return value, i + 1, nil
		}
		shift += 7
	}

	return 0, 0, qerrors.ErrTruncatedVarint
}
