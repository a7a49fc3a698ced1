package cis2

import (
	"fmt"
	"math/big"
)

// decodeULEB128 reads an unsigned LEB128 integer of at most maxBytes bytes
// from the start of b. It returns the value and the number of bytes consumed.
func decodeULEB128(b []byte, maxBytes int) (*big.Int, int, error) {
	value := new(big.Int)
	chunk := new(big.Int)

	for i := 0; i < maxBytes; i++ {
		if i >= len(b) {
			return nil, 0, fmt.Errorf("%w: truncated LEB128 value", ErrMalformed)
		}

		chunk.SetUint64(uint64(b[i] & 0x7f))
		value.Or(value, chunk.Lsh(chunk, uint(7*i)))

		if b[i]&0x80 == 0 {
			return value, i + 1, nil
		}
	}

	return nil, 0, fmt.Errorf("%w: LEB128 value longer than %d bytes", ErrMalformed, maxBytes)
}

// appendULEB128 appends the unsigned LEB128 encoding of v to dst.
func appendULEB128(dst []byte, v *big.Int) []byte {
	if v.Sign() == 0 {
		return append(dst, 0)
	}

	rest := new(big.Int).Set(v)
	low := new(big.Int)
	mask := big.NewInt(0x7f)

	for rest.Sign() > 0 {
		b := byte(low.And(rest, mask).Uint64())
		rest.Rsh(rest, 7)
		if rest.Sign() > 0 {
			b |= 0x80
		}
		dst = append(dst, b)
	}

	return dst
}

// appendULEB128Uint64 appends the unsigned LEB128 encoding of v to dst.
func appendULEB128Uint64(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}
