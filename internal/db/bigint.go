package db

import (
	"fmt"
	"math/big"
)

// BigIntAddFunc is the SQL name of BigIntAdd.
const BigIntAddFunc = "ccd_bigint_add"

// BigIntAdd adds two signed decimal integers of arbitrary size. Token amounts exceed
// SQLite's 64-bit INTEGER, so supplies and balances are stored as decimal TEXT and
// combined with this function inside upserts.
func BigIntAdd(a, b string) (string, error) {
	x, err := ParseBigInt(a)
	if err != nil {
		return "", err
	}
	y, err := ParseBigInt(b)
	if err != nil {
		return "", err
	}
	return x.Add(x, y).String(), nil
}

// ParseBigInt parses a decimal integer. The empty string is zero.
func ParseBigInt(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10) //nolint:mnd
	if !ok {
		return nil, fmt.Errorf("invalid decimal integer %q", s)
	}
	return v, nil
}
