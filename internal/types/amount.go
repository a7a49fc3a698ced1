package types

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// CCDAmount is an amount of CCD in micro CCD.
type CCDAmount uint64

// MarshalText renders the amount as a decimal string.
func (a CCDAmount) MarshalText() ([]byte, error) {
	return []byte(strconv.FormatUint(uint64(a), 10)), nil
}

// UnmarshalText parses a decimal string amount.
func (a *CCDAmount) UnmarshalText(text []byte) error {
	v, err := strconv.ParseUint(string(text), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid CCD amount %q: %w", string(text), err)
	}
	*a = CCDAmount(v)
	return nil
}

// ModuleReference is the hash of a deployed smart contract module.
type ModuleReference = common.Hash

// HexBytes is a byte string carried as lowercase hex without a 0x prefix,
// the way contract logs and parameters are delivered by the node.
type HexBytes []byte

// String returns the hex form.
func (h HexBytes) String() string {
	return hex.EncodeToString(h)
}

// MarshalText implements encoding.TextMarshaler.
func (h HexBytes) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. A 0x prefix is tolerated.
func (h *HexBytes) UnmarshalText(text []byte) error {
	s := strings.TrimPrefix(string(text), "0x")
	if s == "" {
		*h = nil
		return nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hex bytes: %w", err)
	}
	*h = b
	return nil
}
