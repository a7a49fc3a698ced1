package cis2

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// tokenAddressVersion is the base58check version byte of token addresses.
const tokenAddressVersion = 2

// EncodeTokenAddress returns the base58check token address of tokenIDHex in the
// contract <index,subindex>. The encoding is persisted and must never change.
func EncodeTokenAddress(index, subindex uint64, tokenIDHex string) (string, error) {
	tokenID, err := hex.DecodeString(tokenIDHex)
	if err != nil {
		return "", fmt.Errorf("invalid token id %q: %w", tokenIDHex, err)
	}

	payload := appendULEB128Uint64(nil, index)
	payload = appendULEB128Uint64(payload, subindex)
	payload = append(payload, tokenID...)

	return base58.CheckEncode(payload, tokenAddressVersion), nil
}
