package types

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
)

const (
	// AccountAddressLength is the size of an account address in bytes.
	AccountAddressLength = 32

	// accountAddressVersion is the base58check version byte of account addresses.
	accountAddressVersion = 1

	// canonicalPrefixLength is the number of leading bytes shared by all aliases of an account.
	canonicalPrefixLength = 29
)

// ErrInvalidAddress is returned when an address can not be parsed.
var ErrInvalidAddress = errors.New("invalid address")

// Address is either an AccountAddress or a ContractAddress.
type Address interface {
	isAddress()
	String() string
}

// AccountAddress identifies an account on chain.
type AccountAddress [AccountAddressLength]byte

func (AccountAddress) isAddress() {}

// AccountAddressFromBase58 parses the base58check form of an account address.
func AccountAddressFromBase58(s string) (AccountAddress, error) {
	var a AccountAddress

	payload, version, err := base58.CheckDecode(s)
	if err != nil {
		return a, fmt.Errorf("%w: %q: %w", ErrInvalidAddress, s, err)
	}
	if version != accountAddressVersion {
		return a, fmt.Errorf("%w: %q: unexpected version byte %d", ErrInvalidAddress, s, version)
	}
	if len(payload) != AccountAddressLength {
		return a, fmt.Errorf("%w: %q: expected %d bytes, got %d", ErrInvalidAddress, s, AccountAddressLength, len(payload))
	}

	copy(a[:], payload)
	return a, nil
}

// String returns the base58check encoding of the address.
func (a AccountAddress) String() string {
	return base58.CheckEncode(a[:], accountAddressVersion)
}

// CanonicalKey identifies the account independently of the alias used.
func (a AccountAddress) CanonicalKey() string {
	return hex.EncodeToString(a[:canonicalPrefixLength])
}

// MarshalText implements encoding.TextMarshaler.
func (a AccountAddress) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *AccountAddress) UnmarshalText(text []byte) error {
	parsed, err := AccountAddressFromBase58(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ContractAddress identifies a smart contract instance.
type ContractAddress struct {
	Index    uint64 `json:"index"`
	SubIndex uint64 `json:"subindex"`
}

func (ContractAddress) isAddress() {}

// String renders the address as "<index,subindex>".
func (c ContractAddress) String() string {
	return fmt.Sprintf("<%d,%d>", c.Index, c.SubIndex)
}

// AsAccount returns the account address if a is one.
func AsAccount(a Address) (AccountAddress, bool) {
	acc, ok := a.(AccountAddress)
	return acc, ok
}

// AsContract returns the contract address if a is one.
func AsContract(a Address) (ContractAddress, bool) {
	c, ok := a.(ContractAddress)
	return c, ok
}

const (
	addressTypeAccount  = "account"
	addressTypeContract = "contract"
)

type addressJSON struct {
	Type    string          `json:"type"`
	Address json.RawMessage `json:"address"`
}

// MarshalAddress encodes an address as {"type": "account"|"contract", "address": ...}.
func MarshalAddress(a Address) ([]byte, error) {
	var (
		kind string
		raw  []byte
		err  error
	)

	switch v := a.(type) {
	case AccountAddress:
		kind = addressTypeAccount
		raw, err = json.Marshal(v)
	case ContractAddress:
		kind = addressTypeContract
		raw, err = json.Marshal(v)
	case nil:
		return []byte("null"), nil
	default:
		return nil, fmt.Errorf("%w: unsupported address type %T", ErrInvalidAddress, a)
	}
	if err != nil {
		return nil, err
	}

	return json.Marshal(addressJSON{Type: kind, Address: raw})
}

// UnmarshalAddress decodes the form produced by MarshalAddress.
func UnmarshalAddress(data []byte) (Address, error) {
	if string(data) == "null" {
		return nil, nil
	}

	var aux addressJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}

	switch aux.Type {
	case addressTypeAccount:
		var acc AccountAddress
		if err := json.Unmarshal(aux.Address, &acc); err != nil {
			return nil, err
		}
		return acc, nil
	case addressTypeContract:
		var c ContractAddress
		if err := json.Unmarshal(aux.Address, &c); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: unknown address type %q", ErrInvalidAddress, aux.Type)
	}
}
