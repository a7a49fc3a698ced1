package cis2

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ContractIndexor/internal/types"
)

const (
	// maxAmountBytes bounds the LEB128 encoding of a token amount (2^256 - 1).
	maxAmountBytes = 37

	addressTagAccount  = 0
	addressTagContract = 1
)

// ErrMalformed is returned for truncated or structurally invalid event bytes.
var ErrMalformed = errors.New("malformed CIS-2 event")

// Decode parses a logged event. ok is false, with a nil error, when the first
// byte is not a CIS-2 tag. A CIS-2 tag followed by invalid bytes yields ErrMalformed.
func Decode(raw []byte, origin Origin) (ev Event, ok bool, err error) {
	if len(raw) == 0 || !IsTag(raw[0]) {
		return nil, false, nil
	}

	r := &reader{buf: raw, off: 1}
	tag := Tag(raw[0])

	switch tag {
	case TagTransfer:
		e := &TransferEvent{Origin: origin}
		if e.TokenID, err = r.tokenID(); err != nil {
			break
		}
		if e.Amount, err = r.amount(); err != nil {
			break
		}
		if e.From, err = r.address(); err != nil {
			break
		}
		e.To, err = r.address()
		ev = e
	case TagMint, TagBurn:
		var (
			tokenID string
			amount  *big.Int
			owner   types.Address
		)
		if tokenID, err = r.tokenID(); err != nil {
			break
		}
		if amount, err = r.amount(); err != nil {
			break
		}
		owner, err = r.address()
		if tag == TagMint {
			ev = &MintEvent{Origin: origin, TokenID: tokenID, Amount: amount, Owner: owner}
		} else {
			ev = &BurnEvent{Origin: origin, TokenID: tokenID, Amount: amount, Owner: owner}
		}
	case TagUpdateOperator:
		e := &UpdateOperatorEvent{Origin: origin}
		var update byte
		if update, err = r.u8(); err != nil {
			break
		}
		if update > byte(OperatorAdd) {
			err = fmt.Errorf("%w: invalid operator update %d", ErrMalformed, update)
			break
		}
		e.Update = OperatorUpdate(update)
		if e.Owner, err = r.address(); err != nil {
			break
		}
		e.Operator, err = r.address()
		ev = e
	case TagTokenMetadata:
		e := &TokenMetadataEvent{Origin: origin}
		if e.TokenID, err = r.tokenID(); err != nil {
			break
		}
		if e.URL, err = r.url(); err != nil {
			break
		}
		e.Checksum, err = r.checksum()
		ev = e
	}

	if err != nil {
		return nil, true, fmt.Errorf("decode %s event: %w", tag, err)
	}
	if r.remaining() > 0 {
		return nil, true, fmt.Errorf("decode %s event: %w: %d trailing bytes", tag, ErrMalformed, r.remaining())
	}

	return ev, true, nil
}

// DecodeHex decodes an event delivered as a hex string.
func DecodeHex(s string, origin Origin) (Event, bool, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return Decode(raw, origin)
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrMalformed, n, r.off, r.remaining())
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) u8() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) tokenID() (string, error) {
	n, err := r.u8()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (r *reader) amount() (*big.Int, error) {
	amount, n, err := decodeULEB128(r.buf[r.off:], maxAmountBytes)
	if err != nil {
		return nil, err
	}
	r.off += n
	return amount, nil
}

func (r *reader) address() (types.Address, error) {
	tag, err := r.u8()
	if err != nil {
		return nil, err
	}

	switch tag {
	case addressTagAccount:
		b, err := r.take(types.AccountAddressLength)
		if err != nil {
			return nil, err
		}
		var a types.AccountAddress
		copy(a[:], b)
		return a, nil
	case addressTagContract:
		b, err := r.take(16) //nolint:mnd
		if err != nil {
			return nil, err
		}
		return types.ContractAddress{
			Index:    binary.LittleEndian.Uint64(b[:8]),
			SubIndex: binary.LittleEndian.Uint64(b[8:]),
		}, nil
	default:
		return nil, fmt.Errorf("%w: invalid address tag %d", ErrMalformed, tag)
	}
}

func (r *reader) url() (string, error) {
	b, err := r.take(2) //nolint:mnd
	if err != nil {
		return "", err
	}
	s, err := r.take(int(binary.LittleEndian.Uint16(b)))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(s) {
		return "", fmt.Errorf("%w: metadata url is not valid UTF-8", ErrMalformed)
	}
	return string(s), nil
}

func (r *reader) checksum() (*common.Hash, error) {
	present, err := r.u8()
	if err != nil {
		return nil, err
	}

	switch present {
	case 0:
		return nil, nil
	case 1:
		b, err := r.take(common.HashLength)
		if err != nil {
			return nil, err
		}
		h := common.BytesToHash(b)
		return &h, nil
	default:
		return nil, fmt.Errorf("%w: invalid checksum presence byte %d", ErrMalformed, present)
	}
}
