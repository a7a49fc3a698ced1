package cis2

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/goran-ethernal/ContractIndexor/internal/types"
)

var errInvalidEvent = errors.New("invalid CIS-2 event")

// Encode returns the canonical byte encoding of an event.
func Encode(e Event) ([]byte, error) {
	enc := &encoder{}
	if err := e.Accept(enc); err != nil {
		return nil, err
	}
	return enc.buf, nil
}

type encoder struct {
	buf []byte
}

func (w *encoder) VisitTransfer(e *TransferEvent) error {
	w.buf = append(w.buf, byte(TagTransfer))
	if err := w.tokenAmount(e.TokenID, e.Amount); err != nil {
		return err
	}
	if err := w.address(e.From); err != nil {
		return err
	}
	return w.address(e.To)
}

func (w *encoder) VisitMint(e *MintEvent) error {
	w.buf = append(w.buf, byte(TagMint))
	if err := w.tokenAmount(e.TokenID, e.Amount); err != nil {
		return err
	}
	return w.address(e.Owner)
}

func (w *encoder) VisitBurn(e *BurnEvent) error {
	w.buf = append(w.buf, byte(TagBurn))
	if err := w.tokenAmount(e.TokenID, e.Amount); err != nil {
		return err
	}
	return w.address(e.Owner)
}

func (w *encoder) VisitUpdateOperator(e *UpdateOperatorEvent) error {
	w.buf = append(w.buf, byte(TagUpdateOperator), byte(e.Update))
	if err := w.address(e.Owner); err != nil {
		return err
	}
	return w.address(e.Operator)
}

func (w *encoder) VisitTokenMetadata(e *TokenMetadataEvent) error {
	w.buf = append(w.buf, byte(TagTokenMetadata))
	if err := w.tokenID(e.TokenID); err != nil {
		return err
	}
	if len(e.URL) > math.MaxUint16 {
		return fmt.Errorf("%w: metadata url too long", errInvalidEvent)
	}
	w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(len(e.URL)))
	w.buf = append(w.buf, e.URL...)
	if e.Checksum == nil {
		w.buf = append(w.buf, 0)
		return nil
	}
	w.buf = append(w.buf, 1)
	w.buf = append(w.buf, e.Checksum.Bytes()...)
	return nil
}

func (w *encoder) tokenID(id string) error {
	b, err := hex.DecodeString(id)
	if err != nil {
		return fmt.Errorf("%w: token id: %w", errInvalidEvent, err)
	}
	if len(b) > math.MaxUint8 {
		return fmt.Errorf("%w: token id longer than 255 bytes", errInvalidEvent)
	}
	w.buf = append(w.buf, byte(len(b)))
	w.buf = append(w.buf, b...)
	return nil
}

func (w *encoder) tokenAmount(id string, amount *big.Int) error {
	if err := w.tokenID(id); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: token amount must be non-negative", errInvalidEvent)
	}
	w.buf = appendULEB128(w.buf, amount)
	return nil
}

func (w *encoder) address(a types.Address) error {
	switch v := a.(type) {
	case types.AccountAddress:
		w.buf = append(w.buf, addressTagAccount)
		w.buf = append(w.buf, v[:]...)
	case types.ContractAddress:
		w.buf = append(w.buf, addressTagContract)
		w.buf = binary.LittleEndian.AppendUint64(w.buf, v.Index)
		w.buf = binary.LittleEndian.AppendUint64(w.buf, v.SubIndex)
	default:
		return fmt.Errorf("%w: unsupported address %T", errInvalidEvent, a)
	}
	return nil
}
