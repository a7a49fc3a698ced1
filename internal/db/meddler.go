package db

import (
	"database/sql"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ContractIndexor/internal/types"
	"github.com/russross/meddler"
)

func init() {
	meddler.Default = meddler.SQLite

	meddler.Register("hash", HashMeddler{})
	meddler.Register("account", AccountMeddler{})
	meddler.Register("bigint", BigIntMeddler{})
	meddler.Register("effect", EffectMeddler{})
	meddler.Register("reject", RejectReasonMeddler{})
}

// HashMeddler stores a common.Hash (or *common.Hash) as 0x-prefixed hex.
type HashMeddler struct{}

func (h HashMeddler) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	return new(sql.NullString), nil
}

func (h HashMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return fmt.Errorf("expected *sql.NullString, got %T", scanTarget)
	}

	switch ptr := fieldAddr.(type) {
	case **common.Hash:
		if !ns.Valid {
			*ptr = nil
			return nil
		}
		hash := common.HexToHash(ns.String)
		*ptr = &hash
	case *common.Hash:
		if !ns.Valid {
			*ptr = common.Hash{}
			return nil
		}
		*ptr = common.HexToHash(ns.String)
	default:
		return fmt.Errorf("expected *common.Hash or **common.Hash, got %T", fieldAddr)
	}

	return nil
}

func (h HashMeddler) PreWrite(field interface{}) (saveValue interface{}, err error) {
	switch v := field.(type) {
	case *common.Hash:
		if v == nil {
			return nil, nil
		}
		return v.Hex(), nil
	case common.Hash:
		return v.Hex(), nil
	default:
		return nil, fmt.Errorf("expected common.Hash or *common.Hash, got %T", field)
	}
}

// AccountMeddler stores a types.AccountAddress (or pointer) in base58check form.
type AccountMeddler struct{}

func (a AccountMeddler) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	return new(sql.NullString), nil
}

func (a AccountMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return fmt.Errorf("expected *sql.NullString, got %T", scanTarget)
	}

	switch ptr := fieldAddr.(type) {
	case **types.AccountAddress:
		if !ns.Valid {
			*ptr = nil
			return nil
		}
		addr, err := types.AccountAddressFromBase58(ns.String)
		if err != nil {
			return err
		}
		*ptr = &addr
	case *types.AccountAddress:
		if !ns.Valid {
			*ptr = types.AccountAddress{}
			return nil
		}
		addr, err := types.AccountAddressFromBase58(ns.String)
		if err != nil {
			return err
		}
		*ptr = addr
	default:
		return fmt.Errorf("expected *types.AccountAddress or **types.AccountAddress, got %T", fieldAddr)
	}

	return nil
}

func (a AccountMeddler) PreWrite(field interface{}) (saveValue interface{}, err error) {
	switch v := field.(type) {
	case *types.AccountAddress:
		if v == nil {
			return nil, nil
		}
		return v.String(), nil
	case types.AccountAddress:
		return v.String(), nil
	default:
		return nil, fmt.Errorf("expected types.AccountAddress or *types.AccountAddress, got %T", field)
	}
}

// BigIntMeddler stores a *big.Int as decimal TEXT. nil and NULL map to each other.
type BigIntMeddler struct{}

func (b BigIntMeddler) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	return new(sql.NullString), nil
}

func (b BigIntMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return fmt.Errorf("expected *sql.NullString, got %T", scanTarget)
	}
	ptr, ok := fieldAddr.(**big.Int)
	if !ok {
		return fmt.Errorf("expected **big.Int, got %T", fieldAddr)
	}

	if !ns.Valid {
		*ptr = nil
		return nil
	}
	v, err := ParseBigInt(ns.String)
	if err != nil {
		return err
	}
	*ptr = v
	return nil
}

func (b BigIntMeddler) PreWrite(field interface{}) (saveValue interface{}, err error) {
	v, ok := field.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("expected *big.Int, got %T", field)
	}
	if v == nil {
		return nil, nil
	}
	return v.String(), nil
}

// EffectMeddler stores a types.Effect as its discriminated JSON form.
type EffectMeddler struct{}

func (e EffectMeddler) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	return new([]byte), nil
}

func (e EffectMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	raw, ok := scanTarget.(*[]byte)
	if !ok {
		return fmt.Errorf("expected *[]byte, got %T", scanTarget)
	}
	ptr, ok := fieldAddr.(*types.Effect)
	if !ok {
		return fmt.Errorf("expected *types.Effect, got %T", fieldAddr)
	}

	effect, err := types.UnmarshalEffect(*raw)
	if err != nil {
		return err
	}
	*ptr = effect
	return nil
}

func (e EffectMeddler) PreWrite(field interface{}) (saveValue interface{}, err error) {
	effect, ok := field.(types.Effect)
	if !ok {
		return nil, fmt.Errorf("expected types.Effect, got %T", field)
	}
	data, err := types.MarshalEffect(effect)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// RejectReasonMeddler stores a types.RejectReason as its tagged JSON form.
type RejectReasonMeddler struct{}

func (r RejectReasonMeddler) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	return new([]byte), nil
}

func (r RejectReasonMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	raw, ok := scanTarget.(*[]byte)
	if !ok {
		return fmt.Errorf("expected *[]byte, got %T", scanTarget)
	}
	ptr, ok := fieldAddr.(*types.RejectReason)
	if !ok {
		return fmt.Errorf("expected *types.RejectReason, got %T", fieldAddr)
	}

	reason, err := types.UnmarshalRejectReason(*raw)
	if err != nil {
		return err
	}
	*ptr = reason
	return nil
}

func (r RejectReasonMeddler) PreWrite(field interface{}) (saveValue interface{}, err error) {
	reason, ok := field.(types.RejectReason)
	if !ok {
		return nil, fmt.Errorf("expected types.RejectReason, got %T", field)
	}
	data, err := types.MarshalRejectReason(reason)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
