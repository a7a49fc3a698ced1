package store

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/goran-ethernal/ContractIndexor/internal/types"
)

// upsertBatchSize bounds the rows of one multi-row statement, keeping the number
// of bound variables well below SQLite's limit.
const upsertBatchSize = 400

// TokenSupplyDelta is a signed change of a token's total supply.
type TokenSupplyDelta struct {
	Contract     types.ContractAddress
	TokenID      string
	TokenAddress string
	Delta        *big.Int
}

// TokenMetadataUpdate sets the metadata URL of a token.
type TokenMetadataUpdate struct {
	Contract     types.ContractAddress
	TokenID      string
	TokenAddress string
	URL          string
}

// AccountBalanceDelta is a signed change of an account's token balance.
type AccountBalanceDelta struct {
	Contract  types.ContractAddress
	TokenID   string
	AccountID int64
	Delta     *big.Int
}

type tokenKey struct {
	contract types.ContractAddress
	tokenID  string
}

type accountTokenKey struct {
	tokenKey
	accountID int64
}

// NetTokenSupplyDeltas sums deltas per token, keeping first-seen order.
func NetTokenSupplyDeltas(deltas []TokenSupplyDelta) []TokenSupplyDelta {
	index := make(map[tokenKey]int, len(deltas))
	out := make([]TokenSupplyDelta, 0, len(deltas))

	for _, d := range deltas {
		k := tokenKey{contract: d.Contract, tokenID: d.TokenID}
		if i, ok := index[k]; ok {
			out[i].Delta.Add(out[i].Delta, d.Delta)
			continue
		}
		index[k] = len(out)
		d.Delta = new(big.Int).Set(d.Delta)
		out = append(out, d)
	}

	return out
}

// NetAccountBalanceDeltas sums deltas per (token, account), keeping first-seen order.
func NetAccountBalanceDeltas(deltas []AccountBalanceDelta) []AccountBalanceDelta {
	index := make(map[accountTokenKey]int, len(deltas))
	out := make([]AccountBalanceDelta, 0, len(deltas))

	for _, d := range deltas {
		k := accountTokenKey{tokenKey: tokenKey{contract: d.Contract, tokenID: d.TokenID}, accountID: d.AccountID}
		if i, ok := index[k]; ok {
			out[i].Delta.Add(out[i].Delta, d.Delta)
			continue
		}
		index[k] = len(out)
		d.Delta = new(big.Int).Set(d.Delta)
		out = append(out, d)
	}

	return out
}

// UpsertTokenSupplies adds the netted deltas to the tokens' total supply, creating
// missing tokens. One statement is issued per batch of rows.
func (u *UnitOfWork) UpsertTokenSupplies(ctx context.Context, deltas []TokenSupplyDelta) error {
	netted := NetTokenSupplyDeltas(deltas)

	const (
		prefix = `INSERT INTO tokens (contract_index, contract_subindex, token_id, token_address, total_supply) VALUES `
		suffix = ` ON CONFLICT (contract_index, contract_subindex, token_id)
			DO UPDATE SET total_supply = ccd_bigint_add(tokens.total_supply, excluded.total_supply)`
	)

	return u.execBatches(ctx, len(netted), prefix, "(?, ?, ?, ?, ?)", suffix, func(i int) []interface{} {
		d := netted[i]
		return []interface{}{d.Contract.Index, d.Contract.SubIndex, d.TokenID, d.TokenAddress, d.Delta.String()}
	})
}

// UpsertTokenMetadata sets metadata URLs, creating missing tokens with zero supply.
// The last update of a token wins.
func (u *UnitOfWork) UpsertTokenMetadata(ctx context.Context, updates []TokenMetadataUpdate) error {
	index := make(map[tokenKey]int, len(updates))
	latest := make([]TokenMetadataUpdate, 0, len(updates))
	for _, m := range updates {
		k := tokenKey{contract: m.Contract, tokenID: m.TokenID}
		if i, ok := index[k]; ok {
			latest[i] = m
			continue
		}
		index[k] = len(latest)
		latest = append(latest, m)
	}

	const (
		prefix = `INSERT INTO tokens (contract_index, contract_subindex, token_id, token_address, metadata_url) VALUES `
		suffix = ` ON CONFLICT (contract_index, contract_subindex, token_id)
			DO UPDATE SET metadata_url = excluded.metadata_url`
	)

	return u.execBatches(ctx, len(latest), prefix, "(?, ?, ?, ?, ?)", suffix, func(i int) []interface{} {
		m := latest[i]
		return []interface{}{m.Contract.Index, m.Contract.SubIndex, m.TokenID, m.TokenAddress, m.URL}
	})
}

// UpsertAccountBalances adds the netted deltas to account token balances.
func (u *UnitOfWork) UpsertAccountBalances(ctx context.Context, deltas []AccountBalanceDelta) error {
	netted := NetAccountBalanceDeltas(deltas)

	const (
		prefix = `INSERT INTO account_tokens (contract_index, contract_subindex, token_id, account_id, balance) VALUES `
		suffix = ` ON CONFLICT (contract_index, contract_subindex, token_id, account_id)
			DO UPDATE SET balance = ccd_bigint_add(account_tokens.balance, excluded.balance)`
	)

	return u.execBatches(ctx, len(netted), prefix, "(?, ?, ?, ?, ?)", suffix, func(i int) []interface{} {
		d := netted[i]
		return []interface{}{d.Contract.Index, d.Contract.SubIndex, d.TokenID, d.AccountID, d.Delta.String()}
	})
}

// execBatches issues prefix + n row placeholders + suffix in batches of upsertBatchSize.
func (u *UnitOfWork) execBatches(
	ctx context.Context,
	n int,
	prefix, row, suffix string,
	args func(i int) []interface{},
) error {
	if u.closed {
		return ErrUnitOfWorkClosed
	}

	for start := 0; start < n; start += upsertBatchSize {
		end := min(start+upsertBatchSize, n)

		var (
			sb     strings.Builder
			values []interface{}
		)
		sb.WriteString(prefix)
		for i := start; i < end; i++ {
			if i > start {
				sb.WriteString(", ")
			}
			sb.WriteString(row)
			values = append(values, args(i)...)
		}
		sb.WriteString(suffix)

		if _, err := u.tx.ExecContext(ctx, sb.String(), values...); err != nil {
			return fmt.Errorf("failed to execute batch upsert (%d rows): %w", end-start, err)
		}
	}

	if n > 0 {
		u.log.Debugf("upserted %d rows in %d statements", n, (n+upsertBatchSize-1)/upsertBatchSize)
	}

	return nil
}
