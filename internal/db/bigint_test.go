package db

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ContractIndexor/internal/types"
	"github.com/russross/meddler"
	"github.com/stretchr/testify/require"
)

func TestBigIntAdd(t *testing.T) {
	tests := []struct {
		name    string
		a, b    string
		want    string
		wantErr bool
	}{
		{name: "small", a: "1", b: "2", want: "3"},
		{name: "negative delta", a: "10", b: "-12", want: "-2"},
		{name: "empty is zero", a: "", b: "7", want: "7"},
		{
			name: "beyond int64",
			a:    "115792089237316195423570985008687907853269984665640564039457584007913129639935",
			b:    "1",
			want: "115792089237316195423570985008687907853269984665640564039457584007913129639936",
		},
		{name: "invalid", a: "1x", b: "1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BigIntAdd(tt.a, tt.b)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestBigIntAddSQLFunction(t *testing.T) {
	sqlDB, err := NewSQLiteDB(filepath.Join(t.TempDir(), "bigint.db"))
	require.NoError(t, err)
	defer sqlDB.Close()

	_, err = sqlDB.Exec(`CREATE TABLE supply (id INTEGER PRIMARY KEY, total TEXT NOT NULL)`)
	require.NoError(t, err)

	upsert := `INSERT INTO supply (id, total) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET total = ccd_bigint_add(supply.total, excluded.total)`

	for _, delta := range []string{"18446744073709551615", "18446744073709551615", "-5"} {
		_, err = sqlDB.Exec(upsert, 1, delta)
		require.NoError(t, err)
	}

	var total string
	require.NoError(t, sqlDB.QueryRow(`SELECT total FROM supply WHERE id = 1`).Scan(&total))
	require.Equal(t, "36893488147419103225", total)
}

type meddlerRow struct {
	ID      int64                 `meddler:"id,pk"`
	Hash    common.Hash           `meddler:"hash,hash"`
	MaybeTx *common.Hash          `meddler:"maybe_tx,hash"`
	Account types.AccountAddress  `meddler:"account,account"`
	Sender  *types.AccountAddress `meddler:"sender,account"`
	Amount  *big.Int              `meddler:"amount,bigint"`
	Effect  types.Effect          `meddler:"effect,effect"`
	Reason  types.RejectReason    `meddler:"reason,reject"`
}

func TestMeddlerConverters(t *testing.T) {
	sqlDB, err := NewSQLiteDB(filepath.Join(t.TempDir(), "meddler.db"))
	require.NoError(t, err)
	defer sqlDB.Close()

	_, err = sqlDB.Exec(`CREATE TABLE rows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		hash TEXT NOT NULL,
		maybe_tx TEXT,
		account TEXT NOT NULL,
		sender TEXT,
		amount TEXT NOT NULL,
		effect TEXT NOT NULL,
		reason TEXT NOT NULL
	)`)
	require.NoError(t, err)

	var account types.AccountAddress
	account[0] = 7

	amount, ok := new(big.Int).SetString("340282366920938463463374607431768211456", 10)
	require.True(t, ok)

	row := &meddlerRow{
		Hash:    common.HexToHash("0x01"),
		Account: account,
		Amount:  amount,
		Effect:  &types.ContractResumed{Address: types.ContractAddress{Index: 3}, Success: true},
		Reason:  &types.InvalidContractAddress{ContractAddress: types.ContractAddress{Index: 9}},
	}
	require.NoError(t, meddler.Insert(sqlDB, "rows", row))
	require.NotZero(t, row.ID)

	var got meddlerRow
	require.NoError(t, meddler.Load(sqlDB, "rows", &got, row.ID))
	require.Equal(t, row.Hash, got.Hash)
	require.Nil(t, got.MaybeTx)
	require.Equal(t, account, got.Account)
	require.Nil(t, got.Sender)
	require.Equal(t, 0, amount.Cmp(got.Amount))
	require.Equal(t, row.Effect, got.Effect)
	require.Equal(t, row.Reason, got.Reason)
}
