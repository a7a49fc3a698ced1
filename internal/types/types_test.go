package types

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqAccount() AccountAddress {
	var a AccountAddress
	for i := range a {
		a[i] = byte(i)
	}
	return a
}

func TestAccountAddressBase58(t *testing.T) {
	var zero AccountAddress
	assert.Equal(t, "2wkBET2rRgE8pahuaczxKbmv7ciehqsne57F9gtzf1PVdr2VP3", zero.String())

	seq := seqAccount()
	assert.Equal(t, "2wkH4kHMn2WPndf8CxmsoFkX93ouZMJUwTBFSZpDCeNeGWa7dj", seq.String())

	parsed, err := AccountAddressFromBase58(seq.String())
	require.NoError(t, err)
	assert.Equal(t, seq, parsed)

	_, err = AccountAddressFromBase58("not-an-address")
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestAccountAddressCanonicalKey(t *testing.T) {
	a := seqAccount()
	alias := a
	alias[31] = 0xff

	assert.Equal(t, a.CanonicalKey(), alias.CanonicalKey())
	assert.Len(t, a.CanonicalKey(), 58)
}

func TestAddressJSON(t *testing.T) {
	tests := []struct {
		name string
		addr Address
	}{
		{name: "account", addr: seqAccount()},
		{name: "contract", addr: ContractAddress{Index: 4, SubIndex: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := MarshalAddress(tt.addr)
			require.NoError(t, err)

			got, err := UnmarshalAddress(data)
			require.NoError(t, err)
			assert.Equal(t, tt.addr, got)
		})
	}

	data, err := MarshalAddress(ContractAddress{Index: 7})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"contract","address":{"index":7,"subindex":0}}`, string(data))

	_, err = UnmarshalAddress([]byte(`{"type":"validator","address":1}`))
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestContractAddressString(t *testing.T) {
	assert.Equal(t, "<12,0>", ContractAddress{Index: 12}.String())
}

func TestHexBytes(t *testing.T) {
	var h HexBytes
	require.NoError(t, h.UnmarshalText([]byte("0xff00")))
	assert.Equal(t, HexBytes{0xff, 0x00}, h)
	assert.Equal(t, "ff00", h.String())

	require.Error(t, h.UnmarshalText([]byte("zz")))
}

func TestEffectJSON(t *testing.T) {
	moduleRef := common.HexToHash("0xabc")
	sender := seqAccount()

	tests := []struct {
		name   string
		effect Effect
	}{
		{
			name: "contract initialized",
			effect: &ContractInitialized{
				ContractVersion: 1,
				ModuleRef:       moduleRef,
				Address:         ContractAddress{Index: 1},
				Amount:          10,
				InitName:        "init_cis2",
				Events:          []HexBytes{{0xfe, 0x01}},
			},
		},
		{
			name: "contract updated by account",
			effect: &ContractUpdated{
				ContractVersion: 1,
				Address:         ContractAddress{Index: 1},
				Instigator:      sender,
				Amount:          5,
				Message:         HexBytes{0x01},
				ReceiveName:     "cis2.transfer",
				Events:          []HexBytes{},
			},
		},
		{
			name: "contract updated by contract",
			effect: &ContractUpdated{
				Address:     ContractAddress{Index: 2},
				Instigator:  ContractAddress{Index: 1},
				ReceiveName: "cis2.mint",
			},
		},
		{name: "interrupted", effect: &ContractInterrupted{Address: ContractAddress{Index: 3}, Events: []HexBytes{{0xff}}}},
		{name: "resumed", effect: &ContractResumed{Address: ContractAddress{Index: 3}, Success: true}},
		{name: "upgraded", effect: &ContractUpgraded{Address: ContractAddress{Index: 3}, From: moduleRef, To: common.HexToHash("0xdef")}},
		{name: "transferred", effect: &Transferred{Amount: 2, From: ContractAddress{Index: 3}, To: sender}},
		{name: "module deployed", effect: &ModuleDeployed{ModuleRef: moduleRef}},
		{name: "rejected", effect: &TransactionRejected{Reason: &InvalidContractAddress{ContractAddress: ContractAddress{Index: 9}}}},
		{name: "other", effect: &OtherEffect{Type: "bakerAdded"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := MarshalEffect(tt.effect)
			require.NoError(t, err)

			var head struct {
				Type EffectKind `json:"type"`
			}
			require.NoError(t, json.Unmarshal(data, &head))
			assert.Equal(t, tt.effect.Kind(), head.Type)

			got, err := UnmarshalEffect(data)
			require.NoError(t, err)
			assert.Equal(t, tt.effect, got)
		})
	}
}

func TestUnmarshalEffectErrors(t *testing.T) {
	_, err := UnmarshalEffect([]byte(`{}`))
	require.ErrorIs(t, err, ErrUnknownEffect)

	_, err = UnmarshalEffect([]byte(`not json`))
	require.ErrorIs(t, err, ErrUnknownEffect)

	_, err = UnmarshalEffect([]byte(`{"type":"transferred","amount":"1"}`))
	require.ErrorIs(t, err, ErrInvalidAddress)

	_, err = MarshalEffect(nil)
	require.ErrorIs(t, err, ErrUnknownEffect)
}

func TestRejectReasonReferences(t *testing.T) {
	moduleRef := common.HexToHash("0x01")
	contract := ContractAddress{Index: 5}

	tests := []struct {
		name         string
		reason       RejectReason
		wantContract *ContractAddress
		wantModule   *ModuleReference
	}{
		{name: "rejected receive", reason: &RejectedReceive{RejectReason: -1, ContractAddress: contract, ReceiveName: "c.f"}, wantContract: &contract},
		{name: "rejected init", reason: &RejectedInit{RejectReason: -2}},
		{name: "invalid contract", reason: &InvalidContractAddress{ContractAddress: contract}, wantContract: &contract},
		{name: "invalid receive method", reason: &InvalidReceiveMethod{ModuleRef: moduleRef, ReceiveName: "c.f"}, wantModule: &moduleRef},
		{name: "invalid init method", reason: &InvalidInitMethod{ModuleRef: moduleRef, InitName: "init_c"}, wantModule: &moduleRef},
		{name: "invalid module", reason: &InvalidModuleReference{ModuleRef: moduleRef}, wantModule: &moduleRef},
		{name: "module exists", reason: &ModuleHashAlreadyExists{ModuleRef: moduleRef}, wantModule: &moduleRef},
		{name: "other", reason: &OtherReject{Type: "outOfEnergy"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, m := tt.reason.References()
			assert.Equal(t, tt.wantContract, c)
			assert.Equal(t, tt.wantModule, m)

			data, err := MarshalRejectReason(tt.reason)
			require.NoError(t, err)
			got, err := UnmarshalRejectReason(data)
			require.NoError(t, err)
			assert.Equal(t, tt.reason, got)
		})
	}
}

func TestBlockItemJSON(t *testing.T) {
	sender := seqAccount()
	item := BlockItem{
		TransactionIndex: 3,
		EventIndex:       1,
		TransactionHash:  common.HexToHash("0x1234"),
		Sender:           &sender,
		Effect:           &ContractResumed{Address: ContractAddress{Index: 1}, Success: true},
	}

	data, err := json.Marshal(item)
	require.NoError(t, err)

	var got BlockItem
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, item, got)
}

func TestBlockItemPrecedes(t *testing.T) {
	a := BlockItem{TransactionIndex: 0, EventIndex: 5}
	b := BlockItem{TransactionIndex: 1, EventIndex: 0}
	c := BlockItem{TransactionIndex: 1, EventIndex: 1}

	assert.True(t, a.Precedes(b))
	assert.True(t, b.Precedes(c))
	assert.False(t, c.Precedes(b))
	assert.False(t, b.Precedes(b))
}
