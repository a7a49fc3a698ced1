package contract

import (
	"context"
	"testing"
	"time"

	"github.com/goran-ethernal/ContractIndexor/internal/logger"
	"github.com/goran-ethernal/ContractIndexor/internal/store"
	"github.com/goran-ethernal/ContractIndexor/internal/types"
	"github.com/goran-ethernal/ContractIndexor/tests/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(addr types.ContractAddress, height, tx uint64, effect types.Effect) *store.ContractEvent {
	return &store.ContractEvent{
		BlockHeight:      height,
		TransactionIndex: tx,
		ContractIndex:    addr.Index,
		ContractSubIndex: addr.SubIndex,
		Effect:           effect,
	}
}

func TestFoldAmount(t *testing.T) {
	events := []*store.ContractEvent{
		event(cis2, 1, 0, &types.ContractInitialized{Address: cis2, ModuleRef: moduleV1, Amount: 10, InitName: "init_cis2"}),
		event(cis2, 1, 1, &types.Transferred{Amount: 2, From: cis2, To: alice}),
		event(cis2, 1, 2, &types.ContractUpdated{Address: cis2, Instigator: alice, Amount: 42}),
		event(market, 1, 3, &types.ContractUpdated{Address: market, Instigator: cis2, Amount: 8}),
	}

	got, err := FoldAmount(cis2, 0, events)
	require.NoError(t, err)
	assert.Equal(t, types.CCDAmount(42), got)

	again, err := FoldAmount(cis2, 0, events)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	// the callee sees the call as incoming
	got, err = FoldAmount(market, 100, events)
	require.NoError(t, err)
	assert.Equal(t, types.CCDAmount(108), got)
}

func TestFoldAmount_EdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		baseline types.CCDAmount
		events   []*store.ContractEvent
		want     types.CCDAmount
		wantErr  bool
	}{
		{
			name:     "underflow",
			baseline: 5,
			events:   []*store.ContractEvent{event(cis2, 1, 0, &types.Transferred{Amount: 6, From: cis2, To: alice})},
			wantErr:  true,
		},
		{
			name:     "order matters",
			baseline: 0,
			events: []*store.ContractEvent{
				event(cis2, 1, 0, &types.Transferred{Amount: 6, From: cis2, To: alice}),
				event(cis2, 1, 1, &types.ContractUpdated{Address: cis2, Instigator: alice, Amount: 6}),
			},
			wantErr: true,
		},
		{
			name:     "self call is neutral",
			baseline: 7,
			events:   []*store.ContractEvent{event(cis2, 1, 0, &types.ContractUpdated{Address: cis2, Instigator: cis2, Amount: 3})},
			want:     7,
		},
		{
			name:     "incoming transfer",
			baseline: 1,
			events:   []*store.ContractEvent{event(cis2, 1, 0, &types.Transferred{Amount: 4, From: alice, To: cis2})},
			want:     5,
		},
		{
			name:     "effects without amounts",
			baseline: 9,
			events: []*store.ContractEvent{
				event(cis2, 1, 0, &types.ContractInterrupted{Address: cis2}),
				event(cis2, 1, 1, &types.ContractResumed{Address: cis2, Success: true}),
				event(cis2, 1, 2, &types.ContractUpgraded{Address: cis2, From: moduleV1, To: moduleV2}),
			},
			want: 9,
		},
		{
			name:     "overflow",
			baseline: ^types.CCDAmount(0),
			events:   []*store.ContractEvent{event(cis2, 1, 0, &types.Transferred{Amount: 1, From: alice, To: cis2})},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FoldAmount(cis2, tt.baseline, tt.events)
			if tt.wantErr {
				require.ErrorIs(t, err, store.ErrInvariant)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGroupByContract(t *testing.T) {
	events := []*store.ContractEvent{
		event(market, 1, 0, &types.ContractUpdated{Address: market, Instigator: alice, Amount: 1}),
		event(cis2, 1, 1, &types.ContractUpdated{Address: cis2, Instigator: market, Amount: 1}),
		event(cis2, 1, 2, &types.ContractResumed{Address: cis2}),
	}

	order, groups := GroupByContract(events)
	require.Equal(t, []types.ContractAddress{market, cis2}, order)
	assert.Equal(t, []*store.ContractEvent{events[0], events[1]}, groups[market])
	assert.Equal(t, []*store.ContractEvent{events[1], events[2]}, groups[cis2])
}

// stageBlock classifies and folds one block in its own unit of work.
func stageBlock(t *testing.T, s *store.Store, block *types.BlockTransactionEvents) error {
	t.Helper()

	ctx := context.Background()
	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback() //nolint:errcheck

	info := func(context.Context) (*types.BlockInfo, error) {
		return &types.BlockInfo{Height: block.Height, SlotTime: time.Unix(int64(block.Height), 0)}, nil //nolint:gosec
	}

	if _, err := NewClassifier(logger.NewNopLogger()).Stage(ctx, uow, block, info); err != nil {
		return err
	}
	if err := NewFolder(logger.NewNopLogger()).Fold(ctx, uow, block.Height); err != nil {
		return err
	}
	return uow.Commit()
}

func TestFolder_Fold(t *testing.T) {
	ctx := context.Background()
	s := store.New(helpers.NewTestDB(t, "folder.db"), logger.NewNopLogger())

	require.NoError(t, stageBlock(t, s, &types.BlockTransactionEvents{
		Height: 1,
		Items: []types.BlockItem{
			item(0, 0, &types.ContractInitialized{Address: cis2, ModuleRef: moduleV1, Amount: 10, InitName: "init_cis2_nft"}),
			item(1, 0, &types.ContractInitialized{Address: market, ModuleRef: moduleV1, Amount: 0, InitName: "init_market"}),
			item(2, 0, &types.Transferred{Amount: 2, From: cis2, To: alice}),
		},
	}))

	snap, err := s.Reader().LatestSnapshot(ctx, cis2)
	require.NoError(t, err)
	assert.Equal(t, "cis2_nft", snap.ContractName)
	assert.Equal(t, moduleV1, snap.ModuleRef)
	assert.Equal(t, types.CCDAmount(8), snap.Amount)
	assert.Equal(t, uint64(1), snap.BlockHeight)

	require.NoError(t, stageBlock(t, s, &types.BlockTransactionEvents{
		Height: 2,
		Items: []types.BlockItem{
			item(0, 0, &types.ContractUpdated{Address: cis2, Instigator: alice, Amount: 42}),
			item(0, 1, &types.ContractUpdated{Address: market, Instigator: cis2, Amount: 8}),
			item(1, 0, &types.ContractUpgraded{Address: cis2, From: moduleV1, To: moduleV2}),
		},
	}))

	snap, err = s.Reader().LatestSnapshot(ctx, cis2)
	require.NoError(t, err)
	assert.Equal(t, types.CCDAmount(42), snap.Amount)
	assert.Equal(t, moduleV2, snap.ModuleRef)
	assert.Equal(t, "cis2_nft", snap.ContractName)

	snap, err = s.Reader().LatestSnapshot(ctx, market)
	require.NoError(t, err)
	assert.Equal(t, types.CCDAmount(8), snap.Amount)
	assert.Equal(t, moduleV1, snap.ModuleRef)
	assert.Equal(t, "market", snap.ContractName)

	// earlier snapshots are kept
	old, err := s.Reader().ContractSnapshotAt(ctx, cis2, 1)
	require.NoError(t, err)
	assert.Equal(t, types.CCDAmount(8), old.Amount)

	// untouched contracts get no new snapshot
	require.NoError(t, stageBlock(t, s, &types.BlockTransactionEvents{
		Height: 3,
		Items:  []types.BlockItem{item(0, 0, &types.ContractResumed{Address: cis2, Success: true})},
	}))
	snap, err = s.Reader().LatestSnapshot(ctx, market)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.BlockHeight)
}

func TestFolder_Invariants(t *testing.T) {
	s := store.New(helpers.NewTestDB(t, "folder_invariants.db"), logger.NewNopLogger())

	t.Run("unknown contract", func(t *testing.T) {
		err := stageBlock(t, s, &types.BlockTransactionEvents{
			Height: 1,
			Items:  []types.BlockItem{item(0, 0, &types.ContractResumed{Address: cis2})},
		})
		require.ErrorIs(t, err, store.ErrInvariant)
	})

	t.Run("balance underflow", func(t *testing.T) {
		err := stageBlock(t, s, &types.BlockTransactionEvents{
			Height: 1,
			Items: []types.BlockItem{
				item(0, 0, &types.ContractInitialized{Address: cis2, ModuleRef: moduleV1, Amount: 1, InitName: "init_cis2"}),
				item(1, 0, &types.Transferred{Amount: 2, From: cis2, To: alice}),
			},
		})
		require.ErrorIs(t, err, store.ErrInvariant)

		// nothing of the failed unit of work is visible
		_, err = s.Reader().Contract(context.Background(), cis2)
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}
