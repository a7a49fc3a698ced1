package node

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	internalcommon "github.com/goran-ethernal/ContractIndexor/internal/common"
	"github.com/goran-ethernal/ContractIndexor/internal/logger"
	"github.com/goran-ethernal/ContractIndexor/internal/types"
	"github.com/goran-ethernal/ContractIndexor/pkg/config"
	pkgnode "github.com/goran-ethernal/ContractIndexor/pkg/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gateway is an in-process node gateway served over JSON-RPC.
type gateway struct {
	finalized uint64
	blocks    map[uint64]*types.BlockTransactionEvents
	infos     map[common.Hash]*types.BlockInfo
}

func (g *gateway) GetLatestFinalizedHeight() hexutil.Uint64 {
	return hexutil.Uint64(g.finalized)
}

func (g *gateway) GetBlockTransactionEvents(height hexutil.Uint64) (*types.BlockTransactionEvents, error) {
	block, ok := g.blocks[uint64(height)]
	if !ok {
		return nil, errors.New("block not found")
	}
	return block, nil
}

func (g *gateway) GetBlockInfo(hash common.Hash) (*types.BlockInfo, error) {
	info, ok := g.infos[hash]
	if !ok {
		return nil, errors.New("block not found")
	}
	return info, nil
}

func setupClient(t *testing.T, g *gateway) *Client {
	t.Helper()

	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("ccd", g))
	t.Cleanup(server.Stop)

	cfg := config.NodeConfig{
		Retry: &config.RetryConfig{
			MaxAttempts:       2,
			InitialBackoff:    internalcommon.NewDuration(time.Millisecond),
			MaxBackoff:        internalcommon.NewDuration(time.Millisecond),
			BackoffMultiplier: 1,
		},
	}
	cfg.ApplyDefaults()

	c := NewClientFromRPC(rpc.DialInProc(server), cfg, logger.NewNopLogger())
	t.Cleanup(c.Close)
	return c
}

func TestClientImplementsInterface(t *testing.T) {
	var _ pkgnode.Client = (*Client)(nil)
}

func TestClient_Calls(t *testing.T) {
	ctx := context.Background()
	blockHash := common.HexToHash("0xb10c")
	sender := types.AccountAddress{9}
	slot := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	g := &gateway{
		finalized: 42,
		blocks: map[uint64]*types.BlockTransactionEvents{
			7: {
				Height:    7,
				BlockHash: blockHash,
				Items: []types.BlockItem{
					{
						TransactionIndex: 0,
						TransactionHash:  common.HexToHash("0x01"),
						Sender:           &sender,
						Effect: &types.ContractUpdated{
							Address:     types.ContractAddress{Index: 3},
							Instigator:  sender,
							Amount:      12,
							ReceiveName: "nft.transfer",
							Events:      []types.HexBytes{{0xff, 0x00}},
						},
					},
					{
						TransactionIndex: 1,
						Effect:           &types.OtherEffect{Type: "bakerAdded"},
					},
				},
			},
			8: {Height: 9},
		},
		infos: map[common.Hash]*types.BlockInfo{
			blockHash: {Height: 7, Hash: blockHash, SlotTime: slot},
		},
	}
	c := setupClient(t, g)

	height, err := c.GetLatestFinalizedHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), height)

	block, err := c.GetBlockTransactionEvents(ctx, 7)
	require.NoError(t, err)
	require.Len(t, block.Items, 2)
	assert.Equal(t, blockHash, block.BlockHash)
	assert.Equal(t, g.blocks[7].Items[0].Effect, block.Items[0].Effect)
	assert.Equal(t, &types.OtherEffect{Type: "bakerAdded"}, block.Items[1].Effect)

	info, err := c.GetBlockInfo(ctx, blockHash)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), info.Height)
	assert.True(t, slot.Equal(info.SlotTime))

	t.Run("mismatched height", func(t *testing.T) {
		_, err := c.GetBlockTransactionEvents(ctx, 8)
		require.Error(t, err)
	})

	t.Run("server error is not retried", func(t *testing.T) {
		_, err := c.GetBlockTransactionEvents(ctx, 100)
		require.ErrorContains(t, err, "non-retryable")
	})
}
