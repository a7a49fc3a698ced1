package node

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ContractIndexor/internal/types"
)

// Client defines the node gateway operations the contract importer consumes.
// This abstraction allows for easier testing and alternative implementations.
type Client interface {
	// Close closes the node connection.
	Close()

	// GetLatestFinalizedHeight returns the highest block height the node will not revert.
	GetLatestFinalizedHeight(ctx context.Context) (uint64, error)

	// GetBlockTransactionEvents returns the effects of every transaction in the block
	// at height, in block order.
	GetBlockTransactionEvents(ctx context.Context, height uint64) (*types.BlockTransactionEvents, error)

	// GetBlockInfo returns metadata of the block with the given hash.
	GetBlockInfo(ctx context.Context, blockHash common.Hash) (*types.BlockInfo, error)
}
