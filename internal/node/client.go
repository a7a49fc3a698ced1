package node

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	internalcommon "github.com/goran-ethernal/ContractIndexor/internal/common"
	"github.com/goran-ethernal/ContractIndexor/internal/logger"
	"github.com/goran-ethernal/ContractIndexor/internal/types"
	"github.com/goran-ethernal/ContractIndexor/pkg/config"
	pkgnode "github.com/goran-ethernal/ContractIndexor/pkg/node"
)

// Compile-time check to ensure Client implements pkgnode.Client interface.
var _ pkgnode.Client = (*Client)(nil)

// JSON-RPC methods of the node gateway.
const (
	methodLatestFinalizedHeight  = "ccd_getLatestFinalizedHeight"
	methodBlockTransactionEvents = "ccd_getBlockTransactionEvents"
	methodBlockInfo              = "ccd_getBlockInfo"
)

// Client talks to the node gateway over JSON-RPC, retrying transient failures.
// It implements the pkgnode.Client interface.
type Client struct {
	rpc            *rpc.Client
	retry          *config.RetryConfig
	requestTimeout time.Duration
	log            *logger.Logger
}

// NewClient dials the node gateway configured in cfg.
func NewClient(ctx context.Context, cfg config.NodeConfig, log *logger.Logger) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial node %s: %w", cfg.RPCURL, err)
	}

	return NewClientFromRPC(rpcClient, cfg, log), nil
}

// NewClientFromRPC wraps an established RPC connection.
func NewClientFromRPC(rpcClient *rpc.Client, cfg config.NodeConfig, log *logger.Logger) *Client {
	return &Client{
		rpc:            rpcClient,
		retry:          cfg.Retry,
		requestTimeout: cfg.RequestTimeout.Duration,
		log:            log.WithComponent(internalcommon.ComponentNodeClient),
	}
}

// Close closes the RPC client connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// GetLatestFinalizedHeight returns the highest finalized block height.
func (c *Client) GetLatestFinalizedHeight(ctx context.Context) (uint64, error) {
	var height hexutil.Uint64
	if err := c.call(ctx, &height, methodLatestFinalizedHeight); err != nil {
		return 0, err
	}
	return uint64(height), nil
}

// GetBlockTransactionEvents returns the ordered effects of the block at height.
func (c *Client) GetBlockTransactionEvents(ctx context.Context, height uint64) (*types.BlockTransactionEvents, error) {
	var block types.BlockTransactionEvents
	if err := c.call(ctx, &block, methodBlockTransactionEvents, hexutil.Uint64(height)); err != nil {
		return nil, err
	}
	if block.Height != height {
		return nil, fmt.Errorf("node returned block %d for requested height %d", block.Height, height)
	}
	return &block, nil
}

// GetBlockInfo returns metadata of the block with blockHash.
func (c *Client) GetBlockInfo(ctx context.Context, blockHash common.Hash) (*types.BlockInfo, error) {
	var info types.BlockInfo
	if err := c.call(ctx, &info, methodBlockInfo, blockHash); err != nil {
		return nil, err
	}
	return &info, nil
}

// call performs one RPC with retries, metrics and the per-request timeout.
func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	return retryWithBackoff(ctx, c.retry, c.log, method, func() error {
		start := time.Now()

		callCtx := ctx
		if c.requestTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.requestTimeout)
			defer cancel()
		}

		err := c.rpc.CallContext(callCtx, result, method, args...)
		observeRequest(method, time.Since(start), err)
		if err != nil {
			return fmt.Errorf("%s: %w", method, err)
		}
		return nil
	})
}
