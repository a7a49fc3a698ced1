package importer

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ContractIndexor/internal/cis2"
	internalcommon "github.com/goran-ethernal/ContractIndexor/internal/common"
	"github.com/goran-ethernal/ContractIndexor/internal/logger"
	"github.com/goran-ethernal/ContractIndexor/internal/store"
	"github.com/goran-ethernal/ContractIndexor/internal/token"
	"github.com/goran-ethernal/ContractIndexor/internal/types"
	"github.com/goran-ethernal/ContractIndexor/pkg/config"
	pkgnode "github.com/goran-ethernal/ContractIndexor/pkg/node"
	"github.com/goran-ethernal/ContractIndexor/tests/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	module = common.HexToHash("0xa1")
	alice  = types.AccountAddress{0xa}
	nft    = types.ContractAddress{Index: 1}
)

// fakeNode serves blocks from memory. Heights without a block are empty.
type fakeNode struct {
	mu         sync.Mutex
	finalized  uint64
	blocks     map[uint64]*types.BlockTransactionEvents
	failures   map[uint64]int
	fetches    map[uint64]int
	infoCalls  int
	persistent error
}

var _ pkgnode.Client = (*fakeNode)(nil)

func newFakeNode(finalized uint64) *fakeNode {
	return &fakeNode{
		finalized: finalized,
		blocks:    make(map[uint64]*types.BlockTransactionEvents),
		failures:  make(map[uint64]int),
		fetches:   make(map[uint64]int),
	}
}

func (n *fakeNode) Close() {}

func (n *fakeNode) setFinalized(h uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finalized = h
}

func (n *fakeNode) GetLatestFinalizedHeight(context.Context) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.finalized, nil
}

func (n *fakeNode) GetBlockTransactionEvents(_ context.Context, height uint64) (*types.BlockTransactionEvents, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.fetches[height]++
	if n.persistent != nil {
		return nil, n.persistent
	}
	if n.failures[height] > 0 {
		n.failures[height]--
		return nil, syscall.ECONNRESET
	}
	if block, ok := n.blocks[height]; ok {
		return block, nil
	}
	return &types.BlockTransactionEvents{Height: height, BlockHash: common.BigToHash(big.NewInt(int64(height)))}, nil
}

func (n *fakeNode) GetBlockInfo(_ context.Context, hash common.Hash) (*types.BlockInfo, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.infoCalls++
	return &types.BlockInfo{Hash: hash, SlotTime: time.Unix(1700000000, 0).UTC()}, nil
}

type staticResolver map[types.AccountAddress]int64

func (r staticResolver) Resolve(_ context.Context, addrs []types.AccountAddress) (map[types.AccountAddress]int64, error) {
	out := make(map[types.AccountAddress]int64)
	for _, a := range addrs {
		if id, ok := r[a]; ok {
			out[a] = id
		}
	}
	return out, nil
}

func block(height uint64, effects ...types.Effect) *types.BlockTransactionEvents {
	b := &types.BlockTransactionEvents{Height: height, BlockHash: common.BigToHash(big.NewInt(int64(height)))}
	for i, effect := range effects {
		sender := alice
		b.Items = append(b.Items, types.BlockItem{
			TransactionIndex: uint64(i),
			TransactionHash:  common.BigToHash(big.NewInt(int64(height*100) + int64(i))),
			Sender:           &sender,
			Effect:           effect,
		})
	}
	return b
}

func importConfig() config.ImportConfig {
	cfg := config.ImportConfig{
		PollInterval:     internalcommon.NewDuration(5 * time.Millisecond),
		RetryDelay:       internalcommon.NewDuration(time.Millisecond),
		MaxRetryAttempts: 3,
	}
	cfg.ApplyDefaults()
	return cfg
}

func setupImporter(t *testing.T, st *store.Store, node *fakeNode, cfg config.ImportConfig) *Importer {
	t.Helper()

	log := logger.NewNopLogger()
	imp, err := New(cfg, node, st, token.NewAggregator(staticResolver{}, nil, log), nil, log)
	require.NoError(t, err)
	return imp
}

func newStore(t *testing.T, name string) *store.Store {
	t.Helper()
	return store.New(helpers.NewTestDB(t, name), logger.NewNopLogger())
}

func TestNew_Validation(t *testing.T) {
	log := logger.NewNopLogger()
	st := newStore(t, "validation.db")
	agg := token.NewAggregator(staticResolver{}, nil, log)

	_, err := New(importConfig(), nil, st, agg, nil, log)
	require.Error(t, err)
	_, err = New(importConfig(), newFakeNode(0), nil, agg, nil, log)
	require.Error(t, err)
	_, err = New(importConfig(), newFakeNode(0), st, nil, nil, log)
	require.Error(t, err)
}

func TestImporter_Sync(t *testing.T) {
	ctx := context.Background()
	st := newStore(t, "sync.db")

	node := newFakeNode(3)
	node.blocks[1] = block(1,
		&types.ModuleDeployed{ModuleRef: module},
		&types.ContractInitialized{ModuleRef: module, Address: nft, Amount: 10, InitName: "init_nft"},
	)
	node.blocks[3] = block(3,
		&types.ContractUpdated{Address: nft, Instigator: alice, Amount: 5, ReceiveName: "nft.mint"},
	)

	imp := setupImporter(t, st, node, importConfig())
	assert.Equal(t, StateIdle, imp.State())

	processed, err := imp.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, processed)
	assert.Equal(t, StateProcessHeight, imp.State())

	heights, err := st.Reader().CheckpointHeights(ctx, "node")
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 2, 3}, heights)

	// block info only for the two relevant blocks
	assert.Equal(t, 2, node.infoCalls)

	snap, err := st.Reader().LatestSnapshot(ctx, nft)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), snap.BlockHeight)
	assert.Equal(t, types.CCDAmount(15), snap.Amount)
	assert.Equal(t, "nft", snap.ContractName)
	assert.Equal(t, module, snap.ModuleRef)

	// caught up: nothing to do and no unit of work opened
	processed, err = imp.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, processed)
	assert.Equal(t, 1, node.fetches[3])
}

func TestImporter_StartHeight(t *testing.T) {
	ctx := context.Background()
	st := newStore(t, "start.db")

	cfg := importConfig()
	cfg.StartHeight = 10

	imp := setupImporter(t, st, newFakeNode(12), cfg)
	_, err := imp.Sync(ctx)
	require.NoError(t, err)

	heights, err := st.Reader().CheckpointHeights(ctx, "node")
	require.NoError(t, err)
	assert.Equal(t, []uint64{10, 11, 12}, heights)
}

func TestImporter_CheckpointMonotonicity(t *testing.T) {
	ctx := context.Background()
	st := newStore(t, "monotonic.db")

	// every run is a fresh process; finalized heights arrive out of order
	for _, finalized := range []uint64{2, 5, 3, 5, 0, 7, 1, 7} {
		node := newFakeNode(finalized)
		imp := setupImporter(t, st, node, importConfig())

		_, err := imp.Sync(ctx)
		require.NoError(t, err)

		for h, n := range node.fetches {
			assert.Equal(t, 1, n, "height %d fetched more than once in a run", h)
		}
	}

	heights, err := st.Reader().CheckpointHeights(ctx, "node")
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 2, 3, 4, 5, 6, 7}, heights)
}

func TestImporter_FailedHeightIsNotCommitted(t *testing.T) {
	ctx := context.Background()
	st := newStore(t, "partial.db")

	node := newFakeNode(2)
	node.blocks[1] = block(1, &types.ContractInitialized{ModuleRef: module, Address: nft, InitName: "init_nft"})
	// undecodable bytes are fine, a second init of the same contract is not
	node.blocks[2] = block(2,
		&types.ContractUpdated{Address: nft, Instigator: alice, ReceiveName: "nft.x", Events: []types.HexBytes{{0x01}}},
		&types.ContractInitialized{ModuleRef: module, Address: nft, InitName: "init_nft"},
	)

	imp := setupImporter(t, st, node, importConfig())

	processed, err := imp.Sync(ctx)
	require.ErrorIs(t, err, store.ErrInvariant)
	assert.Equal(t, 2, processed)

	heights, err := st.Reader().CheckpointHeights(ctx, "node")
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1}, heights)

	events, err := st.Reader().ContractEvents(ctx, nft)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestImporter_Run(t *testing.T) {
	st := newStore(t, "run.db")

	node := newFakeNode(3)
	node.failures[2] = 2
	imp := setupImporter(t, st, node, importConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- imp.Run(ctx) }()

	require.Eventually(t, func() bool {
		last, ok, err := st.Reader().LastCheckpoint(context.Background(), "node")
		return err == nil && ok && last == 3
	}, 5*time.Second, 5*time.Millisecond)

	// new finalized heights are picked up after polling
	node.setFinalized(5)
	require.Eventually(t, func() bool {
		last, _, err := st.Reader().LastCheckpoint(context.Background(), "node")
		return err == nil && last == 5
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("importer did not stop")
	}

	assert.True(t, imp.Healthy())
	node.mu.Lock()
	assert.Equal(t, 3, node.fetches[2])
	node.mu.Unlock()
}

func TestImporter_RunFatal(t *testing.T) {
	t.Run("retries exhausted", func(t *testing.T) {
		st := newStore(t, "fatal.db")

		node := newFakeNode(1)
		node.persistent = errors.New("node unavailable")

		cfg := importConfig()
		cfg.MaxRetryAttempts = 2
		imp := setupImporter(t, st, node, cfg)

		err := imp.Run(context.Background())
		require.ErrorIs(t, err, ErrRetriesExhausted)
		require.ErrorIs(t, err, node.persistent)
		assert.Equal(t, StateFatal, imp.State())
		assert.False(t, imp.Healthy())
		assert.Equal(t, 3, node.fetches[0])
	})

	t.Run("invariant violation is not retried", func(t *testing.T) {
		st := newStore(t, "invariant.db")

		node := newFakeNode(0)
		node.blocks[0] = block(0,
			&types.ContractInitialized{ModuleRef: module, Address: nft, InitName: "init_nft"},
			&types.ContractInitialized{ModuleRef: module, Address: nft, InitName: "init_nft"},
		)
		imp := setupImporter(t, st, node, importConfig())

		err := imp.Run(context.Background())
		require.ErrorIs(t, err, store.ErrInvariant)
		assert.Equal(t, StateFatal, imp.State())
		assert.Equal(t, 1, node.fetches[0])
	})
}

func TestImporter_TokenPipeline(t *testing.T) {
	ctx := context.Background()
	st := newStore(t, "tokens.db")

	id, err := st.InsertAccount(ctx, alice)
	require.NoError(t, err)

	mint, err := cis2.Encode(&cis2.MintEvent{TokenID: "01", Amount: big.NewInt(7), Owner: alice})
	require.NoError(t, err)

	node := newFakeNode(0)
	node.blocks[0] = block(0, &types.ContractInitialized{
		ModuleRef: module, Address: nft, InitName: "init_nft", Events: []types.HexBytes{mint},
	})

	log := logger.NewNopLogger()
	imp, err := New(importConfig(), node, st, token.NewAggregator(staticResolver{alice: id}, nil, log), nil, log)
	require.NoError(t, err)

	_, err = imp.Sync(ctx)
	require.NoError(t, err)

	tok, err := st.Reader().Token(ctx, nft, "01")
	require.NoError(t, err)
	assert.Equal(t, "7", tok.TotalSupply.String())
	assert.Equal(t, "LSYWgnCBmz", tok.TokenAddress)

	bal, err := st.Reader().AccountBalance(ctx, nft, "01", id)
	require.NoError(t, err)
	assert.Equal(t, "7", bal.String())
}
