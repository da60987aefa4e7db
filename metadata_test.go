package evmsqlindex

import (
	"context"
	"math/big"
	"testing"

	"github.com/chainindex/evmsqlindex/chain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

func makeHeader(number uint64, tag byte) *types.Header {
	return &types.Header{
		Number: new(big.Int).SetUint64(number),
		Extra:  []byte{tag},
	}
}

// TestInsertBlockMetadataWritesBlockAndTransactions covers the common
// path: a canonical block with one transaction is written through to
// both blocks and transactions (spec.md §4.3).
func TestInsertBlockMetadataWritesBlockAndTransactions(t *testing.T) {
	ctx := context.Background()
	reader := chain.NewFake()

	header := makeHeader(1, 0x01)
	ethBlockHash := common.HexToHash("0xe7")
	txHash := common.HexToHash("0x7x")
	hash := reader.AddBlock(header, true, chain.PostHashes{
		BlockHash:         ethBlockHash,
		TransactionHashes: []common.Hash{txHash},
	}, nil)

	b := newTestBackend(t, nil)
	require.NoError(t, b.InsertBlockMetadata(ctx, reader, reader, []common.Hash{hash}))

	var blockNumber, isCanon int32
	row := b.db.QueryRowContext(ctx, `SELECT block_number, is_canon FROM blocks WHERE substrate_block_hash = ?`, hash.Bytes())
	require.NoError(t, row.Scan(&blockNumber, &isCanon))
	require.Equal(t, int32(1), blockNumber)
	require.Equal(t, int32(1), isCanon)

	var txIndex int32
	row = b.db.QueryRowContext(ctx, `SELECT ethereum_transaction_index FROM transactions WHERE ethereum_transaction_hash = ?`, txHash.Bytes())
	require.NoError(t, row.Scan(&txIndex))
	require.Equal(t, int32(0), txIndex)

	var pendingCount int
	row = b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_status WHERE substrate_block_hash = ?`, hash.Bytes())
	require.NoError(t, row.Scan(&pendingCount))
	require.Equal(t, 1, pendingCount)
}

// TestInsertBlockMetadataIsIdempotent covers P1: replaying the same batch
// of hashes must not duplicate rows, thanks to INSERT OR IGNORE.
func TestInsertBlockMetadataIsIdempotent(t *testing.T) {
	ctx := context.Background()
	reader := chain.NewFake()
	header := makeHeader(1, 0x02)
	hash := reader.AddBlock(header, true, chain.PostHashes{BlockHash: common.HexToHash("0xe8")}, nil)

	b := newTestBackend(t, nil)
	require.NoError(t, b.InsertBlockMetadata(ctx, reader, reader, []common.Hash{hash}))
	require.NoError(t, b.InsertBlockMetadata(ctx, reader, reader, []common.Hash{hash}))

	var count int
	row := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blocks WHERE substrate_block_hash = ?`, hash.Bytes())
	require.NoError(t, row.Scan(&count))
	require.Equal(t, 1, count)
}

// TestExtractBlockMetadataSkipsUnknownHeader covers the "header absent"
// skip path (spec.md §4.3, §9).
func TestExtractBlockMetadataSkipsUnknownHeader(t *testing.T) {
	reader := chain.NewFake()
	b := newTestBackend(t, nil)

	meta, err := b.extractBlockMetadata(reader, reader, common.HexToHash("0xdeadbeef"))
	require.NoError(t, err)
	require.Nil(t, meta)
}

// TestExtractBlockMetadataSkipsLogNotFound covers the digest-NotFound skip
// path: a header whose digest decoder reports ErrLogNotFound is silently
// skipped, not an error (spec.md §4.3).
func TestExtractBlockMetadataSkipsLogNotFound(t *testing.T) {
	reader := chain.NewFake()
	header := makeHeader(2, 0x03)
	hash := reader.AddBlock(header, false, chain.PostHashes{}, nil)

	b := newTestBackend(t, nil)
	meta, err := b.extractBlockMetadata(reader, alwaysNotFoundDecoder{}, hash)
	require.NoError(t, err)
	require.Nil(t, meta)
}

// TestExtractBlockMetadataFailsOnMultipleLogs covers the one genuine
// per-hash failure mode: a digest carrying more than one post-hashes log
// fails the batch (spec.md §4.3).
func TestExtractBlockMetadataFailsOnMultipleLogs(t *testing.T) {
	reader := chain.NewFake()
	header := makeHeader(3, 0x04)
	hash := reader.AddBlock(header, false, chain.PostHashes{}, nil)

	b := newTestBackend(t, nil)
	_, err := b.extractBlockMetadata(reader, alwaysMultipleLogsDecoder{}, hash)
	require.Error(t, err)
}

// TestInsertGenesisBlockMetadataWritesCanonicalRow covers the genesis
// probe when the runtime exposes the EVM API from height 0 (spec.md §4.3).
func TestInsertGenesisBlockMetadataWritesCanonicalRow(t *testing.T) {
	ctx := context.Background()
	reader := chain.NewFake()
	genesisHeader := makeHeader(0, 0x09)
	genHash := reader.AddBlock(genesisHeader, true, chain.PostHashes{}, nil)

	ethHeader := makeHeader(0, 0x99)
	reader.SetGenesis(&chain.EthereumBlock{Header: ethHeader}, true)

	b := newTestBackend(t, nil)
	hash, ok, err := b.InsertGenesisBlockMetadata(ctx, reader)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, genHash, hash)

	var isCanon int32
	row := b.db.QueryRowContext(ctx, `SELECT is_canon FROM blocks WHERE substrate_block_hash = ?`, genHash.Bytes())
	require.NoError(t, row.Scan(&isCanon))
	require.Equal(t, int32(1), isCanon)
}

// TestInsertGenesisBlockMetadataSkipsWithoutAPI covers a chain whose
// genesis predates frontier support: no row is written and the call
// reports (zero, false, nil) (spec.md §4.3).
func TestInsertGenesisBlockMetadataSkipsWithoutAPI(t *testing.T) {
	ctx := context.Background()
	reader := chain.NewFake()
	genesisHeader := makeHeader(0, 0x0a)
	genHash := reader.AddBlock(genesisHeader, true, chain.PostHashes{}, nil)
	reader.SetGenesis(nil, false)

	b := newTestBackend(t, nil)
	hash, ok, err := b.InsertGenesisBlockMetadata(ctx, reader)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, common.Hash{}, hash)

	var count int
	row := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blocks WHERE substrate_block_hash = ?`, genHash.Bytes())
	require.NoError(t, row.Scan(&count))
	require.Equal(t, 0, count)
}

type alwaysNotFoundDecoder struct{}

func (alwaysNotFoundDecoder) FindPostHashes(*types.Header) (chain.PostHashes, error) {
	return chain.PostHashes{}, chain.ErrLogNotFound
}

type alwaysMultipleLogsDecoder struct{}

func (alwaysMultipleLogsDecoder) FindPostHashes(*types.Header) (chain.PostHashes, error) {
	return chain.PostHashes{}, chain.ErrMultipleLogs
}
