package evmsqlindex

import (
	"context"
	"testing"

	"github.com/chainindex/evmsqlindex/chain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

type fakeReceiptOverride struct {
	receipts map[common.Hash][]*types.Receipt
}

func (f *fakeReceiptOverride) CurrentReceipts(id chain.BlockID) ([]*types.Receipt, error) {
	return f.receipts[id.Hash], nil
}

func insertPendingSyncStatus(t *testing.T, b *Backend, hash common.Hash) {
	t.Helper()
	_, err := b.db.Exec(`INSERT INTO sync_status(substrate_block_hash) VALUES (?)`, hash.Bytes())
	require.NoError(t, err)
}

// TestIndexPendingBlockLogsFlattensReceipts covers the core path: a
// claimed pending hash's receipts are flattened into logs rows, topics
// zero-padded to four slots (spec.md §4.4, I5).
func TestIndexPendingBlockLogsFlattensReceipts(t *testing.T) {
	ctx := context.Background()
	reader := chain.NewFake()

	hash := common.HexToHash("0x10")
	addr := common.HexToAddress("0xaa")
	t1 := common.HexToHash("0x01")

	receipt := &types.Receipt{Logs: []*types.Log{
		{Address: addr, Topics: []common.Hash{t1}, Index: 0},
		{Address: addr, Topics: nil, Index: 1},
	}}
	override := &fakeReceiptOverride{receipts: map[common.Hash][]*types.Receipt{hash: {receipt}}}

	b := newTestBackend(t, &OverrideHandle{Fallback: override})
	insertPendingSyncStatus(t, b, hash)

	require.NoError(t, b.IndexPendingBlockLogs(ctx, reader, 10))

	var count int
	row := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM logs WHERE substrate_block_hash = ?`, hash.Bytes())
	require.NoError(t, row.Scan(&count))
	require.Equal(t, 2, count)

	var topic1, topic2 []byte
	row = b.db.QueryRowContext(ctx, `SELECT topic_1, topic_2 FROM logs WHERE log_index = 0 AND substrate_block_hash = ?`, hash.Bytes())
	require.NoError(t, row.Scan(&topic1, &topic2))
	require.Equal(t, t1.Bytes(), topic1)
	require.Equal(t, common.Hash{}.Bytes(), topic2)

	var status int32
	row = b.db.QueryRowContext(ctx, `SELECT status FROM sync_status WHERE substrate_block_hash = ?`, hash.Bytes())
	require.NoError(t, row.Scan(&status))
	require.Equal(t, int32(1), status)
}

// TestIndexPendingBlockLogsClaimIsExclusive covers P2: once claimed, a
// hash is not claimed again by a later pass, so re-running the ingestor
// does not duplicate work or rows.
func TestIndexPendingBlockLogsClaimIsExclusive(t *testing.T) {
	ctx := context.Background()
	reader := chain.NewFake()

	hash := common.HexToHash("0x11")
	receipt := &types.Receipt{Logs: []*types.Log{{Address: common.HexToAddress("0xbb"), Index: 0}}}
	override := &fakeReceiptOverride{receipts: map[common.Hash][]*types.Receipt{hash: {receipt}}}

	b := newTestBackend(t, &OverrideHandle{Fallback: override})
	insertPendingSyncStatus(t, b, hash)

	require.NoError(t, b.IndexPendingBlockLogs(ctx, reader, 10))
	require.NoError(t, b.IndexPendingBlockLogs(ctx, reader, 10))

	var count int
	row := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM logs WHERE substrate_block_hash = ?`, hash.Bytes())
	require.NoError(t, row.Scan(&count))
	require.Equal(t, 1, count)
}

// TestIndexPendingBlockLogsNoPendingRowsIsNoop covers the empty-queue
// path: no pending rows means no transaction work beyond the claim
// query, and no error.
func TestIndexPendingBlockLogsNoPendingRowsIsNoop(t *testing.T) {
	ctx := context.Background()
	reader := chain.NewFake()
	b := newTestBackend(t, &OverrideHandle{Fallback: &fakeReceiptOverride{}})

	require.NoError(t, b.IndexPendingBlockLogs(ctx, reader, 10))
}

// TestIndexPendingBlockLogsMaxPendingLimitsClaim covers maxPending
// bounding how many rows one pass claims.
func TestIndexPendingBlockLogsMaxPendingLimitsClaim(t *testing.T) {
	ctx := context.Background()
	reader := chain.NewFake()

	h1 := common.HexToHash("0x20")
	h2 := common.HexToHash("0x21")
	receipts := map[common.Hash][]*types.Receipt{
		h1: {{Logs: []*types.Log{{Address: common.HexToAddress("0xcc"), Index: 0}}}},
		h2: {{Logs: []*types.Log{{Address: common.HexToAddress("0xdd"), Index: 0}}}},
	}
	override := &fakeReceiptOverride{receipts: receipts}

	b := newTestBackend(t, &OverrideHandle{Fallback: override})
	insertPendingSyncStatus(t, b, h1)
	insertPendingSyncStatus(t, b, h2)

	require.NoError(t, b.IndexPendingBlockLogs(ctx, reader, 1))

	var claimedCount int
	row := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_status WHERE status = 1`)
	require.NoError(t, row.Scan(&claimedCount))
	require.Equal(t, 1, claimedCount)
}
