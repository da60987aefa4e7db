package evmsqlindex

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/chainindex/evmsqlindex/chain"
)

// Log is one row of the logs table: an emitted EVM log, topics padded
// positionally with the zero hash when the emitted log had fewer than
// four topics (spec.md I5).
type Log struct {
	Address            common.Address
	Topics             [4]common.Hash
	LogIndex           int32
	TransactionIndex   int32
	SubstrateBlockHash common.Hash
}

// blockMetadata is the result of extracting one native block hash's
// Ethereum identity, ready to be written into blocks/transactions.
type blockMetadata struct {
	substrateBlockHash common.Hash
	blockNumber        int32
	postHashes         chain.PostHashes
	schema             EthereumStorageSchema
	isCanon            int32
}

// TransactionMetadata locates one Ethereum transaction within the native
// chain: the native block it was included in, the Ethereum block hash it
// belongs to, and its positional index within that block.
type TransactionMetadata struct {
	BlockHash         common.Hash
	EthereumBlockHash common.Hash
	EthereumIndex     uint32
}

// FilteredLog is one row returned by FilterLogs: enough to locate the log
// (and the transaction/receipt that emitted it) without re-persisting the
// log payload itself.
type FilteredLog struct {
	SubstrateBlockHash    common.Hash
	EthereumBlockHash     common.Hash
	BlockNumber           uint32
	EthereumStorageSchema EthereumStorageSchema
	TransactionIndex      uint32
	LogIndex              uint32
}

// MaxTopicCount is the number of positional topic slots a log filter may
// address (spec.md §4.6).
const MaxTopicCount = 4

// MaxResults is the row cap a filter_logs query enforces. The SQL LIMIT is
// MaxResults+1 so callers can distinguish "exactly at cap" from "capped"
// (spec.md §4.6).
const MaxResults = 10000
