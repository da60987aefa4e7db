// Package chain declares the capabilities evmsqlindex consumes from the
// primary blockchain backend and from the consensus-digest decoder. Both
// are out of scope for this module (spec.md §1) — only their shapes live
// here. Production callers wire in adapters over their own node; tests
// wire in the fakes from chain/fake.go.
package chain

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrLogNotFound is returned by a DigestDecoder when a header's digest
// carries no post-hashes log. The caller skips the hash silently.
var ErrLogNotFound = errors.New("chain: post-hashes log not found in digest")

// ErrMultipleLogs is returned by a DigestDecoder when a header's digest
// carries more than one post-hashes log. The caller fails the whole
// ingestion batch (spec.md §4.3).
var ErrMultipleLogs = errors.New("chain: multiple post-hashes logs found in digest")

// BlockID identifies a block either by number or by native hash, mirroring
// the generic BlockId a Substrate-style client accepts. Exactly one of
// Number/Hash is meaningful, selected by ByHash.
type BlockID struct {
	Number uint64
	Hash   common.Hash
	ByHash bool
}

// BlockIDFromNumber builds a BlockID addressing a block by height.
func BlockIDFromNumber(number uint64) BlockID {
	return BlockID{Number: number}
}

// BlockIDFromHash builds a BlockID addressing a block by native hash.
func BlockIDFromHash(hash common.Hash) BlockID {
	return BlockID{Hash: hash, ByHash: true}
}

// PostHashes is the Ethereum identity embedded in a native block's digest:
// the Ethereum block hash and the ordered Ethereum transaction hashes of
// the transactions it contains. This is what fp_consensus::find_log
// extracts from the digest in the reference implementation.
type PostHashes struct {
	BlockHash         common.Hash
	TransactionHashes []common.Hash
}

// DigestDecoder extracts PostHashes from a block header's digest. Its
// implementation is out of scope (spec.md §1) — it is the consensus-digest
// decoder of the host chain, consumed here only through this interface.
type DigestDecoder interface {
	FindPostHashes(header *types.Header) (PostHashes, error)
}

// EthereumBlock is the minimal shape of a frontier-style Ethereum genesis
// block as returned by the EVM runtime API's current_block call: enough
// to recover its header hash.
type EthereumBlock struct {
	Header *types.Header
}

// ChainReader is the primary blockchain backend capability this module
// consumes. Implementations are out of scope (spec.md §1); this module
// only calls through this interface. Every method may block — the
// per-block ingestion paths of evmsqlindex (InsertBlockMetadata,
// IndexPendingBlockLogs) call it through the worker pool in
// workerpool.go; InsertGenesisBlockMetadata calls it directly.
type ChainReader interface {
	// Header returns the header for a native block hash, or (nil, nil)
	// if the hash is unknown.
	Header(hash common.Hash) (*types.Header, error)

	// HashAtNumber returns the native hash currently canonical at the
	// given height, or (zero, false, nil) if none is known yet.
	HashAtNumber(number uint64) (common.Hash, bool, error)

	// ExpectBlockHashFromID resolves a BlockID to a native hash. Unlike
	// Header/HashAtNumber this is expected to always succeed for a valid
	// chain; it returns an error only on genuine backend failure.
	ExpectBlockHashFromID(id BlockID) (common.Hash, error)

	// Storage reads a single storage key at a given native block hash,
	// returning (nil, false, nil) if the key is absent.
	Storage(hash common.Hash, key []byte) ([]byte, bool, error)

	// HasEthereumAPI reports whether the EVM runtime API is available at
	// the given block.
	HasEthereumAPI(id BlockID) (bool, error)

	// CurrentBlock returns the Ethereum block the runtime considers
	// current at the given BlockID, or (nil, false, nil) if the runtime
	// has none (e.g. chain genesis predates frontier support).
	CurrentBlock(id BlockID) (*EthereumBlock, bool, error)
}

// PalletEthereumSchemaKey is the well-known storage key holding the
// encoded on-chain Ethereum storage schema version (spec.md §4.2, §6).
var PalletEthereumSchemaKey = []byte(":frontier_evm_schema:")
