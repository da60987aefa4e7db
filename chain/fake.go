package chain

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Fake is an in-memory ChainReader + DigestDecoder used by this module's
// own tests and by the cmd/evmindex-sync demo. It plays the part of the
// primary blockchain backend and the consensus-digest decoder, both of
// which are out of scope for evmsqlindex itself (spec.md §1).
//
// Grounded on the teacher's geth-18-reorgs_solution (header-by-number,
// parent-hash bookkeeping) and geth-16-concurrency_solution (the same
// client called concurrently from a worker pool) — Fake is what a real
// ethclient.Client would be standing in for in those lessons.
type Fake struct {
	mu sync.RWMutex

	headers   map[common.Hash]*types.Header
	canonical map[uint64]common.Hash
	postHash  map[common.Hash]PostHashes
	schema    map[common.Hash][]byte
	hasAPI    map[uint64]bool
	genesis   *EthereumBlock
}

// NewFake returns an empty fake chain reader.
func NewFake() *Fake {
	return &Fake{
		headers:   make(map[common.Hash]*types.Header),
		canonical: make(map[uint64]common.Hash),
		postHash:  make(map[common.Hash]PostHashes),
		schema:    make(map[common.Hash][]byte),
		hasAPI:    make(map[uint64]bool),
	}
}

// AddBlock registers a header as known, optionally canonical at its
// height, with the given post-hashes (the hashes a real DigestDecoder
// would have extracted from its digest) and schema bytes.
func (f *Fake) AddBlock(header *types.Header, canonical bool, post PostHashes, schema []byte) common.Hash {
	f.mu.Lock()
	defer f.mu.Unlock()

	hash := header.Hash()
	f.headers[hash] = header
	f.postHash[hash] = post
	f.schema[hash] = schema
	if canonical {
		f.canonical[header.Number.Uint64()] = hash
	}
	return hash
}

// SetCanonical overrides the canonical hash recorded at a height,
// independent of AddBlock — useful for simulating a reorg in tests
// without re-registering headers.
func (f *Fake) SetCanonical(number uint64, hash common.Hash) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canonical[number] = hash
}

// SetGenesis configures the block returned by CurrentBlock at height 0,
// and whether HasEthereumAPI reports true there.
func (f *Fake) SetGenesis(block *EthereumBlock, hasAPI bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.genesis = block
	f.hasAPI[0] = hasAPI
}

func (f *Fake) Header(hash common.Hash) (*types.Header, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	h, ok := f.headers[hash]
	if !ok {
		return nil, nil
	}
	return h, nil
}

func (f *Fake) HashAtNumber(number uint64) (common.Hash, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	hash, ok := f.canonical[number]
	return hash, ok, nil
}

func (f *Fake) ExpectBlockHashFromID(id BlockID) (common.Hash, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if id.ByHash {
		return id.Hash, nil
	}
	hash, ok := f.canonical[id.Number]
	if !ok {
		return common.Hash{}, errBlockIDNotFound
	}
	return hash, nil
}

func (f *Fake) Storage(hash common.Hash, key []byte) ([]byte, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	b, ok := f.schema[hash]
	if !ok {
		return nil, false, nil
	}
	return b, true, nil
}

func (f *Fake) HasEthereumAPI(id BlockID) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if id.ByHash {
		return false, nil
	}
	return f.hasAPI[id.Number], nil
}

func (f *Fake) CurrentBlock(id BlockID) (*EthereumBlock, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if id.ByHash || id.Number != 0 || f.genesis == nil {
		return nil, false, nil
	}
	return f.genesis, true, nil
}

// FindPostHashes implements DigestDecoder by looking up the post-hashes
// registered for this header via AddBlock. A header with no registered
// post-hashes reports ErrLogNotFound, matching fp_consensus's NotFound
// case for a digest carrying no Ethereum pre-runtime log.
func (f *Fake) FindPostHashes(header *types.Header) (PostHashes, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	post, ok := f.postHash[header.Hash()]
	if !ok {
		return PostHashes{}, ErrLogNotFound
	}
	return post, nil
}

var errBlockIDNotFound = &blockIDNotFoundError{}

type blockIDNotFoundError struct{}

func (*blockIDNotFoundError) Error() string { return "chain: block id not found" }
