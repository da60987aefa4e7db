package evmsqlindex

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/chainindex/evmsqlindex/chain"
)

// defaultIngestWorkers bounds how many native block hashes this module
// fetches headers/receipts for concurrently per ingestion pass. Grounded
// on the teacher's geth-16-concurrency_solution, which defaults its own
// worker flag to a small constant for the same reason: enough fan-out to
// hide RPC latency without hammering the backend.
const defaultIngestWorkers = 4

// InsertBlockMetadata extracts Ethereum identity for each native block
// hash and writes blocks/transactions/sync_status rows in one
// transaction, using INSERT OR IGNORE throughout so the whole operation
// is safe to replay (P1). Grounded on frontier-sql's
// insert_block_metadata / insert_block_metadata_inner.
func (b *Backend) InsertBlockMetadata(ctx context.Context, reader chain.ChainReader, decoder chain.DigestDecoder, hashes []common.Hash) error {
	if len(hashes) == 0 {
		return nil
	}

	log.Trace("evmsqlindex: [metadata] retrieving digest data", "hashes", len(hashes))

	metas, err := dispatchBlocking(hashes, defaultIngestWorkers, func(hash common.Hash) (*blockMetadata, error) {
		return b.extractBlockMetadata(reader, decoder, hash)
	})
	if err != nil {
		return err
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendIO, err)
	}
	defer tx.Rollback()

	log.Debug("evmsqlindex: [metadata] starting execution of statements on db transaction")

	queuedHashes := make([]common.Hash, 0, len(hashes))
	for _, meta := range metas {
		if meta == nil {
			// This hash produced no blocks row (header absent, or the
			// digest decoder reported NotFound) — spec.md §9 first
			// open question, resolved: it is not queued either.
			continue
		}

		schemaBytes, err := meta.schema.encode()
		if err != nil {
			return fmt.Errorf("%w: encoding schema: %v", ErrSchema, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO blocks(
				ethereum_block_hash, substrate_block_hash, block_number,
				ethereum_storage_schema, is_canon)
			VALUES (?, ?, ?, ?, ?)`,
			meta.postHashes.BlockHash.Bytes(),
			meta.substrateBlockHash.Bytes(),
			meta.blockNumber,
			schemaBytes,
			meta.isCanon,
		); err != nil {
			return fmt.Errorf("%w: %v", ErrBackendIO, err)
		}

		for i, txHash := range meta.postHashes.TransactionHashes {
			log.Trace("evmsqlindex: [metadata] inserting tx",
				"block", meta.blockNumber, "tx", txHash, "index", i)
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO transactions(
					ethereum_transaction_hash, substrate_block_hash,
					ethereum_block_hash, ethereum_transaction_index)
				VALUES (?, ?, ?, ?)`,
				txHash.Bytes(),
				meta.substrateBlockHash.Bytes(),
				meta.postHashes.BlockHash.Bytes(),
				int32(i),
			); err != nil {
				return fmt.Errorf("%w: %v", ErrBackendIO, err)
			}
		}

		queuedHashes = append(queuedHashes, meta.substrateBlockHash)
	}

	for _, hash := range queuedHashes {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO sync_status(substrate_block_hash) VALUES (?)`,
			hash.Bytes(),
		); err != nil {
			return fmt.Errorf("%w: %v", ErrBackendIO, err)
		}
	}

	log.Debug("evmsqlindex: [metadata] ready to commit")
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendIO, err)
	}
	return nil
}

// extractBlockMetadata is the per-hash body InsertBlockMetadata dispatches
// across the worker pool. It returns (nil, nil) for a hash whose header is
// unknown or whose digest carries no post-hashes log (both silently
// skipped, spec.md §4.3), and a non-nil error only for MultipleLogs or a
// genuine backend failure.
func (b *Backend) extractBlockMetadata(reader chain.ChainReader, decoder chain.DigestDecoder, hash common.Hash) (*blockMetadata, error) {
	header, err := reader.Header(hash)
	if err != nil {
		return nil, fmt.Errorf("reading header for %s: %w", hash, err)
	}
	if header == nil {
		return nil, nil
	}

	post, err := decoder.FindPostHashes(header)
	switch {
	case err == nil:
		// fall through
	case err == chain.ErrLogNotFound:
		return nil, nil
	case err == chain.ErrMultipleLogs:
		return nil, fmt.Errorf("[metadata] multiple logs found for hash %s: %w", hash, err)
	default:
		return nil, fmt.Errorf("decoding digest for %s: %w", hash, err)
	}

	headerNumber := header.Number.Uint64()
	blockNumber := int32(headerNumber)

	isCanon := int32(0)
	canonHash, ok, err := reader.HashAtNumber(headerNumber)
	switch {
	case err != nil:
		log.Debug("evmsqlindex: [metadata] failed to retrieve header for block",
			"number", blockNumber, "hash", hash, "err", err)
	case !ok:
		log.Debug("evmsqlindex: [metadata] missing header for block", "number", blockNumber, "hash", hash)
	case canonHash == hash:
		isCanon = 1
	}

	schema := onchainStorageSchema(reader, hash)

	log.Trace("evmsqlindex: [metadata] prepared block metadata",
		"number", blockNumber, "hash", hash, "canon", isCanon)

	return &blockMetadata{
		substrateBlockHash: hash,
		blockNumber:        blockNumber,
		postHashes:         post,
		schema:             schema,
		isCanon:            isCanon,
	}, nil
}

// InsertGenesisBlockMetadata inserts the canonical row for the Ethereum
// genesis block if the chain exposes the EVM runtime API at height 0,
// returning the resolved native genesis hash. It returns (zero, false,
// nil) if the chain has no frontier support from genesis (spec.md §4.3).
// Grounded on frontier-sql's insert_genesis_block_metadata.
func (b *Backend) InsertGenesisBlockMetadata(ctx context.Context, reader chain.ChainReader) (common.Hash, bool, error) {
	id := chain.BlockIDFromNumber(0)
	genesisHash, err := reader.ExpectBlockHashFromID(id)
	if err != nil {
		return common.Hash{}, false, fmt.Errorf("%w: cannot resolve genesis hash: %v", ErrProtocol, err)
	}

	header, err := reader.Header(genesisHash)
	if err != nil {
		return common.Hash{}, false, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if header == nil {
		return common.Hash{}, false, nil
	}

	hasAPI, err := reader.HasEthereumAPI(id)
	if err != nil {
		return common.Hash{}, false, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	log.Debug("evmsqlindex: index genesis block", "has_api", hasAPI, "hash", genesisHash)

	if hasAPI {
		block, ok, err := reader.CurrentBlock(id)
		if err != nil {
			return common.Hash{}, false, fmt.Errorf("%w: %v", ErrProtocol, err)
		}
		if !ok || block == nil || block.Header == nil {
			return common.Hash{}, false, fmt.Errorf("%w: genesis ethereum block unavailable", ErrProtocol)
		}

		schemaBytes, err := onchainStorageSchema(reader, genesisHash).encode()
		if err != nil {
			return common.Hash{}, false, fmt.Errorf("%w: encoding schema: %v", ErrSchema, err)
		}

		ethereumBlockHash := block.Header.Hash()

		if _, err := b.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO blocks(
				ethereum_block_hash, substrate_block_hash, block_number,
				ethereum_storage_schema, is_canon)
			VALUES (?, ?, ?, ?, ?)`,
			ethereumBlockHash.Bytes(),
			genesisHash.Bytes(),
			int32(0),
			schemaBytes,
			int32(1),
		); err != nil {
			return common.Hash{}, false, fmt.Errorf("%w: %v", ErrBackendIO, err)
		}
	}

	if !hasAPI {
		return common.Hash{}, false, nil
	}
	return genesisHash, true, nil
}
