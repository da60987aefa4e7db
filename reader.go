package evmsqlindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-sqlite3"
)

// BlockHash returns every native block hash (across forks) that ever
// mapped to the given Ethereum block hash. Like the reference
// implementation, this is a hot, best-effort path: a query-level failure
// degrades to (nil, false) rather than propagating an error, and a
// single row that fails to scan is skipped rather than aborting the
// whole result (spec.md §7). ok is false only when the query itself
// could not be executed; it is true (with a possibly-empty slice) once
// the query ran, whether or not it matched anything.
func (b *Backend) BlockHash(ctx context.Context, ethereumBlockHash common.Hash) (hashes []common.Hash, ok bool) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT substrate_block_hash FROM blocks WHERE ethereum_block_hash = ?`,
		ethereumBlockHash.Bytes(),
	)
	if err != nil {
		log.Debug("evmsqlindex: block_hash query failed", "err", err)
		return nil, false
	}
	defer rows.Close()

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			log.Debug("evmsqlindex: block_hash row decode failed, skipping", "err", err)
			continue
		}
		hashes = append(hashes, common.BytesToHash(raw))
	}
	if err := rows.Err(); err != nil {
		log.Debug("evmsqlindex: block_hash row iteration failed", "err", err)
		return hashes, true
	}
	return hashes, true
}

// TransactionMetadata returns every recorded location of the given
// Ethereum transaction hash, across forks. Same best-effort discipline as
// BlockHash (spec.md §7): a query failure degrades to an empty, non-error
// result.
func (b *Backend) TransactionMetadata(ctx context.Context, ethereumTransactionHash common.Hash) []TransactionMetadata {
	rows, err := b.db.QueryContext(ctx, `
		SELECT substrate_block_hash, ethereum_block_hash, ethereum_transaction_index
		FROM transactions WHERE ethereum_transaction_hash = ?`,
		ethereumTransactionHash.Bytes(),
	)
	if err != nil {
		log.Debug("evmsqlindex: transaction_metadata query failed", "err", err)
		return nil
	}
	defer rows.Close()

	var out []TransactionMetadata
	for rows.Next() {
		var blockHash, ethBlockHash []byte
		var index int32
		if err := rows.Scan(&blockHash, &ethBlockHash, &index); err != nil {
			log.Debug("evmsqlindex: transaction_metadata row decode failed, skipping", "err", err)
			continue
		}
		out = append(out, TransactionMetadata{
			BlockHash:         common.BytesToHash(blockHash),
			EthereumBlockHash: common.BytesToHash(ethBlockHash),
			EthereumIndex:     uint32(index),
		})
	}
	return out
}

// FilterLogs compiles and runs a log filter query under a
// progress-handler query budget: the connection aborts once more than
// numOpsTimeout virtual-machine steps have run without the handler
// acknowledging, surfacing ErrQueryBudgetExceeded. Unlike BlockHash/
// TransactionMetadata, query-level errors here are not swallowed
// (spec.md §7: "filter_logs surfaces query-level errors").
func (b *Backend) FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topics [][]*common.Hash) ([]FilteredLog, error) {
	sqlText, args, err := BuildQuery(fromBlock, toBlock, addresses, topics)
	if err != nil {
		return nil, err
	}

	logKey := fmt.Sprintf("%d-%d-%v", fromBlock, toBlock, addresses)

	conn, err := b.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: acquiring connection: %v", ErrBackendIO, err)
	}
	defer conn.Close()

	var exceeded bool
	if err := installProgressHandler(conn, b.numOpsTimeout, &exceeded, logKey); err != nil {
		return nil, fmt.Errorf("%w: installing progress handler: %v", ErrBackendIO, err)
	}
	defer removeProgressHandler(conn)

	log.Debug("evmsqlindex: query", "sql", sqlText, "key", logKey)

	rows, err := conn.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, translateQueryErr(err, exceeded, logKey)
	}
	defer rows.Close()

	var out []FilteredLog
	for rows.Next() {
		var substrateBlockHash, ethereumBlockHash, schemaBytes []byte
		var blockNumber, txIndex, logIndex int32
		if err := rows.Scan(&substrateBlockHash, &ethereumBlockHash, &blockNumber, &schemaBytes, &txIndex, &logIndex); err != nil {
			return nil, translateQueryErr(err, exceeded, logKey)
		}
		out = append(out, FilteredLog{
			SubstrateBlockHash:    common.BytesToHash(substrateBlockHash),
			EthereumBlockHash:     common.BytesToHash(ethereumBlockHash),
			BlockNumber:           uint32(blockNumber),
			EthereumStorageSchema: decodeSchema(schemaBytes),
			TransactionIndex:      uint32(txIndex),
			LogIndex:              uint32(logIndex),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, translateQueryErr(err, exceeded, logKey)
	}

	log.Info("evmsqlindex: filter remove handler", "key", logKey)
	return out, nil
}

func translateQueryErr(err error, exceeded bool, logKey string) error {
	if exceeded {
		log.Debug("evmsqlindex: sqlite progress_handler triggered", "key", logKey)
		return fmt.Errorf("%w: %v", ErrQueryBudgetExceeded, err)
	}
	log.Error("evmsqlindex: failed to query sql db", "err", err, "key", logKey)
	return fmt.Errorf("%w: failed to query sql db with statement: %v", ErrBackendIO, err)
}

// installProgressHandler registers a progress handler on conn that, once
// invoked, flags *exceeded and aborts the running statement. n is the
// step granularity; mattn/go-sqlite3 (like the underlying SQLite C API)
// disables the handler entirely when n < 1, which is exactly how a
// num_ops_timeout of 0 should behave: no budget at all.
func installProgressHandler(conn *sql.Conn, n int32, exceeded *bool, logKey string) error {
	return conn.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return errors.New("evmsqlindex: driver connection is not a *sqlite3.SQLiteConn")
		}
		sc.RegisterProgressHandler(int(n), func() int {
			*exceeded = true
			log.Debug("evmsqlindex: progress handler budget exhausted", "key", logKey)
			return 1
		})
		return nil
	})
}

// removeProgressHandler clears the handler installed by
// installProgressHandler. Called on every exit path from FilterLogs
// (success, empty, or error), matching spec.md §4.7's discipline.
func removeProgressHandler(conn *sql.Conn) {
	_ = conn.Raw(func(driverConn any) error {
		if sc, ok := driverConn.(*sqlite3.SQLiteConn); ok {
			sc.RegisterProgressHandler(0, nil)
		}
		return nil
	})
}
