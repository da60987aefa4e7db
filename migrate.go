package evmsqlindex

import "context"

// createTablesIfNotExist installs the four relations this index owns.
// Each statement runs on its own ExecContext call — the sqlite3 driver
// does not reliably split multi-statement strings.
func (b *Backend) createTablesIfNotExist(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS blocks (
			id INTEGER PRIMARY KEY,
			block_number INTEGER NOT NULL,
			ethereum_block_hash BLOB NOT NULL,
			substrate_block_hash BLOB NOT NULL,
			ethereum_storage_schema BLOB NOT NULL,
			is_canon INTEGER NOT NULL,
			UNIQUE (ethereum_block_hash, substrate_block_hash)
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY,
			ethereum_transaction_hash BLOB NOT NULL,
			substrate_block_hash BLOB NOT NULL,
			ethereum_block_hash BLOB NOT NULL,
			ethereum_transaction_index INTEGER NOT NULL,
			UNIQUE (ethereum_transaction_hash, substrate_block_hash)
		)`,
		`CREATE TABLE IF NOT EXISTS logs (
			id INTEGER PRIMARY KEY,
			address BLOB NOT NULL,
			topic_1 BLOB NOT NULL,
			topic_2 BLOB NOT NULL,
			topic_3 BLOB NOT NULL,
			topic_4 BLOB NOT NULL,
			log_index INTEGER NOT NULL,
			transaction_index INTEGER NOT NULL,
			substrate_block_hash BLOB NOT NULL,
			UNIQUE (log_index, transaction_index, substrate_block_hash)
		)`,
		`CREATE TABLE IF NOT EXISTS sync_status (
			id INTEGER PRIMARY KEY,
			substrate_block_hash BLOB NOT NULL,
			status INTEGER DEFAULT 0 NOT NULL,
			UNIQUE (substrate_block_hash)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// createIndexesIfNotExist installs the secondary indexes the query
// compiler in query.go relies on for the address/topic lookups and the
// canonical-block join.
func (b *Backend) createIndexesIfNotExist(ctx context.Context) error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS logs_main_idx ON logs (address, topic_1, topic_2, topic_3, topic_4)`,
		`CREATE INDEX IF NOT EXISTS logs_substrate_idx ON logs (substrate_block_hash)`,
		`CREATE INDEX IF NOT EXISTS blocks_number_idx ON blocks (block_number)`,
		`CREATE INDEX IF NOT EXISTS blocks_substrate_idx ON blocks (substrate_block_hash)`,
		`CREATE INDEX IF NOT EXISTS blocks_ethereum_idx ON blocks (ethereum_block_hash)`,
		`CREATE INDEX IF NOT EXISTS tx_ethereum_hash_idx ON transactions (ethereum_transaction_hash)`,
		`CREATE INDEX IF NOT EXISTS tx_ethereum_block_idx ON transactions (ethereum_block_hash, ethereum_transaction_index)`,
	}
	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
