// Package evmsqlindex is a secondary SQL-backed index for an
// EVM-compatible blockchain node. It projects the information needed to
// answer eth_getLogs-family queries over arbitrary block ranges into a
// SQLite schema, kept consistent under concurrent, idempotent ingestion
// and asynchronous reorg notifications.
package evmsqlindex

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver
)

// SQLiteConfig is the connection configuration for the currently
// supported backend. CacheSizeKiB is given in KiB, as a positive number
// here; it is passed to SQLite as a negative PRAGMA value per
// https://www.sqlite.org/pragma.html#pragma_cache_size.
type SQLiteConfig struct {
	Path            string
	CreateIfMissing bool
	ThreadCount     uint32
	CacheSizeKiB    uint64
}

// Config is the tagged configuration value selecting a backing engine.
// SQLite is the only backend currently specified; the tag exists so a
// future backend can be added without breaking New's signature.
type Config struct {
	SQLite *SQLiteConfig
}

// Backend is the indexer: connection pool, override table, and query
// budget, the sole owner of the blocks/transactions/logs/sync_status
// relations.
type Backend struct {
	db            *sql.DB
	overrides     *OverrideHandle
	numOpsTimeout int32
}

// New opens (creating if configured to) the store at config.Path,
// installs the schema if absent, and returns a ready Backend. Open is
// idempotent on an existing store.
func New(ctx context.Context, config Config, poolSize uint32, numOpsTimeout uint32, overrides *OverrideHandle) (*Backend, error) {
	if config.SQLite == nil {
		return nil, fmt.Errorf("%w: no backend configured", ErrConfig)
	}
	sqliteCfg := config.SQLite
	if sqliteCfg.Path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrConfig)
	}

	dsn := sqliteCfg.Path
	if !sqliteCfg.CreateIfMissing {
		dsn = dsn + "?mode=rw"
	}

	log.Info("evmsqlindex: opening store", "path", sqliteCfg.Path, "create_if_missing", sqliteCfg.CreateIfMissing)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening sqlite store: %v", ErrConfig, err)
	}
	if poolSize == 0 {
		poolSize = 1
	}
	db.SetMaxOpenConns(int(poolSize))

	connect := func(ctx context.Context) error {
		conn, err := db.Conn(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()
		return applyPragmas(ctx, conn, sqliteCfg)
	}
	if err := connect(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: applying pragmas: %v", ErrConfig, err)
	}

	b := &Backend{
		db:            db,
		overrides:     overrides,
		numOpsTimeout: clampToInt32(numOpsTimeout),
	}

	if err := b.createTablesIfNotExist(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if err := b.createIndexesIfNotExist(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	return b, nil
}

// applyPragmas configures one connection for crash-safe concurrent
// access: WAL journaling, NORMAL durability, an 8 second busy timeout,
// in-memory temp storage, and an analysis_limit of 1000 rows.
func applyPragmas(ctx context.Context, conn *sql.Conn, cfg *SQLiteConfig) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 8000",
		"PRAGMA temp_store = memory",
		"PRAGMA analysis_limit = 1000",
		fmt.Sprintf("PRAGMA cache_size = -%d", cfg.CacheSizeKiB),
		fmt.Sprintf("PRAGMA threads = %d", cfg.ThreadCount),
	}
	for _, p := range pragmas {
		if _, err := conn.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func clampToInt32(v uint32) int32 {
	if v > uint32(1<<31-1) {
		return 1<<31 - 1
	}
	return int32(v)
}

// Close releases the connection pool.
func (b *Backend) Close() error {
	return b.db.Close()
}

// IsIndexed always reports true: a constructed Backend is, by
// definition, an indexed reader.
func (b *Backend) IsIndexed() bool { return true }
