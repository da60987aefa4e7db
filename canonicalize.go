package evmsqlindex

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Canonicalize flips is_canon for the retracted and enacted sets in one
// transaction: retracted first, then enacted, both parameter-bound
// (never string-interpolated). Either list may be empty. Because
// canonicalization is the only way is_canon changes, and this method is
// atomic across both sets, two overlapping reorg notifications always
// leave is_canon reflecting whichever call commits last (spec.md §4.5,
// P3). Grounded on frontier-sql's canonicalize.
func (b *Backend) Canonicalize(ctx context.Context, retracted, enacted []common.Hash) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendIO, err)
	}
	defer tx.Rollback()

	if err := setCanon(ctx, tx, retracted, 0); err != nil {
		return err
	}
	if err := setCanon(ctx, tx, enacted, 1); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendIO, err)
	}
	return nil
}

func setCanon(ctx context.Context, tx *sql.Tx, hashes []common.Hash, canon int) error {
	if len(hashes) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("UPDATE blocks SET is_canon = ?")
	sb.WriteString(" WHERE substrate_block_hash IN (")
	args := make([]any, 0, len(hashes)+1)
	args = append(args, canon)
	for i, h := range hashes {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("?")
		args = append(args, h.Bytes())
	}
	sb.WriteString(")")

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendIO, err)
	}
	return nil
}
