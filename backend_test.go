package evmsqlindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestBackend opens a fresh on-disk SQLite store under t.TempDir(),
// torn down automatically via t.Cleanup. A single pooled connection
// keeps transactional tests deterministic without fighting SQLite's
// single-writer model.
func newTestBackend(t *testing.T, overrides *OverrideHandle) *Backend {
	t.Helper()
	return newTestBackendWithBudget(t, overrides, 0)
}

// newTestBackendWithBudget is like newTestBackend but lets a test pin a
// specific query budget (spec.md §4.7) instead of the default "no
// budget" value.
func newTestBackendWithBudget(t *testing.T, overrides *OverrideHandle, numOpsTimeout uint32) *Backend {
	t.Helper()

	dir := t.TempDir()
	cfg := Config{SQLite: &SQLiteConfig{
		Path:            filepath.Join(dir, "index.sqlite"),
		CreateIfMissing: true,
		ThreadCount:     1,
		CacheSizeKiB:    2000,
	}}

	b, err := New(context.Background(), cfg, 1, numOpsTimeout, overrides)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}
