package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-logistics-auth/internal/store"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	q := "SELECT id FROM users WHERE username = ? OR phone = ?"
	require.Equal(t, q, store.DialectSQLite.Rebind(q))
	require.Equal(t, "SELECT id FROM users WHERE username = $1 OR phone = $2", store.DialectPostgres.Rebind(q))
}

func TestOpenSQLiteAppliesSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "auth.db")
	db, err := store.OpenSQLite(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	for _, table := range []string{"companies", "users", "refresh_tokens", "password_resets"} {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
		require.Equal(t, table, name)
	}

	// reopening an existing file reapplies the schema without error
	db2, err := store.OpenSQLite(ctx, path)
	require.NoError(t, err)
	db2.Close()
}
