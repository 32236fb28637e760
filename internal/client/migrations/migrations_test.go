package migrations

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openMem(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n))
	return n == 1
}

func TestUp_Prefs(t *testing.T) {
	db := openMem(t)
	ctx := context.Background()

	require.NoError(t, Up(ctx, db, Prefs))
	require.True(t, tableExists(t, db, "metadata"))
	require.False(t, tableExists(t, db, "audio"))

	v, err := Version(ctx, db)
	require.NoError(t, err)
	require.EqualValues(t, 1, v)

	// Idempotent.
	require.NoError(t, Up(ctx, db, Prefs))
}

func TestUp_Content(t *testing.T) {
	db := openMem(t)
	require.NoError(t, Up(context.Background(), db, Content))

	for _, tbl := range []string{"categories", "sub_categories", "notes", "faqs", "mcqs", "audio"} {
		require.True(t, tableExists(t, db, tbl), tbl)
	}
}

func TestUp_UnknownSet(t *testing.T) {
	db := openMem(t)
	require.Error(t, Up(context.Background(), db, Set("nope")))
}
