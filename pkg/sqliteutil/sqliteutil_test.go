package sqliteutil

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data.db")
	db, err := OpenDB(path)
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	require.Equal(t, "wal", mode)
}

func TestIsConstraint(t *testing.T) {
	db, err := OpenDB(":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("CREATE TABLE t (k TEXT UNIQUE NOT NULL)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO t (k) VALUES ('a')")
	require.NoError(t, err)

	_, err = db.Exec("INSERT INTO t (k) VALUES ('a')")
	require.Error(t, err)
	require.True(t, IsConstraint(err))

	_, err = db.Exec("INSERT INTO t (k) VALUES (NULL)")
	require.True(t, IsConstraint(err))

	_, err = db.Exec("INSERT INTO missing (k) VALUES ('a')")
	require.Error(t, err)
	require.False(t, IsConstraint(err))

	require.False(t, IsConstraint(nil))
	require.False(t, IsConstraint(errors.New("connection reset")))
}

func TestIsRemote(t *testing.T) {
	require.True(t, IsRemote("libsql://my-db.turso.io?authToken=abc"))
	require.True(t, IsRemote("https://my-db.turso.io"))
	require.False(t, IsRemote("application/maimai_data.db"))
	require.False(t, IsRemote(":memory:"))
}
