package sqliteutil

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

func wrapOpenDB(err error) error {
	return fmt.Errorf("open db: %w", err)
}

// IsRemote returns true if the path points to a libsql server instead of a
// local file.
func IsRemote(path string) bool {
	return strings.HasPrefix(path, "libsql://") ||
		strings.HasPrefix(path, "https://") ||
		strings.HasPrefix(path, "http://")
}

// OpenDB opens a local sqlite file (creating its parent directory) or a
// remote libsql database when given a libsql url.
func OpenDB(path string) (*sql.DB, error) {
	if IsRemote(path) {
		db, err := sql.Open("libsql", path)
		if err != nil {
			return nil, wrapOpenDB(err)
		}
		db.SetMaxOpenConns(1)
		return db, nil
	}

	if path != ":memory:" {
		err := os.MkdirAll(filepath.Dir(path), 0777)
		if err != nil {
			return nil, wrapOpenDB(err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrapOpenDB(err)
	}

	// see this stackoverflow post for information on why the following
	// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	db.SetMaxOpenConns(1)
	if path != ":memory:" {
		_, err = db.Exec("PRAGMA journal_mode=WAL")
		if err != nil {
			db.Close()
			return nil, wrapOpenDB(err)
		}
	}

	return db, nil
}

// IsConstraint reports whether err is a unique, not null, primary key or
// check constraint violation.
func IsConstraint(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	// libsql reports errors from the server as plain strings
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_CONSTRAINT") ||
		strings.Contains(msg, "constraint failed")
}
