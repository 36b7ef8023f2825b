package db

import (
	"context"

	"maimai-scraper/internal/components/telemetry"
	"maimai-scraper/internal/store"
	"maimai-scraper/pkg/sqliteutil"
)

// FileName is the name of the database file inside the application data
// directory.
const FileName = "maimai_data.db"

// Open opens the database at path and makes sure every table exists.
func Open(ctx context.Context, path string, tel telemetry.API) (*store.Store, error) {
	sqldb, err := sqliteutil.OpenDB(path)
	if err != nil {
		return nil, err
	}
	s := store.New(sqldb, Tables, telemetry.NewScopedAPI("db", tel))
	s.EnsureSchema(ctx)
	return s, nil
}

// Ptr returns a pointer to v, for filling in the optional fields of the
// entities in this package.
func Ptr[T any](v T) *T {
	return &v
}
