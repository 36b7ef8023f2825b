package db

import (
	"maimai-scraper/internal/store"
)

// MetadataID is the id of the only row of the metadata table.
const MetadataID int64 = 1

type Metadata struct {
	ID              *int64
	ScraperVersion  *string
	DatabaseVersion *string
	PlayDataVersion *string
	LastScrapedAt   *int64
}

func (m Metadata) ToRecord() store.Record {
	return store.Record{
		"id":                store.IntPtr(m.ID),
		"scraper_version":   store.TextPtr(m.ScraperVersion),
		"database_version":  store.TextPtr(m.DatabaseVersion),
		"play_data_version": store.TextPtr(m.PlayDataVersion),
		"last_scraped_at":   store.IntPtr(m.LastScrapedAt),
	}
}

func MetadataFromRecord(r store.Record) Metadata {
	return Metadata{
		ID:              r.Get("id").AsIntPtr(),
		ScraperVersion:  r.Get("scraper_version").AsTextPtr(),
		DatabaseVersion: r.Get("database_version").AsTextPtr(),
		PlayDataVersion: r.Get("play_data_version").AsTextPtr(),
		LastScrapedAt:   r.Get("last_scraped_at").AsIntPtr(),
	}
}
