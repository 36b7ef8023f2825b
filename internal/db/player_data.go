package db

import (
	"maimai-scraper/internal/store"
)

type PlayerData struct {
	ID         *int64
	PlayerName *string
	Rating     *int64
	TotalPlays *int64
	ObservedAt *int64
}

func (p PlayerData) ToRecord() store.Record {
	return store.Record{
		"id":          store.IntPtr(p.ID),
		"player_name": store.TextPtr(p.PlayerName),
		"rating":      store.IntPtr(p.Rating),
		"total_plays": store.IntPtr(p.TotalPlays),
		"observed_at": store.IntPtr(p.ObservedAt),
	}
}

func PlayerDataFromRecord(r store.Record) PlayerData {
	return PlayerData{
		ID:         r.Get("id").AsIntPtr(),
		PlayerName: r.Get("player_name").AsTextPtr(),
		Rating:     r.Get("rating").AsIntPtr(),
		TotalPlays: r.Get("total_plays").AsIntPtr(),
		ObservedAt: r.Get("observed_at").AsIntPtr(),
	}
}
