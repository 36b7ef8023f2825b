package db

import (
	"maimai-scraper/internal/store"
)

// Difficulties are the tiers that song_data keeps a best result for.
var Difficulties = []string{"basic", "advanced", "expert", "master", "remaster"}

// Best is the best result of a chart on one difficulty.
type Best struct {
	Score   *string
	DxScore *string
}

type SongData struct {
	ID        *int64
	SongTitle *string
	SongType  *string
	// Bests is keyed by difficulty name, see Difficulties.
	Bests map[string]Best
}

func (s SongData) ToRecord() store.Record {
	r := store.Record{
		"id":         store.IntPtr(s.ID),
		"song_title": store.TextPtr(s.SongTitle),
		"song_type":  store.TextPtr(s.SongType),
	}
	for _, diff := range Difficulties {
		best := s.Bests[diff]
		r["score_"+diff] = store.TextPtr(best.Score)
		r["dx_score_"+diff] = store.TextPtr(best.DxScore)
	}
	return r
}

func SongDataFromRecord(r store.Record) SongData {
	s := SongData{
		ID:        r.Get("id").AsIntPtr(),
		SongTitle: r.Get("song_title").AsTextPtr(),
		SongType:  r.Get("song_type").AsTextPtr(),
		Bests:     map[string]Best{},
	}
	for _, diff := range Difficulties {
		best := Best{
			Score:   r.Get("score_" + diff).AsTextPtr(),
			DxScore: r.Get("dx_score_" + diff).AsTextPtr(),
		}
		if best.Score != nil || best.DxScore != nil {
			s.Bests[diff] = best
		}
	}
	return s
}

// IsSongDifficulty returns true if song_data has columns for the difficulty.
func IsSongDifficulty(diff string) bool {
	for _, d := range Difficulties {
		if d == diff {
			return true
		}
	}
	return false
}
