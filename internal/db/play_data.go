package db

import (
	"maimai-scraper/internal/store"
)

// PlayData is a single play. Every field is optional so that a partially
// filled PlayData can be merged into the stored row without clobbering it.
type PlayData struct {
	ID         *int64
	Idx        *string
	Title      *string
	Difficulty *string
	Track      *string
	MusicType  *string
	Place      *string
	PlayedAt   *string

	Achievement *string
	Rank        *string
	// Score is the raw deluxe score text as displayed ("1,843 / 2,100").
	Score      *string
	DxScore    *int64
	DxScoreMax *int64
	DxStars    *int64

	ComboStatus    *string
	SyncStatus     *string
	NewAchievement *bool
	NewDxScore     *bool

	Fast *int64
	Late *int64

	TapDetail   *string
	HoldDetail  *string
	SlideDetail *string
	TouchDetail *string
	BreakDetail *string

	MaxCombo      *int64
	MaxComboTotal *int64
	MaxSync       *int64
	MaxSyncTotal  *int64

	Detailed *bool
	// DetailAttempts counts the cycles whose detail fetch came back without
	// a usable detail page.
	DetailAttempts  *int64
	PlayDataVersion *string
	ScrapedAt       *int64
}

func (p PlayData) ToRecord() store.Record {
	return store.Record{
		"id":                store.IntPtr(p.ID),
		"idx":               store.TextPtr(p.Idx),
		"title":             store.TextPtr(p.Title),
		"difficulty":        store.TextPtr(p.Difficulty),
		"track":             store.TextPtr(p.Track),
		"music_type":        store.TextPtr(p.MusicType),
		"place":             store.TextPtr(p.Place),
		"played_at":         store.TextPtr(p.PlayedAt),
		"achievement":       store.TextPtr(p.Achievement),
		"rank":              store.TextPtr(p.Rank),
		"score":             store.TextPtr(p.Score),
		"dx_score":          store.IntPtr(p.DxScore),
		"dx_score_max":      store.IntPtr(p.DxScoreMax),
		"dx_stars":          store.IntPtr(p.DxStars),
		"combo_status":      store.TextPtr(p.ComboStatus),
		"sync_status":       store.TextPtr(p.SyncStatus),
		"new_achievement":   store.BoolPtr(p.NewAchievement),
		"new_dx_score":      store.BoolPtr(p.NewDxScore),
		"fast":              store.IntPtr(p.Fast),
		"late":              store.IntPtr(p.Late),
		"tap_detail":        store.TextPtr(p.TapDetail),
		"hold_detail":       store.TextPtr(p.HoldDetail),
		"slide_detail":      store.TextPtr(p.SlideDetail),
		"touch_detail":      store.TextPtr(p.TouchDetail),
		"break_detail":      store.TextPtr(p.BreakDetail),
		"max_combo":         store.IntPtr(p.MaxCombo),
		"max_combo_total":   store.IntPtr(p.MaxComboTotal),
		"max_sync":          store.IntPtr(p.MaxSync),
		"max_sync_total":    store.IntPtr(p.MaxSyncTotal),
		"detailed":          store.BoolPtr(p.Detailed),
		"detail_attempts":   store.IntPtr(p.DetailAttempts),
		"play_data_version": store.TextPtr(p.PlayDataVersion),
		"scraped_at":        store.IntPtr(p.ScrapedAt),
	}
}

func PlayDataFromRecord(r store.Record) PlayData {
	return PlayData{
		ID:              r.Get("id").AsIntPtr(),
		Idx:             r.Get("idx").AsTextPtr(),
		Title:           r.Get("title").AsTextPtr(),
		Difficulty:      r.Get("difficulty").AsTextPtr(),
		Track:           r.Get("track").AsTextPtr(),
		MusicType:       r.Get("music_type").AsTextPtr(),
		Place:           r.Get("place").AsTextPtr(),
		PlayedAt:        r.Get("played_at").AsTextPtr(),
		Achievement:     r.Get("achievement").AsTextPtr(),
		Rank:            r.Get("rank").AsTextPtr(),
		Score:           r.Get("score").AsTextPtr(),
		DxScore:         r.Get("dx_score").AsIntPtr(),
		DxScoreMax:      r.Get("dx_score_max").AsIntPtr(),
		DxStars:         r.Get("dx_stars").AsIntPtr(),
		ComboStatus:     r.Get("combo_status").AsTextPtr(),
		SyncStatus:      r.Get("sync_status").AsTextPtr(),
		NewAchievement:  r.Get("new_achievement").AsBoolPtr(),
		NewDxScore:      r.Get("new_dx_score").AsBoolPtr(),
		Fast:            r.Get("fast").AsIntPtr(),
		Late:            r.Get("late").AsIntPtr(),
		TapDetail:       r.Get("tap_detail").AsTextPtr(),
		HoldDetail:      r.Get("hold_detail").AsTextPtr(),
		SlideDetail:     r.Get("slide_detail").AsTextPtr(),
		TouchDetail:     r.Get("touch_detail").AsTextPtr(),
		BreakDetail:     r.Get("break_detail").AsTextPtr(),
		MaxCombo:        r.Get("max_combo").AsIntPtr(),
		MaxComboTotal:   r.Get("max_combo_total").AsIntPtr(),
		MaxSync:         r.Get("max_sync").AsIntPtr(),
		MaxSyncTotal:    r.Get("max_sync_total").AsIntPtr(),
		Detailed:        r.Get("detailed").AsBoolPtr(),
		DetailAttempts:  r.Get("detail_attempts").AsIntPtr(),
		PlayDataVersion: r.Get("play_data_version").AsTextPtr(),
		ScrapedAt:       r.Get("scraped_at").AsIntPtr(),
	}
}
