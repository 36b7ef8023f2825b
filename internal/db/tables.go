package db

import (
	"maimai-scraper/internal/store"
)

func integer(name string) store.Column { return store.Column{Name: name, Type: store.TypeInteger} }
func text(name string) store.Column    { return store.Column{Name: name, Type: store.TypeText} }
func boolean(name string) store.Column { return store.Column{Name: name, Type: store.TypeBoolean} }

func autoID() store.Column {
	return store.Column{Name: "id", Type: store.TypeInteger, PrimaryKey: true, AutoIncrement: true}
}

func notNull(c store.Column) store.Column {
	c.NotNull = true
	return c
}

// PlayDataTable holds one row per play, keyed externally by the portal's
// idx. Rows are inserted from the listing and filled in from the detail page.
var PlayDataTable = store.Table{
	Name: "play_data",
	Columns: []store.Column{
		autoID(),
		{Name: "idx", Type: store.TypeText, NotNull: true, Unique: true},
		notNull(text("title")),
		notNull(text("difficulty")),
		text("track"),
		text("music_type"),
		text("place"),
		text("played_at"),
		text("achievement"),
		text("rank"),
		text("score"),
		integer("dx_score"),
		integer("dx_score_max"),
		integer("dx_stars"),
		text("combo_status"),
		text("sync_status"),
		boolean("new_achievement"),
		boolean("new_dx_score"),
		integer("fast"),
		integer("late"),
		text("tap_detail"),
		text("hold_detail"),
		text("slide_detail"),
		text("touch_detail"),
		text("break_detail"),
		integer("max_combo"),
		integer("max_combo_total"),
		integer("max_sync"),
		integer("max_sync_total"),
		notNull(boolean("detailed")),
		integer("detail_attempts"),
		text("play_data_version"),
		integer("scraped_at"),
	},
	Indexes: []store.Index{
		{Name: "idx_play_data_idx", Columns: []string{"idx"}, Unique: true},
		{Name: "idx_play_data_detailed", Columns: []string{"detailed"}},
	},
	NaturalKey: []string{"idx"},
	Merge:      store.MergeByPrimaryKey,
}

// SongDataTable aggregates the best result per difficulty of every chart.
var SongDataTable = store.Table{
	Name: "song_data",
	Columns: []store.Column{
		autoID(),
		notNull(text("song_title")),
		notNull(text("song_type")),
		text("score_basic"),
		text("dx_score_basic"),
		text("score_advanced"),
		text("dx_score_advanced"),
		text("score_expert"),
		text("dx_score_expert"),
		text("score_master"),
		text("dx_score_master"),
		text("score_remaster"),
		text("dx_score_remaster"),
	},
	Indexes: []store.Index{
		{Name: "idx_song_data_key", Columns: []string{"song_title", "song_type"}, Unique: true},
	},
	NaturalKey: []string{"song_title", "song_type"},
	Merge:      store.MergeByNaturalKey,
}

var PlayerDataTable = store.Table{
	Name: "player_data",
	Columns: []store.Column{
		autoID(),
		text("player_name"),
		integer("rating"),
		notNull(integer("total_plays")),
		integer("observed_at"),
	},
	Merge: store.MergeByPrimaryKey,
}

var MetadataTable = store.Table{
	Name: "metadata",
	Columns: []store.Column{
		{Name: "id", Type: store.TypeInteger, PrimaryKey: true},
		notNull(text("scraper_version")),
		notNull(text("database_version")),
		notNull(text("play_data_version")),
		integer("last_scraped_at"),
	},
	NaturalKey: []string{"id"},
	Merge:      store.MergeByPrimaryKey,
}

// Tables is every table of the database in creation order.
var Tables = []store.Table{
	PlayDataTable,
	PlayerDataTable,
	SongDataTable,
	MetadataTable,
}
