package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"maimai-scraper/internal/components/telemetry"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

var plays = Table{
	Name: "plays",
	Columns: []Column{
		{Name: "id", Type: TypeInteger, PrimaryKey: true, AutoIncrement: true},
		{Name: "idx", Type: TypeText, NotNull: true, Unique: true},
		{Name: "title", Type: TypeText, NotNull: true},
		{Name: "score", Type: TypeInteger},
		{Name: "detailed", Type: TypeBoolean, NotNull: true},
	},
	Indexes: []Index{
		{Name: "idx_plays_idx", Columns: []string{"idx"}, Unique: true},
		{Name: "idx_plays_detailed", Columns: []string{"detailed"}},
	},
	NaturalKey: []string{"idx"},
	Merge:      MergeByPrimaryKey,
}

var songs = Table{
	Name: "songs",
	Columns: []Column{
		{Name: "id", Type: TypeInteger, PrimaryKey: true, AutoIncrement: true},
		{Name: "title", Type: TypeText, NotNull: true},
		{Name: "kind", Type: TypeText, NotNull: true},
		{Name: "best_master", Type: TypeText},
		{Name: "best_expert", Type: TypeText},
	},
	Indexes: []Index{
		{Name: "idx_songs_key", Columns: []string{"title", "kind"}, Unique: true},
	},
	NaturalKey: []string{"title", "kind"},
	Merge:      MergeByNaturalKey,
}

func newTestStore(t testing.TB) (*Store, *telemetry.RecordingAPI) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	rec := &telemetry.RecordingAPI{}
	s := New(db, []Table{plays, songs}, rec)
	s.EnsureSchema(context.Background())
	require.Empty(t, rec.Reports("broken"))

	t.Cleanup(func() { s.Close() })
	return s, rec
}

func play(idx, title string) Record {
	return Record{
		"idx":      Text(idx),
		"title":    Text(title),
		"detailed": Bool(false),
	}
}

func TestColumnDefinition(t *testing.T) {
	cases := []struct {
		column   Column
		expected string
	}{
		{
			column:   Column{Name: "id", Type: TypeInteger, PrimaryKey: true, AutoIncrement: true},
			expected: "id INTEGER PRIMARY KEY AUTOINCREMENT",
		},
		{
			column:   Column{Name: "idx", Type: TypeText, NotNull: true, Unique: true},
			expected: "idx TEXT NOT NULL UNIQUE",
		},
		{
			column:   Column{Name: "detailed", Type: TypeBoolean, NotNull: true},
			expected: "detailed BOOLEAN NOT NULL",
		},
		{
			column:   Column{Name: "track", Type: TypeText},
			expected: "track TEXT",
		},
	}
	for _, c := range cases {
		require.Equal(t, c.expected, c.column.Definition())
	}

	require.Equal(
		t,
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_songs_key ON songs (title, kind)",
		songs.Indexes[0].CreateSQL(songs.Name),
	)
	require.Equal(
		t,
		"CREATE INDEX IF NOT EXISTS idx_plays_detailed ON plays (detailed)",
		plays.Indexes[1].CreateSQL(plays.Name),
	)
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	s, rec := newTestStore(t)
	ctx := context.Background()

	s.EnsureSchema(ctx)
	s.EnsureSchema(ctx)
	require.Empty(t, rec.Reports("broken"))

	for _, name := range []string{"plays", "songs"} {
		exists, err := s.objectExists(ctx, "table", name)
		require.NoError(t, err)
		require.True(t, exists, name)
	}
	for _, name := range []string{"idx_plays_idx", "idx_plays_detailed", "idx_songs_key"} {
		exists, err := s.objectExists(ctx, "index", name)
		require.NoError(t, err)
		require.True(t, exists, name)
	}
}

func TestEnsureSchemaFailureIsReported(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	broken := Table{
		Name:    "broken",
		Columns: []Column{{Name: "a", Type: TypeText}},
		Indexes: []Index{{Name: "idx_broken", Columns: []string{"missing_column"}}},
	}
	rec := &telemetry.RecordingAPI{}
	s := New(db, []Table{broken, plays}, rec)
	s.EnsureSchema(context.Background())

	require.True(t, rec.Has("broken", report_store_ensure_schema))
	exists, err := s.objectExists(context.Background(), "table", "plays")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestInsertIdempotence(t *testing.T) {
	s, rec := newTestStore(t)
	ctx := context.Background()

	keys := []string{"1700000000", "1700000001", "1700000002"}
	for _, k := range keys {
		ok, err := s.Insert(ctx, plays, play(k, "Song "+k))
		require.NoError(t, err)
		require.True(t, ok)
	}
	for _, k := range keys {
		ok, err := s.Insert(ctx, plays, play(k, "Song "+k))
		require.NoError(t, err)
		require.False(t, ok)
	}

	require.Len(t, s.Select(ctx, plays, nil, 0), len(keys))
	require.Len(t, rec.Reports("warning"), len(keys))
	require.Empty(t, rec.Reports("broken"))
}

func TestInsertNotNullViolation(t *testing.T) {
	s, _ := newTestStore(t)

	ok, err := s.Insert(context.Background(), plays, Record{"idx": Text("1")})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInsertUnexpectedError(t *testing.T) {
	s, rec := newTestStore(t)

	missing := Table{Name: "missing", Columns: []Column{{Name: "a", Type: TypeText}}}
	ok, err := s.Insert(context.Background(), missing, Record{"a": Text("x")})
	require.Error(t, err)
	require.False(t, ok)
	require.True(t, rec.Has("broken", report_store_insert))
}

func TestInsertIgnoresUnknownFields(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	r := play("42", "Garakuta Doll Play")
	r["not_a_column"] = Text("ignored")
	ok, err := s.Insert(ctx, plays, r)
	require.NoError(t, err)
	require.True(t, ok)

	got, found := s.SelectOne(ctx, plays, Record{"idx": Text("42")})
	require.True(t, found)
	_, has := got["not_a_column"]
	require.False(t, has)
}

func TestRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	in := Record{
		"idx":      Text("1717171717"),
		"title":    Text("BREaK! BREaK! BREaK!"),
		"score":    Int(1005123),
		"detailed": Bool(true),
	}
	ok, err := s.Insert(ctx, plays, in)
	require.NoError(t, err)
	require.True(t, ok)

	got, found := s.SelectOne(ctx, plays, Record{"idx": in["idx"]})
	require.True(t, found)
	delete(got, "id")
	require.Empty(t, cmp.Diff(in, got, cmp.AllowUnexported(Value{})))
}

func TestSelectOneAbsentThenPresent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, found := s.SelectOne(ctx, plays, Record{"idx": Text("9999")})
	require.False(t, found)

	ok, err := s.Insert(ctx, plays, play("9999", "Link"))
	require.NoError(t, err)
	require.True(t, ok)

	got, found := s.SelectOne(ctx, plays, Record{"idx": Text("9999")})
	require.True(t, found)
	title, _ := got.Get("title").Text()
	require.Equal(t, "Link", title)
}

func TestSelectLimitAndFilter(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		r := play(fmt.Sprint(i), "Song")
		r["detailed"] = Bool(i%2 == 0)
		_, err := s.Insert(ctx, plays, r)
		require.NoError(t, err)
	}

	require.Len(t, s.Select(ctx, plays, nil, 0), 5)
	require.Len(t, s.Select(ctx, plays, nil, -1), 5)
	require.Len(t, s.Select(ctx, plays, nil, 2), 2)
	require.Len(t, s.Select(ctx, plays, Record{"detailed": Bool(true)}, 0), 3)
	require.Len(t, s.Select(ctx, plays, Record{"detailed": Bool(false)}, 0), 2)
	// unknown and null filter fields are ignored
	require.Len(t, s.Select(ctx, plays, Record{"bogus": Text("x"), "score": Null()}, 0), 5)

	ordered := s.SelectQuery(ctx, plays, Query{OrderBy: "id", Desc: true, Limit: 2})
	require.Len(t, ordered, 2)
	first, _ := ordered[0].Get("idx").Text()
	require.Equal(t, "4", first)
}

func TestSelectQueryUnknownOrderColumn(t *testing.T) {
	s, rec := newTestStore(t)

	rows := s.SelectQuery(context.Background(), plays, Query{OrderBy: "nope"})
	require.Empty(t, rows)
	require.True(t, rec.Has("broken", report_store_select))
}

func TestUpsertByPrimaryKey(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	r := play("100", "Oshama Scramble!")
	r["score"] = Int(990000)
	inserted, err := s.Upsert(ctx, plays, r)
	require.NoError(t, err)
	id, ok := inserted.Get("id").Int()
	require.True(t, ok)
	require.Positive(t, id)

	merged, err := s.Upsert(ctx, plays, Record{
		"id":       Int(id),
		"score":    Null(),
		"detailed": Bool(true),
	})
	require.NoError(t, err)

	stored, found := s.SelectOne(ctx, plays, Record{"id": Int(id)})
	require.True(t, found)
	require.Empty(t, cmp.Diff(merged, stored, cmp.AllowUnexported(Value{})))
	require.Equal(t, Record{
		"id":       Int(id),
		"idx":      Text("100"),
		"title":    Text("Oshama Scramble!"),
		"score":    Int(990000),
		"detailed": Bool(true),
	}, stored)
	require.Len(t, s.Select(ctx, plays, nil, 0), 1)
}

func TestUpsertConstraint(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, plays, play("7", "A"))
	require.NoError(t, err)

	// no id, so this is an insert that collides with idx
	_, err = s.Upsert(ctx, plays, play("7", "B"))
	require.ErrorIs(t, err, ErrConstraint)
}

func TestUpsertByNaturalKey(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, songs, Record{
		"title":       Text("Xaleid◆scopiX"),
		"kind":        Text("dx"),
		"best_master": Text("100.2000%"),
	})
	require.NoError(t, err)

	_, err = s.Upsert(ctx, songs, Record{
		"title":       Text("Xaleid◆scopiX"),
		"kind":        Text("dx"),
		"best_expert": Text("100.9000%"),
	})
	require.NoError(t, err)

	// different chart type is a different song
	_, err = s.Upsert(ctx, songs, Record{
		"title": Text("Xaleid◆scopiX"),
		"kind":  Text("standard"),
	})
	require.NoError(t, err)

	rows := s.Select(ctx, songs, Record{"title": Text("Xaleid◆scopiX"), "kind": Text("dx")}, 0)
	require.Len(t, rows, 1)
	require.Equal(t, Text("100.2000%"), rows[0].Get("best_master"))
	require.Equal(t, Text("100.9000%"), rows[0].Get("best_expert"))
	require.Len(t, s.Select(ctx, songs, nil, 0), 2)
}

func TestExists(t *testing.T) {
	s, rec := newTestStore(t)
	ctx := context.Background()

	require.False(t, s.Exists(ctx, plays, Text("1")))
	_, err := s.Insert(ctx, plays, play("1", "A"))
	require.NoError(t, err)
	require.True(t, s.Exists(ctx, plays, Text("1")))

	_, err = s.Upsert(ctx, songs, Record{"title": Text("A"), "kind": Text("dx")})
	require.NoError(t, err)
	require.True(t, s.Exists(ctx, songs, Text("A"), Text("dx")))
	require.False(t, s.Exists(ctx, songs, Text("A"), Text("standard")))

	require.False(t, s.Exists(ctx, songs, Text("A")))
	require.True(t, rec.Has("broken", report_store_exists))
}

func TestExistingKeys(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var keys []string
	for i := 0; i < existingKeysChunk+20; i++ {
		k := fmt.Sprint(i)
		keys = append(keys, k)
		if i%3 == 0 {
			_, err := s.Insert(ctx, plays, play(k, "Song"))
			require.NoError(t, err)
		}
	}

	existing := s.ExistingKeys(ctx, plays, keys)
	for i, k := range keys {
		require.Equal(t, i%3 == 0, existing[k], k)
	}
}

func TestMerge(t *testing.T) {
	prev := Record{"a": Int(1), "b": Text("keep"), "c": Bool(false)}
	incoming := Record{"a": Int(2), "b": Null(), "d": Text("new")}

	require.Equal(t, Record{
		"a": Int(2),
		"b": Text("keep"),
		"c": Bool(false),
		"d": Text("new"),
	}, Merge(prev, incoming))
}

func TestMergePreservesProperty(t *testing.T) {
	fields := []string{"a", "b", "c", "d"}
	record := func(values []int64, nulls []bool) Record {
		out := Record{}
		for i, f := range fields {
			if nulls[i] {
				out[f] = Null()
				continue
			}
			out[f] = Int(values[i])
		}
		return out
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("null fields of incoming keep prev", prop.ForAll(
		func(prevValues, incValues []int64, prevNulls, incNulls []bool) bool {
			prev := record(prevValues, prevNulls)
			incoming := record(incValues, incNulls)
			merged := Merge(prev, incoming)

			for i, f := range fields {
				expected := prev.Get(f)
				if !incNulls[i] {
					expected = incoming.Get(f)
				}
				if merged.Get(f) != expected {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(len(fields), gen.Int64()),
		gen.SliceOfN(len(fields), gen.Int64()),
		gen.SliceOfN(len(fields), gen.Bool()),
		gen.SliceOfN(len(fields), gen.Bool()),
	))

	properties.TestingRun(t)
}

func TestUpsertMergePreservesProperty(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	n := 0
	properties.Property("stored row equals merge of stored and incoming", prop.ForAll(
		func(score int64, scoreNull bool, detailed bool, title string, titleNull bool) bool {
			n++
			base := play(fmt.Sprintf("prop-%d", n), "original")
			base["score"] = Int(1)
			inserted, err := s.Upsert(ctx, plays, base)
			if err != nil {
				return false
			}

			incoming := Record{"id": inserted["id"], "detailed": Bool(detailed)}
			if !scoreNull {
				incoming["score"] = Int(score)
			}
			if !titleNull {
				incoming["title"] = Text(title)
			}
			_, err = s.Upsert(ctx, plays, incoming)
			if err != nil {
				return false
			}

			stored, found := s.SelectOne(ctx, plays, Record{"id": inserted["id"]})
			return found && cmp.Equal(Merge(inserted, incoming), stored, cmp.AllowUnexported(Value{}))
		},
		gen.Int64Range(0, 1010000),
		gen.Bool(),
		gen.Bool(),
		gen.AlphaString(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestUpsertCancelledContext(t *testing.T) {
	s, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Upsert(ctx, plays, play("1", "A"))
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrConstraint))
}
