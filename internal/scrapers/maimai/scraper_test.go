package maimai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"maimai-scraper/internal/components/chrono"
	"maimai-scraper/internal/components/telemetry"
	"maimai-scraper/internal/db"
	"maimai-scraper/internal/metadata"
	"maimai-scraper/internal/store"
	"maimai-scraper/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

type fakePages struct {
	mutex   sync.Mutex
	records []byte
	detail  []byte
	player  []byte
	scores  map[Difficulty][]byte
	failing map[string]error

	detailCalls []string
}

func newFakePages(t testing.TB) *fakePages {
	return &fakePages{
		records: readFixture(t, "record.html"),
		detail:  readFixture(t, "playlog_detail.html"),
		player:  readFixture(t, "player_data.html"),
		scores:  map[Difficulty][]byte{},
		failing: map[string]error{},
	}
}

func (f *fakePages) parse(contents []byte) (*goquery.Document, error) {
	return htmlutil.Parse(contents)
}

func (f *fakePages) fail(key string, err error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if err == nil {
		delete(f.failing, key)
		return
	}
	f.failing[key] = err
}

func (f *fakePages) Records(ctx context.Context) (*goquery.Document, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if err := f.failing["records"]; err != nil {
		return nil, err
	}
	return f.parse(f.records)
}

func (f *fakePages) Detail(ctx context.Context, idx string) (*goquery.Document, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.detailCalls = append(f.detailCalls, idx)
	if err := f.failing[idx]; err != nil {
		return nil, err
	}
	return f.parse(f.detail)
}

func (f *fakePages) PlayerData(ctx context.Context) (*goquery.Document, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.parse(f.player)
}

func (f *fakePages) ScoreListing(ctx context.Context, diff Difficulty) (*goquery.Document, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if err := f.failing[string(diff)]; err != nil {
		return nil, err
	}
	page, ok := f.scores[diff]
	if !ok {
		page = []byte("<html><body></body></html>")
	}
	return f.parse(page)
}

type scraperHarness struct {
	scraper *Scraper
	pages   *fakePages
	store   *store.Store
	clock   *chrono.FixedImpl
	meta    *metadata.Manager
	tel     *telemetry.RecordingAPI
}

func newScraperHarness(t *testing.T) scraperHarness {
	t.Helper()
	ctx := context.Background()

	tel := &telemetry.RecordingAPI{}
	s, err := db.Open(ctx, ":memory:", tel)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := chrono.NewFixedImpl(time.Date(2025, 4, 18, 21, 30, 0, 0, time.UTC))
	meta, err := metadata.NewManager(ctx, s, clock, tel)
	require.NoError(t, err)

	pages := newFakePages(t)
	return scraperHarness{
		scraper: NewScraper(pages, s, meta, clock, tel, Options{}),
		pages:   pages,
		store:   s,
		clock:   clock,
		meta:    meta,
		tel:     tel,
	}
}

func (h scraperHarness) plays(t *testing.T) []db.PlayData {
	t.Helper()
	var out []db.PlayData
	for _, rec := range h.store.SelectQuery(context.Background(), db.PlayDataTable, store.Query{OrderBy: "id"}) {
		out = append(out, db.PlayDataFromRecord(rec))
	}
	return out
}

func TestRunCycle(t *testing.T) {
	ctx := context.Background()
	h := newScraperHarness(t)

	report, err := h.scraper.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, CycleReport{Seen: 3, Inserted: 3, Detailed: 3}, report)

	plays := h.plays(t)
	require.Len(t, plays, 3)

	// oldest play first
	require.Equal(t, "1745000100", *plays[0].Idx)
	require.Equal(t, "1745000200", *plays[1].Idx)
	require.Equal(t, "1745000300", *plays[2].Idx)
	require.Equal(t, []string{"1745000100", "1745000200", "1745000300"}, h.pages.detailCalls)

	for _, p := range plays {
		require.True(t, *p.Detailed, *p.Idx)
		require.Equal(t, "1", *p.PlayDataVersion)
		require.Equal(t, h.clock.Now().Unix(), *p.ScrapedAt)
		require.Equal(t, "500 / 20 / 3 / 0 / 1", *p.TapDetail)
		require.Equal(t, int64(899), *p.MaxCombo)
	}

	// listing fields survive the detail merge
	require.Equal(t, "PANDORA PARADOXXX", *plays[2].Title)
	require.Equal(t, "4th", *plays[2].Place)
	require.Equal(t, "FC+", *plays[2].ComboStatus)

	require.Equal(t, h.clock.Now().Unix(), *h.meta.Version().LastScrapedAt)
	require.True(t, h.tel.Has("count", report_scraper_cycle_new))
	require.Empty(t, h.tel.Reports("broken"))
}

func TestRunCycleIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newScraperHarness(t)

	_, err := h.scraper.RunCycle(ctx)
	require.NoError(t, err)
	before := h.plays(t)

	h.clock.Advance(5 * time.Minute)
	report, err := h.scraper.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, CycleReport{Seen: 3, Skipped: 3}, report)

	after := h.plays(t)
	require.Equal(t, before, after)
	require.Len(t, h.pages.detailCalls, 3)
}

func TestRunCycleIsolatesDetailFailures(t *testing.T) {
	ctx := context.Background()
	h := newScraperHarness(t)

	h.pages.fail("1745000200", fmt.Errorf("connection reset"))
	report, err := h.scraper.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, CycleReport{Seen: 3, Inserted: 3, Detailed: 2, Failed: 1}, report)
	require.True(t, h.tel.Has("warning", report_scraper_detail))

	detailed := map[string]bool{}
	for _, p := range h.plays(t) {
		detailed[*p.Idx] = *p.Detailed
	}
	require.Equal(t, map[string]bool{
		"1745000100": true,
		"1745000200": false,
		"1745000300": true,
	}, detailed)

	// the next cycle picks the row back up
	h.pages.fail("1745000200", nil)
	report, err = h.scraper.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, CycleReport{Seen: 3, Skipped: 3, Detailed: 1}, report)
	for _, p := range h.plays(t) {
		require.True(t, *p.Detailed, *p.Idx)
	}
}

func TestRunCycleBackfillsOrphans(t *testing.T) {
	ctx := context.Background()
	h := newScraperHarness(t)

	// a row left behind by an earlier run that has since scrolled off the
	// records page
	_, err := h.store.Upsert(ctx, db.PlayDataTable, db.PlayData{
		Idx:        db.Ptr("1700000000"),
		Title:      db.Ptr("Old Song"),
		Difficulty: db.Ptr("basic"),
		Detailed:   db.Ptr(false),
	}.ToRecord())
	require.NoError(t, err)

	report, err := h.scraper.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, CycleReport{Seen: 3, Inserted: 3, Detailed: 4}, report)
	require.Equal(t, "1700000000", h.pages.detailCalls[0])
}

func TestRunCycleMissingDetailTable(t *testing.T) {
	ctx := context.Background()
	h := newScraperHarness(t)
	h.pages.detail = []byte("<html><body>nothing here</body></html>")

	report, err := h.scraper.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, CycleReport{Seen: 3, Inserted: 3, Failed: 3}, report)
	for _, p := range h.plays(t) {
		require.False(t, *p.Detailed)
	}
}

func TestRunCycleSkipsUnavailableDetail(t *testing.T) {
	ctx := context.Background()
	h := newScraperHarness(t)
	p, endpoints := newPortal(t)
	client, _ := newTestClient(t, endpoints)
	require.NoError(t, client.Login(ctx, "player", "hunter2"))
	scraper := NewScraper(client, h.store, h.meta, h.clock, h.tel, Options{MaxDetailAttempts: 2})

	// an older play the portal has since dropped from its history, it is
	// first in line every cycle
	_, err := h.store.Upsert(ctx, db.PlayDataTable, db.PlayData{
		Idx:        db.Ptr("1700000000"),
		Title:      db.Ptr("Old Song"),
		Difficulty: db.Ptr("basic"),
		Detailed:   db.Ptr(false),
	}.ToRecord())
	require.NoError(t, err)
	p.forget("1700000000")

	report, err := scraper.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, CycleReport{Seen: 3, Inserted: 3, Detailed: 3, Failed: 1}, report)

	report, err = scraper.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, CycleReport{Seen: 3, Skipped: 3, Failed: 1}, report)
	require.True(t, h.tel.Has("warning", report_scraper_abandon))

	// out of attempts, the play is no longer fetched
	report, err = scraper.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, CycleReport{Seen: 3, Skipped: 3, Abandoned: 1}, report)

	p.mutex.Lock()
	fetched := 0
	for _, idx := range p.details {
		if idx == "1700000000" {
			fetched++
		}
	}
	p.mutex.Unlock()
	require.Equal(t, 2, fetched)

	for _, play := range h.plays(t) {
		if *play.Idx == "1700000000" {
			require.False(t, *play.Detailed)
			require.Equal(t, int64(2), *play.DetailAttempts)
			continue
		}
		require.True(t, *play.Detailed, *play.Idx)
	}
}

func TestRunCycleDetailAttempts(t *testing.T) {
	ctx := context.Background()
	h := newScraperHarness(t)
	h.scraper = NewScraper(h.pages, h.store, h.meta, h.clock, h.tel, Options{MaxDetailAttempts: 2})

	// transport failures are retried without limit
	h.pages.fail("1745000200", fmt.Errorf("connection reset"))
	for i := 0; i < 3; i++ {
		report, err := h.scraper.RunCycle(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, report.Failed)
		require.Zero(t, report.Abandoned)
	}
	require.Nil(t, h.plays(t)[1].DetailAttempts)

	h.pages.fail("1745000200", ErrNoDetailTable)
	for i := 0; i < 2; i++ {
		report, err := h.scraper.RunCycle(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, report.Failed)
	}
	require.Equal(t, int64(2), *h.plays(t)[1].DetailAttempts)

	calls := len(h.pages.detailCalls)
	report, err := h.scraper.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, CycleReport{Seen: 3, Skipped: 3, Abandoned: 1}, report)
	require.Len(t, h.pages.detailCalls, calls)
}

func TestRunCycleFatalErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("records page", func(t *testing.T) {
		h := newScraperHarness(t)
		h.pages.fail("records", fmt.Errorf("timeout"))
		report, err := h.scraper.RunCycle(ctx)
		require.Error(t, err)
		require.Equal(t, CycleReport{}, report)
		require.Empty(t, h.plays(t))
	})

	t.Run("session lost", func(t *testing.T) {
		h := newScraperHarness(t)
		h.pages.fail("1745000100", ErrSessionExpired)
		_, err := h.scraper.RunCycle(ctx)
		require.ErrorIs(t, err, ErrSessionExpired)
		require.Nil(t, h.meta.Version().LastScrapedAt)
	})

	t.Run("cancelled", func(t *testing.T) {
		h := newScraperHarness(t)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := h.scraper.RunCycle(cancelled)
		require.Error(t, err)
		require.True(t, errors.Is(err, context.Canceled) || errors.Is(err, ErrStorage))
	})
}

func TestSongAggregate(t *testing.T) {
	ctx := context.Background()
	h := newScraperHarness(t)

	_, err := h.scraper.RunCycle(ctx)
	require.NoError(t, err)

	rec, ok := h.store.SelectOne(ctx, db.SongDataTable, store.Record{
		"song_title": store.Text("PANDORA PARADOXXX"),
		"song_type":  store.Text("dx"),
	})
	require.True(t, ok)
	song := db.SongDataFromRecord(rec)
	require.Equal(t, "100.2345%", *song.Bests["master"].Score)
	require.Equal(t, "2,345 / 2,700", *song.Bests["master"].DxScore)

	require.Len(t, h.store.Select(ctx, db.SongDataTable, nil, 0), 3)
}

func TestRefreshScores(t *testing.T) {
	ctx := context.Background()
	h := newScraperHarness(t)
	h.pages.scores[DifficultyMaster] = readFixture(t, "music_master.html")
	h.pages.fail(string(DifficultyBasic), fmt.Errorf("bad gateway"))

	updated, err := h.scraper.RefreshScores(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, updated)
	require.True(t, h.tel.Has("warning", report_scraper_scores))

	rec, ok := h.store.SelectOne(ctx, db.SongDataTable, store.Record{
		"song_title": store.Text("Ref:rain"),
		"song_type":  store.Text("dx"),
	})
	require.True(t, ok)
	require.Equal(t, "99.1000%", *db.SongDataFromRecord(rec).Bests["master"].Score)

	// nothing new the second time around
	updated, err = h.scraper.RefreshScores(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, updated)

	h.pages.fail(string(DifficultyAdvanced), ErrSessionExpired)
	_, err = h.scraper.RefreshScores(ctx)
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestRecordPlayer(t *testing.T) {
	ctx := context.Background()
	h := newScraperHarness(t)

	added, err := h.scraper.RecordPlayer(ctx)
	require.NoError(t, err)
	require.True(t, added)

	added, err = h.scraper.RecordPlayer(ctx)
	require.NoError(t, err)
	require.False(t, added)

	h.pages.player = []byte(`<div class="name_block">ＭＡＩＭＡＩ</div><div class="rating_block">15300</div><div>play count: 1,235</div>`)
	h.clock.Advance(time.Hour)
	added, err = h.scraper.RecordPlayer(ctx)
	require.NoError(t, err)
	require.True(t, added)

	rows := h.store.SelectQuery(ctx, db.PlayerDataTable, store.Query{OrderBy: "id"})
	require.Len(t, rows, 2)
	latest := db.PlayerDataFromRecord(rows[1])
	require.Equal(t, int64(1235), *latest.TotalPlays)
	require.Equal(t, int64(15300), *latest.Rating)
	require.Equal(t, h.clock.Now().Unix(), *latest.ObservedAt)

	h.pages.player = []byte(`<html><body>logged out</body></html>`)
	added, err = h.scraper.RecordPlayer(ctx)
	require.NoError(t, err)
	require.False(t, added)
	require.True(t, h.tel.Has("warning", report_scraper_player))
}
