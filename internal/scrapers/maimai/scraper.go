package maimai

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"maimai-scraper/internal/components/assert"
	"maimai-scraper/internal/components/chrono"
	"maimai-scraper/internal/components/telemetry"
	"maimai-scraper/internal/db"
	"maimai-scraper/internal/metadata"
	"maimai-scraper/internal/store"

	"github.com/PuerkitoBio/goquery"
	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_scraper_detail      = "scraper.detail"
	report_scraper_abandon     = "scraper.detail-abandon"
	report_scraper_song        = "scraper.song"
	report_scraper_player      = "scraper.player"
	report_scraper_scores      = "scraper.scores"
	report_scraper_cycle_seen  = "scraper.cycle-seen"
	report_scraper_cycle_new   = "scraper.cycle-inserted"
	report_scraper_cycle_fail  = "scraper.cycle-failed"
	report_scraper_cycle_stats = "scraper.cycle"
)

// ErrStorage wraps store failures that are not constraint violations, a
// cycle cannot continue after one.
var ErrStorage = errors.New("storage failure")

var tracer = otel.Tracer("maimai-scraper/scraper")

// Pages fetches the portal pages a cycle reads.
//
// note: fault injection point
type Pages interface {
	Records(ctx context.Context) (*goquery.Document, error)
	Detail(ctx context.Context, idx string) (*goquery.Document, error)
	PlayerData(ctx context.Context) (*goquery.Document, error)
	ScoreListing(ctx context.Context, diff Difficulty) (*goquery.Document, error)
}

// DefaultMaxDetailAttempts is used when Options.MaxDetailAttempts is not set.
const DefaultMaxDetailAttempts = 5

type Options struct {
	// WaitDelay is the base of the randomized delay before each detail
	// fetch, zero disables the delay.
	WaitDelay time.Duration
	// MaxDetailAttempts is the number of cycles a play may come back
	// without a usable detail page before it is no longer fetched.
	// Transport failures do not count.
	MaxDetailAttempts int
}

type CycleReport struct {
	Seen     int
	Inserted int
	Skipped  int
	Detailed int
	Failed   int
	// Abandoned is the number of pending plays not fetched because they
	// ran out of detail attempts.
	Abandoned int
}

type Scraper struct {
	pages Pages
	store *store.Store
	meta  *metadata.Manager
	time  chrono.TimeAPI
	tel   telemetry.API
	opts  Options
}

func NewScraper(
	pages Pages,
	s *store.Store,
	meta *metadata.Manager,
	time chrono.TimeAPI,
	tel telemetry.API,
	opts Options,
) *Scraper {
	assert.NotNil(pages)
	assert.NotNil(s)
	assert.NotNil(meta)
	assert.NotNil(time)
	assert.NotNil(tel)

	return &Scraper{
		pages: pages,
		store: s,
		meta:  meta,
		time:  time,
		tel:   telemetry.NewScopedAPI("maimai_scraper", tel),
		opts:  opts,
	}
}

// throttle waits WaitDelay plus up to three times WaitDelay of jitter.
func (s *Scraper) throttle(ctx context.Context) error {
	base := s.opts.WaitDelay
	if base <= 0 {
		return ctx.Err()
	}
	return chrono.Sleep(ctx, base+rand.N(3*base))
}

func (s *Scraper) maxDetailAttempts() int64 {
	if s.opts.MaxDetailAttempts <= 0 {
		return DefaultMaxDetailAttempts
	}
	return int64(s.opts.MaxDetailAttempts)
}

// unusableDetail returns true for failures where the portal answered but
// the answer was not a detail page, retrying those is unlikely to help.
func unusableDetail(err error) bool {
	return errors.Is(err, ErrPageUnavailable) || errors.Is(err, ErrNoDetailTable)
}

func storageError(err error) error {
	return fmt.Errorf("%w: %w", ErrStorage, err)
}

// RunCycle scrapes the records page once: unseen plays are inserted as
// partial rows, then every row still missing its detail (including ones
// left over from earlier cycles) gets its detail page merged in.
//
// A failure on a single play is reported and leaves that row for the next
// cycle. Failing to fetch the records page, losing the session or a
// storage failure ends the cycle with an error.
func (s *Scraper) RunCycle(ctx context.Context) (CycleReport, error) {
	runID, err := random.String(8)
	if err != nil {
		runID = "unknown"
	}
	ctx, span := tracer.Start(ctx, "cycle", trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	report, err := s.runCycle(ctx)
	span.SetAttributes(
		attribute.Int("seen", report.Seen),
		attribute.Int("inserted", report.Inserted),
		attribute.Int("detailed", report.Detailed),
		attribute.Int("failed", report.Failed),
		attribute.Int("abandoned", report.Abandoned),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}

	s.meta.Touch(ctx)
	s.tel.ReportCount(report_scraper_cycle_seen, int64(report.Seen))
	s.tel.ReportCount(report_scraper_cycle_new, int64(report.Inserted))
	s.tel.ReportCount(report_scraper_cycle_fail, int64(report.Failed))
	s.tel.ReportDebug(
		report_scraper_cycle_stats,
		"run", runID,
		"seen", report.Seen,
		"inserted", report.Inserted,
		"skipped", report.Skipped,
		"detailed", report.Detailed,
		"failed", report.Failed,
		"abandoned", report.Abandoned,
	)
	return report, nil
}

func (s *Scraper) runCycle(ctx context.Context) (CycleReport, error) {
	var report CycleReport

	doc, err := s.pages.Records(ctx)
	if err != nil {
		return report, fmt.Errorf("fetch records: %w", err)
	}
	entries := ParseListing(doc)
	report.Seen = len(entries)

	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Idx
	}
	existing := s.store.ExistingKeys(ctx, db.PlayDataTable, keys)

	now := s.time.Now().Unix()
	version := s.meta.PlayDataVersion()

	// the listing is newest first, inserting oldest first keeps ids in
	// play order.
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if existing[entry.Idx] {
			report.Skipped++
			continue
		}

		candidate := BuildCandidate(entry)
		candidate.PlayDataVersion = db.Ptr(version)
		candidate.ScrapedAt = db.Ptr(now)

		_, err := s.store.Upsert(ctx, db.PlayDataTable, candidate.ToRecord())
		if errors.Is(err, store.ErrConstraint) {
			report.Skipped++
			continue
		}
		if err != nil {
			return report, storageError(err)
		}
		report.Inserted++
	}

	pending := s.store.SelectQuery(ctx, db.PlayDataTable, store.Query{
		Filter:  store.Record{"detailed": store.Bool(false)},
		OrderBy: "id",
	})
	limit := s.maxDetailAttempts()
	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		play := db.PlayDataFromRecord(rec)
		if play.DetailAttempts != nil && *play.DetailAttempts >= limit {
			report.Abandoned++
			continue
		}

		err := s.detail(ctx, play)
		switch {
		case err == nil:
			report.Detailed++
		case errors.Is(err, ErrSessionExpired), errors.Is(err, ErrStorage), ctx.Err() != nil:
			return report, err
		default:
			report.Failed++
			idx := ""
			if play.Idx != nil {
				idx = *play.Idx
			}
			s.tel.ReportWarning(report_scraper_detail, err, idx)
			if !unusableDetail(err) {
				continue
			}
			if err := s.countAttempt(ctx, play, idx, limit); err != nil {
				return report, err
			}
		}
	}

	return report, nil
}

// countAttempt records one more unusable detail fetch for the play and
// reports it once it runs out of attempts.
func (s *Scraper) countAttempt(ctx context.Context, play db.PlayData, idx string, limit int64) error {
	if play.ID == nil {
		return nil
	}
	attempts := int64(1)
	if play.DetailAttempts != nil {
		attempts += *play.DetailAttempts
	}

	_, err := s.store.Upsert(ctx, db.PlayDataTable, db.PlayData{
		ID:             play.ID,
		DetailAttempts: &attempts,
	}.ToRecord())
	if err != nil && !errors.Is(err, store.ErrConstraint) {
		return storageError(err)
	}
	if attempts >= limit {
		s.tel.ReportWarning(
			report_scraper_abandon,
			fmt.Errorf("no usable detail page after %d attempts", attempts),
			idx,
		)
	}
	return nil
}

func (s *Scraper) detail(ctx context.Context, play db.PlayData) (err error) {
	if play.Idx == nil || play.ID == nil {
		return fmt.Errorf("stored play is missing its key")
	}

	ctx, span := tracer.Start(ctx, "detail", trace.WithAttributes(attribute.String("idx", *play.Idx)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	if err := s.throttle(ctx); err != nil {
		return err
	}

	doc, err := s.pages.Detail(ctx, *play.Idx)
	if err != nil {
		return fmt.Errorf("fetch detail: %w", err)
	}
	detail, err := ParseDetail(doc)
	if err != nil {
		return err
	}

	merged := detail.Apply(db.PlayData{ID: play.ID})
	stored, err := s.store.Upsert(ctx, db.PlayDataTable, merged.ToRecord())
	if errors.Is(err, store.ErrConstraint) {
		return err
	}
	if err != nil {
		return storageError(err)
	}

	s.recordPlay(ctx, db.PlayDataFromRecord(stored))
	return nil
}

// recordPlay folds a detailed play into the best results of its song.
func (s *Scraper) recordPlay(ctx context.Context, play db.PlayData) {
	if play.Title == nil || play.MusicType == nil || play.Difficulty == nil {
		return
	}
	_, err := s.improveBest(ctx, *play.Title, *play.MusicType, *play.Difficulty, db.Best{
		Score:   play.Achievement,
		DxScore: play.Score,
	})
	if err != nil {
		s.tel.ReportWarning(report_scraper_song, err, *play.Title)
	}
}

// improveBest stores the parts of best that beat the stored best result
// of a song on a difficulty, it returns true if anything changed.
func (s *Scraper) improveBest(ctx context.Context, title, chart, diff string, best db.Best) (bool, error) {
	if title == "" || !db.IsSongDifficulty(diff) {
		return false, nil
	}

	var stored db.Best
	rec, ok := s.store.SelectOne(ctx, db.SongDataTable, store.Record{
		"song_title": store.Text(title),
		"song_type":  store.Text(chart),
	})
	if ok {
		stored = db.SongDataFromRecord(rec).Bests[diff]
	}

	improved, changed := ImproveBest(stored, best)
	if !changed {
		return false, nil
	}
	_, err := s.store.Upsert(ctx, db.SongDataTable, db.SongData{
		SongTitle: db.Ptr(title),
		SongType:  db.Ptr(chart),
		Bests:     map[string]db.Best{diff: improved},
	}.ToRecord())
	if err != nil {
		return false, err
	}
	return true, nil
}

// RecordPlayer appends a player snapshot when the total play count differs
// from the last one stored. It returns true if a snapshot was added.
func (s *Scraper) RecordPlayer(ctx context.Context) (bool, error) {
	doc, err := s.pages.PlayerData(ctx)
	if err != nil {
		return false, fmt.Errorf("fetch player data: %w", err)
	}
	player, ok := ParsePlayerData(doc)
	if !ok || player.TotalPlays == nil {
		s.tel.ReportWarning(report_scraper_player, fmt.Errorf("player summary not found"))
		return false, nil
	}

	latest := s.store.SelectQuery(ctx, db.PlayerDataTable, store.Query{
		OrderBy: "id",
		Desc:    true,
		Limit:   1,
	})
	if len(latest) > 0 {
		prev := db.PlayerDataFromRecord(latest[0])
		if prev.TotalPlays != nil && *prev.TotalPlays == *player.TotalPlays {
			return false, nil
		}
	}

	player.ObservedAt = db.Ptr(s.time.Now().Unix())
	inserted, err := s.store.Insert(ctx, db.PlayerDataTable, player.ToRecord())
	if err != nil {
		return false, storageError(err)
	}
	return inserted, nil
}

// RefreshScores folds every score listing into the best results of each
// song, it returns how many results improved. A difficulty that fails is
// reported and skipped.
func (s *Scraper) RefreshScores(ctx context.Context) (int, error) {
	updated := 0
	for _, diff := range ScoreDifficulties {
		if err := s.throttle(ctx); err != nil {
			return updated, err
		}

		doc, err := s.pages.ScoreListing(ctx, diff)
		if errors.Is(err, ErrSessionExpired) {
			return updated, err
		}
		if err != nil {
			s.tel.ReportWarning(report_scraper_scores, err, string(diff))
			continue
		}

		for _, entry := range ParseScoreListing(doc, diff) {
			changed, err := s.improveBest(ctx, entry.Title, string(entry.Chart), string(diff), entry.Best())
			if errors.Is(err, store.ErrConstraint) {
				s.tel.ReportWarning(report_scraper_song, err, entry.Title)
				continue
			}
			if err != nil {
				return updated, storageError(err)
			}
			if changed {
				updated++
			}
		}
	}
	return updated, nil
}
