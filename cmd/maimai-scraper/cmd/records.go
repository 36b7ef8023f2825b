package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"maimai-scraper/internal/components/telemetry"
	"maimai-scraper/internal/config"
	"maimai-scraper/internal/db"
	"maimai-scraper/internal/i18n"
	"maimai-scraper/internal/store"
	"maimai-scraper/pkg/apppath"

	"github.com/antzucaro/matchr"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// titleMatchThreshold is the Jaro-Winkler similarity above which a title
// counts as a match for `records --title`.
const titleMatchThreshold = 0.85

var (
	recordsTitle    string
	recordsLimit    int
	recordsPending  bool
	recordsShowSong bool
)

func init() {
	recordsCmd.Flags().StringVar(&recordsTitle, "title", "", "Only show plays of songs whose title is close to this.")
	recordsCmd.Flags().IntVarP(&recordsLimit, "limit", "n", 20, "Maximum number of plays to show, 0 shows all of them.")
	recordsCmd.Flags().BoolVar(&recordsPending, "pending", false, "Only show plays still missing their detail.")
	recordsCmd.Flags().BoolVar(&recordsShowSong, "bests", false, "Show the best result per song instead of plays.")
	rootCmd.AddCommand(recordsCmd)
}

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Prints the stored plays, newest first.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		initSlog(slog.LevelWarn)
		tel := telemetry.NewSlogAPI(slog.Default())

		msgs := i18n.New("en")
		if path, err := apppath.ResolvePath(configPath); err == nil {
			if cfg, err := config.Load(path); err == nil {
				msgs = i18n.New(cfg.Language)
			}
		}

		s := openStore(ctx, tel)
		defer s.Close()

		if recordsShowSong {
			songs := selectSongs(ctx, s, recordsTitle, recordsLimit)
			if len(songs) == 0 {
				fmt.Fprintln(os.Stdout, msgs.T(i18n.NoData))
				return
			}
			renderSongs(os.Stdout, songs)
			return
		}

		plays := selectPlays(ctx, s, recordsTitle, recordsLimit, recordsPending)
		if len(plays) == 0 {
			fmt.Fprintln(os.Stdout, msgs.T(i18n.NoData))
			return
		}
		renderPlays(os.Stdout, plays)
	},
}

func matchesTitle(query, title string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}
	title = strings.ToLower(title)
	if strings.Contains(title, query) {
		return true
	}
	return matchr.JaroWinkler(query, title, false) >= titleMatchThreshold
}

func selectPlays(ctx context.Context, s *store.Store, title string, limit int, pending bool) []db.PlayData {
	q := store.Query{OrderBy: "id", Desc: true}
	if pending {
		q.Filter = store.Record{"detailed": store.Bool(false)}
	}

	var out []db.PlayData
	for _, rec := range s.SelectQuery(ctx, db.PlayDataTable, q) {
		play := db.PlayDataFromRecord(rec)
		if play.Title == nil || !matchesTitle(title, *play.Title) {
			continue
		}
		out = append(out, play)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func selectSongs(ctx context.Context, s *store.Store, title string, limit int) []db.SongData {
	var out []db.SongData
	for _, rec := range s.SelectQuery(ctx, db.SongDataTable, store.Query{OrderBy: "song_title"}) {
		song := db.SongDataFromRecord(rec)
		if song.SongTitle == nil || !matchesTitle(title, *song.SongTitle) {
			continue
		}
		out = append(out, song)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func orDash[T any](v *T) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}

func renderPlays(w io.Writer, plays []db.PlayData) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{
		"Played At", "Title", "Type", "Difficulty", "Achievement",
		"Rank", "DX Score", "Combo", "Sync", "Place", "Detailed",
	})

	for _, p := range plays {
		detailed := "no"
		if p.Detailed != nil && *p.Detailed {
			detailed = "yes"
		}
		t.AppendRow(table.Row{
			orDash(p.PlayedAt),
			orDash(p.Title),
			orDash(p.MusicType),
			orDash(p.Difficulty),
			orDash(p.Achievement),
			orDash(p.Rank),
			orDash(p.Score),
			orDash(p.ComboStatus),
			orDash(p.SyncStatus),
			orDash(p.Place),
			detailed,
		})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}

func renderSongs(w io.Writer, songs []db.SongData) {
	header := table.Row{"Title", "Type"}
	for _, diff := range db.Difficulties {
		header = append(header, diff)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(header)

	for _, s := range songs {
		row := table.Row{orDash(s.SongTitle), orDash(s.SongType)}
		for _, diff := range db.Difficulties {
			best, ok := s.Bests[diff]
			if !ok {
				row = append(row, "-")
				continue
			}
			row = append(row, orDash(best.Score))
		}
		t.AppendRow(row)
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}
