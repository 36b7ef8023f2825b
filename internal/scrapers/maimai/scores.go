package maimai

import (
	"regexp"
	"strings"

	"maimai-scraper/internal/db"
	"maimai-scraper/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// ScoreEntry is the best result of one chart as shown on the score listing.
type ScoreEntry struct {
	Title       string
	Chart       Chart
	Difficulty  Difficulty
	Achievement string
	DxScore     string
	Rank        Rank
	Combo       Combo
	Sync        Sync
}

// Best converts the entry to the form song_data stores it in.
func (e ScoreEntry) Best() db.Best {
	return db.Best{
		Score:   optional(e.Achievement),
		DxScore: optional(e.DxScore),
	}
}

// ParseScoreListing extracts the played charts of a score listing page,
// charts without a result are skipped.
func ParseScoreListing(doc *goquery.Document, diff Difficulty) []ScoreEntry {
	var entries []ScoreEntry

	doc.Find("div[class*='_score_back']").Each(func(_ int, block *goquery.Selection) {
		title := htmlutil.Text(block.Find(".music_name_block"))
		if title == "" {
			return
		}
		scores := block.Find(".music_score_block")
		if scores.Length() == 0 {
			return
		}

		kind := block.Find("img.music_kind_icon")
		if kind.Length() == 0 {
			kind = block.Parent().Find("img.music_kind_icon")
		}

		entry := ScoreEntry{
			Title:       title,
			Chart:       ChartVariant(htmlutil.Src(kind)),
			Difficulty:  diff,
			Achievement: htmlutil.Text(scores.Eq(0)),
			DxScore:     htmlutil.Text(scores.Eq(1)),
			Combo:       ComboNone,
			Sync:        SyncNone,
		}

		block.Find("img").Each(func(_ int, img *goquery.Selection) {
			src := img.AttrOr("src", "")
			if !strings.Contains(IconName(src), "music_icon_") {
				return
			}
			if r := RankOf(src); r != RankUnknown {
				entry.Rank = r
				return
			}
			if isComboIcon(src) {
				if g := ComboGrade(src); g != ComboNone {
					entry.Combo = g
				}
				return
			}
			if isSyncIcon(src) {
				if g := SyncGrade(src); g != SyncNone {
					entry.Sync = g
				}
			}
		})

		entries = append(entries, entry)
	})

	return entries
}

var playCountRegex = regexp.MustCompile(`(?i)(?:play\s*count|プレイ回数)\D*?([\d,]+)`)

// ParsePlayerData extracts the player summary of the home or player data
// page, false if the page has no player name on it.
func ParsePlayerData(doc *goquery.Document) (db.PlayerData, bool) {
	name := htmlutil.Text(doc.Find(".name_block"))
	if name == "" {
		return db.PlayerData{}, false
	}

	player := db.PlayerData{
		PlayerName: &name,
		Rating:     ParseInt(htmlutil.Text(doc.Find(".rating_block"))),
	}
	groups := playCountRegex.FindStringSubmatch(htmlutil.CleanText(doc.Text()))
	if len(groups) == 2 {
		player.TotalPlays = ParseInt(groups[1])
	}
	return player, true
}

// improves returns true if the incoming result is better than the stored
// one. Unparseable incoming values never replace anything, unparseable
// stored values are always replaced.
func improves(stored *string, incoming *string, parse func(string) (float64, bool)) bool {
	if incoming == nil {
		return false
	}
	in, ok := parse(*incoming)
	if !ok {
		return false
	}
	if stored == nil {
		return true
	}
	prev, ok := parse(*stored)
	if !ok {
		return true
	}
	return in > prev
}

func parseDxScore(text string) (float64, bool) {
	cur, _ := SplitFraction(text)
	if cur == nil {
		return 0, false
	}
	return float64(*cur), true
}

// ImproveBest returns the fields of incoming that beat stored, the bool is
// false when nothing improved.
func ImproveBest(stored, incoming db.Best) (db.Best, bool) {
	var out db.Best
	if improves(stored.Score, incoming.Score, ParseAchievement) {
		out.Score = incoming.Score
	}
	if improves(stored.DxScore, incoming.DxScore, parseDxScore) {
		out.DxScore = incoming.DxScore
	}
	return out, out.Score != nil || out.DxScore != nil
}
