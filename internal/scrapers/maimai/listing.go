package maimai

import (
	"strings"

	"maimai-scraper/internal/db"
	"maimai-scraper/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// ListingEntry is one play of the records page, the fragment is kept
// around so the candidate row can be built lazily.
type ListingEntry struct {
	Idx      string
	Fragment *goquery.Selection
}

// ParseListing returns the entries of the records page in page order
// (newest first). Blocks without an idx are not plays and are skipped.
func ParseListing(doc *goquery.Document) []ListingEntry {
	var entries []ListingEntry
	seen := map[string]bool{}

	doc.Find("div.p_10").Each(func(_ int, wrapper *goquery.Selection) {
		idx := strings.TrimSpace(wrapper.Find("input[name='idx']").First().AttrOr("value", ""))
		if idx == "" || seen[idx] {
			return
		}
		seen[idx] = true
		entries = append(entries, ListingEntry{Idx: idx, Fragment: wrapper})
	})

	return entries
}

// comboFromIcons picks the combo grade out of the result icons of a play,
// no combo icon at all means no combo.
func comboFromIcons(srcs []string) Combo {
	result := ComboNone
	for _, src := range srcs {
		if !isComboIcon(src) {
			continue
		}
		switch g := ComboGrade(src); g {
		case ComboNone:
			continue
		case ComboUnknown:
			result = ComboUnknown
		default:
			return g
		}
	}
	return result
}

func syncFromIcons(srcs []string) Sync {
	result := SyncNone
	for _, src := range srcs {
		if !isSyncIcon(src) {
			continue
		}
		switch g := SyncGrade(src); g {
		case SyncNone:
			continue
		case SyncUnknown:
			result = SyncUnknown
		default:
			return g
		}
	}
	return result
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// BuildCandidate extracts the partial play row a listing entry carries.
// The result is never detailed, the detail page fills in the rest.
func BuildCandidate(entry ListingEntry) db.PlayData {
	f := entry.Fragment

	subtitle := f.Find(".sub_title span")
	label := htmlutil.Text(subtitle.Eq(0))
	playedAt := htmlutil.Text(subtitle.Eq(1))

	place := ""
	if label != "" && !IsTrackLabel(label) {
		place = label
	} else {
		place = Placement(htmlutil.Src(f.Find(".playlog_matching_icon")))
	}

	difficulty := DifficultyOf(htmlutil.Src(f.Find(".playlog_diff")))
	chart := ChartVariant(htmlutil.Src(f.Find("img.playlog_music_kind_icon")))
	rank := RankOf(htmlutil.Src(f.Find(".playlog_scorerank")))
	stars := int64(Stars(htmlutil.Src(f.Find("img.playlog_deluxscore_star"))))

	score := htmlutil.Text(f.Find(".white.f_15"))
	dxScore, dxScoreMax := SplitFraction(score)

	var icons []string
	f.Find("div.playlog_result_innerblock > img[src*='/playlog/']").Each(func(_ int, img *goquery.Selection) {
		icons = append(icons, img.AttrOr("src", ""))
	})

	return db.PlayData{
		Idx:         db.Ptr(entry.Idx),
		Title:       db.Ptr(htmlutil.Text(f.Find(".basic_block"))),
		Difficulty:  db.Ptr(string(difficulty)),
		Track:       optional(label),
		MusicType:   db.Ptr(string(chart)),
		Place:       optional(place),
		PlayedAt:    optional(playedAt),
		Achievement: optional(htmlutil.Text(f.Find(".playlog_achievement_txt"))),
		Rank:        db.Ptr(rank.String()),
		Score:       optional(score),
		DxScore:     dxScore,
		DxScoreMax:  dxScoreMax,
		DxStars:     db.Ptr(stars),
		ComboStatus: db.Ptr(string(comboFromIcons(icons))),
		SyncStatus:  db.Ptr(string(syncFromIcons(icons))),
		Detailed:    db.Ptr(false),
	}
}
