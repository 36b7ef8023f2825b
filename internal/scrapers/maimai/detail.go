package maimai

import (
	"errors"
	"strings"

	"maimai-scraper/internal/db"
	"maimai-scraper/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoDetailTable is returned when a detail page does not have the note
// breakdown, usually because the page is not actually a detail page.
var ErrNoDetailTable = errors.New("note detail table not found")

type NoteType string

const (
	NoteTap   NoteType = "tap"
	NoteHold  NoteType = "hold"
	NoteSlide NoteType = "slide"
	NoteTouch NoteType = "touch"
	NoteBreak NoteType = "break"
)

var noteTypes = []NoteType{NoteTap, NoteHold, NoteSlide, NoteTouch, NoteBreak}

// Detail is everything the detail page of a play adds to its listing entry.
type Detail struct {
	MaxCombo      *int64
	MaxComboTotal *int64
	MaxSync       *int64
	MaxSyncTotal  *int64
	Fast          int64
	Late          int64

	// Notes holds the "critical / perfect / great / good / miss" cell
	// texts per note type, rows left blank by the chart are absent.
	Notes map[NoteType]string

	NewAchievement bool
	NewDxScore     bool
}

func (d Detail) note(t NoteType) *string {
	v, ok := d.Notes[t]
	if !ok {
		return nil
	}
	return &v
}

// Apply copies the detail onto a play and marks it as detailed.
func (d Detail) Apply(p db.PlayData) db.PlayData {
	p.MaxCombo = d.MaxCombo
	p.MaxComboTotal = d.MaxComboTotal
	p.MaxSync = d.MaxSync
	p.MaxSyncTotal = d.MaxSyncTotal
	p.Fast = db.Ptr(d.Fast)
	p.Late = db.Ptr(d.Late)
	p.TapDetail = d.note(NoteTap)
	p.HoldDetail = d.note(NoteHold)
	p.SlideDetail = d.note(NoteSlide)
	p.TouchDetail = d.note(NoteTouch)
	p.BreakDetail = d.note(NoteBreak)
	p.NewAchievement = db.Ptr(d.NewAchievement)
	p.NewDxScore = db.Ptr(d.NewDxScore)
	p.Detailed = db.Ptr(true)
	return p
}

// ParseDetail extracts a play's detail page, it fails only when the note
// table is missing. Every other missing field is left empty.
func ParseDetail(doc *goquery.Document) (Detail, error) {
	table := doc.Find("table.playlog_notes_detail").First()
	if table.Length() == 0 {
		return Detail{}, ErrNoDetailTable
	}

	d := Detail{Notes: map[NoteType]string{}}

	doc.Find(".playlog_score_block").Each(func(_ int, block *goquery.Selection) {
		src := IconName(htmlutil.Src(block.Find("img")))
		value := block.Find(".white")
		if value.Length() == 0 {
			return
		}
		cur, total := SplitFraction(htmlutil.Text(value))
		switch {
		case strings.Contains(src, "maxcombo"):
			d.MaxCombo, d.MaxComboTotal = cur, total
		case strings.Contains(src, "maxsync"):
			d.MaxSync, d.MaxSyncTotal = cur, total
		}
	})

	doc.Find(".w_96.f_l.t_r").Each(func(_ int, block *goquery.Selection) {
		src := IconName(htmlutil.Src(block.Find("img")))
		n := ParseInt(htmlutil.Text(block.Find("div")))
		if n == nil {
			return
		}
		switch {
		case strings.Contains(src, "fast"):
			d.Fast = *n
		case strings.Contains(src, "late"):
			d.Late = *n
		}
	})

	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		src := IconName(htmlutil.Src(row.Find("th img")))
		if src == "" {
			return
		}
		var note NoteType
		for _, t := range noteTypes {
			if src == string(t)+".png" {
				note = t
				break
			}
		}
		if note == "" {
			return
		}

		var cells []string
		blank := true
		row.Find("td").Each(func(_ int, td *goquery.Selection) {
			text := htmlutil.Text(td)
			if text != "" {
				blank = false
			}
			cells = append(cells, text)
		})
		// charts without a note type leave its row empty
		if blank {
			return
		}
		d.Notes[note] = strings.Join(cells, " / ")
	})

	d.NewAchievement = doc.Find("img.playlog_achievement_newrecord").Length() > 0
	d.NewDxScore = doc.Find("img.playlog_deluxscore_newrecord").Length() > 0

	return d, nil
}
